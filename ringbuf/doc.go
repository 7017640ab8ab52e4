// {{{ Copyright (c) Paul R. Tagliamonte <paultag@gmail.com> 2020-2021
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

// Package ringbuf implements a persistent, memory-mapped ring buffer
// shared between cooperating processes on one host.
//
// A ring is a single file: a fixed header holding atomic producer and
// consumer indices, followed by a word-indexed circular data area.
// Producers reserve space, write a record's bytes through a Tx, and
// commit a [tmin, tmax] timestamp pair; consumers dequeue the oldest
// committed record, or walk committed records non-destructively with
// ReadFirst/ReadNext. Coordination between producers and consumers is
// lock-free: compare-and-swap on the header's index words, with
// release/acquire ordering on the tail publish.
//
// This buffer does not have fixed record sizes; each record is prefixed
// with its own length in words. Wraparound at the physical end of the
// data area is handled by a skip marker rather than splitting a record
// across the boundary.
package ringbuf

// vim: foldmethod=marker
