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

package ringbuf

import "errors"

// Recoverable conditions a caller is expected to retry or route around.
var (
	// ErrNoMoreRoom is returned by Reserve/Enqueue when an archive-mode
	// ring has no free space for the requested record.
	ErrNoMoreRoom = errors.New("ringbuf: no more room")

	// ErrEmpty is returned by DequeueReserve/Dequeue/ReadFirst/ReadNext
	// when there is no new committed record to hand back yet.
	ErrEmpty = errors.New("ringbuf: empty")

	// ErrEndOfStream is returned by ReadNext when the streaming cursor
	// has caught up with prod_tail and there is nothing further
	// committed to read. Distinct from ErrEmpty so batch readers can
	// stop instead of retrying.
	ErrEndOfStream = errors.New("ringbuf: end of stream")
)

// Fatal conditions: the ring is unusable, or was never usable, until an
// operator intervenes. Still returned as plain errors (this is a library,
// not a process), never as panics, because they reflect runtime state
// rather than a caller mistake.
var (
	// ErrInvalidBuffer means a length prefix or tag in the mapped file
	// is out of bounds or otherwise impossible. The ring must be
	// considered corrupt.
	ErrInvalidBuffer = errors.New("ringbuf: invalid buffer")

	// ErrFatal covers mapping, creation, and I/O failures. Wrapped
	// errors from the OS are joined under this sentinel via %w so
	// callers can still errors.Is(err, ErrFatal).
	ErrFatal = errors.New("ringbuf: fatal")
)

// boundsError is the panic value raised for programmer-error contract
// violations in the typed codec: misaligned offsets, accesses past a
// Tx's alloced size, bad IP addresses handed in from memory. (Oversize
// or unaligned Reserve/Enqueue requests return ErrFatal instead.) These are bugs
// in the calling code, not conditions a ring can recover from, so they
// panic rather than return an error, keeping recoverable ring states
// and programmer mistakes on separate channels.
type boundsError struct {
	msg string
}

func (e boundsError) Error() string { return "ringbuf: " + e.msg }

func panicBounds(msg string) {
	panic(boundsError{msg: msg})
}
