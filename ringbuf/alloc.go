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

import (
	"encoding/binary"
	"runtime"
	"sync/atomic"
	"time"
)

// spinYieldThreshold is how many failed iterations a reservation or
// commit loop answers with a plain runtime.Gosched() before it switches
// to sleeping with a capped exponential backoff.
const spinYieldThreshold = 4

// spinWait backs a spin loop off: a plain runtime.Gosched() for the
// first few failed attempts, then a short, capped exponential sleep so
// a spinning goroutine never starves others it depends on. Reserve and
// DequeueReserve call it between CAS attempts, before they hold a
// reservation; Commit and DequeueCommit call it while their own Tx is
// still reserved and waiting for earlier ones to publish, so those
// waits can sleep while holding a reservation that later commits wait
// on.
func (r *Ring) spinWait(attempt int) {
	if attempt < spinYieldThreshold {
		runtime.Gosched()
		return
	}
	shift := attempt - spinYieldThreshold
	if shift > 6 {
		shift = 6
	}
	time.Sleep(r.cfg.backoffUnit << uint(shift))
}

// wordAt reads the 32-bit little-endian word at logical word index idx,
// which must already be committed (i.e. within [cons_tail, prod_tail)
// from the caller's point of view) or otherwise owned by the caller.
func (r *Ring) wordAt(idx uint64) uint32 {
	phys := idx % r.hdr.nbWords
	return binary.LittleEndian.Uint32(r.data[phys*wordSize:])
}

// setWordAt writes the 32-bit little-endian word at logical word index
// idx. Only the producer that reserved the range covering idx may call
// this.
func (r *Ring) setWordAt(idx uint64, v uint32) {
	phys := idx % r.hdr.nbWords
	binary.LittleEndian.PutUint32(r.data[phys*wordSize:], v)
}

// occupiedWords returns prodHead - consTail using wraparound-correct
// unsigned 64-bit arithmetic, valid regardless of how many times the
// logical indices have exceeded nb_words.
func occupiedWords(prodHead, consTail uint64) uint64 {
	return prodHead - consTail
}

// loadIndices reads the four header cursors with sequentially consistent
// atomic loads, which subsumes the acquire ordering a multi-writer ring
// needs on every architecture Go targets.
func (r *Ring) loadIndices() (prodHead, prodTail, consHead, consTail uint64) {
	return atomic.LoadUint64(&r.hdr.prodHead),
		atomic.LoadUint64(&r.hdr.prodTail),
		atomic.LoadUint64(&r.hdr.consHead),
		atomic.LoadUint64(&r.hdr.consTail)
}
