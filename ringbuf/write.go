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
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Reserve claims nWords words (plus a one-word length prefix, added
// internally) for a producer. It returns a Tx whose typed codec methods
// address the reserved payload; the caller commits with Commit or
// abandons it, leaving the ring in the "producer crashed" state that
// Repair clears.
//
// If the record would straddle the physical end of the data area, the
// reservation transparently pads the tail with a skip marker and places
// the record at word 0 instead.
func (r *Ring) Reserve(nWords uint32) (Tx, error) {
	if uint64(nWords)*wordSize > MaxMsgSize {
		return Tx{}, fmt.Errorf("%w: %d bytes exceeds MaxMsgSize", ErrFatal, uint64(nWords)*wordSize)
	}

	needed := uint64(nWords) + 1 // + length prefix
	nbWords := r.hdr.nbWords

	for attempt := 0; ; attempt++ {
		prodHead := atomic.LoadUint64(&r.hdr.prodHead)
		consTail := atomic.LoadUint64(&r.hdr.consTail)

		phys := prodHead % nbWords
		tailSpace := nbWords - phys

		var skipWords uint64
		if needed > tailSpace {
			skipWords = tailSpace
		}
		reserveWords := skipWords + needed
		newHead := prodHead + reserveWords

		if r.hdr.wrap == 0 {
			if occupiedWords(newHead, consTail) > nbWords {
				return Tx{}, ErrNoMoreRoom
			}
		} else if occupiedWords(newHead, consTail) > nbWords {
			r.cfg.log.Debug("ringbuf: wrap-mode producer overran consumer",
				zap.Uint64("prod_head", newHead), zap.Uint64("cons_tail", consTail), zap.Uint64("nb_words", nbWords))
		}

		if !atomic.CompareAndSwapUint64(&r.hdr.prodHead, prodHead, newHead) {
			r.spinWait(attempt)
			continue
		}

		if skipWords > 0 {
			r.setWordAt(prodHead, skipMarkerBit|uint32(skipWords-1))
		}

		recordStart := prodHead + skipWords + 1
		r.setWordAt(recordStart-1, nWords)

		r.openTx.Add(1)
		return Tx{
			ring:         r,
			kind:         txProducer,
			reserveStart: prodHead,
			reserveWords: reserveWords,
			recordStart:  recordStart,
			allocedBytes: int(nWords) * wordSize,
		}, nil
	}
}

// Commit publishes a producer Tx, advancing prod_tail once every
// earlier producer has published its own slot. tmin and tmax are merged
// into the ring's time envelope non-atomically; readers are expected to
// tolerate an occasionally stale envelope.
func (r *Ring) Commit(tx Tx, tmin, tmax float64) error {
	if tx.kind != txProducer || tx.ring != r {
		return fmt.Errorf("%w: commit called with a non-producer or foreign Tx", ErrFatal)
	}
	defer tx.retire()

	for attempt := 0; atomic.LoadUint64(&r.hdr.prodTail) != tx.reserveStart; attempt++ {
		r.spinWait(attempt)
	}

	if tmin < r.hdr.tmin {
		r.hdr.tmin = tmin
	}
	if tmax > r.hdr.tmax {
		r.hdr.tmax = tmax
	}
	r.hdr.nbAllocs++

	atomic.StoreUint64(&r.hdr.prodTail, tx.reserveStart+tx.reserveWords)
	return nil
}

// Enqueue is the high-level, single-call producer operation: reserve,
// write the payload verbatim, and commit. payload's length must be a
// multiple of 4 bytes and at most MaxMsgSize.
func (r *Ring) Enqueue(payload []byte, tmin, tmax float64) error {
	if len(payload)&3 != 0 {
		return fmt.Errorf("%w: payload length %d is not a multiple of 4", ErrFatal, len(payload))
	}
	if len(payload) > MaxMsgSize {
		return fmt.Errorf("%w: payload length %d exceeds MaxMsgSize", ErrFatal, len(payload))
	}

	tx, err := r.Reserve(uint32(len(payload) / wordSize))
	if err != nil {
		return err
	}

	if len(payload) > 0 {
		copy(tx.bytesAt(0, len(payload)), payload)
	}

	return r.Commit(tx, tmin, tmax)
}
