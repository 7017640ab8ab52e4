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

// DequeueReserve claims the oldest committed record for a consumer,
// returning ErrEmpty if cons_head has caught up with prod_tail. Skip
// markers left by producer wraparound are consumed transparently: this
// call never returns one to the caller.
func (r *Ring) DequeueReserve() (Tx, error) {
	for {
		tx, isSkip, err := r.dequeueReserveRaw()
		if err != nil {
			return Tx{}, err
		}
		if !isSkip {
			return tx, nil
		}
		if err := r.dequeueCommitRaw(tx); err != nil {
			return Tx{}, err
		}
	}
}

// dequeueReserveRaw performs one CAS-guarded consumer reservation,
// returning either a real record's Tx or a skip marker's Tx (isSkip
// true) for the caller to release internally.
func (r *Ring) dequeueReserveRaw() (tx Tx, isSkip bool, err error) {
	nbWords := r.hdr.nbWords

	for attempt := 0; ; attempt++ {
		consHead := atomic.LoadUint64(&r.hdr.consHead)
		prodTail := atomic.LoadUint64(&r.hdr.prodTail)

		if consHead == prodTail {
			return Tx{}, false, ErrEmpty
		}

		lenWord := r.wordAt(consHead)

		if lenWord&skipMarkerBit != 0 {
			advance := uint64(lenWord&^skipMarkerBit) + 1
			newHead := consHead + advance
			if !atomic.CompareAndSwapUint64(&r.hdr.consHead, consHead, newHead) {
				r.spinWait(attempt)
				continue
			}
			r.openTx.Add(1)
			return Tx{
				ring:         r,
				kind:         txConsumer,
				reserveStart: consHead,
				reserveWords: advance,
				recordStart:  consHead + 1,
				allocedBytes: 0,
			}, true, nil
		}

		nWords := lenWord
		if uint64(nWords) > nbWords {
			return Tx{}, false, ErrInvalidBuffer
		}
		advance := uint64(nWords) + 1
		newHead := consHead + advance
		if !atomic.CompareAndSwapUint64(&r.hdr.consHead, consHead, newHead) {
			r.spinWait(attempt)
			continue
		}

		r.openTx.Add(1)
		return Tx{
			ring:         r,
			kind:         txConsumer,
			reserveStart: consHead,
			reserveWords: advance,
			recordStart:  consHead + 1,
			allocedBytes: int(nWords) * wordSize,
		}, false, nil
	}
}

// DequeueCommit releases a consumer Tx obtained from DequeueReserve,
// advancing cons_tail once every earlier consumer has released its own
// slot.
func (r *Ring) DequeueCommit(tx Tx) error {
	if tx.kind != txConsumer || tx.ring != r {
		return fmt.Errorf("%w: dequeue_commit called with a non-consumer or foreign Tx", ErrFatal)
	}
	if err := r.dequeueCommitRaw(tx); err != nil {
		return err
	}
	atomic.AddUint64(&r.hdr.nbDequeued, 1)
	return nil
}

func (r *Ring) dequeueCommitRaw(tx Tx) error {
	defer tx.retire()
	for attempt := 0; atomic.LoadUint64(&r.hdr.consTail) != tx.reserveStart; attempt++ {
		r.spinWait(attempt)
	}
	atomic.StoreUint64(&r.hdr.consTail, tx.reserveStart+tx.reserveWords)
	return nil
}

// rollbackConsumerReserve undoes a consumer reservation that is being
// abandoned without a commit, so the record it covers is immediately
// visible to the next DequeueReserve instead of being stranded ahead of
// cons_tail forever (which would also livelock every later consumer's
// DequeueCommit, since none of their reserveStart values could ever
// become cons_tail). The CAS only succeeds if cons_head still equals
// tx's own reservation end, i.e. no other consumer has reserved past it
// yet; if it has, the slot is left for RepairConsumer to clear instead.
func (r *Ring) rollbackConsumerReserve(tx Tx) {
	reservedEnd := tx.reserveStart + tx.reserveWords
	if !atomic.CompareAndSwapUint64(&r.hdr.consHead, reservedEnd, tx.reserveStart) {
		r.cfg.log.Debug("ringbuf: consumer discard could not roll back cons_head in place",
			zap.Uint64("reserve_start", tx.reserveStart),
			zap.Uint64("cons_head", atomic.LoadUint64(&r.hdr.consHead)))
	}
}

// Dequeue is the high-level, single-call consumer operation: reserve
// the oldest record, copy its bytes out, and commit.
func (r *Ring) Dequeue() ([]byte, error) {
	tx, err := r.DequeueReserve()
	if err != nil {
		return nil, err
	}

	out := make([]byte, tx.allocedBytes)
	if tx.allocedBytes > 0 {
		copy(out, tx.bytesAt(0, tx.allocedBytes))
	}

	if err := r.DequeueCommit(tx); err != nil {
		return nil, err
	}
	return out, nil
}
