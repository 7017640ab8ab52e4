package ringbuf

import (
	"fmt"
	"sync/atomic"
)

// ReadFirst starts a non-destructive streaming read at the ring's
// consumer tail (the oldest record no consumer has released yet),
// without advancing cons_head. Walk forward with ReadNext.
func (r *Ring) ReadFirst() (Tx, error) {
	return r.readAt(atomic.LoadUint64(&r.hdr.consTail))
}

// ReadNext advances a streaming Tx to the next record. It distinguishes
// ErrEmpty (the cursor caught up with an actively-committing producer;
// retry later) from ErrEndOfStream (the cursor caught prod_tail and the
// producer is quiescent; stop) from ErrInvalidBuffer (a corrupt length
// prefix; fatal).
//
// On any of these errors tx is returned unchanged and still open, so a
// caller that polls (sleep, then call ReadNext(tx) again with the same
// tx) resumes from the same position instead of restarting from
// ReadFirst. tx is only retired once the advance actually succeeds.
func (r *Ring) ReadNext(tx Tx) (Tx, error) {
	if tx.kind != txStream || tx.ring != r {
		return Tx{}, fmt.Errorf("%w: read_next called with a non-streaming or foreign Tx", ErrFatal)
	}
	next := tx.reserveStart + tx.reserveWords
	nextTx, err := r.readAt(next)
	if err != nil {
		return tx, err
	}
	tx.retire()
	return nextTx, nil
}

// readAt resolves the record (or chain of skip markers) starting at
// logical word index pos, which must be no further ahead than
// prod_tail.
func (r *Ring) readAt(pos uint64) (Tx, error) {
	nbWords := r.hdr.nbWords

	for {
		prodTail := atomic.LoadUint64(&r.hdr.prodTail)
		prodHead := atomic.LoadUint64(&r.hdr.prodHead)

		if pos == prodTail {
			if prodHead != prodTail {
				// A producer is mid-commit just ahead of us: there may
				// be more to read shortly, but not yet.
				return Tx{}, ErrEmpty
			}
			return Tx{}, ErrEndOfStream
		}

		lenWord := r.wordAt(pos)

		if lenWord&skipMarkerBit != 0 {
			advance := uint64(lenWord&^skipMarkerBit) + 1
			pos += advance
			continue
		}

		nWords := lenWord
		if uint64(nWords) > nbWords {
			return Tx{}, ErrInvalidBuffer
		}

		r.openTx.Add(1)
		return Tx{
			ring:         r,
			kind:         txStream,
			reserveStart: pos,
			reserveWords: uint64(nWords) + 1,
			recordStart:  pos + 1,
			allocedBytes: int(nWords) * wordSize,
		}, nil
	}
}
