package ringbuf

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Repair clears a crashed producer's unfinished reservation, resetting
// prod_head back to prod_tail. It is meant to be invoked by an operator
// (or a supervising process) after detecting that a producer died
// mid-reservation — that detection heuristic (e.g. "prod_head > prod_tail
// with no active producers after a grace period") lives outside the
// ring itself.
//
// Repair is producer-side only: it does not coordinate with consumers
// at all, and the caller is responsible for excluding concurrent
// producers while it runs. If another producer manages to advance
// prod_head between this call's read and its CAS, Repair reports that
// race as ErrFatal rather than silently clobbering a legitimate
// in-flight reservation.
func (r *Ring) Repair() (bool, error) {
	prodHead := atomic.LoadUint64(&r.hdr.prodHead)
	prodTail := atomic.LoadUint64(&r.hdr.prodTail)

	if prodHead == prodTail {
		return false, nil
	}

	if !atomic.CompareAndSwapUint64(&r.hdr.prodHead, prodHead, prodTail) {
		return false, fmt.Errorf("%w: repair raced with a concurrent producer", ErrFatal)
	}

	r.cfg.log.Info("ringbuf: repaired crashed producer reservation",
		zap.Uint64("prod_head_was", prodHead), zap.Uint64("prod_tail", prodTail))
	return true, nil
}

// RepairConsumer clears an abandoned consumer reservation, resetting
// cons_head back to cons_tail. It is the consumer-side counterpart to
// Repair, for the cases Tx.Discard's in-place rollback can't handle
// itself: a consumer process that died with no Tx left to call Discard
// on, or one whose rollback CAS lost a race against a later consumer
// that had already reserved past it.
//
// RepairConsumer does not coordinate with producers at all, and the
// caller is responsible for excluding concurrent consumer reservations
// while it runs. If another consumer manages to advance cons_head
// between this call's read and its CAS, RepairConsumer reports that
// race as ErrFatal rather than silently clobbering a legitimate
// in-flight reservation.
func (r *Ring) RepairConsumer() (bool, error) {
	consHead := atomic.LoadUint64(&r.hdr.consHead)
	consTail := atomic.LoadUint64(&r.hdr.consTail)

	if consHead == consTail {
		return false, nil
	}

	if !atomic.CompareAndSwapUint64(&r.hdr.consHead, consHead, consTail) {
		return false, fmt.Errorf("%w: repair_consumer raced with a concurrent consumer", ErrFatal)
	}

	r.cfg.log.Info("ringbuf: repaired abandoned consumer reservation",
		zap.Uint64("cons_head_was", consHead), zap.Uint64("cons_tail", consTail))
	return true, nil
}
