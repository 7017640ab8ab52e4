package ringbuf

// txKind discriminates what a Tx is allowed to do and how it is retired.
type txKind uint8

const (
	txEmpty txKind = iota
	txProducer
	txConsumer
	txStream
)

// Tx is a short-lived handle onto a reserved-but-not-yet-committed slot
// (producer side), a dequeued-but-not-yet-released record (consumer
// side), or a position in a non-destructive streaming read. A Tx is
// created exclusively by Reserve, DequeueReserve, ReadFirst and
// ReadNext, and is consumed by a matching Commit/DequeueCommit, by
// Discard, or (for streaming reads) by a successful ReadNext. A Tx that
// is dropped without any of these stays counted as open.
//
// A Tx is a value type: it never outlives the Ring it was obtained from
// because it holds a pointer back to it, and Ring.Unload refuses to run
// while any Tx obtained from that Ring has not yet been retired.
type Tx struct {
	ring *ringHandle

	kind txKind

	// reserveStart/reserveWords describe the full CAS-reserved span,
	// including any leading skip padding; recordStart is where the
	// record's payload begins (reserveStart + skip + 1, past the
	// length prefix) and is what the typed codec addresses relative
	// to.
	reserveStart uint64
	reserveWords uint64
	recordStart  uint64

	allocedBytes int
}

// ringHandle lets a Tx track how many live transactions reference a
// Ring without importing a full *Ring (avoids an import cycle with
// nothing; kept as a thin alias purely for readability at call sites).
type ringHandle = Ring

// EmptyTx returns a Tx that is not attached to any ring and is unusable
// for reads, writes, or commit — it exists only so callers that need a
// zero-value placeholder (e.g. before a first successful reservation)
// have one without resorting to a nil pointer.
func EmptyTx() Tx {
	return Tx{kind: txEmpty}
}

// Size returns the number of payload bytes reserved for this Tx.
func (tx Tx) Size() int {
	return tx.allocedBytes
}

// retire decrements the owning ring's open-Tx counter. Every code path
// that produces a Tx bound to a ring (Reserve, DequeueReserve,
// ReadFirst successful branch) must pair with exactly one retire,
// whether via Commit/DequeueCommit or via an explicit discard.
func (tx Tx) retire() {
	if tx.ring != nil {
		tx.ring.openTx.Add(-1)
	}
}

// Discard abandons a Tx without committing it. For a producer Tx this
// leaves the ring in the "producer crashed" state until Repair is
// called. For a consumer Tx, Discard first tries to roll cons_head back
// to tx.reserveStart via CAS, so the record is immediately visible to
// the next DequeueReserve; that only succeeds while no other consumer
// has reserved past this slot yet. If it loses that race, the slot is
// left for RepairConsumer to clear instead, the same way a crashed
// producer's reservation is left for Repair. For a streaming Tx, Discard
// only retires it; a streaming Tx that is dropped instead stays counted
// as open and keeps Unload refusing.
func (tx Tx) Discard() {
	if tx.kind == txConsumer {
		tx.ring.rollbackConsumerReserve(tx)
	}
	tx.retire()
}
