package ringbuf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRing(t *testing.T, totWords uint64, opts ...Option) *Ring {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ring.dat")
	require.NoError(t, Create(path, totWords, opts...))
	r, err := Load(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, r.Unload())
	})
	return r
}

// scenario 1: basic enqueue/dequeue round trip updates stats correctly.
func TestEnqueueDequeueBasic(t *testing.T) {
	r := newTestRing(t, 16)

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, r.Enqueue(payload, 1.0, 2.0))

	stats := r.Stats()
	require.Equal(t, uint64(2), stats.Entries, "Entries counts words: one payload word plus its length prefix")
	require.Equal(t, uint64(1), stats.LiveEntries)
	require.Equal(t, 1.0, stats.Tmin)
	require.Equal(t, 2.0, stats.Tmax)
	require.Equal(t, uint64(0), stats.FirstSeq)

	got, err := r.Dequeue()
	require.NoError(t, err)
	require.Equal(t, payload, got)

	stats = r.Stats()
	require.Equal(t, uint64(0), stats.Entries)
	require.Equal(t, uint64(1), stats.FirstSeq, "one record has now been dequeued")
}

// scenario 2: archive-mode ring of 4 words holds exactly two 4-byte
// payloads (1 word each + 1 length-prefix word = 2 words per record),
// then fails NoMoreRoom.
func TestArchiveModeFillsAndRejects(t *testing.T) {
	r := newTestRing(t, 4, WithWrap(false))

	require.NoError(t, r.Enqueue([]byte{1, 2, 3, 4}, 0, 0))
	require.NoError(t, r.Enqueue([]byte{5, 6, 7, 8}, 0, 0))

	err := r.Enqueue([]byte{9, 10, 11, 12}, 0, 0)
	require.ErrorIs(t, err, ErrNoMoreRoom)
}

// scenario 3: wrap-mode rings let the producer lap the consumer.
func TestWrapModeLapsConsumer(t *testing.T) {
	r := newTestRing(t, 8, WithWrap(true))

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Enqueue([]byte{byte(i), byte(i), byte(i), byte(i), byte(i), byte(i), byte(i), byte(i)}, 0, 0))
	}

	stats := r.Stats()
	require.Greater(t, stats.ProdHead-stats.ConsTail, stats.NbWords)
}

// scenario 4: typed codec round-trips several widths within one record.
func TestTypedCodecRoundTrip(t *testing.T) {
	r := newTestRing(t, 64)

	tx, err := r.Reserve(4) // 16 bytes
	require.NoError(t, err)
	tx.WriteU32(0, 0xDEADBEEF)
	tx.WriteU64(4, 0x0123456789ABCDEF)
	tx.WriteU32(12, 42)
	require.NoError(t, r.Commit(tx, 0, 0))

	rtx, err := r.DequeueReserve()
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), rtx.ReadU32(0))
	require.Equal(t, uint64(0x0123456789ABCDEF), rtx.ReadU64(4))
	require.Equal(t, uint32(42), rtx.ReadU32(12))
	require.NoError(t, r.DequeueCommit(rtx))
}

// scenario 5: nullmask bits round-trip and don't disturb neighboring bits.
func TestNullmaskBits(t *testing.T) {
	r := newTestRing(t, 16)

	tx, err := r.Reserve(2) // 8 bytes
	require.NoError(t, err)
	tx.SetBit(3)
	tx.SetBit(17)
	require.NoError(t, r.Commit(tx, 0, 0))

	rtx, err := r.DequeueReserve()
	require.NoError(t, err)
	require.True(t, rtx.GetBit(3))
	require.True(t, rtx.GetBit(17))
	require.False(t, rtx.GetBit(0))
	require.NoError(t, r.DequeueCommit(rtx))
}

// scenario 6: a crashed producer's reservation is reclaimed by Repair,
// and the consumer only ever observes records committed before the
// crash.
func TestRepairAfterCrashedProducer(t *testing.T) {
	r := newTestRing(t, 16)

	// A producer reserves a slot and then crashes before committing.
	crashed, err := r.Reserve(1)
	require.NoError(t, err)

	stats := r.Stats()
	require.Greater(t, stats.ProdHead, stats.ProdTail, "the crashed reservation left prod_head ahead of prod_tail")

	_, err = r.DequeueReserve()
	require.ErrorIs(t, err, ErrEmpty, "nothing has been committed yet, crashed reservation or not")

	changed, err := r.Repair()
	require.NoError(t, err)
	require.True(t, changed)

	stats = r.Stats()
	require.Equal(t, stats.ProdHead, stats.ProdTail)

	// Repair on an already-settled ring is idempotent and reports no change.
	changed, err = r.Repair()
	require.NoError(t, err)
	require.False(t, changed)

	require.NoError(t, r.Enqueue([]byte{9, 9, 9, 9}, 0, 0))
	got, err := r.Dequeue()
	require.NoError(t, err)
	require.Equal(t, []byte{9, 9, 9, 9}, got)

	// The crashed producer never committed; retire its accounting
	// directly so the ring can be unloaded at cleanup.
	crashed.retire()
}

// scenario 7: a consumer that reserves a record and discards it without
// committing makes the record available again for the very next
// DequeueReserve, rather than stranding it ahead of cons_tail forever.
func TestConsumerDiscardMakesRecordReadableAgain(t *testing.T) {
	r := newTestRing(t, 16)
	require.NoError(t, r.Enqueue([]byte{4, 4, 4, 4}, 0, 0))

	tx, err := r.DequeueReserve()
	require.NoError(t, err)
	require.Equal(t, []byte{4, 4, 4, 4}, tx.bytesAt(0, tx.allocedBytes))
	tx.Discard()

	stats := r.Stats()
	require.Equal(t, stats.ConsHead, stats.ConsTail, "Discard rolled cons_head back in place")

	got, err := r.Dequeue()
	require.NoError(t, err)
	require.Equal(t, []byte{4, 4, 4, 4}, got, "the abandoned record is the one re-read")
}

// scenario 8: once one consumer abandons its reservation, a second
// consumer can still reserve and commit normally — the abandonment must
// not livelock every later DequeueCommit waiting for cons_tail to reach
// a reserveStart that will now never be committed.
func TestConsumerDiscardDoesNotLivelockLaterCommit(t *testing.T) {
	r := newTestRing(t, 32)
	require.NoError(t, r.Enqueue([]byte{1, 1, 1, 1}, 0, 0))
	require.NoError(t, r.Enqueue([]byte{2, 2, 2, 2}, 0, 0))

	txA, err := r.DequeueReserve()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 1, 1, 1}, txA.bytesAt(0, txA.allocedBytes))
	txA.Discard()

	// The freed slot is first in line again, so the next reservation
	// claims it rather than the second record.
	txB, err := r.DequeueReserve()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 1, 1, 1}, txB.bytesAt(0, txB.allocedBytes))
	require.NoError(t, r.DequeueCommit(txB), "must not livelock waiting on the abandoned reservation")

	got, err := r.Dequeue()
	require.NoError(t, err)
	require.Equal(t, []byte{2, 2, 2, 2}, got)
}

// scenario 9: a consumer reservation with no live Tx left to call
// Discard on (e.g. the owning process died) is cleared by
// RepairConsumer instead, mirroring Repair on the producer side.
func TestRepairConsumerAfterAbandonedReservation(t *testing.T) {
	r := newTestRing(t, 16)
	require.NoError(t, r.Enqueue([]byte{7, 7, 7, 7}, 0, 0))

	tx, err := r.DequeueReserve()
	require.NoError(t, err)
	require.Equal(t, []byte{7, 7, 7, 7}, tx.bytesAt(0, tx.allocedBytes))

	stats := r.Stats()
	require.Greater(t, stats.ConsHead, stats.ConsTail, "the abandoned reservation left cons_head ahead of cons_tail")

	changed, err := r.RepairConsumer()
	require.NoError(t, err)
	require.True(t, changed)

	stats = r.Stats()
	require.Equal(t, stats.ConsHead, stats.ConsTail)

	// RepairConsumer on an already-settled ring is idempotent and reports no change.
	changed, err = r.RepairConsumer()
	require.NoError(t, err)
	require.False(t, changed)

	got, err := r.Dequeue()
	require.NoError(t, err)
	require.Equal(t, []byte{7, 7, 7, 7}, got)

	// The original Tx's process "died" before ever calling Discard;
	// retire its accounting directly instead of going through Discard,
	// which would otherwise try to roll back cons_head to a position
	// RepairConsumer and the subsequent Dequeue have already reused.
	tx.retire()
}

func TestCreateFailsIfPathExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.dat")
	require.NoError(t, Create(path, 16))
	err := Create(path, 16)
	require.Error(t, err)
}

func TestLoadValidatesFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.dat")
	require.NoError(t, Create(path, 16))

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(4))
	require.NoError(t, f.Close())

	_, err = Load(path)
	require.ErrorIs(t, err, ErrInvalidBuffer)
}

func TestReserveRejectsOversizeAndUnaligned(t *testing.T) {
	r := newTestRing(t, 4096)

	err := r.Enqueue(make([]byte, MaxMsgSize+4), 0, 0)
	require.ErrorIs(t, err, ErrFatal)

	err = r.Enqueue([]byte{1, 2, 3}, 0, 0)
	require.ErrorIs(t, err, ErrFatal)
}

func TestDequeueEmptyRing(t *testing.T) {
	r := newTestRing(t, 16)
	_, err := r.Dequeue()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestReserveExactCapacityThenNoMoreRoom(t *testing.T) {
	r := newTestRing(t, 16, WithWrap(false))

	tx, err := r.Reserve(15) // 15 + 1 prefix == nb_words
	require.NoError(t, err)
	require.NoError(t, r.Commit(tx, 0, 0))

	_, err = r.Reserve(1)
	require.ErrorIs(t, err, ErrNoMoreRoom)
}
