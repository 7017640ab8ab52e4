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
	"math"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Ring is a handle onto a memory-mapped ring buffer file. A Ring is safe
// for concurrent use by multiple goroutines and, since the coordination
// lives in the mapped file itself, by multiple OS processes that have
// each called Load on the same path.
type Ring struct {
	file *os.File
	buf  []byte // the whole mapping: header followed by the data area
	hdr  *header
	data []byte // buf[headerSize:], length nbWords*wordSize

	cfg config

	openTx atomic.Int64 // live Tx count; Unload refuses while > 0
}

// Stats is a point-in-time, inherently racy snapshot of a ring's state.
type Stats struct {
	NbWords     uint64
	Wrap        bool
	Entries     uint64 // prod_tail - cons_head in words, clamped to >= 0; includes any pending skip records
	LiveEntries uint64 // committed records only, skip markers walked and excluded
	NbAllocs    uint64
	Tmin        float64
	Tmax        float64
	MappedSize  datasize.ByteSize
	ProdHead    uint64
	ProdTail    uint64
	ConsHead    uint64
	ConsTail    uint64
	FirstSeq    uint64 // sequence number of the oldest live record, i.e. how many records have been dequeued so far
	RingID      uuid.UUID
}

// Create creates a new ring buffer file at path with a data area of
// totWords 32-bit words. It fails if path already exists or cannot be
// created. Creation is atomic from an external observer's viewpoint: the
// header and zeroed data area are written to a temporary file in the
// same directory, which is then linked into place (os.Link fails if the
// destination already exists) and unlinked under its temporary name.
func Create(path string, totWords uint64, opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s already exists", ErrFatal, path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("%w: stat %s: %s", ErrFatal, path, err)
	}

	total := int64(headerSize) + int64(totWords)*wordSize

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ringbuf-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %s", ErrFatal, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	defer tmp.Close()

	if err := unix.Ftruncate(int(tmp.Fd()), total); err != nil {
		return fmt.Errorf("%w: ftruncate: %s", ErrFatal, err)
	}

	buf, err := mmapFile(tmp, int(total))
	if err != nil {
		return err
	}

	hdr := asHeader(buf)
	hdr.nbWords = totWords
	if cfg.wrap {
		hdr.wrap = 1
	}
	hdr.tmin = math.Inf(1)
	hdr.tmax = math.Inf(-1)
	hdr.ringID = uuid.New()

	if err := munmapFile(buf); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: fsync: %s", ErrFatal, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %s", ErrFatal, err)
	}

	if err := os.Link(tmpPath, path); err != nil {
		return fmt.Errorf("%w: publish %s: %s", ErrFatal, path, err)
	}

	cfg.log.Debug("ringbuf: created", zap.String("path", path), zap.Uint64("nb_words", totWords), zap.Bool("wrap", cfg.wrap))
	return nil
}

// Load maps an existing ring buffer file at path read/write into the
// caller's address space, validates that the file length matches the
// header's declared capacity, and returns a Ring handle.
func Load(path string, opts ...Option) (*Ring, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	fd, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %s", ErrFatal, path, err)
	}

	stat, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("%w: stat %s: %s", ErrFatal, path, err)
	}
	if int(stat.Size()) < int(headerSize) {
		fd.Close()
		return nil, fmt.Errorf("%w: %s is smaller than the ring header", ErrInvalidBuffer, path)
	}

	buf, err := mmapFile(fd, int(stat.Size()))
	if err != nil {
		fd.Close()
		return nil, err
	}

	hdr := asHeader(buf)
	want := int64(headerSize) + int64(hdr.nbWords)*wordSize
	if stat.Size() != want {
		munmapFile(buf)
		fd.Close()
		return nil, fmt.Errorf("%w: %s declares %d words but is %d bytes, want %d", ErrInvalidBuffer, path, hdr.nbWords, stat.Size(), want)
	}

	r := &Ring{
		file: fd,
		buf:  buf,
		hdr:  hdr,
		data: buf[headerSize:],
		cfg:  cfg,
	}

	cfg.log.Debug("ringbuf: loaded", zap.String("path", path), zap.Uint64("nb_words", hdr.nbWords), zap.Bool("wrap", hdr.wrap == 1))
	return r, nil
}

// Unload unmaps the ring and closes the underlying file descriptor. The
// file itself persists. Unload refuses while any Tx obtained from this
// Ring is still open (not yet committed, aborted, or discarded).
func (r *Ring) Unload() error {
	if n := r.openTx.Load(); n != 0 {
		return fmt.Errorf("%w: %d transaction(s) still open on this ring", ErrFatal, n)
	}
	if err := munmapFile(r.buf); err != nil {
		return err
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("%w: close: %s", ErrFatal, err)
	}
	r.cfg.log.Debug("ringbuf: unloaded")
	return nil
}

// Stats returns a snapshot of the ring's current state. Reads are
// inherently racy against concurrent producers and consumers; the
// snapshot need not be consistent across fields.
func (r *Ring) Stats() Stats {
	prodTail := atomic.LoadUint64(&r.hdr.prodTail)
	consHead := atomic.LoadUint64(&r.hdr.consHead)
	entries := int64(prodTail - consHead)
	if entries < 0 {
		entries = 0
	}

	mappedSize := len(r.buf)
	if rem := mappedSize % os.Getpagesize(); rem != 0 {
		mappedSize += os.Getpagesize() - rem
	}

	return Stats{
		NbWords:     r.hdr.nbWords,
		Wrap:        r.hdr.wrap == 1,
		Entries:     uint64(entries),
		LiveEntries: r.countLiveEntries(consHead, prodTail),
		NbAllocs:    r.hdr.nbAllocs,
		Tmin:        r.hdr.tmin,
		Tmax:        r.hdr.tmax,
		MappedSize:  datasize.ByteSize(mappedSize),
		ProdHead:    atomic.LoadUint64(&r.hdr.prodHead),
		ProdTail:    prodTail,
		ConsHead:    consHead,
		ConsTail:    atomic.LoadUint64(&r.hdr.consTail),
		FirstSeq:    atomic.LoadUint64(&r.hdr.nbDequeued),
		RingID:      uuid.UUID(r.hdr.ringID),
	}
}

// countLiveEntries walks the committed region [from, to) word by word,
// counting real records and skipping over skip markers. Unlike Entries
// (a plain word-count subtraction), this costs time proportional to the
// number of records in the region, so callers that only need an
// at-a-glance backlog size should prefer Entries.
func (r *Ring) countLiveEntries(from, to uint64) uint64 {
	nbWords := r.hdr.nbWords
	var n uint64
	for pos := from; pos < to; {
		lenWord := r.wordAt(pos)
		var advance uint64
		if lenWord&skipMarkerBit != 0 {
			advance = uint64(lenWord&^skipMarkerBit) + 1
		} else if uint64(lenWord) > nbWords {
			// Corrupt length prefix; stop counting rather than loop
			// past the committed region.
			break
		} else {
			n++
			advance = uint64(lenWord) + 1
		}
		pos += advance
	}
	return n
}
