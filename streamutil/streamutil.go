// Package streamutil fans a non-destructive streaming read out across
// several rings at once, one goroutine per ring, joined with
// golang.org/x/sync/errgroup.
//
// This is an additive convenience on top of ringbuf.ReadFirst/ReadNext,
// not part of the core ring protocol: it exists because a host process
// that owns several rings (e.g. one per worker) naturally wants to
// drain all of them concurrently rather than hand-rolling its own
// goroutine/errgroup plumbing for every caller.
package streamutil

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/laurent192/ramen/ringbuf"
)

// StreamAll walks every ring in rings with ringbuf.ReadFirst/ReadNext,
// calling fn for each record it encounters, until ctx is cancelled. A
// ring whose cursor hits ringbuf.ErrEndOfStream or ringbuf.ErrEmpty is
// retried after pollInterval rather than treated as an error; any other
// error (notably ringbuf.ErrInvalidBuffer) stops that ring's goroutine
// and is returned once every goroutine has exited.
func StreamAll(ctx context.Context, rings []*ringbuf.Ring, pollInterval time.Duration, fn func(ring *ringbuf.Ring, tx ringbuf.Tx) error) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, ring := range rings {
		ring := ring
		g.Go(func() error {
			return streamOne(ctx, ring, pollInterval, fn)
		})
	}

	return g.Wait()
}

func streamOne(ctx context.Context, ring *ringbuf.Ring, pollInterval time.Duration, fn func(ring *ringbuf.Ring, tx ringbuf.Tx) error) error {
	tx, err := ring.ReadFirst()
	started := err == nil

	for {
		switch {
		case errors.Is(err, ringbuf.ErrEndOfStream), errors.Is(err, ringbuf.ErrEmpty):
			select {
			case <-ctx.Done():
				if started {
					tx.Discard()
				}
				return ctx.Err()
			case <-time.After(pollInterval):
			}
			if started {
				// Resume from the same position instead of
				// restarting at ReadFirst, which would re-deliver
				// every record still sitting ahead of cons_tail.
				tx, err = ring.ReadNext(tx)
			} else {
				tx, err = ring.ReadFirst()
				started = err == nil
			}
			continue
		case err != nil:
			if started {
				tx.Discard()
			}
			return err
		}

		if cbErr := fn(ring, tx); cbErr != nil {
			tx.Discard()
			return cbErr
		}

		select {
		case <-ctx.Done():
			tx.Discard()
			return ctx.Err()
		default:
		}

		tx, err = ring.ReadNext(tx)
	}
}
