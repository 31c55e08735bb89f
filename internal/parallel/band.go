// Package parallel splits CPU render passes into horizontal row bands that
// run concurrently.
//
// A band is a contiguous range of rows small enough to stay in cache and
// large enough to amortize goroutine startup. Callers write disjoint rows
// from each band, so band functions need no locking of their own.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Band size constants.
const (
	// BandHeight is the number of rows per band.
	// 64 rows of a 512 pixel wide RGBA surface is 128KB (fits L2 cache).
	BandHeight = 64

	// MinParallelRows is the smallest row count worth splitting. Shorter
	// passes run on the calling goroutine.
	MinParallelRows = 2 * BandHeight
)

// Band is a half-open row range [Y0, Y1).
type Band struct {
	Y0, Y1 int
}

// Rows returns the number of rows in the band.
func (b Band) Rows() int {
	return b.Y1 - b.Y0
}

// Split divides height rows into bands of at most BandHeight rows.
// The last band may be shorter.
func Split(height int) []Band {
	if height <= 0 {
		return nil
	}
	bands := make([]Band, 0, (height+BandHeight-1)/BandHeight)
	for y := 0; y < height; y += BandHeight {
		bands = append(bands, Band{Y0: y, Y1: min(y+BandHeight, height)})
	}
	return bands
}

// Workers returns the concurrency limit for band work.
func Workers() int {
	return runtime.GOMAXPROCS(0)
}

// Rows calls fn once per band of height rows, with at most Workers() calls
// running at a time. It returns the first error, or ctx.Err() if ctx is
// canceled before all bands started.
func Rows(ctx context.Context, height int, fn func(b Band) error) error {
	bands := Split(height)
	if height < MinParallelRows || Workers() == 1 {
		for _, b := range bands {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(b); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers())
	for _, b := range bands {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(b)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ForEachRow calls fn for every row in [0, height), split into bands.
// fn must not fail; use Rows for fallible work.
func ForEachRow(height int, fn func(y int)) {
	_ = Rows(context.Background(), height, func(b Band) error {
		for y := b.Y0; y < b.Y1; y++ {
			fn(y)
		}
		return nil
	})
}
