package hamiltonian

import (
	"context"
	"runtime"
	"slices"

	"github.com/fine-structures/qlm.SDK/libqlm/fock"
	"github.com/fine-structures/qlm.SDK/libqlm/lattice"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/plan-systems/klog"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the number of basis rows per worker task.
const DefaultChunkSize = 1 << 10

// Opts tunes the worker pool.
type Opts struct {
	Workers   int // max concurrent tasks (GOMAXPROCS if 0)
	ChunkSize int // rows per task (DefaultChunkSize if 0)
}

// Context is everything a worker reads while assembling rows.
// It is built once and shared by pointer; nothing in it is modified during assembly.
type Context struct {
	Table      *fock.Table
	Plaquettes []lattice.Plaquette
	Statistics qlm.Statistics
}

// AppendRow appends the off-diagonal entries of row r.
// Successors outside the basis are dropped.
func (hc *Context) AppendRow(dst []qlm.Entry, r int32) []qlm.Entry {
	s := hc.Table.State(r)
	for i := range hc.Plaquettes {
		next, sign, op := Apply(s, &hc.Plaquettes[i], hc.Statistics)
		if op == OpNone {
			continue
		}
		col, found := hc.Table.Index(next)
		if !found {
			continue
		}
		dst = append(dst, qlm.Entry{
			Row:   r,
			Col:   col,
			Value: sign,
		})
	}
	return dst
}

// Assemble returns the plaquette-flip matrix elements over the given basis.
// Entries come out grouped by row in ascending row order.
func Assemble(ctx context.Context, table *fock.Table, plaqs []lattice.Plaquette, stats qlm.Statistics, opts Opts) ([]qlm.Entry, error) {
	hc := &Context{
		Table:      table,
		Plaquettes: plaqs,
		Statistics: stats,
	}
	return hc.Assemble(ctx, opts)
}

func (hc *Context) Assemble(ctx context.Context, opts Opts) ([]qlm.Entry, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	numRows := hc.Table.Len()
	numChunks := (numRows + chunk - 1) / chunk
	results := make([][]qlm.Entry, numChunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for ci := 0; ci < numChunks; ci++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lo := ci * chunk
			hi := min(lo+chunk, numRows)

			var entries []qlm.Entry
			for r := lo; r < hi; r++ {
				entries = hc.AppendRow(entries, int32(r))
			}
			results[ci] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := slices.Concat(results...)
	klog.V(2).Infof("assembled %d entries over %d states (%s)", len(entries), numRows, hc.Statistics)
	return entries, nil
}
