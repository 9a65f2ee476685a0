package search

import (
	"context"
	"time"

	"github.com/fine-structures/qlm.SDK/libqlm/lattice"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"golang.org/x/time/rate"
)

const (
	// DefaultBufferSize is the number of states buffered between sink flushes.
	DefaultBufferSize = 1 << 16

	cancelCheckInterval = 1 << 12
)

// Opts tunes a single enumeration run.
type Opts struct {
	BufferSize int         // states per sink flush (DefaultBufferSize if 0)
	MaxStates  int64       // stop with qlm.ErrResourceExhausted once this many states are collected (0: unlimited)
	Sector     *qlm.Sector // if set, only states of this sector are sent to the sink (all sectors are still counted)
}

// Result summarises an enumeration run.
type Result struct {
	Counts []qlm.SectorCount // states per sector, in sector order
	Total  int64             // states collected
	Frames int64             // search frames visited
}

// Count returns the number of states found in the given sector.
func (res *Result) Count(sec qlm.Sector) int64 {
	for _, sc := range res.Counts {
		if sc.Sector == sec {
			return sc.Count
		}
	}
	return 0
}

// Engine enumerates every Gauss-law admissible state of a lattice by backtracking over the
// local patterns of sublattice A, checking the B vertices as soon as their links are fixed.
//
// An Engine holds only read-only tables and may be reused for any number of runs.
type Engine struct {
	Lattice    *lattice.Lattice
	Background string

	sub      *lattice.Sublattices
	order    *lattice.CheckableOrder
	checks   [][]lattice.GaussMask // checks[l-1] are the B vertices that become checkable at depth l
	branches [][]qlm.State         // branches[l] are the placements of the admissible patterns at A[l]
}

// NewEngine prepares the search tables for a lattice and an optional static charge background.
func NewEngine(lat *lattice.Lattice, charges *qlm.StaticCharges) (*Engine, error) {
	chargeMap, err := lat.Charges(charges)
	if err != nil {
		return nil, err
	}

	sub, err := lat.Partition()
	if err != nil {
		return nil, err
	}
	order, err := lat.FindCheckableOrder(sub.A, sub.B)
	if err != nil {
		return nil, err
	}
	buckets, err := lattice.BasisByCharge(lat.Dim)
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		Lattice:  lat,
		sub:      sub,
		order:    order,
		checks:   make([][]lattice.GaussMask, len(sub.A)),
		branches: make([][]qlm.State, len(sub.A)),
	}
	if !charges.IsEmpty() {
		eng.Background = charges.BackgroundLabel()
	}

	for l, a := range sub.A {
		eng.checks[l] = lat.GaussMasks(order.Fresh[l], chargeMap)

		q := int(chargeMap[a])
		for _, p := range buckets[q+lat.Dim] {
			eng.branches[l] = append(eng.branches[l], lat.Place(a, p))
		}
	}
	return eng, nil
}

// Sublattices returns the A/B split the engine searches over.
func (eng *Engine) Sublattices() *lattice.Sublattices {
	return eng.sub
}

// CheckableOrder returns the pruning schedule the engine uses.
func (eng *Engine) CheckableOrder() *lattice.CheckableOrder {
	return eng.order
}

type frame struct {
	depth int       // number of A vertices fixed
	links qlm.State // links fixed so far
}

// Run performs one full enumeration, streaming collected states to sink (which may be nil).
//
// The buffer is flushed to the sink whenever it fills and unconditionally before returning,
// including when the run stops early on a cut-off or cancellation.
func (eng *Engine) Run(ctx context.Context, sink qlm.StateSink, opts Opts) (*Result, error) {
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	var (
		buf      []qlm.SectorState
		counts   = NewSectorCounts()
		res      = &Result{}
		progress = rate.Sometimes{Interval: 10 * time.Second}
		sizeTag  = eng.Lattice.SizeTag()
	)
	if sink != nil {
		buf = make([]qlm.SectorState, 0, bufSize)
	}

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		err := sink.WriteStates(buf)
		buf = buf[:0]
		return errors.Wrap(err, "flushing state buffer")
	}
	finish := func(runErr error) (*Result, error) {
		res.Counts = counts.Counts()
		if err := flush(); err != nil && runErr == nil {
			runErr = err
		}
		return res, runErr
	}

	nA := len(eng.sub.A)
	maxBranch := 0
	for _, br := range eng.branches {
		maxBranch = max(maxBranch, len(br))
	}
	stack := make([]frame, 1, nA*maxBranch+1)

	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		res.Frames++
		if res.Frames%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return finish(err)
			}
			progress.Do(func() {
				klog.V(2).Infof("%s: %d states after %d frames", sizeTag, res.Total, res.Frames)
			})
		}

		if fr.depth > 0 {
			pruned := false
			checks := eng.checks[fr.depth-1]
			for i := range checks {
				if !checks[i].Satisfied(fr.links) {
					pruned = true
					break
				}
			}
			if pruned {
				continue
			}
		}

		if fr.depth == nA {
			if opts.MaxStates > 0 && res.Total >= opts.MaxStates {
				return finish(errors.Wrapf(qlm.ErrResourceExhausted, "state limit %d reached", opts.MaxStates))
			}

			sec := eng.Lattice.SectorOf(fr.links, eng.Background)
			counts.Add(sec, 1)
			res.Total++

			if sink != nil && (opts.Sector == nil || *opts.Sector == sec) {
				buf = append(buf, qlm.SectorState{
					State:  fr.links,
					Sector: sec,
				})
				if len(buf) == bufSize {
					if err := flush(); err != nil {
						return finish(err)
					}
				}
			}
			continue
		}

		// push in reverse so that branches pop in pattern order
		br := eng.branches[fr.depth]
		for i := len(br) - 1; i >= 0; i-- {
			stack = append(stack, frame{
				depth: fr.depth + 1,
				links: fr.links.Or(br[i]),
			})
		}
	}

	klog.V(2).Infof("%s: enumerated %d states in %d sectors", sizeTag, res.Total, counts.Len())
	return finish(nil)
}

// Enumerate builds an Engine and runs it once.
func Enumerate(ctx context.Context, lat *lattice.Lattice, charges *qlm.StaticCharges, sink qlm.StateSink, opts Opts) (*Result, error) {
	eng, err := NewEngine(lat, charges)
	if err != nil {
		return nil, err
	}
	return eng.Run(ctx, sink, opts)
}

// Collect enumerates the states of one sector (or all states if sec is nil) and returns them sorted.
func Collect(ctx context.Context, lat *lattice.Lattice, charges *qlm.StaticCharges, sec *qlm.Sector) ([]qlm.State, *Result, error) {
	var states StateSlice
	res, err := Enumerate(ctx, lat, charges, &states, Opts{Sector: sec})
	if err != nil {
		return nil, res, err
	}
	return qlm.SortStates(states), res, nil
}

// StateSlice is a StateSink that appends to an in-memory slice.
type StateSlice []qlm.State

func (ss *StateSlice) WriteStates(batch []qlm.SectorState) error {
	for _, st := range batch {
		*ss = append(*ss, st.State)
	}
	return nil
}
