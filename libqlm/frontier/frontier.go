package frontier

import (
	"context"
	"runtime"

	"github.com/fine-structures/qlm.SDK/libqlm"
	"github.com/fine-structures/qlm.SDK/libqlm/hamiltonian"
	"github.com/fine-structures/qlm.SDK/libqlm/lattice"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"golang.org/x/sync/errgroup"
)

// Level is the set of states first reached after Index plaquette flips.
type Level struct {
	Index  int
	States []qlm.State // sorted ascending
	Total  int         // states visited up to and including this level
}

// Opts bounds and observes an expansion.
type Opts struct {
	MaxLevel  int // stop after this level (0: until the frontier is empty)
	MaxStates int // stop with qlm.ErrResourceExhausted before the visited set would exceed this (0: unlimited)
	Workers   int // max concurrent expansion tasks (GOMAXPROCS if 0)

	// OnLevel is called once per non-empty level, in level order, before that level is expanded.
	OnLevel func(lv Level) error

	// Store, if set, receives every level under the name Run and is read back by Resume.
	Store qlm.LevelStore
	Run   string

	// Visited holds every state seen so far (NewStateSet() if nil). It is closed before returning.
	Visited libqlm.StateSet
}

// Expand grows a sub-basis breadth-first from seeds through repeated plaquette flips and
// returns every state reached, sorted.
//
// Levels are strictly sequential: a state belongs to the first level it is reached at.
// On qlm.ErrResourceExhausted or cancellation, the states of all completed levels are returned
// along with the error, and those levels have already been passed to OnLevel and Store.
func Expand(ctx context.Context, seeds []qlm.State, plaqs []lattice.Plaquette, opts Opts) ([]qlm.State, error) {
	ex := newExpansion(plaqs, opts)
	defer ex.visited.Close()

	var level []qlm.State
	for _, s := range seeds {
		if ex.visited.TryAdd(s) {
			level = append(level, s)
		}
	}
	return ex.run(ctx, 0, qlm.SortStates(level), true)
}

// Resume continues an expansion from the levels stored under opts.Run in opts.Store.
// Stored levels are not reported again.
func Resume(ctx context.Context, plaqs []lattice.Plaquette, opts Opts) ([]qlm.State, error) {
	if opts.Store == nil {
		return nil, errors.New("frontier: Resume requires a level store")
	}
	levels, err := opts.Store.Levels(ctx, opts.Run)
	if err != nil {
		return nil, errors.Wrapf(err, "loading levels of run %q", opts.Run)
	}
	if len(levels) == 0 {
		return nil, errors.Wrapf(qlm.ErrNoStates, "no stored levels for run %q", opts.Run)
	}

	ex := newExpansion(plaqs, opts)
	defer ex.visited.Close()

	// the last stored level was reported but not yet expanded
	last := len(levels) - 1
	for li, lv := range levels {
		for _, s := range lv {
			if ex.visited.TryAdd(s) && li < last {
				ex.all = append(ex.all, s)
			}
		}
	}
	klog.V(2).Infof("run %q: resuming after level %d with %d states", opts.Run, last, ex.visited.Len())

	return ex.run(ctx, last, qlm.SortStates(levels[last]), false)
}

type expansion struct {
	plaqs   []lattice.Plaquette
	opts    Opts
	visited libqlm.StateSet
	all     []qlm.State
	workers int
}

func newExpansion(plaqs []lattice.Plaquette, opts Opts) *expansion {
	ex := &expansion{
		plaqs:   plaqs,
		opts:    opts,
		visited: opts.Visited,
		workers: opts.Workers,
	}
	if ex.visited == nil {
		ex.visited = libqlm.NewStateSet()
	}
	if ex.workers <= 0 {
		ex.workers = runtime.GOMAXPROCS(0)
	}
	return ex
}

func (ex *expansion) run(ctx context.Context, index int, level []qlm.State, report bool) ([]qlm.State, error) {
	for len(level) > 0 {
		ex.all = append(ex.all, level...)
		if report {
			if err := ex.report(ctx, index, level); err != nil {
				return qlm.SortStates(ex.all), err
			}
		}
		report = true

		if ex.opts.MaxLevel > 0 && index >= ex.opts.MaxLevel {
			break
		}

		next, err := ex.expand(ctx, level)
		if err != nil {
			return qlm.SortStates(ex.all), err
		}
		if ex.opts.MaxStates > 0 && len(ex.all)+len(next) > ex.opts.MaxStates {
			return qlm.SortStates(ex.all), errors.Wrapf(qlm.ErrResourceExhausted, "level %d would reach %d states (limit %d)", index+1, len(ex.all)+len(next), ex.opts.MaxStates)
		}
		level = next
		index++
	}
	return qlm.SortStates(ex.all), nil
}

func (ex *expansion) report(ctx context.Context, index int, level []qlm.State) error {
	lv := Level{
		Index:  index,
		States: level,
		Total:  len(ex.all),
	}
	klog.V(2).Infof("level %d: %d new states, %d total", index, len(level), lv.Total)

	if ex.opts.Store != nil {
		if err := ex.opts.Store.PutLevel(ctx, ex.opts.Run, index, level); err != nil {
			return errors.Wrapf(err, "storing level %d", index)
		}
	}
	if ex.opts.OnLevel != nil {
		return ex.opts.OnLevel(lv)
	}
	return nil
}

// expand maps every frontier state to its plaquette-flip successors in parallel, then reduces
// them against the visited set.
func (ex *expansion) expand(ctx context.Context, level []qlm.State) ([]qlm.State, error) {
	numTasks := min(ex.workers, len(level))
	per := (len(level) + numTasks - 1) / numTasks
	found := make([][]qlm.State, numTasks)

	g, gctx := errgroup.WithContext(ctx)
	for ti := 0; ti < numTasks; ti++ {
		g.Go(func() error {
			lo := ti * per
			hi := min(lo+per, len(level))

			var out []qlm.State
			for i := lo; i < hi; i++ {
				if i&0xFF == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				out = hamiltonian.Cycle(out, level[i], ex.plaqs)
			}
			found[ti] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var next []qlm.State
	for _, states := range found {
		for _, s := range states {
			if ex.visited.TryAdd(s) {
				next = append(next, s)
			}
		}
	}
	return qlm.SortStates(next), nil
}
