package frontier

import (
	"context"
	"os"
	"slices"
	"testing"

	"github.com/fine-structures/qlm.SDK/libqlm"
	"github.com/fine-structures/qlm.SDK/libqlm/hamiltonian"
	"github.com/fine-structures/qlm.SDK/libqlm/lattice"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/stretchr/testify/require"
)

var groundLevels = []int{1, 16, 78, 208, 338, 176, 47}

const groundSeed = 3816540

func plaquettes(t *testing.T, sizes ...int) (*lattice.Lattice, []lattice.Plaquette) {
	lat, err := lattice.New(sizes)
	require.NoError(t, err)
	plaqs, err := lattice.BuildPlaquettes(lat)
	require.NoError(t, err)
	return lat, plaqs
}

type memStore struct {
	levels map[string][][]qlm.State
}

func (ms *memStore) PutLevel(ctx context.Context, run string, level int, states []qlm.State) error {
	if ms.levels == nil {
		ms.levels = make(map[string][][]qlm.State)
	}
	lv := ms.levels[run]
	for len(lv) <= level {
		lv = append(lv, nil)
	}
	lv[level] = slices.Clone(states)
	ms.levels[run] = lv
	return nil
}

func (ms *memStore) Levels(ctx context.Context, run string) ([][]qlm.State, error) {
	return ms.levels[run], nil
}

func TestExpand(t *testing.T) {
	ctx := context.Background()
	lat, plaqs := plaquettes(t, 2, 2, 2)
	seed := qlm.StateFromUint64(groundSeed)

	var sizes []int
	states, err := Expand(ctx, []qlm.State{seed}, plaqs, Opts{
		Workers: 3,
		OnLevel: func(lv Level) error {
			require.Equal(t, len(sizes), lv.Index)
			require.True(t, slices.IsSortedFunc(lv.States, qlm.State.Compare))
			sizes = append(sizes, len(lv.States))
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, groundLevels, sizes)
	require.Len(t, states, 864)
	require.True(t, slices.IsSortedFunc(states, qlm.State.Compare))

	sec := lat.SectorOf(seed, "")
	for _, s := range states {
		require.Equal(t, -1, lat.CheckGaussLaw(s, nil))
		require.Equal(t, sec, lat.SectorOf(s, ""))
	}

	// closed under one more cycle
	for _, s := range states {
		for _, next := range hamiltonian.Cycle(nil, s, plaqs) {
			_, found := slices.BinarySearchFunc(states, next, qlm.State.Compare)
			require.True(t, found)
		}
	}
	again, err := Expand(ctx, states, plaqs, Opts{MaxLevel: 1})
	require.NoError(t, err)
	require.Equal(t, states, again)

	// the charge-conjugate seed explores the mirrored island
	conj, err := Expand(ctx, []qlm.State{lat.Conjugate(seed)}, plaqs, Opts{Visited: libqlm.NewLSMStateSet("")})
	require.NoError(t, err)
	require.Len(t, conj, 864)
	for _, s := range conj {
		_, found := slices.BinarySearchFunc(states, lat.Conjugate(s), qlm.State.Compare)
		require.True(t, found)
	}
}

func TestVisitedDir(t *testing.T) {
	dir, err := os.MkdirTemp("", "junk*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	_, plaqs := plaquettes(t, 2, 2, 2)
	seed := qlm.StateFromUint64(groundSeed)

	// the same directory serves consecutive runs
	for range 2 {
		states, err := Expand(context.Background(), []qlm.State{seed}, plaqs, Opts{
			Visited: libqlm.NewLSMStateSet(dir),
		})
		require.NoError(t, err)
		require.Len(t, states, 864)
	}
}

func TestMaxLevel(t *testing.T) {
	_, plaqs := plaquettes(t, 2, 2, 2)
	seed := qlm.StateFromUint64(groundSeed)

	states, err := Expand(context.Background(), []qlm.State{seed}, plaqs, Opts{MaxLevel: 2})
	require.NoError(t, err)
	require.Len(t, states, 95)

	states, err = Expand(context.Background(), []qlm.State{seed, seed}, plaqs, Opts{MaxLevel: 0, MaxStates: 400})
	require.ErrorIs(t, err, qlm.ErrResourceExhausted)
	require.Len(t, states, 1+16+78+208)

	states, err = Expand(context.Background(), nil, plaqs, Opts{})
	require.NoError(t, err)
	require.Empty(t, states)
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	_, plaqs := plaquettes(t, 2, 2, 2)
	seed := qlm.StateFromUint64(groundSeed)
	store := &memStore{}

	partial, err := Expand(ctx, []qlm.State{seed}, plaqs, Opts{
		MaxLevel: 3,
		Store:    store,
		Run:      "ground",
	})
	require.NoError(t, err)
	require.Len(t, partial, 1+16+78+208)
	require.Len(t, store.levels["ground"], 4)

	var resumed []int
	states, err := Resume(ctx, plaqs, Opts{
		Store: store,
		Run:   "ground",
		OnLevel: func(lv Level) error {
			resumed = append(resumed, lv.Index)
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, []int{4, 5, 6}, resumed)
	require.Len(t, states, 864)
	require.Len(t, store.levels["ground"], 7)
	for i, lv := range store.levels["ground"] {
		require.Len(t, lv, groundLevels[i])
	}

	_, err = Resume(ctx, plaqs, Opts{Store: store, Run: "missing"})
	require.ErrorIs(t, err, qlm.ErrNoStates)
}

func TestCancel(t *testing.T) {
	_, plaqs := plaquettes(t, 2, 2, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	states, err := Expand(ctx, []qlm.State{qlm.StateFromUint64(groundSeed)}, plaqs, Opts{})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, states, 1)
}
