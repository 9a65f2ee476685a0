package hamiltonian

import (
	"context"
	"testing"

	"github.com/fine-structures/qlm.SDK/libqlm/fock"
	"github.com/fine-structures/qlm.SDK/libqlm/lattice"
	"github.com/fine-structures/qlm.SDK/libqlm/search"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/stretchr/testify/require"
)

type setup struct {
	lat   *lattice.Lattice
	plaqs []lattice.Plaquette
}

func newSetup(t *testing.T, sizes ...int) setup {
	lat, err := lattice.New(sizes)
	require.NoError(t, err)
	plaqs, err := lattice.BuildPlaquettes(lat)
	require.NoError(t, err)
	return setup{lat, plaqs}
}

func (su setup) plaquette(t *testing.T, links ...int) *lattice.Plaquette {
	for i := range su.plaqs {
		if su.plaqs[i].Links == [4]int(links) {
			return &su.plaqs[i]
		}
	}
	t.Fatalf("no plaquette %v", links)
	return nil
}

func (su setup) table(t *testing.T, sec *qlm.Sector) *fock.Table {
	states, _, err := search.Collect(context.Background(), su.lat, nil, sec)
	require.NoError(t, err)
	tbl, err := fock.NewTable(states)
	require.NoError(t, err)
	return tbl
}

// requireHermitian checks H[i,j] == H[j,i] with no duplicate or diagonal entries.
func requireHermitian(t *testing.T, entries []qlm.Entry) {
	m := make(map[[2]int32]int8, len(entries))
	for _, e := range entries {
		key := [2]int32{e.Row, e.Col}
		_, dupe := m[key]
		require.False(t, dupe, "duplicate entry %v", key)
		require.NotEqual(t, e.Row, e.Col)
		require.Contains(t, []int8{-1, 1}, e.Value)
		m[key] = e.Value
	}
	for _, e := range entries {
		v, ok := m[[2]int32{e.Col, e.Row}]
		require.True(t, ok, "missing transpose of (%d,%d)", e.Row, e.Col)
		require.Equal(t, e.Value, v, "(%d,%d)", e.Row, e.Col)
	}
}

func TestOperators(t *testing.T) {
	su := newSetup(t, 2, 4)
	p := su.plaquette(t, 4, 7, 8, 5)
	require.Equal(t, 8, p.Top)

	s := qlm.StateOf(5, 8)
	require.Equal(t, OpUDagger, Which(s, p))
	_, _, ok := ApplyU(s, p, qlm.Fermions)
	require.False(t, ok)
	next, sign, ok := ApplyUDagger(s, p, qlm.Fermions)
	require.True(t, ok)
	require.Equal(t, qlm.StateFromUint64(144), next)
	require.Equal(t, int8(-1), sign)

	next, sign, op := Apply(s, p, qlm.Bosons)
	require.Equal(t, OpUDagger, op)
	require.Equal(t, qlm.StateOf(4, 7), next)
	require.Equal(t, int8(1), sign)

	// back again with U gives the same sign
	back, sign, ok := ApplyU(next, p, qlm.Fermions)
	require.True(t, ok)
	require.Equal(t, s, back)
	require.Equal(t, int8(-1), sign)

	_, _, op = Apply(qlm.StateOf(13), p, qlm.Fermions)
	require.Equal(t, OpNone, op)
	require.Empty(t, Cycle(nil, qlm.StateOf(13), []lattice.Plaquette{*p}))

	su = newSetup(t, 2, 2, 2)
	p = su.plaquette(t, 19, 14, 7, 20)

	s = qlm.StateOf(20, 7)
	_, _, ok = ApplyU(s, p, qlm.Fermions)
	require.False(t, ok)
	next, sign, ok = ApplyUDagger(s, p, qlm.Fermions)
	require.True(t, ok)
	require.Equal(t, qlm.StateFromUint64(540672), next)
	require.Equal(t, int8(1), sign)

	next, sign, ok = ApplyU(qlm.StateOf(19, 14), p, qlm.Fermions)
	require.True(t, ok)
	require.Equal(t, qlm.StateFromUint64(1048704), next)
	require.Equal(t, int8(1), sign)
}

func TestMutualExclusion(t *testing.T) {
	su := newSetup(t, 2, 2, 2)
	tbl := su.table(t, nil)
	require.Equal(t, 9600, tbl.Len())

	for _, s := range tbl.States() {
		for i := range su.plaqs {
			p := &su.plaqs[i]
			_, _, u := ApplyU(s, p, qlm.Fermions)
			_, _, ud := ApplyUDagger(s, p, qlm.Fermions)
			require.False(t, u && ud)

			// both directions flip exactly the plaquette's links
			if next, _, op := Apply(s, p, qlm.Fermions); op != OpNone {
				require.Equal(t, s.Xor(p.Mask), next)
				require.Equal(t, -1, su.lat.CheckGaussLaw(next, nil))
			}
		}
	}
}

func TestAssembleFullBasis(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		sizes   []int
		entries int
	}{
		{[]int{2, 2}, 16},
		{[]int{2, 4}, 288},
		{[]int{2, 2, 2}, -1},
	} {
		su := newSetup(t, tc.sizes...)
		tbl := su.table(t, nil)

		entries, err := Assemble(ctx, tbl, su.plaqs, qlm.Fermions, Opts{Workers: 4, ChunkSize: 7})
		require.NoError(t, err)
		if tc.entries >= 0 {
			require.Len(t, entries, tc.entries)
		}
		requireHermitian(t, entries)

		// plaquette flips never leave a winding sector
		for _, e := range entries {
			require.Equal(t, su.lat.SectorOf(tbl.State(e.Row), ""), su.lat.SectorOf(tbl.State(e.Col), ""))
		}

		// hashed lookups and a single worker give the same rows
		single, err := Assemble(ctx, tbl.Hashed(), su.plaqs, qlm.Fermions, Opts{Workers: 1})
		require.NoError(t, err)
		require.Equal(t, entries, single)
	}
}

func TestAssembleSector(t *testing.T) {
	ctx := context.Background()
	su := newSetup(t, 2, 2, 2)
	sec, err := qlm.ParseSectorTag("wx_2-wy_2-wz_2")
	require.NoError(t, err)
	tbl := su.table(t, &sec)
	require.Equal(t, 880, tbl.Len())

	fermions, err := Assemble(ctx, tbl, su.plaqs, qlm.Fermions, Opts{})
	require.NoError(t, err)
	require.Len(t, fermions, 6912)
	requireHermitian(t, fermions)

	bosons, err := Assemble(ctx, tbl, su.plaqs, qlm.Bosons, Opts{})
	require.NoError(t, err)
	require.Len(t, bosons, 6912)
	negative := 0
	for i, e := range bosons {
		require.Equal(t, int8(1), e.Value)
		require.Equal(t, fermions[i].Row, e.Row)
		require.Equal(t, fermions[i].Col, e.Col)
		if fermions[i].Value < 0 {
			negative++
		}
	}
	require.NotZero(t, negative)

	// row counts match the flippable plaquette counts of each state
	perRow := make([]int, tbl.Len())
	for _, e := range fermions {
		perRow[e.Row]++
	}
	for r, s := range tbl.States() {
		total := 0
		for _, f := range CountFlippable(s, su.plaqs) {
			total += f.U + f.UDagger
		}
		require.Equal(t, perRow[r], total)
	}
}

func TestTruncatedBasis(t *testing.T) {
	su := newSetup(t, 2, 4)
	full := su.table(t, nil)

	// keep every other state; transitions leaving the kept set are dropped
	var kept []qlm.State
	for i, s := range full.States() {
		if i%2 == 0 {
			kept = append(kept, s)
		}
	}
	tbl, err := fock.NewTable(kept)
	require.NoError(t, err)

	entries, err := Assemble(context.Background(), tbl, su.plaqs, qlm.Fermions, Opts{})
	require.NoError(t, err)
	require.Less(t, len(entries), 288)
	requireHermitian(t, entries)
	for _, e := range entries {
		require.Equal(t, 4, tbl.State(e.Row).Xor(tbl.State(e.Col)).OnesCount())
	}
}

func TestAssembleCancel(t *testing.T) {
	su := newSetup(t, 2, 4)
	tbl := su.table(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Assemble(ctx, tbl, su.plaqs, qlm.Fermions, Opts{ChunkSize: 8})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCountFlippable(t *testing.T) {
	su := newSetup(t, 2, 2, 2)
	s := qlm.StateOf(20, 7)
	counts := CountFlippable(s, su.plaqs)
	total := 0
	for _, f := range counts {
		total += f.U + f.UDagger
	}
	require.Equal(t, len(Cycle(nil, s, su.plaqs)), total)

	p := su.plaquette(t, 19, 14, 7, 20)
	require.Equal(t, lattice.YZ, p.Orientation)
	require.GreaterOrEqual(t, counts[lattice.YZ].UDagger, 1)
	require.Zero(t, counts[lattice.YZ].U)
}
