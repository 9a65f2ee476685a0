package runspec

import (
	"testing"

	"github.com/fine-structures/qlm.SDK/libqlm/lattice"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	rs, err := Parse("2x2x2 bosons ws(0,0,0) pos(0) neg(7) J=-1 lambda=-3.5 level=8 eig=4 seed(3816540, 12960675)")
	require.NoError(t, err)
	require.Equal(t, []int{2, 2, 2}, rs.Sizes)
	require.Equal(t, "2x2x2", rs.SizeTag())
	require.Equal(t, qlm.Bosons, rs.Statistics)
	require.Equal(t, []int{0, 0, 0}, rs.Winding)
	require.Equal(t, []int{0}, rs.Charges.Positive)
	require.Equal(t, []int{7}, rs.Charges.Negative)
	require.Equal(t, -1.0, rs.J)
	require.Equal(t, -3.5, rs.Lambda)
	require.Equal(t, 8, rs.MaxLevel)
	require.Equal(t, 4, rs.NumEigen)
	require.Equal(t, []qlm.State{qlm.StateFromUint64(3816540), qlm.StateFromUint64(12960675)}, rs.Seeds)

	again, err := Parse(rs.String())
	require.NoError(t, err)
	require.Equal(t, rs, again)

	rs, err = Parse("4x4")
	require.NoError(t, err)
	require.Equal(t, []int{4, 4}, rs.Sizes)
	require.Equal(t, qlm.Fermions, rs.Statistics)
	require.Equal(t, 1.0, rs.J)
	require.Equal(t, 1, rs.NumEigen)
	require.Nil(t, rs.Winding)
	require.Equal(t, "4x4 fermions J=1 eig=1", rs.String())

	rs, err = Parse("2x4 ws(-1, 0) maxstates=100000 pos() J=2e-1")
	require.NoError(t, err)
	require.Equal(t, []int{-1, 0}, rs.Winding)
	require.Equal(t, int64(100000), rs.MaxStates)
	require.Empty(t, rs.Charges.Positive)
	require.Equal(t, 0.2, rs.J)
}

func TestParseErrors(t *testing.T) {
	for _, expr := range []string{
		"",
		"fermions",
		"2",
		"2x2 quarks",
		"2x2 J=",
		"2x2 J=x",
		"2x2 level=-1",
		"2x2 level=1.5",
		"2x2 eig=2 eig=3",
		"2x2 fermions bosons",
		"2x2 pos(1.5)",
		"2x2 ws(0)",
		"2x2 ws(0,0",
		"2x2 seed(1.5)",
	} {
		_, err := Parse(expr)
		require.ErrorIs(t, err, qlm.ErrBadRunSpec, expr)
	}
}

func TestSector(t *testing.T) {
	rs, err := Parse("2x2x2 ws(0,0,0)")
	require.NoError(t, err)
	lat, err := lattice.New(rs.Sizes)
	require.NoError(t, err)
	sec, err := rs.Sector(lat)
	require.NoError(t, err)
	require.Equal(t, "wx_2-wy_2-wz_2", sec.Tag())

	rs, err = Parse("2x4 ws(0,-1) pos(0) neg(1)")
	require.NoError(t, err)
	lat, err = lattice.New(rs.Sizes)
	require.NoError(t, err)
	sec, err = rs.Sector(lat)
	require.NoError(t, err)
	require.Equal(t, "wx_2-wy_0-bg_p0n1", sec.Tag())

	rs, err = Parse("2x2 ws(5,0)")
	require.NoError(t, err)
	lat, err = lattice.New(rs.Sizes)
	require.NoError(t, err)
	_, err = rs.Sector(lat)
	require.ErrorIs(t, err, qlm.ErrBadSectorTag)

	rs, err = Parse("2x2")
	require.NoError(t, err)
	sec, err = rs.Sector(lat)
	require.NoError(t, err)
	require.Nil(t, sec)
}
