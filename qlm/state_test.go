package qlm

import (
	"math/big"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateBits(t *testing.T) {
	s := StateOf(0, 5, 63, 64, 200, 255)
	require.Equal(t, 6, s.OnesCount())
	require.Equal(t, []int{0, 5, 63, 64, 200, 255}, s.Links())

	assert.True(t, s.Has(63))
	assert.True(t, s.Test(64))
	assert.False(t, s.Has(62))

	s.Flip(62)
	s.Clear(63)
	assert.True(t, s.Has(62))
	assert.False(t, s.Has(63))

	// CountRange is half-open and crosses word boundaries
	assert.Equal(t, 0, s.CountRange(5, 5))
	assert.Equal(t, 1, s.CountRange(5, 6))
	assert.Equal(t, 1, s.CountRange(1, 62))
	assert.Equal(t, 3, s.CountRange(5, 65))
	assert.Equal(t, 6, s.CountRange(0, MaxLinks))
	assert.Equal(t, 1, s.CountRange(201, 256))
}

func TestStateOrder(t *testing.T) {
	a := StateFromUint64(1 << 40)
	b := StateOf(64)
	c := StateOf(3, 64)
	require.Equal(t, -1, a.Compare(b))
	require.Equal(t, 1, c.Compare(b))
	require.Equal(t, 0, b.Compare(b))

	states := SortStates([]State{c, a, b, a, State{}})
	require.Equal(t, []State{{}, a, b, c}, states)

	// Key encoding sorts bytewise in the same order.
	ka, kb := string(a.AppendKey(nil)), string(b.AppendKey(nil))
	require.Less(t, ka, kb)
}

func TestStateEncodings(t *testing.T) {
	s := StateOf(1, 70, 129, 254)

	key := s.AppendKey(nil)
	require.Len(t, key, StateBytes)
	dec, err := StateFromKey(key)
	require.NoError(t, err)
	require.Equal(t, s, dec)

	_, err = StateFromKey(key[1:])
	require.ErrorIs(t, err, ErrCorruptRecord)

	v := s.Big()
	want := new(big.Int)
	for _, li := range []int{1, 70, 129, 254} {
		want.SetBit(want, li, 1)
	}
	require.Equal(t, 0, want.Cmp(v))

	parsed, err := ParseState(v.String())
	require.NoError(t, err)
	require.Equal(t, s, parsed)
	require.Equal(t, v.String(), s.String())

	_, err = StateFromBig(new(big.Int).Lsh(big.NewInt(1), MaxLinks))
	require.ErrorIs(t, err, ErrStateOverflow)

	small, err := ParseState("3816540")
	require.NoError(t, err)
	require.Equal(t, StateFromUint64(3816540), small)
	require.Equal(t, "3816540", small.String())
}

func TestStateBitSet(t *testing.T) {
	s := StateOf(2, 66, 130)
	b := s.BitSet()
	require.True(t, b.Test(66))
	require.Equal(t, uint(3), b.Count())

	back, err := StateFromBitSet(b)
	require.NoError(t, err)
	require.Equal(t, s, back)

	var bits LinkBits = b
	require.Equal(t, s.Count(), bits.Count())

	// out-of-range links read as unoccupied in both representations
	for _, lb := range []LinkBits{s, b, State{}.Complement(MaxLinks)} {
		require.False(t, lb.Test(MaxLinks))
		require.False(t, lb.Test(1000))
	}

	wide := bitset.New(300).Set(299)
	_, err = StateFromBitSet(wide)
	require.ErrorIs(t, err, ErrStateOverflow)
}

func TestComplement(t *testing.T) {
	s := StateOf(0, 3)
	c := s.Complement(24)
	require.Equal(t, 22, c.OnesCount())
	require.False(t, c.Has(0))
	require.False(t, c.Has(24))
	require.Equal(t, s, c.Complement(24))

	full := State{}.Complement(MaxLinks)
	require.Equal(t, MaxLinks, full.OnesCount())
}
