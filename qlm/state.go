package qlm

import (
	"encoding/binary"
	"math/big"
	"math/bits"
	"strconv"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
)

const (
	// StateWords is the number of 64-bit words backing a State.
	StateWords = 4

	// MaxLinks is the largest number of links a State can represent.
	MaxLinks = 64 * StateWords

	// StateBytes is the length of a State's big-endian key encoding.
	StateBytes = 8 * StateWords
)

// State is a Fock configuration of a lattice: bit k holds the occupation of link k.
//
// Word 0 holds links 0..63, so comparing States word by word from the top is the same
// as comparing the unsigned integers they encode.
type State [StateWords]uint64

// LinkBits is read-only access to link occupations.
// Both State and *bitset.BitSet satisfy it.
type LinkBits interface {
	Test(link uint) bool
	Count() uint
}

// StateOf returns the State with exactly the given links occupied.
func StateOf(links ...int) State {
	var s State
	for _, li := range links {
		s.Set(li)
	}
	return s
}

// StateFromUint64 returns the State encoding the integer v.
func StateFromUint64(v uint64) State {
	return State{v}
}

// Test reports whether link is occupied; links beyond MaxLinks are never occupied.
func (s State) Test(link uint) bool {
	if link >= MaxLinks {
		return false
	}
	return (s[link>>6]>>(link&63))&1 != 0
}

func (s State) Has(link int) bool {
	return (s[link>>6]>>(uint(link)&63))&1 != 0
}

// Count returns the number of occupied links.
func (s State) Count() uint {
	return uint(s.OnesCount())
}

func (s State) OnesCount() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

func (s *State) Set(link int) {
	s[link>>6] |= 1 << (uint(link) & 63)
}

func (s *State) Clear(link int) {
	s[link>>6] &^= 1 << (uint(link) & 63)
}

func (s *State) Flip(link int) {
	s[link>>6] ^= 1 << (uint(link) & 63)
}

func (s State) And(t State) State {
	for i := range s {
		s[i] &= t[i]
	}
	return s
}

func (s State) Or(t State) State {
	for i := range s {
		s[i] |= t[i]
	}
	return s
}

func (s State) Xor(t State) State {
	for i := range s {
		s[i] ^= t[i]
	}
	return s
}

func (s State) IsZero() bool {
	return s == State{}
}

// CountRange returns the number of occupied links in [lo, hi).
func (s State) CountRange(lo, hi int) int {
	if hi <= lo {
		return 0
	}
	wLo, wHi := lo>>6, (hi-1)>>6
	n := 0
	for w := wLo; w <= wHi; w++ {
		word := s[w]
		if w == wLo {
			word &= ^uint64(0) << (uint(lo) & 63)
		}
		if w == wHi {
			word &= ^uint64(0) >> (63 - (uint(hi-1) & 63))
		}
		n += bits.OnesCount64(word)
	}
	return n
}

// Compare returns -1, 0, or +1 as s is less than, equal to, or greater than t.
func (s State) Compare(t State) int {
	for i := StateWords - 1; i >= 0; i-- {
		if s[i] != t[i] {
			if s[i] < t[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (s State) Less(t State) bool {
	return s.Compare(t) < 0
}

// Complement flips the first numLinks links.
func (s State) Complement(numLinks int) State {
	for i := range s {
		lo := 64 * i
		switch {
		case numLinks >= lo+64:
			s[i] = ^s[i]
		case numLinks > lo:
			s[i] ^= (uint64(1) << uint(numLinks-lo)) - 1
		}
	}
	return s
}

// Links returns the occupied link indices in ascending order.
func (s State) Links() []int {
	links := make([]int, 0, s.OnesCount())
	for i, w := range s {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			links = append(links, 64*i+tz)
			w &= w - 1
		}
	}
	return links
}

// AppendKey appends the fixed-width big-endian encoding of s, which sorts bytewise in State order.
func (s State) AppendKey(dst []byte) []byte {
	for i := StateWords - 1; i >= 0; i-- {
		dst = binary.BigEndian.AppendUint64(dst, s[i])
	}
	return dst
}

// StateFromKey is the inverse of AppendKey.
func StateFromKey(key []byte) (State, error) {
	var s State
	if len(key) != StateBytes {
		return s, errors.Wrapf(ErrCorruptRecord, "state key has %d bytes", len(key))
	}
	for i := 0; i < StateWords; i++ {
		s[StateWords-1-i] = binary.BigEndian.Uint64(key[8*i:])
	}
	return s, nil
}

func (s State) Big() *big.Int {
	var buf [StateBytes]byte
	return new(big.Int).SetBytes(s.AppendKey(buf[:0]))
}

func StateFromBig(v *big.Int) (State, error) {
	if v.Sign() < 0 || v.BitLen() > MaxLinks {
		return State{}, errors.Wrapf(ErrStateOverflow, "%v", v)
	}
	var buf [StateBytes]byte
	v.FillBytes(buf[:])
	return StateFromKey(buf[:])
}

// ParseState reads a State from its integer form (decimal, or with a 0x / 0b prefix).
func ParseState(str string) (State, error) {
	v, ok := new(big.Int).SetString(str, 0)
	if !ok {
		return State{}, errors.Errorf("invalid state %q", str)
	}
	return StateFromBig(v)
}

// String returns the decimal integer encoded by s.
func (s State) String() string {
	if s[1] == 0 && s[2] == 0 && s[3] == 0 {
		return strconv.FormatUint(s[0], 10)
	}
	return s.Big().String()
}

func (s State) BitSet() *bitset.BitSet {
	words := make([]uint64, StateWords)
	copy(words, s[:])
	return bitset.From(words)
}

func StateFromBitSet(b *bitset.BitSet) (State, error) {
	var s State
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		if i >= MaxLinks {
			return s, errors.Wrapf(ErrStateOverflow, "link %d", i)
		}
		s.Set(int(i))
	}
	return s, nil
}
