package hamiltonian

import (
	"github.com/fine-structures/qlm.SDK/libqlm/lattice"
	"github.com/fine-structures/qlm.SDK/qlm"
)

// Op identifies which plaquette operator acted on a state.
type Op uint8

const (
	OpNone    Op = iota
	OpU          // occupation moves from Links[0],Links[1] to Links[2],Links[3]
	OpUDagger    // occupation moves from Links[2],Links[3] to Links[0],Links[1]
)

func (op Op) String() string {
	switch op {
	case OpU:
		return "U"
	case OpUDagger:
		return "U†"
	}
	return "none"
}

// Which returns the operator that can act on s at plaquette p.
// U and U† need mirrored occupations, so at most one of them applies.
func Which(s qlm.State, p *lattice.Plaquette) Op {
	l := &p.Links
	b0, b1, b2, b3 := s.Has(l[0]), s.Has(l[1]), s.Has(l[2]), s.Has(l[3])
	switch {
	case b0 && b1 && !b2 && !b3:
		return OpU
	case !b0 && !b1 && b2 && b3:
		return OpUDagger
	}
	return OpNone
}

// Flip flips the four links of p in order and returns the new state with its fermionic sign.
//
// Before each flip of link l_k, the occupied links in [l_k, top) of the current state are
// counted, where top is the largest link of the plaquette; the sign is (-1)^total.
func Flip(s qlm.State, p *lattice.Plaquette) (qlm.State, int8) {
	top := p.Top
	n := 0
	for _, lk := range p.Links {
		n += s.CountRange(min(top, lk), max(top, lk))
		s.Flip(lk)
	}
	return s, int8(1 - 2*(n&1))
}

// Apply applies whichever of U or U† acts on s at p.
// For bosons the sign is always +1. If neither operator applies, op is OpNone.
func Apply(s qlm.State, p *lattice.Plaquette, stats qlm.Statistics) (next qlm.State, sign int8, op Op) {
	op = Which(s, p)
	if op == OpNone {
		return s, 0, op
	}
	next, sign = Flip(s, p)
	if stats == qlm.Bosons {
		sign = 1
	}
	return next, sign, op
}

// ApplyU applies U to s at p, returning false if U annihilates s.
func ApplyU(s qlm.State, p *lattice.Plaquette, stats qlm.Statistics) (qlm.State, int8, bool) {
	if Which(s, p) != OpU {
		return s, 0, false
	}
	next, sign, _ := Apply(s, p, stats)
	return next, sign, true
}

// ApplyUDagger applies U† to s at p, returning false if U† annihilates s.
func ApplyUDagger(s qlm.State, p *lattice.Plaquette, stats qlm.Statistics) (qlm.State, int8, bool) {
	if Which(s, p) != OpUDagger {
		return s, 0, false
	}
	next, sign, _ := Apply(s, p, stats)
	return next, sign, true
}

// Cycle appends to dst every state reachable from s by one plaquette flip.
func Cycle(dst []qlm.State, s qlm.State, plaqs []lattice.Plaquette) []qlm.State {
	for i := range plaqs {
		p := &plaqs[i]
		if Which(s, p) != OpNone {
			dst = append(dst, s.Xor(p.Mask))
		}
	}
	return dst
}

// Flippable counts the plaquettes of one orientation where U and U† apply.
type Flippable struct {
	U       int
	UDagger int
}

// CountFlippable returns, per orientation, how many plaquettes of s are flippable each way.
func CountFlippable(s qlm.State, plaqs []lattice.Plaquette) [lattice.NumOrientations]Flippable {
	var counts [lattice.NumOrientations]Flippable
	for i := range plaqs {
		p := &plaqs[i]
		switch Which(s, p) {
		case OpU:
			counts[p.Orientation].U++
		case OpUDagger:
			counts[p.Orientation].UDagger++
		}
	}
	return counts
}
