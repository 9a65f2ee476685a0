package lattice

import (
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
)

// ChargeMap holds the static charge of every vertex.
type ChargeMap []int8

// Charges validates a static charge background and returns the per-vertex charges.
// A nil or empty background yields all zeros.
func (lat *Lattice) Charges(sc *qlm.StaticCharges) (ChargeMap, error) {
	charges := make(ChargeMap, lat.NumVertex)
	if sc.IsEmpty() {
		return charges, nil
	}
	if len(sc.Positive) != len(sc.Negative) {
		return nil, errors.Wrapf(qlm.ErrChargeImbalance, "%d positive vs %d negative", len(sc.Positive), len(sc.Negative))
	}

	place := func(vtx []int, q int8) error {
		for _, v := range vtx {
			if v < 0 || v >= lat.NumVertex {
				return errors.Wrapf(qlm.ErrInvalidCharge, "vertex %d outside lattice", v)
			}
			if charges[v] != 0 {
				return errors.Wrapf(qlm.ErrInvalidCharge, "vertex %d charged twice", v)
			}
			charges[v] = q
		}
		return nil
	}
	if err := place(sc.Positive, +1); err != nil {
		return nil, err
	}
	if err := place(sc.Negative, -1); err != nil {
		return nil, err
	}
	return charges, nil
}

// GaussMask evaluates the Gauss law at one vertex in constant time.
type GaussMask struct {
	Vertex   int
	Charge   int
	Pos      qlm.State // outgoing links
	Neg      qlm.State // incoming links
	PosLinks []int
	NegLinks []int
}

func (gm *GaussMask) Satisfied(latt qlm.State) bool {
	return latt.And(gm.Pos).OnesCount()-latt.And(gm.Neg).OnesCount() == gm.Charge
}

// GaussMasks builds the masks for the given vertices.
func (lat *Lattice) GaussMasks(vertices []int, charges ChargeMap) []GaussMask {
	masks := make([]GaussMask, len(vertices))
	for j, g := range vertices {
		gm := &masks[j]
		gm.Vertex = g
		if charges != nil {
			gm.Charge = int(charges[g])
		}
		for k, li := range lat.VertexLinks(g) {
			if k%2 == 0 {
				gm.PosLinks = append(gm.PosLinks, li)
				gm.Pos.Set(li)
			} else {
				gm.NegLinks = append(gm.NegLinks, li)
				gm.Neg.Set(li)
			}
		}
	}
	return masks
}

// CheckGaussLaw tests every vertex link by link, independent of any precomputed masks.
// It returns the first violating vertex, or -1.
func (lat *Lattice) CheckGaussLaw(links qlm.LinkBits, charges ChargeMap) int {
	for i := 0; i < lat.NumVertex; i++ {
		q := 0
		for k, li := range lat.VertexLinks(i) {
			if links.Test(uint(li)) {
				q += 1 - 2*(k%2)
			}
		}
		if charges != nil {
			q -= int(charges[i])
		}
		if q != 0 {
			return i
		}
	}
	return -1
}
