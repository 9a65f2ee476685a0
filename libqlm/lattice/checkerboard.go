package lattice

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
)

// Checkerboard 2-colors the vertices of a lattice with the given sizes.
// Along one axis colors alternate; each further axis repeats the lower layer with colors swapped.
func Checkerboard(sizes []int) []uint8 {
	last := len(sizes) - 1
	if last == 0 {
		colors := make([]uint8, sizes[0])
		for i := range colors {
			colors[i] = uint8(i & 1)
		}
		return colors
	}

	inner := Checkerboard(sizes[:last])
	layer := make([]uint8, 0, 2*len(inner))
	layer = append(layer, inner...)
	for _, c := range inner {
		layer = append(layer, 1-c)
	}

	colors := make([]uint8, 0, len(inner)*sizes[last])
	for r := 0; r < sizes[last]/2; r++ {
		colors = append(colors, layer...)
	}
	return colors
}

// Sublattices splits the vertices into A (searched over) and B (Gauss law checked).
type Sublattices struct {
	A    []int // color 0, ascending
	B    []int // color 1, ascending
	SetA *roaring.Bitmap
	SetB *roaring.Bitmap
}

// Partition computes the checkerboard sublattices and verifies every link joins A to B.
func (lat *Lattice) Partition() (*Sublattices, error) {
	colors := Checkerboard(lat.Sizes)
	sub := &Sublattices{
		SetA: roaring.New(),
		SetB: roaring.New(),
	}
	for i, c := range colors {
		if c == 0 {
			sub.A = append(sub.A, i)
			sub.SetA.Add(uint32(i))
		} else {
			sub.B = append(sub.B, i)
			sub.SetB.Add(uint32(i))
		}
	}

	if len(sub.A) != lat.NumVertex/2 || len(sub.B) != lat.NumVertex/2 {
		return nil, errors.Wrapf(qlm.ErrInconsistentBasisCount, "sublattice sizes %d and %d", len(sub.A), len(sub.B))
	}
	for i := 0; i < lat.NumVertex; i++ {
		for a := 0; a < lat.Dim; a++ {
			if colors[i] == colors[lat.Shift(i, a)] {
				return nil, errors.Wrapf(qlm.ErrInconsistentBasisCount, "vertices %d and %d share a color", i, lat.Shift(i, a))
			}
		}
	}
	return sub, nil
}
