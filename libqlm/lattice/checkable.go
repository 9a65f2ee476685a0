package lattice

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
)

// CheckableOrder lists, per prefix length, the B vertices whose links are all fixed once the
// first ℓ A-vertices have been assigned. Index ℓ-1 holds prefix length ℓ.
type CheckableOrder struct {
	Cumulative [][]int // all B vertices fully surrounded after ℓ placements
	Fresh      [][]int // those that first became fully surrounded at ℓ
}

// FindCheckableOrder places the fully occupied pattern on A[0], A[1], ... in turn and records
// which B vertices have become fully surrounded after each placement.
func (lat *Lattice) FindCheckableOrder(A, B []int) (*CheckableOrder, error) {
	filled := bitset.New(uint(lat.NumLinks))
	order := &CheckableOrder{
		Cumulative: make([][]int, len(A)),
		Fresh:      make([][]int, len(A)),
	}

	prev := roaring.New()
	for l, a := range A {
		for _, li := range lat.VertexLinks(a) {
			filled.Set(uint(li))
		}

		cur := roaring.New()
		for _, g := range B {
			surrounded := true
			for _, li := range lat.VertexLinks(g) {
				if !filled.Test(uint(li)) {
					surrounded = false
					break
				}
			}
			if surrounded {
				cur.Add(uint32(g))
			}
		}

		order.Cumulative[l] = toInts(cur)
		order.Fresh[l] = toInts(roaring.AndNot(cur, prev))
		prev = cur
	}

	if len(A) == 0 || len(order.Cumulative[len(A)-1]) != len(B) {
		return nil, errors.Wrapf(qlm.ErrInconsistentBasisCount, "only %d of %d Gauss law vertices checkable at full depth", prev.GetCardinality(), len(B))
	}
	return order, nil
}

func toInts(bm *roaring.Bitmap) []int {
	out := make([]int, 0, bm.GetCardinality())
	itr := bm.Iterator()
	for itr.HasNext() {
		out = append(out, int(itr.Next()))
	}
	return out
}
