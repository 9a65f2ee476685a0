package lattice

import (
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
)

// Pattern is the occupation of the 2*Dim links around one vertex: bit k is the occupation of
// VertexLinks(i)[k]. Even bits are outgoing links, odd bits incoming.
type Pattern uint8

func (p Pattern) Occupied(k int) bool {
	return (p>>k)&1 != 0
}

// Charge returns outgoing minus incoming occupation.
func (p Pattern) Charge(dim int) int {
	q := 0
	for a := 0; a < dim; a++ {
		if p.Occupied(2 * a) {
			q++
		}
		if p.Occupied(2*a + 1) {
			q--
		}
	}
	return q
}

// FullPattern has every link around a vertex occupied.
func FullPattern(dim int) Pattern {
	return Pattern(1<<(2*dim) - 1)
}

// LocalBasis returns every pattern obeying the Gauss law with net charge q.
//
// Patterns are listed in lexicographic order of the tuple (+x, -x, +y, ...), +x most significant.
func LocalBasis(dim, q int) []Pattern {
	n := 2 * dim
	var basis []Pattern
	for m := 0; m < 1<<n; m++ {
		var p Pattern
		for k := 0; k < n; k++ {
			if (m>>(n-1-k))&1 != 0 {
				p |= 1 << k
			}
		}
		if p.Charge(dim) == q {
			basis = append(basis, p)
		}
	}
	return basis
}

// BasisByCharge returns LocalBasis for every q in [-dim, dim], indexed by q+dim.
func BasisByCharge(dim int) ([][]Pattern, error) {
	buckets := make([][]Pattern, 2*dim+1)
	total := 0
	for q := -dim; q <= dim; q++ {
		buckets[q+dim] = LocalBasis(dim, q)
		total += len(buckets[q+dim])
	}
	if total != 1<<(2*dim) || len(buckets[dim]) != binomial(2*dim, dim) {
		return nil, errors.Wrapf(qlm.ErrInconsistentBasisCount, "local basis has %d neutral patterns", len(buckets[dim]))
	}
	return buckets, nil
}

func binomial(n, k int) int {
	c := 1
	for i := 1; i <= k; i++ {
		c = c * (n - k + i) / i
	}
	return c
}

// Place returns the lattice state with pattern p written onto the links of vertex i.
func (lat *Lattice) Place(i int, p Pattern) qlm.State {
	var s qlm.State
	for k, li := range lat.VertexLinks(i) {
		if p.Occupied(k) {
			s.Set(li)
		}
	}
	return s
}

// PatternAt reads back the pattern of vertex i from a lattice state.
func (lat *Lattice) PatternAt(s qlm.State, i int) Pattern {
	var p Pattern
	for k, li := range lat.VertexLinks(i) {
		if s.Has(li) {
			p |= 1 << k
		}
	}
	return p
}
