package lattice

import (
	"strconv"
	"strings"

	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
)

// Lattice is the geometry of a periodic hypercubic lattice with one link per vertex and axis.
//
// Link d*i+a is the positive a-direction link leaving vertex i. Vertices are numbered in mixed
// radix with axis 0 varying fastest.
type Lattice struct {
	Sizes     []int // L_a per axis
	Strides   []int // Strides[k] = L_0 * .. * L_{k-1}; Strides[Dim] = NumVertex
	Dim       int
	NumVertex int
	NumLinks  int

	vtxLinks    []int       // 2*Dim link indices per vertex
	windingMask []qlm.State // per axis
}

// New validates sizes and precomputes vertex links and winding masks.
//
// Sizes must have 2 or 3 entries, each even and at least 2, and the lattice may hold at most
// qlm.MaxLinks links.
func New(sizes []int) (*Lattice, error) {
	d := len(sizes)
	if d < 2 || d > qlm.MaxDim {
		return nil, errors.Wrapf(qlm.ErrInvalidGeometry, "dimension %d not supported", d)
	}

	lat := &Lattice{
		Sizes:   append([]int(nil), sizes...),
		Strides: make([]int, d+1),
		Dim:     d,
	}
	lat.Strides[0] = 1
	for a, L := range sizes {
		if L < 2 || L%2 != 0 {
			return nil, errors.Wrapf(qlm.ErrInvalidGeometry, "axis %d has size %d (must be even and >= 2)", a, L)
		}
		lat.Strides[a+1] = lat.Strides[a] * L
		if lat.Strides[a+1]*d > qlm.MaxLinks {
			return nil, errors.Wrapf(qlm.ErrInvalidGeometry, "%s has more than %d links", SizeTag(sizes), qlm.MaxLinks)
		}
	}
	lat.NumVertex = lat.Strides[d]
	lat.NumLinks = d * lat.NumVertex

	lat.vtxLinks = make([]int, 0, 2*lat.NumLinks)
	for i := 0; i < lat.NumVertex; i++ {
		lat.vtxLinks = lat.appendVertexLinks(lat.vtxLinks, i)
	}

	lat.windingMask = make([]qlm.State, d)
	for i := 0; i < lat.NumVertex; i++ {
		for a := 0; a < d; a++ {
			if lat.Coord(i, a) == 0 {
				lat.windingMask[a].Set(d*i + a)
			}
		}
	}

	return lat, nil
}

func (lat *Lattice) appendVertexLinks(dst []int, i int) []int {
	d, S := lat.Dim, lat.Strides
	j := d * i
	for k := 1; k <= d; k++ {
		dst = append(dst, j+k-1)

		l := j + k - 1 - d*S[k-1]
		if i%S[k] < S[k-1] {
			l += d * S[k]
		}
		dst = append(dst, l)
	}
	return dst
}

// VertexLinks returns the 2*Dim links incident to vertex i, ordered +x, -x, +y, -y (, +z, -z).
// The returned slice is shared and must not be modified.
func (lat *Lattice) VertexLinks(i int) []int {
	n := 2 * lat.Dim
	return lat.vtxLinks[n*i : n*i+n : n*i+n]
}

// Shift returns the neighbor of vertex i one step along +axis.
func (lat *Lattice) Shift(i, axis int) int {
	S := lat.Strides
	n := i + S[axis]
	if n%S[axis+1] < S[axis] {
		n -= S[axis+1]
	}
	return n
}

// Coord returns the coordinate of vertex i along axis.
func (lat *Lattice) Coord(i, axis int) int {
	return (i / lat.Strides[axis]) % lat.Sizes[axis]
}

func (lat *Lattice) Coords(i int) []int {
	c := make([]int, lat.Dim)
	for a := range c {
		c[a] = lat.Coord(i, a)
	}
	return c
}

// VertexAt returns the vertex index at the given coordinates, wrapping periodically.
func (lat *Lattice) VertexAt(coords []int) int {
	i := 0
	for a := lat.Dim - 1; a >= 0; a-- {
		L := lat.Sizes[a]
		c := ((coords[a] % L) + L) % L
		i = i*L + c
	}
	return i
}

// SizeTag returns the size tag of this lattice, e.g. "2x2x4".
func (lat *Lattice) SizeTag() string {
	return SizeTag(lat.Sizes)
}

func SizeTag(sizes []int) string {
	b := strings.Builder{}
	for a, L := range sizes {
		if a > 0 {
			b.WriteByte('x')
		}
		b.WriteString(strconv.Itoa(L))
	}
	return b.String()
}

// WindingMask returns the cross-section of axis-a links used to count the axis-a winding.
func (lat *Lattice) WindingMask(axis int) qlm.State {
	return lat.windingMask[axis]
}

// WindingRange is the number of links in the axis-a cross-section, N / L_a.
func (lat *Lattice) WindingRange(axis int) int {
	return lat.NumVertex / lat.Sizes[axis]
}

// SectorOf classifies a state by its raw winding counts.
func (lat *Lattice) SectorOf(s qlm.State, background string) qlm.Sector {
	sec := qlm.Sector{
		Dim:        lat.Dim,
		Background: background,
	}
	for a, mask := range lat.windingMask {
		sec.Winding[a] = s.And(mask).OnesCount()
	}
	return sec
}

// PhysicalWinding converts a sector's raw winding counts to winding numbers centered on zero.
func (lat *Lattice) PhysicalWinding(sec qlm.Sector) []int {
	w := make([]int, lat.Dim)
	for a := range w {
		w[a] = sec.Winding[a] - lat.WindingRange(a)/2
	}
	return w
}

// SectorForWinding is the inverse of PhysicalWinding.
func (lat *Lattice) SectorForWinding(physical []int, background string) (qlm.Sector, error) {
	sec := qlm.Sector{
		Dim:        lat.Dim,
		Background: background,
	}
	if len(physical) != lat.Dim {
		return sec, errors.Wrapf(qlm.ErrBadSectorTag, "%d winding numbers given for a %d-dimensional lattice", len(physical), lat.Dim)
	}
	for a, w := range physical {
		raw := w + lat.WindingRange(a)/2
		if raw < 0 || raw > lat.WindingRange(a) {
			return sec, errors.Wrapf(qlm.ErrBadSectorTag, "winding %d out of range along axis %d", w, a)
		}
		sec.Winding[a] = raw
	}
	return sec, nil
}

// Conjugate applies charge conjugation, flipping the occupation of every link.
func (lat *Lattice) Conjugate(s qlm.State) qlm.State {
	return s.Complement(lat.NumLinks)
}
