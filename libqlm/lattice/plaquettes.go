package lattice

import (
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
)

// Orientation names the plane a plaquette lies in.
type Orientation uint8

const (
	XY Orientation = iota
	YZ
	XZ

	NumOrientations = 3
)

func (o Orientation) String() string {
	switch o {
	case XY:
		return "xy"
	case YZ:
		return "yz"
	case XZ:
		return "xz"
	}
	return "??"
}

// Plaquette is the ordered 4-link cycle around one elementary face.
//
// U moves the occupation from Links[0],Links[1] to Links[2],Links[3]; U† does the reverse.
type Plaquette struct {
	Links       [qlm.LinksPerPlaquette]int
	Mask        qlm.State // union of the four links
	Top         int       // largest link index, the reference for the fermionic sign
	Vertex      int       // anchor vertex
	Orientation Orientation
}

// BuildPlaquettes returns the (2^(d-1)-1)*N plaquettes of a lattice, anchored per vertex in the
// order xy, yz, xz.
func BuildPlaquettes(lat *Lattice) ([]Plaquette, error) {
	N := lat.NumVertex
	plaqs := make([]Plaquette, 0, ((1<<(lat.Dim-1))-1)*N)

	add := func(n int, o Orientation, links [4]int) {
		p := Plaquette{
			Links:       links,
			Vertex:      n,
			Orientation: o,
		}
		for _, li := range links {
			p.Mask.Set(li)
			if li > p.Top {
				p.Top = li
			}
		}
		plaqs = append(plaqs, p)
	}

	for n := 0; n < N; n++ {
		vn := lat.VertexLinks(n)

		j := lat.Shift(lat.Shift(n, 0), 1)
		vj := lat.VertexLinks(j)
		add(n, XY, [4]int{vn[0], vj[3], vj[1], vn[2]})

		if lat.Dim == 3 {
			j = lat.Shift(lat.Shift(n, 2), 1)
			vj = lat.VertexLinks(j)
			add(n, YZ, [4]int{vn[2], vj[5], vj[3], vn[4]})

			j = lat.Shift(lat.Shift(n, 0), 2)
			vj = lat.VertexLinks(j)
			add(n, XZ, [4]int{vn[0], vj[5], vj[1], vn[4]})
		}
	}

	if want := ((1 << (lat.Dim - 1)) - 1) * N; len(plaqs) != want {
		return nil, errors.Wrapf(qlm.ErrInconsistentBasisCount, "%d plaquettes, expected %d", len(plaqs), want)
	}
	seen := make(map[[4]int]struct{}, len(plaqs))
	for _, p := range plaqs {
		if _, dupe := seen[p.Links]; dupe {
			return nil, errors.Wrapf(qlm.ErrInconsistentBasisCount, "duplicate plaquette %v", p.Links)
		}
		seen[p.Links] = struct{}{}
	}
	return plaqs, nil
}

// ByOrientation groups plaquettes by the plane they lie in.
func ByOrientation(plaqs []Plaquette) [NumOrientations][]Plaquette {
	var groups [NumOrientations][]Plaquette
	for _, p := range plaqs {
		groups[p.Orientation] = append(groups[p.Orientation], p)
	}
	return groups
}
