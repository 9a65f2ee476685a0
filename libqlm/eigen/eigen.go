package eigen

import (
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MaxDenseDim is the largest basis Lowest will factorize densely.
const MaxDenseDim = 1 << 13

// Params are the couplings of H = J Σ_p (U_p + U_p†) + λ Σ_p (U_p + U_p†)².
type Params struct {
	J          float64
	Lambda     float64
	Statistics qlm.Statistics // Bosons drops the sign of every entry
}

// DefaultParams is the pure kinetic term with J = 1.
var DefaultParams = Params{J: 1}

// IsHermitian reports whether every entry (r,c,v) has a matching (c,r,v).
func IsHermitian(entries []qlm.Entry) bool {
	type rc struct{ r, c int32 }
	vals := make(map[rc]int8, len(entries))
	for _, e := range entries {
		vals[rc{e.Row, e.Col}] = e.Value
	}
	for _, e := range entries {
		v, ok := vals[rc{e.Col, e.Row}]
		if !ok || v != e.Value {
			return false
		}
	}
	return true
}

// Dense expands sparse plaquette entries over a basis of size dim into a symmetric matrix.
// The diagonal of row r is λ times the number of entries in row r.
func Dense(entries []qlm.Entry, dim int, params Params) (*mat.SymDense, error) {
	if dim <= 0 {
		return nil, qlm.ErrNoStates
	}
	if dim > MaxDenseDim {
		return nil, errors.Wrapf(qlm.ErrResourceExhausted, "dense basis of %d states exceeds %d", dim, MaxDenseDim)
	}
	if !IsHermitian(entries) {
		return nil, errors.New("eigen: matrix entries are not Hermitian")
	}

	H := mat.NewSymDense(dim, nil)
	flips := make([]int, dim)
	for _, e := range entries {
		r, c := int(e.Row), int(e.Col)
		if r < 0 || r >= dim || c < 0 || c >= dim {
			return nil, errors.Errorf("eigen: entry (%d,%d) outside a %d-state basis", r, c, dim)
		}
		if r == c {
			return nil, errors.Errorf("eigen: unexpected diagonal entry at %d", r)
		}
		v := float64(e.Value)
		if params.Statistics == qlm.Bosons && v < 0 {
			v = -v
		}
		if r < c {
			H.SetSym(r, c, params.J*v)
		}
		flips[r]++
	}
	if params.Lambda != 0 {
		for r, n := range flips {
			H.SetSym(r, r, params.Lambda*float64(n))
		}
	}
	return H, nil
}

// Lowest returns the k lowest eigenvalues of H in ascending order (all of them if k <= 0).
func Lowest(entries []qlm.Entry, dim int, params Params, k int) ([]float64, error) {
	H, err := Dense(entries, dim, params)
	if err != nil {
		return nil, err
	}

	var es mat.EigenSym
	if ok := es.Factorize(H, false); !ok {
		return nil, errors.Errorf("eigen: factorization of %d-state matrix did not converge", dim)
	}
	vals := es.Values(nil)
	if k > 0 && k < len(vals) {
		vals = vals[:k]
	}
	return vals, nil
}
