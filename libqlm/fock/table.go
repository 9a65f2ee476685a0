package fock

import (
	"slices"

	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
)

// Table is an immutable, sorted basis of distinct Fock states.
// A state's rank in the table is its matrix row and column index.
//
// Lookups are binary searches unless Hashed() was called, after which they go through a map.
// Either way a Table is safe for concurrent readers once built.
type Table struct {
	states []qlm.State
	index  map[qlm.State]int32
}

// NewTable copies, sorts and dedupes the given states.
func NewTable(states []qlm.State) (*Table, error) {
	if len(states) == 0 {
		return nil, qlm.ErrNoStates
	}
	if len(states) > 1<<31-1 {
		return nil, errors.Wrapf(qlm.ErrResourceExhausted, "%d states exceed the matrix index range", len(states))
	}
	tbl := &Table{
		states: qlm.SortStates(slices.Clone(states)),
	}
	return tbl, nil
}

// FromSorted wraps states already sorted ascending and distinct, as read back from a catalog.
func FromSorted(states []qlm.State) (*Table, error) {
	if len(states) == 0 {
		return nil, qlm.ErrNoStates
	}
	for i := 1; i < len(states); i++ {
		if !states[i-1].Less(states[i]) {
			return nil, errors.Wrapf(qlm.ErrCorruptRecord, "state %d out of order", i)
		}
	}
	return &Table{states: states}, nil
}

// Hashed builds a hash index so that Index() is O(1). Call before sharing the Table.
func (tbl *Table) Hashed() *Table {
	if tbl.index == nil {
		tbl.index = make(map[qlm.State]int32, len(tbl.states))
		for i, s := range tbl.states {
			tbl.index[s] = int32(i)
		}
	}
	return tbl
}

// Index returns the rank of s, or false if s is not in the basis.
func (tbl *Table) Index(s qlm.State) (int32, bool) {
	if tbl.index != nil {
		i, ok := tbl.index[s]
		return i, ok
	}
	i, found := slices.BinarySearchFunc(tbl.states, s, qlm.State.Compare)
	return int32(i), found
}

func (tbl *Table) Contains(s qlm.State) bool {
	_, found := tbl.Index(s)
	return found
}

func (tbl *Table) State(i int32) qlm.State {
	return tbl.states[i]
}

func (tbl *Table) Len() int {
	return len(tbl.states)
}

// States returns the sorted basis. The slice is shared and must not be modified.
func (tbl *Table) States() []qlm.State {
	return tbl.states
}
