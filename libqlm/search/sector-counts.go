package search

import (
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/fine-structures/qlm.SDK/qlm"
)

// SectorCounts is an ordered histogram of states per sector.
type SectorCounts struct {
	tree redblacktree.Tree

	last    qlm.Sector
	lastCnt *int64
}

func NewSectorCounts() *SectorCounts {
	return &SectorCounts{
		tree: redblacktree.Tree{
			Comparator: func(A, B interface{}) int {
				return qlm.CompareSectors(A.(qlm.Sector), B.(qlm.Sector))
			},
		},
	}
}

// Add increments the count of the given sector by n.
func (sc *SectorCounts) Add(sec qlm.Sector, n int64) {
	// consecutive states tend to share a sector
	if sc.lastCnt != nil && sc.last == sec {
		*sc.lastCnt += n
		return
	}

	var cnt *int64
	if val, found := sc.tree.Get(sec); found {
		cnt = val.(*int64)
	} else {
		cnt = new(int64)
		sc.tree.Put(sec, cnt)
	}
	*cnt += n
	sc.last = sec
	sc.lastCnt = cnt
}

// Get returns the number of states counted for a sector.
func (sc *SectorCounts) Get(sec qlm.Sector) int64 {
	if val, found := sc.tree.Get(sec); found {
		return *val.(*int64)
	}
	return 0
}

func (sc *SectorCounts) Len() int {
	return sc.tree.Size()
}

// Counts returns every sector and its count in sector order.
func (sc *SectorCounts) Counts() []qlm.SectorCount {
	counts := make([]qlm.SectorCount, 0, sc.tree.Size())
	itr := sc.tree.Iterator()
	for itr.Next() {
		counts = append(counts, qlm.SectorCount{
			Sector: itr.Key().(qlm.Sector),
			Count:  *itr.Value().(*int64),
		})
	}
	return counts
}
