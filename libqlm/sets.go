package libqlm

import (
	"github.com/dgraph-io/badger/v3"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
)

// StateSet allows adding states and reports whether a state has already been added.
type StateSet interface {

	// TryAdd adds the given state if it is not already present.
	//
	// If s is already in this StateSet, this call has no effect and TryAdd() returns false.
	// If s isn't in this set, s is added and TryAdd() returns true.
	//
	// After one or more calls to TryAdd(), call Close() for cleanup.
	TryAdd(s qlm.State) bool

	// Contains reports whether s was previously added.
	Contains(s qlm.State) bool

	// Len returns the number of states added.
	Len() int

	// Close removes all previously added items from this set.
	Close()
}

// NewStateSet returns a StateSet held in a Go map.
func NewStateSet() StateSet {
	return &mapSet{}
}

type mapSet struct {
	set map[qlm.State]struct{}
}

func (ms *mapSet) TryAdd(s qlm.State) bool {
	if ms.set == nil {
		ms.set = make(map[qlm.State]struct{})
	}
	if _, exists := ms.set[s]; exists {
		return false
	}
	ms.set[s] = struct{}{}
	return true
}

func (ms *mapSet) Contains(s qlm.State) bool {
	_, exists := ms.set[s]
	return exists
}

func (ms *mapSet) Len() int {
	return len(ms.set)
}

func (ms *mapSet) Close() {
	ms.set = nil
}

// NewLSMStateSet returns a StateSet backed by a badger LSM tree, for visited sets that outgrow memory.
// If dbPath is empty, the db is held in memory.
//
// The set owns dbPath: whatever an earlier set left there is dropped when the db opens, and
// Close drops it again. The db opens on first use and panics if it can't; use OpenLSMStateSet
// to get that error up front.
func NewLSMStateSet(dbPath string) StateSet {
	return &lsmSet{
		dbPath: dbPath,
	}
}

// OpenLSMStateSet is NewLSMStateSet but opens the db immediately.
func OpenLSMStateSet(dbPath string) (StateSet, error) {
	set := &lsmSet{
		dbPath: dbPath,
	}
	if err := set.open(); err != nil {
		return nil, err
	}
	return set, nil
}

type lsmSet struct {
	db     *badger.DB
	dbPath string
	count  int
}

func (set *lsmSet) open() error {
	if set.db != nil {
		return nil
	}
	dbOpts := badger.DefaultOptions(set.dbPath)
	if set.dbPath == "" {
		dbOpts = dbOpts.WithInMemory(true)
	}
	dbOpts.Logger = nil
	dbOpts.MetricsEnabled = false

	db, err := badger.Open(dbOpts)
	if err != nil {
		return errors.Wrapf(err, "opening state set %q", set.dbPath)
	}
	if set.dbPath != "" {
		if err = db.DropAll(); err != nil {
			db.Close()
			return errors.Wrapf(err, "clearing state set %q", set.dbPath)
		}
	}
	set.db = db
	return nil
}

func (set *lsmSet) autoOpen() {
	if err := set.open(); err != nil {
		panic(err)
	}
}

func (set *lsmSet) TryAdd(s qlm.State) bool {
	set.autoOpen()

	var buf [qlm.StateBytes]byte
	key := s.AppendKey(buf[:0])

	txn := set.db.NewTransaction(true)
	defer txn.Commit()

	added := false
	_, err := txn.Get(key)
	if err == nil {
		// no-op since the key is already in the db
	} else if err == badger.ErrKeyNotFound {
		err = txn.Set(key, nil)
		added = true
	}

	if err != nil {
		panic(err)
	}

	if added {
		set.count++
	}
	return added
}

func (set *lsmSet) Contains(s qlm.State) bool {
	if set.db == nil {
		return false
	}

	var buf [qlm.StateBytes]byte
	key := s.AppendKey(buf[:0])

	found := false
	err := set.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			found = true
		} else if err == badger.ErrKeyNotFound {
			err = nil
		}
		return err
	})
	if err != nil {
		panic(err)
	}
	return found
}

func (set *lsmSet) Len() int {
	return set.count
}

func (set *lsmSet) Close() {
	if set.db != nil {
		if set.dbPath != "" {
			set.db.DropAll()
		}
		set.db.Close()
		set.db = nil
	}
	set.count = 0
}
