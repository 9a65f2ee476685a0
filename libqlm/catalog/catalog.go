package catalog

import (
	"bytes"
	"context"
	"encoding/binary"
	"runtime"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
)

/***

Catalog database format:

	gCatalogStateKey                                  => catalogState
	kStates, SectorTag, NUL, State (32 bytes BE)      => nil
	kLevels, RunName, NUL, Level (4 bytes BE), State  => nil

Big-endian state keys make badger's key order the same as the states' numeric order, so
reading a sector back yields a sorted basis with no extra pass.

***/

var (
	gCatalogStateKey = []byte{0x00, 0x00, 0x01}
)

const (
	kStates byte = 0x01
	kLevels byte = 0x02
)

// txnMaxWrites keeps each transaction well under badger's per-transaction entry limit.
const txnMaxWrites = 1 << 15

// catalog is a db wrapper for a catalog of enumerated states
type catalog struct {
	ctx      qlm.CatalogContext
	readOnly bool
	state    catalogState
	closeMu  sync.Mutex // the context may close the catalog alongside its owner
	db       *badger.DB
}

// OpenCatalog opens a new or existing state catalog and attaches it to ctx.
func OpenCatalog(ctx qlm.CatalogContext, opts qlm.CatalogOpts) (qlm.Catalog, error) {
	cat := &catalog{
		ctx:      ctx,
		readOnly: opts.ReadOnly,
	}

	dbOpts := badger.DefaultOptions(opts.DbPathName)
	dbOpts.ReadOnly = opts.ReadOnly
	dbOpts.DetectConflicts = false // single writer
	dbOpts.Logger = nil
	dbOpts.MetricsEnabled = false

	// Badger for windows currently does not support read-only mode
	if runtime.GOOS == "windows" {
		dbOpts.ReadOnly = false
	}

	if len(opts.DbPathName) == 0 {
		if opts.ReadOnly {
			return nil, errors.Wrap(qlm.ErrBadCatalogParam, "DbPathName must be specified for read-only catalog")
		}
		dbOpts.InMemory = true
	}

	var err error
	cat.db, err = badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}

	// Once the db is open, we consider the catalog ctx blocked until the catalog closes
	ctx.AttachCatalog(cat)

	err = cat.loadState()
	if err == badger.ErrKeyNotFound {
		err = nil
		if opts.ReadOnly {
			err = errors.Wrap(qlm.ErrBadCatalogParam, "read-only catalog has no state record")
		} else if opts.SizeTag == "" {
			err = errors.Wrap(qlm.ErrBadCatalogParam, "SizeTag must be specified for a new catalog")
		} else {
			cat.state = catalogState{
				MajorVers: catalogMajorVers,
				MinorVers: catalogMinorVers,
				SizeTag:   opts.SizeTag,
			}
			err = cat.db.Update(cat.putState(&cat.state))
		}
	}

	if err == nil {
		if cat.state.MajorVers != catalogMajorVers || cat.state.MinorVers != catalogMinorVers {
			err = errors.Wrapf(qlm.ErrBadCatalogParam, "catalog version %d.%d is incompatible", cat.state.MajorVers, cat.state.MinorVers)
		} else if opts.SizeTag != "" && opts.SizeTag != cat.state.SizeTag {
			err = errors.Wrapf(qlm.ErrBadCatalogParam, "catalog holds %s states, not %s", cat.state.SizeTag, opts.SizeTag)
		}
	}

	if err != nil {
		cat.Close()
		return nil, err
	}

	return cat, nil
}

func (cat *catalog) loadState() error {
	err := cat.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(gCatalogStateKey)
		if err == nil {
			err = item.Value(func(val []byte) error {
				return cat.state.Unmarshal(val)
			})
		}
		return err
	})
	return err
}

func (cat *catalog) putState(st *catalogState) func(txn *badger.Txn) error {
	return func(txn *badger.Txn) error {
		stateBuf, err := st.Marshal()
		if err != nil {
			return err
		}
		return txn.Set(gCatalogStateKey, stateBuf)
	}
}

func (cat *catalog) Close() error {
	cat.closeMu.Lock()
	defer cat.closeMu.Unlock()

	if cat.db != nil {
		err := cat.db.Close()
		cat.db = nil
		cat.ctx.DetachCatalog(cat)
		cat.ctx = nil
		return err
	}
	return nil
}

func (cat *catalog) IsReadOnly() bool {
	return cat.readOnly
}

func (cat *catalog) SizeTag() string {
	return cat.state.SizeTag
}

func (cat *catalog) Sectors() []qlm.SectorCount {
	return append([]qlm.SectorCount(nil), cat.state.Sectors...)
}

func appendSectorPrefix(key []byte, sec qlm.Sector) []byte {
	key = append(key, kStates)
	key = sec.AppendTag(key)
	return append(key, 0)
}

func appendLevelPrefix(key []byte, run string) []byte {
	key = append(key, kLevels)
	key = append(key, run...)
	return append(key, 0)
}

// WriteStates adds a batch of states, committing at most txnMaxWrites new keys per transaction.
// Each commit carries the sector counts of everything committed so far, so an interrupted batch
// leaves a consistent catalog. States already in the catalog are skipped and do not count twice.
func (cat *catalog) WriteStates(batch []qlm.SectorState) error {
	if cat.readOnly {
		return errors.Wrap(qlm.ErrBadCatalogParam, "catalog is read-only")
	}

	next := cat.state
	txn := cat.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	var (
		keyBuf [128]byte
		cur    qlm.Sector
		added  int64
		writes int
	)
	commit := func() error {
		if added > 0 {
			next.Sectors = addCount(next.Sectors, cur, added)
			added = 0
		}
		if err := cat.putState(&next)(txn); err != nil {
			return err
		}
		if err := txn.Commit(); err != nil {
			return err
		}
		cat.state = next
		writes = 0
		return nil
	}

	for _, st := range batch {
		if st.Sector != cur && added > 0 {
			next.Sectors = addCount(next.Sectors, cur, added)
			added = 0
		}
		cur = st.Sector

		if writes >= txnMaxWrites {
			if err := commit(); err != nil {
				return errors.Wrapf(err, "writing %d states", len(batch))
			}
			txn = cat.db.NewTransaction(true)
		}

		key := appendSectorPrefix(keyBuf[:0], st.Sector)
		key = st.State.AppendKey(key)

		_, err := txn.Get(key)
		if err == nil {
			continue
		} else if err != badger.ErrKeyNotFound {
			return errors.Wrapf(err, "writing %d states", len(batch))
		}

		// badger retains the key until commit so it can't live in keyBuf
		if err = txn.Set(bytes.Clone(key), nil); err != nil {
			return errors.Wrapf(err, "writing %d states", len(batch))
		}
		added++
		writes++
	}
	if err := commit(); err != nil {
		return errors.Wrapf(err, "writing %d states", len(batch))
	}
	return nil
}

// ReadSector returns the states of a sector in ascending order.
func (cat *catalog) ReadSector(sec qlm.Sector) ([]qlm.State, error) {
	var states []qlm.State
	err := cat.scanPrefix(appendSectorPrefix(nil, sec), func(suffix []byte) error {
		s, err := qlm.StateFromKey(suffix)
		if err == nil {
			states = append(states, s)
		}
		return err
	})
	return states, err
}

// Select sends every state of the given sector to onHit in ascending order.
// onHit is not closed.
func (cat *catalog) Select(sec qlm.Sector, onHit qlm.OnStateHit) error {
	return cat.scanPrefix(appendSectorPrefix(nil, sec), func(suffix []byte) error {
		s, err := qlm.StateFromKey(suffix)
		if err == nil {
			onHit <- qlm.SectorState{
				State:  s,
				Sector: sec,
			}
		}
		return err
	})
}

func (cat *catalog) scanPrefix(prefix []byte, onKey func(suffix []byte) error) error {
	txn := cat.db.NewTransaction(false)
	defer txn.Discard()

	it := txn.NewIterator(badger.IteratorOptions{
		PrefetchValues: false,
		Prefix:         prefix,
	})
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		if err := onKey(key[len(prefix):]); err != nil {
			return err
		}
	}
	return nil
}

// PutLevel stores one frontier level of a run, committing at most txnMaxWrites states per
// transaction. The level's marker key goes in the last commit, so Levels() skips a level
// whose write was interrupted.
func (cat *catalog) PutLevel(ctx context.Context, run string, level int, states []qlm.State) error {
	if cat.readOnly {
		return errors.Wrap(qlm.ErrBadCatalogParam, "catalog is read-only")
	}

	prefix := appendLevelPrefix(nil, run)
	prefix = binary.BigEndian.AppendUint32(prefix, uint32(level))

	// drop whatever an earlier write of this level left behind
	if err := cat.deletePrefix(prefix); err != nil {
		return errors.Wrapf(err, "level %d", level)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(len(states), txnMaxWrites)
		err := cat.db.Update(func(txn *badger.Txn) error {
			for _, s := range states[:n] {
				if err := txn.Set(s.AppendKey(bytes.Clone(prefix)), nil); err != nil {
					return err
				}
			}
			// the marker also makes empty levels visible to Levels()
			if n == len(states) {
				return txn.Set(prefix, nil)
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "level %d", level)
		}
		states = states[n:]
		if len(states) == 0 {
			return nil
		}
	}
}

var errScanFull = errors.New("scan batch full")

// deletePrefix deletes every key starting with prefix, txnMaxWrites keys per transaction.
func (cat *catalog) deletePrefix(prefix []byte) error {
	for {
		var keys [][]byte
		err := cat.scanPrefix(prefix, func(suffix []byte) error {
			if len(keys) == txnMaxWrites {
				return errScanFull
			}
			keys = append(keys, append(bytes.Clone(prefix), suffix...))
			return nil
		})
		if err != nil && err != errScanFull {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		err = cat.db.Update(func(txn *badger.Txn) error {
			for _, key := range keys {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil || len(keys) < txnMaxWrites {
			return err
		}
	}
}

// Levels returns the stored levels of a run, which must be contiguous from level 0.
func (cat *catalog) Levels(ctx context.Context, run string) ([][]qlm.State, error) {
	var levels [][]qlm.State
	err := cat.scanPrefix(appendLevelPrefix(nil, run), func(suffix []byte) error {
		if len(suffix) < 4 {
			return errors.Wrap(qlm.ErrCorruptRecord, "level key")
		}
		level := int(binary.BigEndian.Uint32(suffix))
		switch {
		case len(suffix) == 4:
			if level != len(levels) {
				return errors.Wrapf(qlm.ErrCorruptRecord, "run %q is missing level %d", run, len(levels))
			}
			levels = append(levels, nil)
			return ctx.Err()
		case level == len(levels):
			return nil // left by an interrupted PutLevel
		case level != len(levels)-1:
			return errors.Wrapf(qlm.ErrCorruptRecord, "run %q level %d has no marker", run, level)
		}
		s, err := qlm.StateFromKey(suffix[4:])
		if err != nil {
			return err
		}
		levels[level] = append(levels[level], s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return levels, nil
}
