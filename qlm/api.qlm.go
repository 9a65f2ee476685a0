package qlm

import (
	"context"
)

const (
	// MaxDim is the largest lattice dimension supported.
	MaxDim = 3

	// LinksPerPlaquette is the number of links around an elementary face.
	LinksPerPlaquette = 4
)

// Statistics selects how plaquette flips are signed.
type Statistics int32

const (
	Fermions Statistics = iota // flips carry the Jordan-Wigner parity sign
	Bosons                     // flips are always +1
)

// Sector labels a block of the Hamiltonian: the raw winding count per axis and, when static
// charges are present, the charge background.
type Sector struct {
	Winding    [MaxDim]int // raw winding count per axis, 0..N/L_a
	Dim        int         // number of meaningful Winding entries
	Background string      // charge background label ("" for no static charges)
}

// SectorState is an enumerated state together with the sector it was classified into.
type SectorState struct {
	State  State
	Sector Sector
}

// SectorCount is the number of states in a sector.
type SectorCount struct {
	Sector Sector
	Count  int64
}

// Entry is one sparse matrix element: H[Row, Col] = Value.
type Entry struct {
	Row   int32
	Col   int32
	Value int8
}

// StaticCharges places fixed +1 and -1 charges on lattice vertices.
type StaticCharges struct {
	Positive []int  // vertices carrying q = +1
	Negative []int  // vertices carrying q = -1
	Label    string // background label; derived from the vertex lists if empty
}

// StateSink consumes batches of enumerated states.
type StateSink interface {

	// WriteStates persists the entire batch or returns an error, leaving no partial batch behind.
	// The sink must not retain batch after returning.
	WriteStates(batch []SectorState) error
}

// LevelStore persists frontier levels so a long expansion can resume where it stopped.
type LevelStore interface {

	// PutLevel stores the frontier states discovered at the given level of a named run.
	PutLevel(ctx context.Context, run string, level int, states []State) error

	// Levels returns the stored levels of a run, contiguous from level 0.
	Levels(ctx context.Context, run string) ([][]State, error)
}

// OnStateHit is used to return states meeting selection criteria.
type OnStateHit chan<- SectorState

// CatalogContext is a container for open / active Catalog instances.
type CatalogContext interface {

	// Attaches the given Catalog to this context.
	AttachCatalog(cat Catalog)

	// Detaches the given Catalog from this context.
	DetachCatalog(cat Catalog)

	// Closes all open catalogs then closes.
	Close()

	// Signals when Close() completed and all open Catalogs have been closed
	Done() <-chan struct{}
}

// CatalogOpts specifies params for opening a state Catalog
type CatalogOpts struct {
	DbPathName string // omit for an in-memory db
	ReadOnly   bool   // open in read-only mode
	SizeTag    string // lattice size tag ("2x2x2"); must match the tag the catalog was created with
}

// Catalog wraps a database of enumerated states, keyed by sector then state.
type Catalog interface {
	StateSink
	LevelStore

	// Returns true if this catalog was opened for read-only access.
	IsReadOnly() bool

	// SizeTag returns the lattice size tag this catalog holds states for.
	SizeTag() string

	// Sectors returns the number of states stored per sector, in sector order.
	Sectors() []SectorCount

	// ReadSector returns the states of a sector in ascending order.
	ReadSector(sec Sector) ([]State, error)

	// Select sends every state of the given sector to onHit, in ascending order.
	Select(sec Sector, onHit OnStateHit) error

	Close() error
}
