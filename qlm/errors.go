package qlm

import "github.com/pkg/errors"

// Errors
var (
	ErrInvalidGeometry        = errors.New("invalid lattice geometry")
	ErrChargeImbalance        = errors.New("static charge lists have unequal length")
	ErrInvalidCharge          = errors.New("invalid static charge vertex")
	ErrInconsistentBasisCount = errors.New("inconsistent basis count")
	ErrResourceExhausted      = errors.New("resource limit exhausted")
	ErrBadSectorTag           = errors.New("bad sector tag")
	ErrBadRunSpec             = errors.New("bad run expression")
	ErrBadCatalogParam        = errors.New("bad catalog param")
	ErrCorruptRecord          = errors.New("corrupt state record")
	ErrStateOverflow          = errors.New("value exceeds state width")
	ErrNoStates               = errors.New("no states in basis")
)
