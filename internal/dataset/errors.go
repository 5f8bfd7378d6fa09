package dataset

import "errors"

var (
	ErrDatasetExists = errors.New("dataset directory already exists")
	ErrNoLedger      = errors.New("no seed ledger to resume from")
	ErrInvalidRatio  = errors.New("train ratio must be in [0, 1]")
)
