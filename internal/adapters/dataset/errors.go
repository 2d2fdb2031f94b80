package dataset

import "errors"

// Sentinel kinds for dataset errors.
var (
	ErrInvalidDataset    = errors.New("invalid dataset")
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)
