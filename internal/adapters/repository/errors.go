package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidLimit      = errors.New("invalid leaderboard limit")
	ErrInvalidOffset     = errors.New("invalid leaderboard offset")
	ErrScoreOutOfRange   = errors.New("score out of range")
	ErrMissingIdentifier = errors.New("missing identifier")
)
