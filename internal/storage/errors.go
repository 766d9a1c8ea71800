package storage

import "errors"

// Common storage errors
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyRecorded = errors.New("deployment already recorded")
	ErrInvalidCursor   = errors.New("invalid cursor")
)
