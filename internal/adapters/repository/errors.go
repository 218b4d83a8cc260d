package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound = errors.New("entity not found")
	ErrConflict = errors.New("entity already exists")
	ErrClosed   = errors.New("store closed")
)
