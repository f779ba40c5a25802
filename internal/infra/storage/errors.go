package storage

import "errors"

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("object not found")
