package runrepo

import "errors"

// ErrNotFound is returned when updating a run that was never created.
var ErrNotFound = errors.New("run not found")
