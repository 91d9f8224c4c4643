package fleet

import "errors"

var (
	ErrNotFound     = errors.New("fleet: not found")
	ErrConflict     = errors.New("fleet: version conflict")
	ErrInvalidInput = errors.New("fleet: invalid input")
)
