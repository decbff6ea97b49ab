package apperr

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrMissingID = errors.New("missing article identifier")
)
