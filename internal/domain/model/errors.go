package model

import "errors"

// Sentinel kinds for malformed records.
var (
	ErrMissingField  = errors.New("missing field")
	ErrInvalidField  = errors.New("invalid field")
	ErrInvalidRecord = errors.New("invalid record")
)
