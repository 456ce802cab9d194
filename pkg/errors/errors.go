package errors

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrEmptyKey    = errors.New("empty key")
	ErrInvalidData = errors.New("invalid data type")
	ErrNotRoot     = errors.New("operation allowed only on a parameter server")
	ErrStaleEpoch  = errors.New("epoch is older than the current one")
)
