package aggregator

import "errors"

var (
	ErrShapeMismatch    = errors.New("gradient shape does not match layer")
	ErrInvalidBatch     = errors.New("batch size must not be negative")
	ErrEmptyContributor = errors.New("empty contributor id")
	ErrNegativeLayer    = errors.New("layer index must not be negative")
	ErrOverflow         = errors.New("batch size overflow during aggregation")
)
