package replay

import "errors"

// ErrInvalidOrdering is returned when two different records claim the same seq.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")

// ErrPartialRange is returned when only one bound of a time range is given.
var ErrPartialRange = errors.New("both ends of the time range are required")
