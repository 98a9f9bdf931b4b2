package clock

import "errors"

// ErrInvalidSide is returned when an operation is given a side other than White or Black
var ErrInvalidSide = errors.New("invalid side")

// ErrInvalidAllotment is returned by New when the per-side allotment is not a positive, finite number of minutes
var ErrInvalidAllotment = errors.New("invalid time allotment")
