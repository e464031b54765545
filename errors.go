package mcastack

import "errors"

var (
	// ErrConfig marks an invalid axis, mask or option specification.
	ErrConfig = errors.New("invalid configuration")
	// ErrInconsistent marks mask data that disagrees with itself or the array.
	ErrInconsistent = errors.New("inconsistent data")
	// ErrType marks a value that cannot be interpreted as an integer.
	ErrType = errors.New("type mismatch")
	// ErrIndex marks an index that does not fit the shape it is applied to.
	ErrIndex = errors.New("invalid index")
	// ErrSize marks a buffer whose length does not match an index result.
	ErrSize = errors.New("size mismatch")
	// ErrConsumed is returned when a View is traversed a second time.
	ErrConsumed = errors.New("view already traversed")
)
