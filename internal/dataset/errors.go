package dataset

import "errors"

var (
	// ErrInvalidArgument reports caller misuse of a reconstruction call.
	ErrInvalidArgument = errors.New("dataset: invalid argument")
	// ErrConfig reports a configuration that cannot produce the declared
	// tuples.
	ErrConfig = errors.New("dataset: invalid configuration")
)
