package mapping

import "github.com/pkg/errors"

var (
	// ErrSizeMismatch is returned when mapping is made of key and value arrays of different sizes.
	ErrSizeMismatch = errors.New("keys and values differ in size")

	// ErrOddArguments is returned when mapping is aggregated from odd number of arguments.
	ErrOddArguments = errors.New("odd number of arguments")
)
