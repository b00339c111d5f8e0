package value

import "github.com/pkg/errors"

// Errors reported to the script level.
var (
	// ErrIncomparable is returned when values of different types can't be ordered.
	ErrIncomparable = errors.New("cannot compare different types")

	// ErrBadComparison is returned when values of the type can't be ordered at all.
	ErrBadComparison = errors.New("bad type to comparison")

	// ErrDestructed is returned when operation is attempted on destructed object.
	ErrDestructed = errors.New("operation on destructed object")

	// ErrMissingLfun is returned when object does not define the operator required by the operation.
	ErrMissingLfun = errors.New("object lacks operator")

	// ErrBadType is returned when value of unexpected type is passed.
	ErrBadType = errors.New("bad type")
)
