package tabular

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedTable is the sentinel behind every MalformedTableError.
	ErrMalformedTable = errors.New("malformed table")

	// ErrArity is returned when a row does not have one cell per header column.
	ErrArity = errors.New("row arity does not match header")

	// ErrDialect is returned for an unusable delimiter/quote combination.
	ErrDialect = errors.New("invalid table dialect")
)

// MalformedTableError reports a structural problem in the tabular text,
// such as an unterminated quoted cell. Line is 1-based.
type MalformedTableError struct {
	Line int
	Msg  string
}

func (e *MalformedTableError) Error() string {
	return fmt.Sprintf("malformed table at line %d: %s", e.Line, e.Msg)
}

// Unwrap lets errors.Is(err, ErrMalformedTable) match.
func (e *MalformedTableError) Unwrap() error {
	return ErrMalformedTable
}

// ArityError reports a row whose cell count differs from the header.
// Row is the 1-based data row number (the header is row 0).
type ArityError struct {
	Row  int
	Got  int
	Want int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("row %d has %d cells, header has %d", e.Row, e.Got, e.Want)
}

func (e *ArityError) Unwrap() error {
	return ErrArity
}
