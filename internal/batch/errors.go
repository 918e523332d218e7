package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ddrkit/ddrsync/internal/lock"
	"github.com/ddrkit/ddrsync/internal/schema"
	"github.com/ddrkit/ddrsync/internal/tabular"
)

// ErrInvariant is the sentinel for a structural violation such as a row of
// the wrong arity or mixed record kinds in one export.
var ErrInvariant = errors.New("batch invariant violated")

// InvariantError describes a structural violation.
type InvariantError struct {
	ID  string
	Msg string
}

func (e *InvariantError) Error() string {
	if e.ID == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.ID, e.Msg)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

// IsAbort reports whether err stopped a whole batch rather than one row:
// an unreadable table, a bad header, a held lock, or cancellation.
func IsAbort(err error) bool {
	return errors.Is(err, tabular.ErrMalformedTable) ||
		errors.Is(err, schema.ErrSchema) ||
		errors.Is(err, lock.ErrLockConflict) ||
		errors.Is(err, ErrInvariant) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
