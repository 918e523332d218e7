package lock

import (
	"errors"
	"fmt"
)

var (
	// ErrLockConflict is the sentinel for an acquire on a held lock.
	ErrLockConflict = errors.New("repository is locked")

	// ErrOwnerMismatch is returned when a release names another owner.
	ErrOwnerMismatch = errors.New("lock held by another owner")
)

// LockConflictError reports who holds the lock an acquire ran into.
type LockConflictError struct {
	Path   string
	Holder Info
}

func (e *LockConflictError) Error() string {
	msg := fmt.Sprintf("%s is locked by %s", e.Path, e.Holder.Owner)
	if e.Holder.Reason != "" {
		msg += fmt.Sprintf(" (%s)", e.Holder.Reason)
	}
	return msg
}

func (e *LockConflictError) Unwrap() error {
	return ErrLockConflict
}

// IsConflict reports whether err means the lock was already held.
func IsConflict(err error) bool {
	return errors.Is(err, ErrLockConflict)
}
