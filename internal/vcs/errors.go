package vcs

import (
	"context"
	"errors"
)

// Common errors returned by VCS operations.
var (
	// ErrNotInVCS is returned when the operation requires being inside
	// a VCS repository but none was found.
	ErrNotInVCS = errors.New("not in a VCS repository")

	// ErrVCSNotAvailable is returned when the required VCS binary
	// (git or jj) is not installed or not in PATH.
	ErrVCSNotAvailable = errors.New("VCS binary not available")

	// ErrNothingToCommit is returned by Commit when none of the paths
	// changed.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrTimeout is returned when a VCS operation exceeds its timeout.
	ErrTimeout = errors.New("operation timed out")
)

// IsFatal returns true if retrying the operation cannot help.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotInVCS) ||
		errors.Is(err, ErrVCSNotAvailable) ||
		errors.Is(err, context.Canceled)
}
