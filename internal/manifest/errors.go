package manifest

import (
	"errors"
	"fmt"
)

var (
	// ErrChecksum is the sentinel for a payload file that could not be hashed.
	ErrChecksum = errors.New("checksum failed")

	// ErrAlgorithm is returned for an unknown or incomplete algorithm set.
	ErrAlgorithm = errors.New("unsupported checksum configuration")
)

// ChecksumError reports the payload file a build failed on.
type ChecksumError struct {
	Path string
	Err  error
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum %s: %v", e.Path, e.Err)
}

// Unwrap exposes both ErrChecksum and the underlying I/O error.
func (e *ChecksumError) Unwrap() []error {
	return []error{ErrChecksum, e.Err}
}
