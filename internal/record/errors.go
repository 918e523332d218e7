package record

import "errors"

var (
	// ErrNotFound is returned by a Store when no record exists for an identifier.
	ErrNotFound = errors.New("record not found")

	// ErrUnknownKind is returned for a kind name or value outside collection/entity/file.
	ErrUnknownKind = errors.New("unknown record kind")

	// ErrBadIdentifier is returned when an identifier cannot be mapped to a location.
	ErrBadIdentifier = errors.New("malformed record identifier")
)
