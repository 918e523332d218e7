package record

import (
	"fmt"
	"strings"
)

// Kind says which of the three record shapes a record has. It is resolved
// once, where a record enters the system, and carried from there on.
type Kind int

const (
	// KindCollection is a top-level collection record (collection.json).
	KindCollection Kind = iota + 1
	// KindEntity is an object inside a collection (entity.json).
	KindEntity
	// KindFile is one payload file belonging to an entity (files/<file_id>.json).
	KindFile
)

// Kinds lists every valid kind in hierarchy order.
var Kinds = []Kind{KindCollection, KindEntity, KindFile}

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindCollection:
		return "collection"
	case KindEntity:
		return "entity"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= KindCollection && k <= KindFile
}

// IDField is the column/field that holds the record's own identifier.
// File records keep their parent entity in "id" and their own in "file_id".
func (k Kind) IDField() string {
	if k == KindFile {
		return "file_id"
	}
	return "id"
}

// DocumentName is the JSON file name of collection and entity records.
// File records are named after their identifier instead.
func (k Kind) DocumentName() string {
	switch k {
	case KindCollection:
		return "collection.json"
	case KindEntity:
		return "entity.json"
	default:
		return ""
	}
}

// ParseKind accepts a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "collection":
		return KindCollection, nil
	case "entity":
		return KindEntity, nil
	case "file":
		return KindFile, nil
	}
	return 0, fmt.Errorf("%w: %q (want collection, entity or file)", ErrUnknownKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
