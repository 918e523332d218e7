package record

import (
	"context"
	"fmt"
	"strings"
)

// Store loads and persists records. The batch engine only talks to records
// through this interface; where and how documents live is the store's
// business.
type Store interface {
	// Load returns the record with the given kind and identifier, or an
	// error wrapping ErrNotFound when it does not exist.
	Load(ctx context.Context, kind Kind, id string) (*Record, error)

	// Save persists r, creating it when needed.
	Save(ctx context.Context, r *Record) error

	// PayloadFiles lists the payload files that belong to r as absolute
	// paths, together with the directory their manifest paths are
	// relative to. Records without payload return an empty list.
	PayloadFiles(ctx context.Context, r *Record) (root string, files []string, err error)
}

// Lister is implemented by stores that can enumerate their records.
type Lister interface {
	IDs(ctx context.Context, kind Kind) ([]string, error)
}

// ParentOf returns the entity identifier a file identifier belongs to.
// File identifiers have the form <entity-id>-<role>-<hash>, so the parent is
// everything before the last two segments.
func ParentOf(fileID string) (string, error) {
	parts := strings.Split(fileID, "-")
	if len(parts) < 3 {
		return "", fmt.Errorf("%w: file id %q needs <entity>-<role>-<hash>", ErrBadIdentifier, fileID)
	}
	parent := strings.Join(parts[:len(parts)-2], "-")
	if parent == "" || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", fmt.Errorf("%w: file id %q", ErrBadIdentifier, fileID)
	}
	return parent, nil
}

// CollectionOf returns the collection identifier an entity identifier
// belongs to: the identifier without its last "-" segment.
func CollectionOf(entityID string) (string, error) {
	i := strings.LastIndex(entityID, "-")
	if i <= 0 || i == len(entityID)-1 {
		return "", fmt.Errorf("%w: entity id %q has no collection prefix", ErrBadIdentifier, entityID)
	}
	return entityID[:i], nil
}
