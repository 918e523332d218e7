package index

import (
	"context"

	"github.com/ddrkit/ddrsync/internal/manifest"
	"github.com/ddrkit/ddrsync/internal/record"
)

// Verify rebuilds the manifest of a cached record from its payload files and
// compares it with the cached one. An empty result means they agree.
func Verify(ctx context.Context, db *DB, store record.Store, b *manifest.Builder, id string) ([]manifest.Difference, error) {
	e, err := db.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	stored, err := db.Manifest(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := store.Load(ctx, e.Kind, id)
	if err != nil {
		return nil, err
	}
	root, files, err := store.PayloadFiles(ctx, r)
	if err != nil {
		return nil, err
	}
	fresh, err := b.Build(ctx, root, files)
	if err != nil {
		return nil, err
	}
	return manifest.Diff(stored, fresh), nil
}
