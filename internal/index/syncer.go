package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ddrkit/ddrsync/internal/manifest"
	"github.com/ddrkit/ddrsync/internal/record"
)

// Stats summarizes a full sync.
type Stats struct {
	Synced  int
	Failed  int
	Removed int
}

// Syncer copies record documents from a repository into the index.
type Syncer struct {
	db    *DB
	store *record.FSStore
	log   *zap.Logger
}

// NewSyncer returns a syncer for the repository store serves. If logger is
// nil, logging is discarded.
func NewSyncer(db *DB, store *record.FSStore, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{db: db, store: store, log: logger}
}

// Classify maps a document path inside the repository to the record it
// holds. ok is false for paths that are not record documents.
func Classify(root, path string) (kind record.Kind, id string, ok bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0, "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) == 2 && parts[1] == record.KindCollection.DocumentName():
		return record.KindCollection, parts[0], !strings.HasPrefix(parts[0], ".")
	case len(parts) == 2 && parts[1] == record.KindEntity.DocumentName():
		return record.KindEntity, parts[0], !strings.HasPrefix(parts[0], ".")
	case len(parts) == 3 && parts[1] == record.PayloadDir &&
		strings.HasSuffix(parts[2], ".json") && !strings.HasPrefix(parts[2], "."):
		return record.KindFile, strings.TrimSuffix(parts[2], ".json"), true
	}
	return 0, "", false
}

// SyncPath indexes the document at path, or drops it from the index when
// the file is gone.
func (s *Syncer) SyncPath(ctx context.Context, path string) error {
	kind, id, ok := Classify(s.store.Root, path)
	if !ok {
		return fmt.Errorf("%s is not a record document", path)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		s.log.Debug("record removed", zap.String("id", id))
		return s.db.Delete(ctx, id)
	}
	return s.SyncRecord(ctx, kind, id)
}

// SyncRecord loads one record from the store and caches it.
func (s *Syncer) SyncRecord(ctx context.Context, kind record.Kind, id string) error {
	r, err := s.store.Load(ctx, kind, id)
	if err != nil {
		return fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}
	path, err := s.store.Path(kind, id)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	doc, err := r.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", id, err)
	}
	m, err := manifest.FromRecord(r)
	if err != nil {
		return err
	}

	rel, _ := filepath.Rel(s.store.Root, path)
	e := Entry{
		ID:        id,
		Kind:      kind,
		Parent:    ParentOf(kind, id),
		Path:      filepath.ToSlash(rel),
		UpdatedAt: info.ModTime(),
		Doc:       string(doc),
	}
	if err := s.db.Upsert(ctx, e, m); err != nil {
		return err
	}
	s.log.Debug("record indexed", zap.Stringer("kind", kind), zap.String("id", id))
	return nil
}

// FullSync indexes every record document in the repository and drops
// cached records whose documents are gone. A document that fails to sync
// is logged and counted; it does not stop the run.
func (s *Syncer) FullSync(ctx context.Context) (Stats, error) {
	var st Stats
	s.log.Info("full sync started", zap.String("repo", s.store.Root))

	seen := map[string]bool{}
	for _, kind := range record.Kinds {
		ids, err := s.store.IDs(ctx, kind)
		if err != nil {
			return st, fmt.Errorf("failed to list %s records: %w", kind, err)
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return st, err
			}
			seen[id] = true
			if err := s.SyncRecord(ctx, kind, id); err != nil {
				s.log.Warn("failed to index record", zap.String("id", id), zap.Error(err))
				st.Failed++
				continue
			}
			st.Synced++
		}
	}

	cached, err := s.db.AllIDs(ctx)
	if err != nil {
		return st, err
	}
	for _, id := range cached {
		if seen[id] {
			continue
		}
		if err := s.db.Delete(ctx, id); err != nil {
			return st, err
		}
		st.Removed++
	}

	s.log.Info("full sync complete",
		zap.Int("synced", st.Synced), zap.Int("failed", st.Failed), zap.Int("removed", st.Removed))
	return st, nil
}

// ParentOf returns the collection of an entity or the entity of a file, or
// "" when id does not carry one.
func ParentOf(kind record.Kind, id string) string {
	var (
		p   string
		err error
	)
	switch kind {
	case record.KindEntity:
		p, err = record.CollectionOf(id)
	case record.KindFile:
		p, err = record.ParentOf(id)
	}
	if err != nil {
		return ""
	}
	return p
}
