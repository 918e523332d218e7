package record

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ddrkit/ddrsync/internal/natsort"
)

// PayloadDir is the directory, inside an entity directory, that holds the
// entity's payload files and their file records.
const PayloadDir = "files"

// FSStore keeps records as JSON documents under a repository directory:
//
//	<root>/<collection-id>/collection.json
//	<root>/<entity-id>/entity.json
//	<root>/<entity-id>/files/<file-id>.json
//	<root>/<entity-id>/files/<payload files>
type FSStore struct {
	Root string
}

// NewFSStore returns a store rooted at root.
func NewFSStore(root string) *FSStore {
	return &FSStore{Root: root}
}

// Path returns the document path of a record.
func (s *FSStore) Path(kind Kind, id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	switch kind {
	case KindCollection, KindEntity:
		return filepath.Join(s.Root, id, kind.DocumentName()), nil
	case KindFile:
		parent, err := ParentOf(id)
		if err != nil {
			return "", err
		}
		return filepath.Join(s.Root, parent, PayloadDir, id+".json"), nil
	}
	return "", fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
}

// Dir returns the directory a record's changelog and payload live under.
func (s *FSStore) Dir(kind Kind, id string) (string, error) {
	p, err := s.Path(kind, id)
	if err != nil {
		return "", err
	}
	if kind == KindFile {
		return filepath.Dir(filepath.Dir(p)), nil
	}
	return filepath.Dir(p), nil
}

// Load implements Store.
func (s *FSStore) Load(ctx context.Context, kind Kind, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.Path(kind, id)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - path is built from a validated identifier
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	r, err := Parse(kind, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", p, err)
	}
	return r, nil
}

// Save implements Store. The document is written to a temporary file and
// renamed into place so readers never see a partial record.
func (s *FSStore) Save(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.Path(r.Kind, r.ID())
	if err != nil {
		return err
	}
	data, err := r.Document()
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", r.Kind, r.ID(), err)
	}
	return WriteFileAtomic(p, data, 0644)
}

// PayloadFiles implements Store. Entities own every non-JSON file in their
// payload directory; a file record owns the files named after it.
func (s *FSStore) PayloadFiles(ctx context.Context, r *Record) (string, []string, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	switch r.Kind {
	case KindCollection:
		return "", nil, nil
	case KindEntity, KindFile:
	default:
		return "", nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(r.Kind))
	}

	dir, err := s.Dir(r.Kind, r.ID())
	if err != nil {
		return "", nil, err
	}
	root := filepath.Join(dir, PayloadDir)

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			return nil
		}
		if r.Kind == KindFile && !ownsFile(r.ID(), name) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to list payload of %s: %w", r.ID(), err)
	}
	natsort.Sort(files)
	return root, files, nil
}

// IDs implements Lister by scanning the repository tree.
func (s *FSStore) IDs(ctx context.Context, kind Kind) ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to read repository %s: %w", s.Root, err)
	}

	var ids []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch kind {
		case KindCollection, KindEntity:
			if _, err := os.Stat(filepath.Join(s.Root, e.Name(), kind.DocumentName())); err == nil {
				ids = append(ids, e.Name())
			}
		case KindFile:
			matches, err := filepath.Glob(filepath.Join(s.Root, e.Name(), PayloadDir, "*.json"))
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				ids = append(ids, strings.TrimSuffix(filepath.Base(m), ".json"))
			}
		default:
			return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
		}
	}
	natsort.Sort(ids)
	return ids, nil
}

// WriteFileAtomic writes data next to path and renames it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// ownsFile matches "<id>", "<id>.<ext>" and access copies like "<id>-a.jpg".
func ownsFile(id, name string) bool {
	if name == id {
		return true
	}
	rest, ok := strings.CutPrefix(name, id)
	return ok && (strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, "-"))
}

func checkID(id string) error {
	if id == "" || id == "." || id == ".." ||
		strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q", ErrBadIdentifier, id)
	}
	return nil
}
