package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/ddrkit/ddrsync/internal/changelog"
	"github.com/ddrkit/ddrsync/internal/record"
	"github.com/ddrkit/ddrsync/internal/vcs"
)

// Locator resolves where a record's document and directory live.
// record.FSStore implements it.
type Locator interface {
	Path(kind record.Kind, id string) (string, error)
	Dir(kind record.Kind, id string) (string, error)
}

// CommitHook returns a BeforeRelease hook that commits the documents and
// changelogs of the records an import saved.
func CommitHook(v vcs.VCS, loc Locator, logger *zap.Logger) func(context.Context, *Report) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, report *Report) error {
		root, err := v.RepoRoot()
		if err != nil {
			return err
		}
		paths, err := touchedPaths(loc, report.Saved)
		if err != nil {
			return err
		}
		rel, err := vcs.RelPaths(root, paths)
		if err != nil {
			return err
		}

		msg := CommitMessage(report)
		err = v.Commit(ctx, vcs.CommitOptions{Message: msg, Paths: rel})
		if errors.Is(err, vcs.ErrNothingToCommit) {
			logger.Info("nothing to commit", zap.Int("paths", len(rel)))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to commit import: %w", err)
		}
		logger.Info("committed import", zap.String("vcs", v.Name().String()), zap.Int("paths", len(rel)))
		return nil
	}
}

// CommitMessage summarizes an import for the commit log.
func CommitMessage(report *Report) string {
	return fmt.Sprintf("Batch import %s (%s)\n\n%s\n",
		filepath.Base(report.Table), report.Kind, report.Summary())
}

// touchedPaths lists record documents and existing changelogs, sorted and
// without duplicates.
func touchedPaths(loc Locator, saved []Ref) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, ref := range saved {
		doc, err := loc.Path(ref.Kind, ref.ID)
		if err != nil {
			return nil, err
		}
		add(doc)

		dir, err := loc.Dir(ref.Kind, ref.ID)
		if err != nil {
			return nil, err
		}
		if cl := filepath.Join(dir, changelog.FileName); fileExists(cl) {
			add(cl)
		}
	}
	sort.Strings(out)
	return out, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
