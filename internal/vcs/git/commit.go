package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/ddrkit/ddrsync/internal/vcs"
)

// HasChanges returns true if there are uncommitted changes
// If paths are specified, only checks those paths
func (g *Git) HasChanges(ctx context.Context, paths ...string) (bool, error) {
	args := append([]string{"status", "--porcelain", "--"}, paths...)
	output, err := g.Exec(ctx, args...)
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// Add stages files for commit
func (g *Git) Add(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	args := append([]string{"add", "--"}, paths...)
	if _, err := g.Exec(ctx, args...); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	return nil
}

// Status returns the status of files in the working directory
func (g *Git) Status(ctx context.Context, paths ...string) ([]vcs.FileStatus, error) {
	args := append([]string{"status", "--porcelain", "--untracked-files=all", "--"}, paths...)
	output, err := g.Exec(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("git status failed: %w", err)
	}
	return parseStatus(string(output)), nil
}

// parseStatus reads `git status --porcelain` output: "XY path", where X is
// the index status and Y the working tree status.
func parseStatus(output string) []vcs.FileStatus {
	var statuses []vcs.FileStatus
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		// Renames are reported as "old -> new"
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		statuses = append(statuses, vcs.FileStatus{
			Path:       path,
			Status:     parseStatusCode(line[1:2]),
			StagedCode: parseStatusCode(line[0:1]),
		})
	}
	return statuses
}

// parseStatusCode converts git status code to vcs.StatusCode
func parseStatusCode(code string) vcs.StatusCode {
	switch code {
	case "M":
		return vcs.StatusModified
	case "A":
		return vcs.StatusAdded
	case "D":
		return vcs.StatusDeleted
	case "R":
		return vcs.StatusRenamed
	case "C":
		return vcs.StatusCopied
	case "?":
		return vcs.StatusUntracked
	case "!":
		return vcs.StatusIgnored
	case "U":
		return vcs.StatusConflict
	default:
		return vcs.StatusUnmodified
	}
}

// Commit stages opts.Paths and commits them. Only the listed paths are
// committed, so unrelated staged work stays staged.
func (g *Git) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if opts.Message == "" {
		return fmt.Errorf("commit message is required")
	}

	if len(opts.Paths) > 0 {
		changed, err := g.HasChanges(ctx, opts.Paths...)
		if err != nil {
			return err
		}
		if !changed {
			return vcs.ErrNothingToCommit
		}
		if err := g.Add(ctx, opts.Paths); err != nil {
			return err
		}
	}

	args := []string{"commit", "-m", opts.Message}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}

	if _, err := g.Exec(ctx, args...); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	return nil
}
