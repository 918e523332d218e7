package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ddrkit/ddrsync/internal/vcs"
)

// Git implements the VCS interface for git repositories.
type Git struct {
	repoRoot string
	timeout  time.Duration
}

// New creates a Git VCS instance for the repository containing path.
func New(path string) (*Git, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = absPath
	output, err := cmd.Output()
	if err != nil {
		return nil, vcs.ErrNotInVCS
	}

	root := strings.TrimSpace(string(output))
	// Resolve symlinks so paths compare equal to the ones git reports
	if resolved, err := filepath.EvalSymlinks(filepath.FromSlash(root)); err == nil {
		root = resolved
	}
	return &Git{repoRoot: root, timeout: vcs.DefaultTimeout}, nil
}

// Name returns the VCS type (git)
func (g *Git) Name() vcs.Type {
	return vcs.TypeGit
}

// RepoRoot returns the repository root directory path
func (g *Git) RepoRoot() (string, error) {
	if g.repoRoot == "" {
		return "", vcs.ErrNotInVCS
	}
	return g.repoRoot, nil
}

// Exec executes a raw git command in the repository root.
func (g *Git) Exec(ctx context.Context, args ...string) ([]byte, error) {
	return vcs.ExecContext(ctx, g.timeout, g.repoRoot, "git", args...)
}
