package jj

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ddrkit/ddrsync/internal/vcs"
)

// JJ implements the VCS interface for Jujutsu.
type JJ struct {
	repoRoot string

	// isColocated indicates if this is a colocated repo (.jj + .git)
	isColocated bool

	timeout time.Duration
}

// New creates a JJ instance for the given repository root.
// The repository must already be initialized with jj (have a .jj directory).
func New(repoRoot string) (*JJ, error) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository root: %w", err)
	}

	if info, err := os.Stat(filepath.Join(absRoot, ".jj")); err != nil || !info.IsDir() {
		return nil, vcs.ErrNotInVCS
	}
	_, gitErr := os.Stat(filepath.Join(absRoot, ".git"))

	return &JJ{
		repoRoot:    absRoot,
		isColocated: gitErr == nil,
		timeout:     vcs.DefaultTimeout,
	}, nil
}

// Name returns "jj" for non-colocated repos, "colocate" for colocated repos.
func (j *JJ) Name() vcs.Type {
	if j.isColocated {
		return vcs.TypeColocate
	}
	return vcs.TypeJJ
}

// RepoRoot returns the repository root directory path.
func (j *JJ) RepoRoot() (string, error) {
	return j.repoRoot, nil
}

// Exec executes a raw jj command.
func (j *JJ) Exec(ctx context.Context, args ...string) ([]byte, error) {
	out, err := vcs.ExecContext(ctx, j.timeout, j.repoRoot, "jj", args...)
	if err != nil && strings.Contains(err.Error(), "There is no jj repo") {
		return nil, fmt.Errorf("%w: %v", vcs.ErrNotInVCS, err)
	}
	return out, err
}
