package vcs

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DetectionResult contains information about the detected VCS
type DetectionResult struct {
	// Type is the detected VCS type
	Type Type

	// RepoRoot is the directory holding the .jj or .git marker
	RepoRoot string

	HasGit bool
	HasJJ  bool
}

// Detect identifies the VCS type for a given directory, walking up parent
// directories until a .jj directory or a .git directory/file is found.
// When both are present the Type is TypeColocate.
//
// Returns ErrNotInVCS if no VCS is found.
func Detect(path string) (*DetectionResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	current := absPath
	for {
		result := &DetectionResult{RepoRoot: current}
		if info, err := os.Stat(filepath.Join(current, ".jj")); err == nil && info.IsDir() {
			result.HasJJ = true
		}
		// .git is a file in worktrees
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			result.HasGit = true
		}

		switch {
		case result.HasJJ && result.HasGit:
			result.Type = TypeColocate
			return result, nil
		case result.HasJJ:
			result.Type = TypeJJ
			return result, nil
		case result.HasGit:
			result.Type = TypeGit
			return result, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, ErrNotInVCS
		}
		current = parent
	}
}

// PreferredVCS returns the backend to use in colocated repositories:
// DDRSYNC_VCS ("git" or "jj") when set, jj otherwise.
func PreferredVCS() Type {
	switch strings.ToLower(os.Getenv("DDRSYNC_VCS")) {
	case "git":
		return TypeGit
	default:
		return TypeJJ
	}
}

// IsAvailable reports whether the binary for t is on PATH.
func IsAvailable(t Type) bool {
	_, err := exec.LookPath(string(t))
	return err == nil
}

// Open detects the repository around path and returns the registered
// backend for it. Colocated repositories use PreferredVCS, falling back to
// the other backend when its binary or registration is missing.
func Open(path string) (VCS, error) {
	result, err := Detect(path)
	if err != nil {
		return nil, err
	}

	candidates := []Type{result.Type}
	if result.Type == TypeColocate {
		if PreferredVCS() == TypeGit {
			candidates = []Type{TypeGit, TypeJJ}
		} else {
			candidates = []Type{TypeJJ, TypeGit}
		}
	}

	for _, t := range candidates {
		ctor := constructorFor(t)
		if ctor == nil || !IsAvailable(t) {
			continue
		}
		return ctor(result.RepoRoot)
	}
	return nil, fmt.Errorf("%w: no usable backend for %s repository at %s (registered: %v)",
		ErrVCSNotAvailable, result.Type, result.RepoRoot, RegisteredTypes())
}
