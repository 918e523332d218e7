// Package vcs commits batch results in the version-controlled repository
// that holds the records.
//
// Backends register themselves from init() (see internal/vcs/git and
// internal/vcs/jj) and Open picks one by walking up from a path until a
// .jj or .git marker is found:
//
//	import _ "github.com/ddrkit/ddrsync/internal/vcs/git"
//
//	v, err := vcs.Open(repo)
//	if err != nil {
//	    return err
//	}
//	err = v.Commit(ctx, vcs.CommitOptions{Message: msg, Paths: touched})
package vcs

import "context"

// Type represents the VCS backend type
type Type string

const (
	// TypeGit indicates a git-only repository
	TypeGit Type = "git"

	// TypeJJ indicates a jj-only repository (non-colocated)
	TypeJJ Type = "jj"

	// TypeColocate indicates a colocated repository (jj + git together)
	TypeColocate Type = "colocate"
)

// String returns the string representation of the VCS type
func (t Type) String() string {
	return string(t)
}

// VCS is the subset of version control the importer needs: find the
// working copy, see what changed, and record a commit.
type VCS interface {
	// Name returns the VCS type (git, jj, or colocate)
	Name() Type

	// RepoRoot returns the working copy root directory
	RepoRoot() (string, error)

	// HasChanges reports uncommitted changes, limited to paths when given.
	HasChanges(ctx context.Context, paths ...string) (bool, error)

	// Add stages paths. Backends without a staging area do nothing.
	Add(ctx context.Context, paths []string) error

	// Status lists changed files, limited to paths when given.
	Status(ctx context.Context, paths ...string) ([]FileStatus, error)

	// Commit records the given paths (or the whole working copy when
	// Paths is empty) with a message.
	Commit(ctx context.Context, opts CommitOptions) error
}

// CommitOptions configures a commit.
type CommitOptions struct {
	Message string
	// Paths limits the commit to these files, relative to the repo root.
	Paths []string
	// Author overrides the commit author ("Name <email>"). jj ignores it.
	Author string
}

// FileStatus represents the status of a file in the working directory
type FileStatus struct {
	Path string

	// Status is the working copy status
	Status StatusCode

	// StagedCode is the index status (git only)
	StagedCode StatusCode
}

// StatusCode represents file status codes
type StatusCode string

const (
	StatusUnmodified StatusCode = " " // No changes
	StatusModified   StatusCode = "M" // Modified
	StatusAdded      StatusCode = "A" // Added/new file
	StatusDeleted    StatusCode = "D" // Deleted
	StatusRenamed    StatusCode = "R" // Renamed
	StatusCopied     StatusCode = "C" // Copied
	StatusUntracked  StatusCode = "?" // Untracked
	StatusIgnored    StatusCode = "!" // Ignored
	StatusConflict   StatusCode = "U" // Unmerged/conflict
)
