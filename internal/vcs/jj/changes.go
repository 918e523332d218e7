package jj

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ddrkit/ddrsync/internal/vcs"
)

// Add is a no-op in jj (files are auto-tracked).
func (j *JJ) Add(ctx context.Context, paths []string) error {
	return nil
}

// Status returns the status of files in the working copy change.
func (j *JJ) Status(ctx context.Context, paths ...string) ([]vcs.FileStatus, error) {
	args := append([]string{"status", "--"}, filesets(paths)...)
	output, err := j.Exec(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseStatus(string(output)), nil
}

// parseStatus parses the output of `jj status`:
//
//	Working copy changes:
//	M file1.go
//	A file2.go
//	Working copy : qpvuntsm 12345678 (no description set)
func parseStatus(output string) []vcs.FileStatus {
	var statuses []vcs.FileStatus

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 1 {
			continue
		}

		var code vcs.StatusCode
		switch fields[0] {
		case "M":
			code = vcs.StatusModified
		case "A":
			code = vcs.StatusAdded
		case "D":
			code = vcs.StatusDeleted
		case "R":
			code = vcs.StatusRenamed
		case "C":
			code = vcs.StatusCopied
		default:
			continue
		}

		statuses = append(statuses, vcs.FileStatus{
			Path:       strings.Join(fields[1:], " "),
			Status:     code,
			StagedCode: vcs.StatusUnmodified, // jj has no staging area
		})
	}

	return statuses
}

// HasChanges returns true if there are uncommitted changes.
func (j *JJ) HasChanges(ctx context.Context, paths ...string) (bool, error) {
	statuses, err := j.Status(ctx, paths...)
	if err != nil {
		return false, err
	}
	return len(statuses) > 0, nil
}

// Commit moves the listed paths (or the whole working copy) into a
// described change and starts a new empty one on top.
func (j *JJ) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if opts.Message == "" {
		return fmt.Errorf("commit message is required")
	}

	if len(opts.Paths) > 0 {
		changed, err := j.HasChanges(ctx, opts.Paths...)
		if err != nil {
			return err
		}
		if !changed {
			return vcs.ErrNothingToCommit
		}
	}

	args := []string{"commit", "-m", opts.Message}
	if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, filesets(opts.Paths)...)
	}
	if _, err := j.Exec(ctx, args...); err != nil {
		return fmt.Errorf("jj commit failed: %w", err)
	}
	return nil
}

// filesets quotes paths as exact-file patterns so characters such as "-"
// or "~" are not read as fileset operators.
func filesets(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = "file:" + strconv.Quote(p)
	}
	return out
}
