package vcs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func mkdirs(t *testing.T, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		markers []string
		want    Type
	}{
		{"git", []string{".git"}, TypeGit},
		{"jj", []string{".jj"}, TypeJJ},
		{"colocated", []string{".jj", ".git"}, TypeColocate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for _, m := range tt.markers {
				mkdirs(t, filepath.Join(root, m))
			}
			nested := filepath.Join(root, "ddr-test-1", "files")
			mkdirs(t, nested)

			got, err := Detect(nested)
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if got.Type != tt.want {
				t.Errorf("Type = %v, want %v", got.Type, tt.want)
			}
			if got.RepoRoot != root {
				t.Errorf("RepoRoot = %q, want %q", got.RepoRoot, root)
			}
		})
	}
}

func TestDetectWorktreeFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".git"), []byte("gitdir: /elsewhere/.git/worktrees/x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := Detect(root)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if got.Type != TypeGit {
		t.Errorf("Type = %v, want git", got.Type)
	}
}

func TestDetectNotInVCS(t *testing.T) {
	root := t.TempDir()
	if _, err := Detect(filepath.Dir(root)); err == nil {
		t.Skip("temp directory is inside a repository")
	}
	if _, err := Detect(root); !errors.Is(err, ErrNotInVCS) {
		t.Errorf("Detect() error = %v, want ErrNotInVCS", err)
	}
}

func TestPreferredVCS(t *testing.T) {
	t.Setenv("DDRSYNC_VCS", "git")
	if got := PreferredVCS(); got != TypeGit {
		t.Errorf("PreferredVCS() = %v, want git", got)
	}
	t.Setenv("DDRSYNC_VCS", "")
	if got := PreferredVCS(); got != TypeJJ {
		t.Errorf("PreferredVCS() = %v, want jj", got)
	}
}

func TestOpenWithoutBackend(t *testing.T) {
	// no backend package is imported here, so nothing is registered for jj
	root := t.TempDir()
	mkdirs(t, filepath.Join(root, ".jj"))

	_, err := Open(root)
	if !errors.Is(err, ErrVCSNotAvailable) {
		t.Errorf("Open() error = %v, want ErrVCSNotAvailable", err)
	}
	if !IsFatal(err) {
		t.Error("IsFatal() = false for a missing backend")
	}
}
