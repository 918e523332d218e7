package vcs

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParseLines(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []string
	}{
		{"empty input", []byte(""), nil},
		{"single line", []byte("line1"), []string{"line1"}},
		{"lines with whitespace", []byte("  line1  \n  line2  "), []string{"line1", "line2"}},
		{"empty lines filtered", []byte("line1\n\nline2\n\n\n"), []string{"line1", "line2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLines(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ParseLines() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRelPaths(t *testing.T) {
	root := t.TempDir()

	got, err := RelPaths(root, []string{
		filepath.Join(root, "ddr-test-1", "entity.json"),
		filepath.Join("ddr-test-1", "changelog"),
	})
	if err != nil {
		t.Fatalf("RelPaths() error = %v", err)
	}
	want := []string{"ddr-test-1/entity.json", "ddr-test-1/changelog"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RelPaths() = %q, want %q", got, want)
	}

	if _, err := RelPaths(root, []string{filepath.Dir(root)}); err == nil {
		t.Error("RelPaths() accepted a path outside the repository")
	}
}

func TestRelPathsResolvesSymlinkedRoot(t *testing.T) {
	real := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	// the backend reports the resolved root, callers pass paths under the link
	got, err := RelPaths(real, []string{filepath.Join(link, "a", "entity.json")})
	if err != nil {
		t.Fatalf("RelPaths() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a/entity.json"}) {
		t.Errorf("RelPaths() = %q", got)
	}
}

func TestExecContext(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()

	out, err := ExecContext(context.Background(), time.Second, dir, "sh", "-c", "pwd")
	if err != nil {
		t.Fatalf("ExecContext() error = %v", err)
	}
	if len(ParseLines(out)) != 1 {
		t.Errorf("pwd output = %q", out)
	}

	_, err = ExecContext(context.Background(), time.Second, dir, "sh", "-c", "echo boom >&2; exit 3")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("ExecContext() error = %v, want stderr in message", err)
	}

	_, err = ExecContext(context.Background(), 50*time.Millisecond, dir, "sh", "-c", "sleep 5")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("ExecContext() error = %v, want ErrTimeout", err)
	}
}
