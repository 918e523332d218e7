package manifest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddrkit/ddrsync/internal/record"
)

func writePayload(t *testing.T, dir string, files map[string]string) []string {
	t.Helper()
	var paths []string
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
		paths = append(paths, p)
	}
	return paths
}

func TestNewBuilderRequiresMandatoryDigests(t *testing.T) {
	_, err := NewBuilder(Options{Algorithms: []string{SHA256}})
	assert.ErrorIs(t, err, ErrAlgorithm)

	_, err = NewBuilder(Options{Algorithms: []string{SHA1, SHA256, "crc32"}})
	assert.ErrorIs(t, err, ErrAlgorithm)

	b, err := NewBuilder(Options{Algorithms: []string{"SHA1", "sha256", "md5", "sha1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{SHA1, SHA256, MD5}, b.Algorithms())

	b, err = NewBuilder(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultAlgorithms, b.Algorithms())
}

func TestBuildKnownDigests(t *testing.T) {
	dir := t.TempDir()
	files := writePayload(t, dir, map[string]string{"hello.txt": "hello\n"})

	b, err := NewBuilder(Options{Algorithms: []string{SHA1, SHA256, MD5, Blake2b}})
	require.NoError(t, err)
	m, err := b.Build(context.Background(), dir, files)
	require.NoError(t, err)
	require.Len(t, m, 1)

	e := m[0]
	assert.Equal(t, "hello.txt", e.Path)
	assert.Equal(t, "hello.txt", e.Basename)
	assert.Equal(t, int64(6), e.Size)
	assert.Equal(t, "f572d396fae9206628714fb2ce00f72e94f2258f", e.SHA1)
	assert.Equal(t, "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03", e.SHA256)
	assert.Equal(t, "b1946ac92492d2347c6235b4d2611184", e.MD5)
	assert.Len(t, e.Blake2b, 64)
}

func TestBuildIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	files := writePayload(t, dir, map[string]string{
		"ddr-test-1-master-abc.tif":   strings.Repeat("x", 200_000),
		"ddr-test-1-master-abc-a.jpg": "jpeg",
		"sub/ddr-test-1-mezz-def.wav": "wav",
	})

	b, err := NewBuilder(Options{Workers: 2, BlockSize: 1024})
	require.NoError(t, err)

	first, err := b.Build(context.Background(), dir+string(filepath.Separator), files)
	require.NoError(t, err)

	// reversed input, different worker count
	rev := append([]string(nil), files...)
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	b2, err := NewBuilder(Options{Workers: 1})
	require.NoError(t, err)
	second, err := b2.Build(context.Background(), dir, rev)
	require.NoError(t, err)

	j1, err := first.MarshalIndent()
	require.NoError(t, err)
	j2, err := second.MarshalIndent()
	require.NoError(t, err)
	assert.Equal(t, string(j1), string(j2))

	assert.Equal(t, []string{
		"ddr-test-1-master-abc-a.jpg",
		"ddr-test-1-master-abc.tif",
		"sub/ddr-test-1-mezz-def.wav",
	}, first.Paths())
	assert.Equal(t, "ddr-test-1-mezz-def.wav", first[2].Basename)
	for _, p := range first.Paths() {
		assert.False(t, strings.HasPrefix(p, "/"), p)
	}
}

func TestBuildUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	files := writePayload(t, dir, map[string]string{"a.txt": "a"})
	files = append(files, filepath.Join(dir, "gone.txt"))

	b, err := NewBuilder(Options{})
	require.NoError(t, err)
	m, err := b.Build(context.Background(), dir, files)
	assert.Nil(t, m)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChecksum)
	assert.ErrorIs(t, err, os.ErrNotExist)

	var ce *ChecksumError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, filepath.Join(dir, "gone.txt"), ce.Path)
}

func TestBuildRejectsFilesOutsideRoot(t *testing.T) {
	dir := t.TempDir()
	files := writePayload(t, dir, map[string]string{"a.txt": "a"})

	b, err := NewBuilder(Options{})
	require.NoError(t, err)
	_, err = b.Build(context.Background(), filepath.Join(dir, "sub"), files)
	assert.Error(t, err)
}

func TestBuildCancelled(t *testing.T) {
	dir := t.TempDir()
	files := writePayload(t, dir, map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b, err := NewBuilder(Options{})
	require.NoError(t, err)
	_, err = b.Build(ctx, dir, files)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAttachAndReload(t *testing.T) {
	dir := t.TempDir()
	files := writePayload(t, dir, map[string]string{"b.tif": "bbbb", "a.jpg": "a"})

	b, err := NewBuilder(Options{Algorithms: []string{SHA1, SHA256, MD5}})
	require.NoError(t, err)
	m, err := b.Build(context.Background(), dir, files)
	require.NoError(t, err)

	r, err := record.New(record.KindEntity, "ddr-test-1")
	require.NoError(t, err)
	require.NoError(t, m.Attach(r))

	doc, err := r.Document()
	require.NoError(t, err)
	reloaded, err := record.Parse(record.KindEntity, doc)
	require.NoError(t, err)

	got, err := FromRecord(reloaded)
	require.NoError(t, err)
	assert.True(t, m.Equal(got))

	// attaching the reloaded manifest leaves the document unchanged
	require.NoError(t, got.Attach(reloaded))
	doc2, err := reloaded.Document()
	require.NoError(t, err)
	assert.Equal(t, string(doc), string(doc2))
}

func TestFromRecordWithoutManifest(t *testing.T) {
	r, err := record.New(record.KindEntity, "ddr-test-1")
	require.NoError(t, err)
	m, err := FromRecord(r)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestDiff(t *testing.T) {
	stored := Manifest{
		{Path: "a", SHA1: "1", SHA256: "1", Size: 1},
		{Path: "b", SHA1: "2", SHA256: "2", Size: 2},
		{Path: "c", SHA1: "3", SHA256: "3", Size: 3},
	}
	fresh := Manifest{
		{Path: "a", SHA1: "1", SHA256: "1", Size: 1},
		{Path: "b", SHA1: "x", SHA256: "x", Size: 2},
		{Path: "d", SHA1: "4", SHA256: "4", Size: 4},
	}

	diffs := Diff(stored, fresh)
	require.Len(t, diffs, 3)
	assert.Equal(t, "b: content changed", diffs[0].String())
	assert.Equal(t, "c: missing", diffs[1].String())
	assert.Equal(t, "d: not in manifest", diffs[2].String())

	assert.Empty(t, Diff(stored, stored))
}
