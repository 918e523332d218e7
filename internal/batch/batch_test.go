package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddrkit/ddrsync/internal/changelog"
	"github.com/ddrkit/ddrsync/internal/lock"
	"github.com/ddrkit/ddrsync/internal/manifest"
	"github.com/ddrkit/ddrsync/internal/record"
	"github.com/ddrkit/ddrsync/internal/schema"
	"github.com/ddrkit/ddrsync/internal/tabular"
)

// countingStore counts saves on top of a filesystem store.
type countingStore struct {
	*record.FSStore
	saves int
}

func (c *countingStore) Save(ctx context.Context, r *record.Record) error {
	c.saves++
	return c.FSStore.Save(ctx, r)
}

type fixture struct {
	repo     string
	store    *countingStore
	registry *schema.Registry
	lock     *lock.Lock
	log      *changelog.MemorySink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := t.TempDir()
	reg, err := schema.NewRegistry(
		&schema.Schema{Kind: record.KindCollection, Fields: []schema.Field{
			{Name: "id", Required: true},
			{Name: "title", Required: true},
		}},
		&schema.Schema{Kind: record.KindEntity, Fields: []schema.Field{
			{Name: "id", Required: true},
			{Name: "title", Required: true},
			{Name: "description"},
			{Name: "topics", Type: schema.TypeJSON},
			{Name: "files", Type: schema.TypeJSON, Exclude: true},
		}, Exceptions: []string{"notused"}},
		&schema.Schema{Kind: record.KindFile, Fields: []schema.Field{
			{Name: "id", Required: true},
			{Name: "role", Required: true},
			{Name: "label"},
		}},
	)
	require.NoError(t, err)
	return &fixture{
		repo:     repo,
		store:    &countingStore{FSStore: record.NewFSStore(repo)},
		registry: reg,
		lock:     lock.New(repo, nil),
		log:      &changelog.MemorySink{},
	}
}

func (f *fixture) entity(t *testing.T, id, title string) *record.Record {
	t.Helper()
	r, err := record.New(record.KindEntity, id)
	require.NoError(t, err)
	r.Set("title", title)
	require.NoError(t, f.store.FSStore.Save(context.Background(), r))
	return r
}

func (f *fixture) importer(t *testing.T) *Importer {
	t.Helper()
	b, err := manifest.NewBuilder(manifest.Options{})
	require.NoError(t, err)
	return &Importer{
		Store:     f.store,
		Registry:  f.registry,
		Dialect:   tabular.DefaultDialect,
		Lock:      f.lock,
		Owner:     "test-owner",
		Manifests: b,
		Changelog: f.log,
	}
}

func writeTable(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "table.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestImportSkipsRowMissingRequiredField(t *testing.T) {
	f := newFixture(t)
	f.entity(t, "ddr-test-1", "old one")
	f.entity(t, "ddr-test-2", "old two")
	f.entity(t, "ddr-test-3", "old three")
	f.store.saves = 0

	table := writeTable(t, t.TempDir(),
		`"id","title","description"`+"\n"+
			`"ddr-test-1","new one","d1"`+"\n"+
			`"ddr-test-2","",""`+"\n"+
			`"ddr-test-3","new three",""`+"\n")

	report, err := f.importer(t).Import(context.Background(), table, record.KindEntity)
	require.NoError(t, err)
	assert.Equal(t, []Status{Updated, Skipped, Updated}, report.Statuses())
	assert.Equal(t, 2, f.store.saves)
	assert.Equal(t, []Ref{{record.KindEntity, "ddr-test-1"}, {record.KindEntity, "ddr-test-3"}}, report.Saved)
	assert.Contains(t, report.Outcomes[1].Reasons[0], "title")
	assert.False(t, report.Failed())
	assert.Equal(t, "created=0 updated=2 unchanged=0 skipped=1 error=0", report.Summary())

	r, err := f.store.Load(context.Background(), record.KindEntity, "ddr-test-2")
	require.NoError(t, err)
	assert.Equal(t, "old two", r.String("title"))

	r, err = f.store.Load(context.Background(), record.KindEntity, "ddr-test-1")
	require.NoError(t, err)
	assert.Equal(t, "new one", r.String("title"))
	assert.Equal(t, "d1", r.String("description"))

	assert.Equal(t, []changelog.Entry{
		{ID: "ddr-test-1", Message: "Updated title, description"},
		{ID: "ddr-test-3", Message: "Updated title"},
	}, f.log.Entries())

	// lock released
	_, held, err := f.lock.Peek()
	require.NoError(t, err)
	assert.False(t, held)
}

func TestImportCreatesAndLeavesUnchanged(t *testing.T) {
	f := newFixture(t)
	f.entity(t, "ddr-test-1", "same")
	f.store.saves = 0

	table := writeTable(t, t.TempDir(),
		`"id","title","topics","notused"`+"\n"+
			`"ddr-test-1","same","","x"`+"\n"+
			`"ddr-test-2","fresh","[""a"",""b""]",""`+"\n")

	report, err := f.importer(t).Import(context.Background(), table, record.KindEntity)
	require.NoError(t, err)
	assert.Equal(t, []Status{Unchanged, Created}, report.Statuses())
	assert.Equal(t, 1, f.store.saves)

	r, err := f.store.Load(context.Background(), record.KindEntity, "ddr-test-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title", "topics"}, r.Keys())
	topics, _ := r.Get("topics")
	assert.Equal(t, []any{"a", "b"}, topics)
	assert.Equal(t, []changelog.Entry{{ID: "ddr-test-2", Message: "Initialized entity ddr-test-2"}}, f.log.Entries())
}

func TestImportBadHeaderTouchesNothing(t *testing.T) {
	f := newFixture(t)
	f.entity(t, "ddr-test-1", "old")
	f.store.saves = 0

	table := writeTable(t, t.TempDir(), `"id","titl"`+"\n"+`"ddr-test-1","new"`+"\n")

	_, err := f.importer(t).Import(context.Background(), table, record.KindEntity)
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrSchema)
	assert.True(t, IsAbort(err))
	assert.Equal(t, 0, f.store.saves)
	assert.NoFileExists(t, f.lock.Path())
}

func TestImportMalformedTable(t *testing.T) {
	f := newFixture(t)
	table := writeTable(t, t.TempDir(), `"id","title"`+"\n"+`"ddr-test-1,"x"`+"\n")

	_, err := f.importer(t).Import(context.Background(), table, record.KindEntity)
	assert.ErrorIs(t, err, tabular.ErrMalformedTable)
	assert.True(t, IsAbort(err))
}

func TestImportWhileLocked(t *testing.T) {
	f := newFixture(t)
	f.entity(t, "ddr-test-1", "old")
	f.store.saves = 0

	_, err := f.lock.Acquire("someone-else", "manual edit")
	require.NoError(t, err)

	table := writeTable(t, t.TempDir(), `"id","title"`+"\n"+`"ddr-test-1","new"`+"\n")
	report, err := f.importer(t).Import(context.Background(), table, record.KindEntity)
	require.Error(t, err)
	assert.True(t, lock.IsConflict(err))
	assert.Empty(t, report.Outcomes)
	assert.Equal(t, 0, f.store.saves)

	info, held, err := f.lock.Peek()
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, "someone-else", info.Owner)
}

func TestImportArityMismatchIsRowLocal(t *testing.T) {
	f := newFixture(t)
	table := writeTable(t, t.TempDir(),
		`"id","title"`+"\n"+
			`"ddr-test-1","a","extra"`+"\n"+
			`"ddr-test-2","b"`+"\n")

	report, err := f.importer(t).Import(context.Background(), table, record.KindEntity)
	require.NoError(t, err)
	assert.Equal(t, []Status{Errored, Created}, report.Statuses())
	assert.ErrorIs(t, report.Outcomes[0].Err, ErrInvariant)
	assert.True(t, report.Failed())
}

func TestImportRecomputesManifest(t *testing.T) {
	f := newFixture(t)
	f.entity(t, "ddr-test-1", "title")
	payload := filepath.Join(f.repo, "ddr-test-1", record.PayloadDir)
	require.NoError(t, os.MkdirAll(payload, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(payload, "ddr-test-1-master-abc.tif"), []byte("tif"), 0644))

	table := writeTable(t, t.TempDir(), `"id","title"`+"\n"+`"ddr-test-1","title"`+"\n")
	im := f.importer(t)

	report, err := im.Import(context.Background(), table, record.KindEntity)
	require.NoError(t, err)
	require.Equal(t, []Status{Updated}, report.Statuses())
	assert.Equal(t, []string{manifest.Field}, report.Outcomes[0].Changed)

	r, err := f.store.Load(context.Background(), record.KindEntity, "ddr-test-1")
	require.NoError(t, err)
	m, err := manifest.FromRecord(r)
	require.NoError(t, err)
	require.Len(t, m, 1)
	assert.Equal(t, "ddr-test-1-master-abc.tif", m[0].Path)
	assert.Equal(t, int64(3), m[0].Size)

	// second run sees nothing new
	report, err = im.Import(context.Background(), table, record.KindEntity)
	require.NoError(t, err)
	assert.Equal(t, []Status{Unchanged}, report.Statuses())
}

func TestImportRehashesSameSizePayload(t *testing.T) {
	f := newFixture(t)
	f.entity(t, "ddr-test-1", "title")
	payload := filepath.Join(f.repo, "ddr-test-1", record.PayloadDir)
	master := filepath.Join(payload, "ddr-test-1-master-abc.tif")
	require.NoError(t, os.MkdirAll(payload, 0755))
	require.NoError(t, os.WriteFile(master, []byte("aaa"), 0644))

	im := f.importer(t)
	first := writeTable(t, t.TempDir(), `"id","title"`+"\n"+`"ddr-test-1","title"`+"\n")
	_, err := im.Import(context.Background(), first, record.KindEntity)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(master, []byte("bbb"), 0644))
	second := writeTable(t, t.TempDir(), `"id","title"`+"\n"+`"ddr-test-1","new title"`+"\n")
	report, err := im.Import(context.Background(), second, record.KindEntity)
	require.NoError(t, err)
	require.Equal(t, []Status{Updated}, report.Statuses())
	assert.Equal(t, []string{"title", manifest.Field}, report.Outcomes[0].Changed)

	r, err := f.store.Load(context.Background(), record.KindEntity, "ddr-test-1")
	require.NoError(t, err)
	m, err := manifest.FromRecord(r)
	require.NoError(t, err)
	require.Len(t, m, 1)
	// sha1("bbb")
	assert.Equal(t, "5cb138284d431abd6a053a56625ec088bfb88912", m[0].SHA1)
}

// brokenPayloadStore lists a payload file that does not exist.
type brokenPayloadStore struct {
	*countingStore
}

func (b *brokenPayloadStore) PayloadFiles(ctx context.Context, r *record.Record) (string, []string, error) {
	root := filepath.Join(b.Root, r.ID(), record.PayloadDir)
	return root, []string{filepath.Join(root, "missing.tif")}, nil
}

func TestImportChecksumFailureKeepsPriorManifest(t *testing.T) {
	f := newFixture(t)
	r := f.entity(t, "ddr-test-1", "title")
	prior := manifest.Manifest{{Basename: "old.tif", Path: "old.tif", SHA1: "1", SHA256: "2", Size: 9}}
	require.NoError(t, prior.Attach(r))
	require.NoError(t, f.store.FSStore.Save(context.Background(), r))
	f.store.saves = 0

	im := f.importer(t)
	im.Store = &brokenPayloadStore{countingStore: f.store}

	table := writeTable(t, t.TempDir(),
		`"id","title"`+"\n"+
			`"ddr-test-1","changed"`+"\n")
	report, err := im.Import(context.Background(), table, record.KindEntity)
	require.NoError(t, err)
	require.Equal(t, []Status{Errored}, report.Statuses())
	assert.ErrorIs(t, report.Outcomes[0].Err, manifest.ErrChecksum)
	assert.Equal(t, 0, f.store.saves)

	got, err := f.store.Load(context.Background(), record.KindEntity, "ddr-test-1")
	require.NoError(t, err)
	m, err := manifest.FromRecord(got)
	require.NoError(t, err)
	assert.True(t, prior.Equal(m))
	assert.Equal(t, "title", got.String("title"))
}

func TestImportCancelledReleasesLock(t *testing.T) {
	f := newFixture(t)
	table := writeTable(t, t.TempDir(),
		`"id","title"`+"\n"+
			`"ddr-test-1","a"`+"\n"+
			`"ddr-test-2","b"`+"\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := f.importer(t).Import(ctx, table, record.KindEntity)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Aborted)
	assert.True(t, report.Failed())
	assert.Empty(t, report.Outcomes)
	assert.NoFileExists(t, f.lock.Path())
}

func TestImportBeforeReleaseRunsUnderLock(t *testing.T) {
	f := newFixture(t)
	table := writeTable(t, t.TempDir(), `"id","title"`+"\n"+`"ddr-test-1","a"`+"\n")

	im := f.importer(t)
	var heldDuringHook bool
	im.BeforeRelease = func(ctx context.Context, r *Report) error {
		info, held, err := f.lock.Peek()
		heldDuringHook = err == nil && held && info.Owner == "test-owner"
		return nil
	}
	_, err := im.Import(context.Background(), table, record.KindEntity)
	require.NoError(t, err)
	assert.True(t, heldDuringHook)
	assert.NoFileExists(t, f.lock.Path())

	im.BeforeRelease = func(context.Context, *Report) error { return errors.New("commit failed") }
	table = writeTable(t, t.TempDir(), `"id","title"`+"\n"+`"ddr-test-1","b"`+"\n")
	_, err = im.Import(context.Background(), table, record.KindEntity)
	assert.EqualError(t, err, "commit failed")
	assert.NoFileExists(t, f.lock.Path())
}

func TestImportFileRecords(t *testing.T) {
	f := newFixture(t)
	f.entity(t, "ddr-test-1", "parent")

	table := writeTable(t, t.TempDir(),
		`"file_id","id","role","label"`+"\n"+
			`"ddr-test-1-master-abc","ddr-test-1","master","Front"`+"\n"+
			`"ddr-test-1-mezzanine-def","ddr-test-9","mezzanine",""`+"\n")

	report, err := f.importer(t).Import(context.Background(), table, record.KindFile)
	require.NoError(t, err)
	assert.Equal(t, []Status{Created, Errored}, report.Statuses())
	assert.ErrorIs(t, report.Outcomes[1].Err, ErrInvariant)

	r, err := f.store.Load(context.Background(), record.KindFile, "ddr-test-1-master-abc")
	require.NoError(t, err)
	assert.Equal(t, "ddr-test-1", r.String("id"))
	assert.Equal(t, "Front", r.String("label"))
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"ddr-test-10", "ddr-test-2", "ddr-test-1"} {
		r := f.entity(t, id, "  Title "+id+"  ")
		r.Set("description", "line one\r\nline two\rthree\nfour")
		r.Set("topics", []any{"a", map[string]any{"term": "b"}})
		r.Set("files", []any{})
		require.NoError(t, f.store.FSStore.Save(context.Background(), r))
	}

	e := NewExporter(f.store, f.registry, nil)
	dest := filepath.Join(t.TempDir(), "out.csv")
	out, err := e.Export(context.Background(), []string{"ddr-test-10", "ddr-test-2", "ddr-test-1", "ddr-test-2"}, record.KindEntity, dest, false)
	require.NoError(t, err)
	assert.Equal(t, dest, out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	want := `"id","title","description","topics"` + "\n" +
		`"ddr-test-1","Title ddr-test-1","line one\nline two\nthree\nfour","[""a"",{""term"":""b""}]"` + "\n" +
		`"ddr-test-2","Title ddr-test-2","line one\nline two\nthree\nfour","[""a"",{""term"":""b""}]"` + "\n" +
		`"ddr-test-10","Title ddr-test-10","line one\nline two\nthree\nfour","[""a"",{""term"":""b""}]"` + "\n"
	assert.Equal(t, want, string(data))
	assert.Len(t, e.Timer().Steps(), 3)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestExportThenImportIsUnchanged(t *testing.T) {
	f := newFixture(t)
	r := f.entity(t, "ddr-test-1", "Title")
	r.Set("description", "multi\nline")
	r.Set("topics", []any{"x"})
	require.NoError(t, f.store.FSStore.Save(context.Background(), r))

	out, err := NewExporter(f.store, f.registry, nil).Export(context.Background(), []string{"ddr-test-1"}, record.KindEntity, filepath.Join(t.TempDir(), "e.csv"), false)
	require.NoError(t, err)

	report, err := f.importer(t).Import(context.Background(), out, record.KindEntity)
	require.NoError(t, err)
	assert.Equal(t, []Status{Unchanged}, report.Statuses())
}

func TestExportRequiredOnlyToDirectory(t *testing.T) {
	f := newFixture(t)
	f.entity(t, "ddr-test-1", "t")

	e := NewExporter(f.store, f.registry, nil)
	e.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	dir := t.TempDir()
	out, err := e.Export(context.Background(), []string{"ddr-test-1"}, record.KindEntity, dir, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "entity-20240506-070809.csv"), out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, `"id","title"`+"\n"+`"ddr-test-1","t"`+"\n", string(data))
}

// mixedStore hands back a collection whatever is asked for.
type mixedStore struct{ record.Store }

func (mixedStore) Load(_ context.Context, _ record.Kind, id string) (*record.Record, error) {
	return record.New(record.KindCollection, id)
}

func TestExportRejectsMixedKinds(t *testing.T) {
	f := newFixture(t)
	dest := filepath.Join(t.TempDir(), "out.csv")

	_, err := NewExporter(mixedStore{}, f.registry, nil).Export(context.Background(), []string{"ddr-test-1"}, record.KindEntity, dest, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariant)
	assert.NoFileExists(t, dest)
}

func TestExportMissingRecord(t *testing.T) {
	f := newFixture(t)
	dest := filepath.Join(t.TempDir(), "out.csv")
	_, err := NewExporter(f.store, f.registry, nil).Export(context.Background(), []string{"ddr-test-404"}, record.KindEntity, dest, false)
	assert.ErrorIs(t, err, record.ErrNotFound)
	assert.NoFileExists(t, dest)
}

func TestNormalizeText(t *testing.T) {
	tests := map[string]string{
		"  plain  ":        "plain",
		"a\r\nb":           `a\nb`,
		"a\rb":             `a\nb`,
		"a\nb":             `a\nb`,
		`already\nescaped`: `already\nescaped`,
		"\n\ntrailing\n\n": "trailing",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeText(in), "%q", in)
	}
}

func TestTextCellBackslashes(t *testing.T) {
	cell, err := formatCell(`C:\data\new`, schema.TypeText)
	require.NoError(t, err)
	assert.Equal(t, `C:\data\new`, cell)

	v, err := parseCell(cell, schema.TypeText)
	require.NoError(t, err)
	// \d survives, \n is read as a line break
	assert.Equal(t, "C:\\data\new", v)
}

func TestTimer(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(time.Second), base.Add(3 * time.Second)}
	i := 0
	tm := newTimer(func() time.Time { v := ticks[i]; i++; return v })
	tm.Mark("load")
	tm.Mark("write")

	assert.Equal(t, []Step{{"load", time.Second}, {"write", 2 * time.Second}}, tm.Steps())
	assert.Equal(t, 3*time.Second, tm.Total())
	assert.True(t, strings.Contains(tm.String(), "total"))

	// a second timer starts from zero
	other := newTimer(func() time.Time { return base })
	assert.Empty(t, other.Steps())
}
