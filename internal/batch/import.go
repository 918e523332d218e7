package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ddrkit/ddrsync/internal/changelog"
	"github.com/ddrkit/ddrsync/internal/lock"
	"github.com/ddrkit/ddrsync/internal/manifest"
	"github.com/ddrkit/ddrsync/internal/record"
	"github.com/ddrkit/ddrsync/internal/schema"
	"github.com/ddrkit/ddrsync/internal/tabular"
)

// Locker is the repository lock an import runs under.
type Locker interface {
	Acquire(owner, reason string) (lock.Status, error)
	Release(owner string) (lock.Status, error)
}

// Importer applies a table to the records of one repository.
type Importer struct {
	Store     record.Store
	Registry  *schema.Registry
	Dialect   tabular.Dialect
	Lock      Locker
	Owner     string
	Manifests *manifest.Builder
	Changelog changelog.Sink
	Logger    *zap.Logger

	// BeforeRelease runs after the last row while the lock is still held,
	// when at least one record was saved. Committing the batch to version
	// control is done here.
	BeforeRelease func(ctx context.Context, report *Report) error
}

// Import reads the table at path and updates or creates one record per
// data row. The header is checked before anything else; a bad header, an
// unreadable table or a held lock abort the batch with no record touched.
// Row problems are reported per row and do not stop the batch. The lock is
// released on every path out, including cancellation, after which rows
// already saved stay saved.
func (im *Importer) Import(ctx context.Context, path string, kind record.Kind) (report *Report, err error) {
	log := im.logger().With(zap.String("table", path), zap.Stringer("kind", kind))
	report = &Report{Table: path, Kind: kind, Timer: NewTimer()}

	s, err := im.Registry.Schema(kind)
	if err != nil {
		return report, err
	}

	rows, err := im.decode(path)
	if err != nil {
		return report, err
	}
	header, data := rows[0], rows[1:]
	if err := im.Registry.CheckHeader(kind, header); err != nil {
		return report, fmt.Errorf("%s: %w", path, err)
	}
	report.Timer.Mark("decode")

	owner := im.Owner
	if owner == "" {
		owner = lock.NewOwner()
	}
	if _, err := im.Lock.Acquire(owner, "import "+filepath.Base(path)); err != nil {
		return report, err
	}
	defer func() {
		st, rerr := im.Lock.Release(owner)
		if rerr != nil {
			log.Error("failed to release lock", zap.Stringer("status", st), zap.Error(rerr))
			err = errors.Join(err, fmt.Errorf("release lock: %w", rerr))
		}
	}()
	report.Timer.Mark("lock")

	required := requiredColumns(s, kind)
	for i, row := range data {
		if cerr := ctx.Err(); cerr != nil {
			report.Aborted = true
			log.Warn("import cancelled", zap.Int("processed", i), zap.Int("rows", len(data)))
			return report, cerr
		}
		o := im.importRow(ctx, i+1, header, row, kind, s, required, false)
		report.add(o)
		if o.Status == Created || o.Status == Updated {
			report.Saved = append(report.Saved, Ref{Kind: kind, ID: o.ID})
		}
		im.logOutcome(log, o)
	}
	report.Timer.Mark("rows")

	if im.BeforeRelease != nil && len(report.Saved) > 0 {
		if err := im.BeforeRelease(ctx, report); err != nil {
			return report, err
		}
		report.Timer.Mark("commit")
	}

	log.Info("import complete", zap.String("summary", report.Summary()))
	return report, nil
}

func (im *Importer) decode(path string) ([]tabular.Row, error) {
	// #nosec G304 - table path supplied by the operator
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer func() { _ = f.Close() }()

	d := im.Dialect
	if d == (tabular.Dialect{}) {
		d = tabular.DefaultDialect
	}
	rows, err := d.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", path, &tabular.MalformedTableError{Line: 1, Msg: "no header row"})
	}
	return rows, nil
}

func (im *Importer) importRow(ctx context.Context, n int, header, row tabular.Row, kind record.Kind, s *schema.Schema, required []string, dryRun bool) Outcome {
	o := Outcome{Row: n}
	fail := func(err error) Outcome {
		o.Status = Errored
		o.Err = err
		return o
	}

	if err := tabular.CheckArity(header, row, n); err != nil {
		return fail(&InvariantError{Msg: err.Error()})
	}
	cells, _ := tabular.Zip(header, row)
	o.ID = strings.TrimSpace(cells[kind.IDField()])

	if missing := schema.AccountRow(required, cells); len(missing) > 0 {
		o.Status = Skipped
		o.Reasons = []string{(&schema.MissingRequiredFieldError{Fields: missing}).Error()}
		return o
	}

	if kind == record.KindFile {
		parent, err := record.ParentOf(o.ID)
		if err != nil {
			return fail(err)
		}
		if got := strings.TrimSpace(cells["id"]); got != parent {
			return fail(&InvariantError{ID: o.ID, Msg: fmt.Sprintf("id %q does not match parent entity %q", got, parent)})
		}
	}

	r, err := im.Store.Load(ctx, kind, o.ID)
	created := false
	if errors.Is(err, record.ErrNotFound) {
		r, err = record.New(kind, o.ID)
		created = true
	}
	if err != nil {
		return fail(err)
	}

	for _, col := range header {
		if col == "id" || col == kind.IDField() {
			continue
		}
		f, ok := s.Field(col)
		if !ok || f.Exclude {
			continue
		}
		v, err := parseCell(cells[col], s.TypeOf(col))
		if err != nil {
			return fail(fmt.Errorf("field %s: %w", col, err))
		}
		old, has := r.Get(col)
		if !has && (v == nil || v == "") {
			continue
		}
		if has && sameValue(old, v) {
			continue
		}
		r.Set(col, v)
		o.Changed = append(o.Changed, col)
	}

	if dryRun {
		switch {
		case created:
			o.Status = Created
		case len(o.Changed) > 0:
			o.Status = Updated
		default:
			o.Status = Unchanged
		}
		return o
	}

	if im.Manifests != nil && kind != record.KindCollection {
		rebuilt, err := im.refreshManifest(ctx, r)
		if err != nil {
			return fail(err)
		}
		if rebuilt {
			o.Changed = append(o.Changed, manifest.Field)
		}
	}

	if !created && len(o.Changed) == 0 {
		o.Status = Unchanged
		return o
	}
	if err := im.Store.Save(ctx, r); err != nil {
		return fail(fmt.Errorf("failed to save: %w", err))
	}

	o.Status = Updated
	msg := "Updated " + strings.Join(o.Changed, ", ")
	if created {
		o.Status = Created
		msg = fmt.Sprintf("Initialized %s %s", kind, o.ID)
	}
	if im.Changelog != nil {
		if err := im.Changelog.Append(o.ID, msg); err != nil {
			im.logger().Warn("failed to append changelog", zap.String("id", o.ID), zap.Error(err))
		}
	}
	return o
}

// refreshManifest rehashes r's payload files and attaches the result when
// it differs from the stored manifest. On failure r keeps its previous
// manifest.
func (im *Importer) refreshManifest(ctx context.Context, r *record.Record) (bool, error) {
	root, files, err := im.Store.PayloadFiles(ctx, r)
	if err != nil {
		return false, err
	}
	current, err := manifest.FromRecord(r)
	if err != nil {
		return false, err
	}
	fresh, err := im.Manifests.Build(ctx, root, files)
	if err != nil {
		return false, err
	}
	if current.Equal(fresh) {
		return false, nil
	}
	if err := fresh.Attach(r); err != nil {
		return false, err
	}
	return true, nil
}

func (im *Importer) logOutcome(log *zap.Logger, o Outcome) {
	fields := []zap.Field{zap.Int("row", o.Row), zap.String("id", o.ID), zap.Stringer("status", o.Status)}
	switch o.Status {
	case Errored:
		log.Error("row failed", append(fields, zap.Error(o.Err))...)
	case Skipped:
		log.Warn("row skipped", append(fields, zap.Strings("reasons", o.Reasons))...)
	default:
		log.Debug("row done", append(fields, zap.Strings("changed", o.Changed))...)
	}
}

func (im *Importer) logger() *zap.Logger {
	if im.Logger == nil {
		return zap.NewNop()
	}
	return im.Logger
}
