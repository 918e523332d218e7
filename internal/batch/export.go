package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ddrkit/ddrsync/internal/natsort"
	"github.com/ddrkit/ddrsync/internal/record"
	"github.com/ddrkit/ddrsync/internal/schema"
	"github.com/ddrkit/ddrsync/internal/tabular"
)

// Exporter writes records of one kind to a table.
type Exporter struct {
	Store    record.Store
	Registry *schema.Registry
	Dialect  tabular.Dialect
	Logger   *zap.Logger

	timer *Timer
	now   func() time.Time
}

// NewExporter returns an exporter using the default dialect.
func NewExporter(store record.Store, registry *schema.Registry, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		Store:    store,
		Registry: registry,
		Dialect:  tabular.DefaultDialect,
		Logger:   logger,
	}
}

// Timer returns the timings of the last Export call.
func (e *Exporter) Timer() *Timer {
	return e.timer
}

// Export writes the records named by ids to dest and returns the path
// written. When dest is an existing directory a file named after the kind
// and the current time is created inside it. Rows follow the natural order
// of ids; the header follows the schema with id first.
//
// Output is staged in a temporary file next to the destination, so a
// failure never leaves a partial table behind.
func (e *Exporter) Export(ctx context.Context, ids []string, kind record.Kind, dest string, requiredOnly bool) (string, error) {
	log := e.logger().With(zap.Stringer("kind", kind))
	e.timer = NewTimer()

	if !kind.Valid() {
		return "", fmt.Errorf("%w: %d", record.ErrUnknownKind, int(kind))
	}
	header, err := e.Registry.ExportHeader(kind, requiredOnly)
	if err != nil {
		return "", err
	}
	s, err := e.Registry.Schema(kind)
	if err != nil {
		return "", err
	}
	required := requiredColumns(s, kind)

	ids = uniqueIDs(natsort.Sorted(ids))
	records := make([]*record.Record, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		r, err := e.Store.Load(ctx, kind, id)
		if err != nil {
			return "", fmt.Errorf("failed to load %s %s: %w", kind, id, err)
		}
		if r.Kind != kind || r.ID() != id {
			return "", &InvariantError{ID: id, Msg: fmt.Sprintf("loaded %s %q while exporting %s records", r.Kind, r.ID(), kind)}
		}
		records = append(records, r)
	}
	e.timer.Mark("load")

	rows := make([]tabular.Row, 0, len(records))
	for _, r := range records {
		row := make(tabular.Row, len(header))
		cells := make(map[string]string, len(header))
		for i, col := range header {
			v, _ := r.Get(col)
			cell, err := formatCell(v, s.TypeOf(col))
			if err != nil {
				return "", fmt.Errorf("%s field %s: %w", r.ID(), col, err)
			}
			row[i] = cell
			cells[col] = cell
		}
		if missing := schema.AccountRow(required, cells); len(missing) > 0 {
			log.Warn("record lacks required values", zap.String("id", r.ID()), zap.Strings("fields", missing))
		}
		rows = append(rows, row)
	}
	e.timer.Mark("serialize")

	out, err := e.destination(dest, kind)
	if err != nil {
		return "", err
	}
	if err := e.write(out, header, rows); err != nil {
		return "", err
	}
	e.timer.Mark("write")

	log.Info("export complete", zap.String("path", out), zap.Int("rows", len(rows)))
	return out, nil
}

func (e *Exporter) destination(dest string, kind record.Kind) (string, error) {
	info, err := os.Stat(dest)
	switch {
	case err == nil && info.IsDir():
		now := time.Now
		if e.now != nil {
			now = e.now
		}
		return filepath.Join(dest, fmt.Sprintf("%s-%s.csv", kind, now().UTC().Format("20060102-150405"))), nil
	case err == nil, errors.Is(err, os.ErrNotExist):
		return dest, nil
	default:
		return "", fmt.Errorf("failed to stat %s: %w", dest, err)
	}
}

func (e *Exporter) write(path string, header tabular.Row, rows []tabular.Row) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := e.Dialect.Encode(tmp, header, rows); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (e *Exporter) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// requiredColumns is the schema's required set plus the identifier column.
func requiredColumns(s *schema.Schema, kind record.Kind) []string {
	req := s.Required()
	for _, name := range req {
		if name == kind.IDField() {
			return req
		}
	}
	return append([]string{kind.IDField()}, req...)
}

func uniqueIDs(sorted []string) []string {
	out := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if len(out) > 0 && out[len(out)-1] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}
