package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ddrkit/ddrsync/internal/record"
)

// Check validates a table the way Import does and reports what each row
// would do, without taking the lock or writing anything. Manifests are not
// recomputed, so a row whose only change would be its manifest reports
// unchanged.
func (im *Importer) Check(ctx context.Context, path string, kind record.Kind) (*Report, error) {
	log := im.logger().With(zap.String("table", path), zap.Stringer("kind", kind))
	report := &Report{Table: path, Kind: kind, Timer: NewTimer()}

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

	required := requiredColumns(s, kind)
	for i, row := range data {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			return report, err
		}
		o := im.importRow(ctx, i+1, header, row, kind, s, required, true)
		report.add(o)
		im.logOutcome(log, o)
	}
	report.Timer.Mark("rows")
	return report, nil
}
