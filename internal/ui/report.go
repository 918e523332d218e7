package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ddrkit/ddrsync/internal/batch"
)

// Report prints an import report: one line per row that did not end
// unchanged (all rows when verbose), then the count summary and, when
// verbose, the step timings.
func Report(w io.Writer, r *batch.Report, verbose bool) {
	for _, o := range r.Outcomes {
		if o.Status == batch.Unchanged && !verbose {
			continue
		}
		fmt.Fprintf(w, "%s %s\n", statusMark(o.Status), o.String())
	}

	counts := []string{
		renderCount("created", r.Count(batch.Created), passStyle),
		renderCount("updated", r.Count(batch.Updated), passStyle),
		renderCount("unchanged", r.Count(batch.Unchanged), mutedStyle),
		renderCount("skipped", r.Count(batch.Skipped), warnStyle),
		renderCount("error", r.Count(batch.Errored), failStyle),
	}
	mark := RenderPass("✓")
	if r.Failed() {
		mark = RenderFail("✗")
	}
	fmt.Fprintf(w, "%s %s\n", mark, strings.Join(counts, " "))
	if r.Aborted {
		fmt.Fprintln(w, RenderWarn("  aborted: remaining rows were not processed"))
	}
	if verbose && r.Timer != nil {
		Timings(w, r.Timer)
	}
}

// Timings prints the steps of a timer.
func Timings(w io.Writer, t *batch.Timer) {
	for _, s := range t.Steps() {
		fmt.Fprintln(w, RenderMuted(fmt.Sprintf("  %-10s %s", s.Name, s.Duration)))
	}
	fmt.Fprintln(w, RenderMuted(fmt.Sprintf("  %-10s %s", "total", t.Total())))
}

func statusMark(s batch.Status) string {
	switch s {
	case batch.Created, batch.Updated:
		return RenderPass("✓")
	case batch.Skipped:
		return RenderWarn("⚠")
	case batch.Errored:
		return RenderFail("✗")
	default:
		return RenderMuted("·")
	}
}

func renderCount(name string, n int, style lipgloss.Style) string {
	s := fmt.Sprintf("%s=%d", name, n)
	if n == 0 {
		return mutedStyle.Render(s)
	}
	return style.Render(s)
}
