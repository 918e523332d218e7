package batch

import (
	"fmt"
	"strings"

	"github.com/ddrkit/ddrsync/internal/record"
)

// Status is the outcome of one imported row.
type Status int

const (
	Created Status = iota
	Updated
	Unchanged
	Skipped
	Errored
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	case Skipped:
		return "skipped"
	case Errored:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is the result of one data row.
type Outcome struct {
	// Row is the 1-based data row number; the header is row 0.
	Row    int
	ID     string
	Status Status
	// Changed lists the fields a created or updated row wrote.
	Changed []string
	// Reasons explains a skipped row.
	Reasons []string
	Err     error
}

func (o Outcome) String() string {
	s := fmt.Sprintf("row %d %s: %s", o.Row, o.ID, o.Status)
	switch {
	case o.Err != nil:
		s += ": " + o.Err.Error()
	case len(o.Reasons) > 0:
		s += ": " + strings.Join(o.Reasons, "; ")
	case len(o.Changed) > 0:
		s += " (" + strings.Join(o.Changed, ", ") + ")"
	}
	return s
}

// Ref names a record saved by an import.
type Ref struct {
	Kind record.Kind
	ID   string
}

// Report collects the outcomes of an import.
type Report struct {
	Table    string
	Kind     record.Kind
	Outcomes []Outcome
	// Saved lists records written, in row order.
	Saved []Ref
	// Aborted is set when rows were left unprocessed, e.g. on cancellation.
	Aborted bool
	Timer   *Timer
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Count returns how many rows ended with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Statuses returns row statuses in row order.
func (r *Report) Statuses() []Status {
	out := make([]Status, len(r.Outcomes))
	for i, o := range r.Outcomes {
		out[i] = o.Status
	}
	return out
}

// Failed reports whether the batch should exit non-zero.
func (r *Report) Failed() bool {
	return r.Aborted || r.Count(Errored) > 0
}

// Summary is the one-line count summary.
func (r *Report) Summary() string {
	return fmt.Sprintf("created=%d updated=%d unchanged=%d skipped=%d error=%d",
		r.Count(Created), r.Count(Updated), r.Count(Unchanged), r.Count(Skipped), r.Count(Errored))
}
