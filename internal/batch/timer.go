package batch

import (
	"fmt"
	"strings"
	"time"
)

// Step is one timed phase of a batch.
type Step struct {
	Name     string
	Duration time.Duration
}

// Timer records the phases of one batch run. Each run gets its own Timer.
type Timer struct {
	start time.Time
	last  time.Time
	steps []Step
	now   func() time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return newTimer(time.Now)
}

func newTimer(now func() time.Time) *Timer {
	t := now()
	return &Timer{start: t, last: t, now: now}
}

// Mark closes the current phase under name.
func (t *Timer) Mark(name string) {
	n := t.now()
	t.steps = append(t.steps, Step{Name: name, Duration: n.Sub(t.last)})
	t.last = n
}

// Steps returns the recorded phases in order.
func (t *Timer) Steps() []Step {
	return append([]Step(nil), t.steps...)
}

// Total is the time since the timer started.
func (t *Timer) Total() time.Duration {
	return t.last.Sub(t.start)
}

func (t *Timer) String() string {
	var b strings.Builder
	for _, s := range t.steps {
		fmt.Fprintf(&b, "%-12s %s\n", s.Name, s.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "%-12s %s\n", "total", t.Total().Round(time.Millisecond))
	return b.String()
}
