// Package natsort orders record identifiers the way people read them.
//
// Identifiers are split into alternating runs of digits and non-digits.
// Digit runs compare as integers, everything else compares lexically, so
// "ddr-testing-2" sorts before "ddr-testing-10".
package natsort

import (
	"sort"
	"strconv"
	"strings"
)

// chunk is one run of an identifier.
type chunk struct {
	text    string
	numeric bool
}

// split breaks s into alternating digit and non-digit runs.
func split(s string) []chunk {
	var chunks []chunk
	var b strings.Builder
	numeric := false

	flush := func() {
		if b.Len() > 0 {
			chunks = append(chunks, chunk{text: b.String(), numeric: numeric})
			b.Reset()
		}
	}

	for i, r := range s {
		d := r >= '0' && r <= '9'
		if i > 0 && d != numeric {
			flush()
		}
		numeric = d
		b.WriteRune(r)
	}
	flush()

	return chunks
}

// compareNumeric compares two digit runs of arbitrary length without
// overflowing. Leading zeros are ignored for magnitude; when magnitudes tie
// the shorter run sorts first so "01" and "1" still have a stable order.
func compareNumeric(a, b string) int {
	ta := strings.TrimLeft(a, "0")
	tb := strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(ta, tb); c != 0 {
		return c
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Compare returns -1, 0 or 1 depending on the natural order of a and b.
func Compare(a, b string) int {
	ca, cb := split(a), split(b)
	for i := 0; i < len(ca) && i < len(cb); i++ {
		x, y := ca[i], cb[i]
		var c int
		if x.numeric && y.numeric {
			c = compareNumeric(x.text, y.text)
		} else {
			c = strings.Compare(x.text, y.text)
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case len(ca) < len(cb):
		return -1
	case len(ca) > len(cb):
		return 1
	}
	return 0
}

// Less reports whether a sorts before b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// Sort sorts ids in place in natural order. The sort is stable so equal
// identifiers keep their input order.
func Sort(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return Less(ids[i], ids[j]) })
}

// Sorted returns a naturally ordered copy of ids.
func Sorted(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	Sort(out)
	return out
}

// TrailingNumber extracts the last digit run of s as an integer, the usual
// sequence number of an identifier ("ddr-testing-123-15" yields 15). ok is
// false when s has no digits or the run does not fit in an int.
func TrailingNumber(s string) (int, bool) {
	chunks := split(s)
	for i := len(chunks) - 1; i >= 0; i-- {
		if chunks[i].numeric {
			n, err := strconv.Atoi(chunks[i].text)
			if err != nil {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}
