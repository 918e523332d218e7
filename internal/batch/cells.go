package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ddrkit/ddrsync/internal/schema"
)

// lineBreak is how line breaks inside text cells are written.
const lineBreak = `\n`

var breaks = strings.NewReplacer("\r\n", lineBreak, "\r", lineBreak, "\n", lineBreak)

// normalizeText trims s and folds every kind of line break into the
// escaped form so a text cell never spans lines.
func normalizeText(s string) string {
	return strings.TrimSpace(breaks.Replace(strings.TrimSpace(s)))
}

// formatCell renders a record value for a table.
func formatCell(v any, typ schema.FieldType) (string, error) {
	if v == nil {
		return "", nil
	}
	if typ == schema.TypeText {
		switch x := v.(type) {
		case string:
			return normalizeText(x), nil
		case json.Number:
			return x.String(), nil
		case bool:
			if x {
				return "true", nil
			}
			return "false", nil
		}
	}
	return compactJSON(v)
}

// parseCell turns a table cell back into a record value. Every `\n` in a
// text cell becomes a line break; other backslashes are kept as written.
func parseCell(cell string, typ schema.FieldType) (any, error) {
	if typ != schema.TypeJSON {
		return strings.ReplaceAll(strings.TrimSpace(cell), lineBreak, "\n"), nil
	}
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(cell))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: trailing data")
	}
	return v, nil
}

func compactJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// sameValue compares two record values by their JSON encoding.
func sameValue(a, b any) bool {
	ja, err := compactJSON(a)
	if err != nil {
		return false
	}
	jb, err := compactJSON(b)
	if err != nil {
		return false
	}
	return ja == jb
}
