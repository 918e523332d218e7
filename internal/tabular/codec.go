// Package tabular reads and writes the delimited text tables used to exchange
// record metadata in bulk.
//
// Every cell is written quoted, so delimiters, quote characters and line
// breaks inside a value survive a round trip unchanged. Input is decoded as
// UTF-8 with an optional leading byte order mark (spreadsheet exports often
// carry one). There is no limit on cell size.
package tabular

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Row is one line of a table. The first row of a table is its header.
type Row []string

// Dialect selects the delimiter and quote characters of a table.
type Dialect struct {
	Delimiter rune
	Quote     rune
}

// DefaultDialect is comma separated with double quotes.
var DefaultDialect = Dialect{Delimiter: ',', Quote: '"'}

// Validate rejects dialects that cannot round-trip.
func (d Dialect) Validate() error {
	bad := func(r rune) bool {
		return r == 0 || r == '\r' || r == '\n' || r == utf8.RuneError || !utf8.ValidRune(r)
	}
	if bad(d.Delimiter) {
		return fmt.Errorf("%w: delimiter %q", ErrDialect, d.Delimiter)
	}
	if bad(d.Quote) {
		return fmt.Errorf("%w: quote character %q", ErrDialect, d.Quote)
	}
	if d.Delimiter == d.Quote {
		return fmt.Errorf("%w: delimiter and quote character are both %q", ErrDialect, d.Delimiter)
	}
	return nil
}

// Decode reads a whole table with the default dialect.
func Decode(r io.Reader) ([]Row, error) {
	return DefaultDialect.Decode(r)
}

// Encode writes header and rows with the default dialect.
func Encode(w io.Writer, header Row, rows []Row) error {
	return DefaultDialect.Encode(w, header, rows)
}

type parseState int

const (
	stateFieldStart parseState = iota
	stateUnquoted
	stateQuoted
	stateQuoteInQuoted
)

// Decode reads every row of the table. Blank lines between rows are
// ignored. Cells may be quoted or bare; a bare cell may not contain the
// quote character.
func (d Dialect) Decode(r io.Reader) ([]Row, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	br := bufio.NewReader(transform.NewReader(r, unicode.UTF8BOM.NewDecoder()))

	var (
		rows       []Row
		row        Row
		field      strings.Builder
		state      = stateFieldStart
		line       = 1
		recordLine = 1
		started    bool
	)

	endField := func() {
		row = append(row, field.String())
		field.Reset()
		state = stateFieldStart
	}
	endRecord := func() {
		if started {
			endField()
			rows = append(rows, row)
		}
		row = nil
		field.Reset()
		state = stateFieldStart
		started = false
	}
	// lineBreak consumes the LF of a CRLF pair and ends the record.
	lineBreak := func(r rune) error {
		if r == '\r' {
			next, _, err := br.ReadRune()
			if err == nil && next != '\n' {
				if err := br.UnreadRune(); err != nil {
					return err
				}
			}
		}
		endRecord()
		line++
		recordLine = line
		return nil
	}

	for {
		c, _, err := br.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading table: %w", err)
		}

		switch state {
		case stateFieldStart:
			switch c {
			case d.Quote:
				started = true
				state = stateQuoted
			case d.Delimiter:
				started = true
				endField()
			case '\r', '\n':
				if err := lineBreak(c); err != nil {
					return nil, err
				}
			default:
				started = true
				field.WriteRune(c)
				state = stateUnquoted
			}

		case stateUnquoted:
			switch c {
			case d.Delimiter:
				endField()
			case '\r', '\n':
				if err := lineBreak(c); err != nil {
					return nil, err
				}
			case d.Quote:
				return nil, &MalformedTableError{Line: line, Msg: "quote character in unquoted cell"}
			default:
				field.WriteRune(c)
			}

		case stateQuoted:
			if c == d.Quote {
				state = stateQuoteInQuoted
				continue
			}
			if c == '\n' {
				line++
			}
			field.WriteRune(c)

		case stateQuoteInQuoted:
			switch c {
			case d.Quote:
				field.WriteRune(c)
				state = stateQuoted
			case d.Delimiter:
				endField()
			case '\r', '\n':
				if err := lineBreak(c); err != nil {
					return nil, err
				}
			default:
				return nil, &MalformedTableError{Line: line, Msg: fmt.Sprintf("unexpected %q after closing quote", c)}
			}
		}
	}

	if state == stateQuoted {
		return nil, &MalformedTableError{Line: recordLine, Msg: "unterminated quoted cell"}
	}
	endRecord()

	return rows, nil
}

// Encode writes header followed by rows, quoting every cell. Every row must
// have exactly one cell per header column.
func (d Dialect) Encode(w io.Writer, header Row, rows []Row) error {
	if err := d.Validate(); err != nil {
		return err
	}
	for i, row := range rows {
		if err := CheckArity(header, row, i+1); err != nil {
			return err
		}
	}

	bw := bufio.NewWriter(w)
	if err := d.writeRow(bw, header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := d.writeRow(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (d Dialect) writeRow(w *bufio.Writer, row Row) error {
	q := string(d.Quote)
	for i, cell := range row {
		if i > 0 {
			if _, err := w.WriteRune(d.Delimiter); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(q + strings.ReplaceAll(cell, q, q+q) + q); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// CheckArity returns an *ArityError when row does not line up with header.
func CheckArity(header, row Row, rowNum int) error {
	if len(row) != len(header) {
		return &ArityError{Row: rowNum, Got: len(row), Want: len(header)}
	}
	return nil
}

// Zip pairs header columns with the cells of row.
func Zip(header, row Row) (map[string]string, error) {
	if err := CheckArity(header, row, 0); err != nil {
		return nil, err
	}
	m := make(map[string]string, len(header))
	for i, name := range header {
		m[name] = row[i]
	}
	return m, nil
}
