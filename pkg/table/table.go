package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// ErrIndexOutOfRange is matched by every *IndexError.
var ErrIndexOutOfRange = errors.New("row index out of range")

// IndexError reports an access past the end of the table.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("row index %d out of range (table has %d rows)", e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// ParseError reports a structurally malformed payload. Line is 1-based, 0 when
// the problem is not tied to a line.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse table: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse table: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Logger receives non-fatal load warnings.
type Logger interface {
	Warnf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Warnf(string, ...interface{}) {}

// Table is an ordered sequence of records. Insertion order is display order.
type Table struct {
	rows []Record
}

// New builds a table from records, copying them.
func New(records ...Record) *Table {
	t := &Table{rows: make([]Record, 0, len(records))}
	for _, r := range records {
		t.Append(r)
	}
	return t
}

// Loader parses payloads, reporting field-level oddities to Log.
type Loader struct {
	Log Logger
}

// Load parses a payload with the default loader.
func Load(payload []byte) (*Table, error) {
	return Loader{}.Load(payload)
}

// Load parses a comma-delimited payload with a header row. Columns are
// matched by name; absent columns take their defaults and unknown columns are
// ignored. A missing header, a row with the wrong number of fields or a CSV
// syntax error fails the whole load.
func (l Loader) Load(payload []byte) (*Table, error) {
	log := l.Log
	if log == nil {
		log = nopLogger{}
	}

	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(payload, utf8BOM)))
	r.FieldsPerRecord = 0

	header, err := r.Read()
	if err == io.EOF {
		return nil, &ParseError{Err: errors.New("missing header row")}
	}
	if err != nil {
		return nil, csvParseError(err)
	}

	mapping, known := resolveHeader(header)
	if known == 0 {
		return nil, &ParseError{Line: 1, Err: fmt.Errorf("missing header row: no known columns in %q", header)}
	}

	t := &Table{}
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, csvParseError(err)
		}

		var rec Record
		for i, v := range fields {
			idx := mapping[i]
			if idx < 0 {
				continue
			}
			if err := schema[idx].set(&rec, v); err != nil {
				line, _ := r.FieldPos(i)
				log.Warnf("line %d: column %q: %v, treating as empty", line, schema[idx].name, err)
			}
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func csvParseError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Line: pe.Line, Err: pe.Err}
	}
	return &ParseError{Err: err}
}

// Serialize writes the table in the format Load accepts, using the canonical
// column order regardless of the order the data was loaded with.
func (t *Table) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Columns()); err != nil {
		return nil, err
	}

	fields := make([]string, len(schema))
	for _, rec := range t.rows {
		for i, c := range schema {
			fields[i] = c.get(rec)
		}
		if err := w.Write(fields); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns a copy of row i.
func (t *Table) Row(i int) (Record, error) {
	if i < 0 || i >= len(t.rows) {
		return Record{}, &IndexError{Index: i, Len: len(t.rows)}
	}
	return t.rows[i].clone(), nil
}

// Rows returns a copy of every row, in order.
func (t *Table) Rows() []Record {
	out := make([]Record, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.clone()
	}
	return out
}

// Append adds rec at the end and returns its index for this session.
func (t *Table) Append(rec Record) int {
	t.rows = append(t.rows, rec.clone())
	return len(t.rows) - 1
}

// Update replaces row i in place. Row count and other indices are unchanged.
func (t *Table) Update(i int, rec Record) error {
	if i < 0 || i >= len(t.rows) {
		return &IndexError{Index: i, Len: len(t.rows)}
	}
	t.rows[i] = rec.clone()
	return nil
}

// Clone returns a deep copy that shares nothing with t.
func (t *Table) Clone() *Table {
	return &Table{rows: t.Rows()}
}

// Equal reports whether both tables hold the same rows in the same order.
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() {
		return false
	}
	for i := range t.rows {
		if !t.rows[i].Equal(o.rows[i]) {
			return false
		}
	}
	return true
}
