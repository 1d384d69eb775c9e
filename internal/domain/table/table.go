// Package table defines the row-oriented tabular structure exchanged
// between pipeline stages. Both the raw dataset and every derived output are
// represented as a Table, which is also what the quality evaluator and the
// report writers consume.
package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies what a Cell holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindDate
)

// dateLayouts are tried in order when coercing a string cell to a date.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2 Jan 2006",
	time.RFC3339,
}

// Cell is one typed value in a table. The zero value is a null cell.
type Cell struct {
	kind Kind
	str  string
	num  float64
	date time.Time
}

// Null returns a null cell.
func Null() Cell { return Cell{} }

// String returns a string cell. Empty strings are stored as null, matching
// how the source CSV marks missing values.
func String(s string) Cell {
	if s == "" {
		return Null()
	}
	return Cell{kind: KindString, str: s}
}

// Number returns a numeric cell.
func Number(f float64) Cell { return Cell{kind: KindNumber, num: f} }

// Date returns a date cell.
func Date(t time.Time) Cell { return Cell{kind: KindDate, date: t} }

// Kind reports what the cell holds.
func (c Cell) Kind() Kind { return c.kind }

// IsNull reports whether the cell is missing.
func (c Cell) IsNull() bool { return c.kind == KindNull }

// Text renders the cell for serialization. Null cells render empty.
func (c Cell) Text() string {
	switch c.kind {
	case KindString:
		return c.str
	case KindNumber:
		return strconv.FormatFloat(c.num, 'f', -1, 64)
	case KindDate:
		return c.date.Format("2006-01-02")
	default:
		return ""
	}
}

// AsNumber coerces the cell to a float. String cells are parsed; the second
// return is false when the cell is null or not coercible.
func (c Cell) AsNumber() (float64, bool) {
	switch c.kind {
	case KindNumber:
		return c.num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(c.str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AsTime coerces the cell to a calendar date. String cells are parsed
// against the known layouts.
func (c Cell) AsTime() (time.Time, bool) {
	switch c.kind {
	case KindDate:
		return c.date, true
	case KindString:
		s := strings.TrimSpace(c.str)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// Table is a named, ordered collection of rows sharing a column set.
type Table struct {
	name   string
	cols   []string
	colIdx map[string]int
	rows   [][]Cell
}

// New creates an empty table with the given column order.
func New(name string, cols []string) *Table {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c] = i
	}
	return &Table{name: name, cols: append([]string(nil), cols...), colIdx: idx}
}

// Name returns the table identifier used as a check target.
func (t *Table) Name() string { return t.name }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Columns returns the ordered column names.
func (t *Table) Columns() []string { return append([]string(nil), t.cols...) }

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.colIdx[name]
	return ok
}

// AppendRow adds a row; its arity must match the column set. The cells are
// copied, so callers may reuse their slice between calls.
func (t *Table) AppendRow(cells ...Cell) error {
	if len(cells) != len(t.cols) {
		return fmt.Errorf("%w: got %d cells for %d columns", ErrArity, len(cells), len(t.cols))
	}
	t.rows = append(t.rows, append([]Cell(nil), cells...))
	return nil
}

// Cell returns the cell at row i in the named column.
func (t *Table) Cell(i int, col string) (Cell, bool) {
	j, ok := t.colIdx[col]
	if !ok || i < 0 || i >= len(t.rows) {
		return Cell{}, false
	}
	return t.rows[i][j], true
}

// Column returns all cells of the named column in row order.
func (t *Table) Column(name string) ([]Cell, bool) {
	j, ok := t.colIdx[name]
	if !ok {
		return nil, false
	}
	out := make([]Cell, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[j]
	}
	return out, true
}

// Row returns the cells of row i in column order.
func (t *Table) Row(i int) []Cell {
	if i < 0 || i >= len(t.rows) {
		return nil
	}
	return t.rows[i]
}
