package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one row keyed by normalized column name.
// Columns absent from the map are null.
type Record map[string]Value

// Table is one named sheet: an ordered list of columns and the rows under them.
// Source holds the column names as they appear in the backing store, aligned
// with Columns; stores that cannot rename columns (SQL, MongoDB) write with it.
//
// Header is the header row exactly as a file-shaped store read it, blanks
// included, aligned with Columns. Origin maps each row of a cleaned view back
// to its index in the raw table; rows added since are -1.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Source  []string `json:"-"`
	Header  []string `json:"-"`
	Origin  []int    `json:"-"`
	Rows    []Record `json:"rows"`
}

// Workbook is the full content of one dataset, sheets kept in file order.
// Touched names the sheets changed since load; stores that can write a single
// sheet leave the others as they are. Empty means every sheet.
type Workbook struct {
	Sheets  []*Table `json:"sheets"`
	Touched []string `json:"-"`
}

// Changed returns the sheets a store has to write back.
func (w *Workbook) Changed() []*Table {
	if len(w.Touched) == 0 {
		return w.Sheets
	}
	var out []*Table
	for _, name := range w.Touched {
		if t := w.Sheet(name); t != nil {
			out = append(out, t)
		}
	}
	return out
}

// IsTouched reports whether sheet name has to be written back.
func (w *Workbook) IsTouched(name string) bool {
	if len(w.Touched) == 0 {
		return true
	}
	for _, n := range w.Touched {
		if n == name {
			return true
		}
	}
	return false
}

// Sheet returns the sheet with the given name, or nil.
func (w *Workbook) Sheet(name string) *Table {
	for _, t := range w.Sheets {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// SheetNames returns the sheet names in file order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.Sheets))
	for i, t := range w.Sheets {
		names[i] = t.Name
	}
	return names
}

// NormalizeColumnName trims, lower-cases and replaces spaces with underscores.
func NormalizeColumnName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// FindColumn returns the table column equal to name ignoring case and
// surrounding whitespace.
func (t *Table) FindColumn(name string) (string, bool) {
	want := strings.TrimSpace(name)
	for _, c := range t.Columns {
		if strings.EqualFold(c, want) {
			return c, true
		}
	}
	return "", false
}

// SourceName maps a normalized column back to its backing-store name.
func (t *Table) SourceName(column string) string {
	for i, c := range t.Columns {
		if c == column && i < len(t.Source) && t.Source[i] != "" {
			return t.Source[i]
		}
	}
	return column
}

// HeaderRow returns the header cells to write: the verbatim Header when it
// lines up with Columns, the column names otherwise.
func (t *Table) HeaderRow() []string {
	if len(t.Header) == len(t.Columns) {
		return t.Header
	}
	return t.Columns
}

// AppendRow adds r at the end, tracked as a new row.
func (t *Table) AppendRow(r Record) {
	t.Rows = append(t.Rows, r)
	if t.Origin != nil {
		t.Origin = append(t.Origin, -1)
	}
}

// RemoveRows drops every row match accepts and returns how many went.
// Origin stays aligned with Rows.
func (t *Table) RemoveRows(match func(Record) bool) int {
	tracked := len(t.Origin) == len(t.Rows)
	rows := t.Rows[:0]
	var origin []int
	if tracked {
		origin = t.Origin[:0]
	}
	for i, r := range t.Rows {
		if match(r) {
			continue
		}
		rows = append(rows, r)
		if tracked {
			origin = append(origin, t.Origin[i])
		}
	}
	removed := len(t.Rows) - len(rows)
	clear(t.Rows[len(rows):])
	t.Rows = rows
	if tracked {
		t.Origin = origin
	}
	return removed
}

// Values returns the column's cells in row order, nulls included.
func (t *Table) Values(column string) []Value {
	out := make([]Value, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[column]
	}
	return out
}

// Object returns row i as a column-ordered JSON object.
func (t *Table) Object(i int) RowObject {
	return RowObject{Columns: t.Columns, Values: t.Rows[i]}
}

// Clone copies the table deeply enough that mutating rows of the copy never
// touches the original.
func (t *Table) Clone() *Table {
	c := &Table{
		Name:    t.Name,
		Columns: append([]string(nil), t.Columns...),
		Source:  append([]string(nil), t.Source...),
		Header:  append([]string(nil), t.Header...),
		Rows:    make([]Record, len(t.Rows)),
	}
	if t.Origin != nil {
		c.Origin = append([]int(nil), t.Origin...)
	}
	for i, r := range t.Rows {
		nr := make(Record, len(r))
		for k, v := range r {
			nr[k] = v
		}
		c.Rows[i] = nr
	}
	return c
}

// RowObject renders a record as a JSON object with keys in column order and
// explicit nulls for missing cells.
type RowObject struct {
	Columns []string
	Values  Record
}

func (o RowObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range o.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		v, err := o.Values[c].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Field is one key/value pair of an insert payload.
type Field struct {
	Name  string
	Value Value
}

// OrderedFields is a JSON object decoded with its key order preserved.
// Insert predictions are keyed on the first entry, so order matters.
type OrderedFields []Field

func (f *OrderedFields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	var out OrderedFields
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		out = append(out, Field{Name: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

func (f OrderedFields) MarshalJSON() ([]byte, error) {
	cols := make([]string, len(f))
	rec := make(Record, len(f))
	for i, fld := range f {
		cols[i] = fld.Name
		rec[fld.Name] = fld.Value
	}
	return RowObject{Columns: cols, Values: rec}.MarshalJSON()
}
