// Package table holds the row-oriented results returned by paged queries.
//
// A Table is deliberately small: named columns, rows of loosely typed
// cells, and the operations the client needs to merge partial results
// (Concat), shape GraphQL records (FromJSON, FromRecords) and export
// them (WriteCSV).
package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"
)

// Table is an ordered set of named columns and rows of cells. A nil cell
// is a missing value.
type Table struct {
	Columns []string
	Rows    [][]any
}

// New returns an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows. A nil table has none.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Append adds one row. The row must have one cell per column.
func (t *Table) Append(row ...any) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("table: row has %d cells, want %d", len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Column returns the cells of column name, or nil if it does not exist.
func (t *Table) Column(name string) []any {
	i := t.Index(name)
	if i < 0 {
		return nil
	}
	out := make([]any, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// Filter returns a new table with the rows for which keep returns true.
func (t *Table) Filter(keep func(row []any) bool) *Table {
	out := New(t.Columns...)
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// WithColumn returns a copy of t with a constant-valued column appended.
func (t *Table) WithColumn(name string, value any) *Table {
	out := New(append(append([]string(nil), t.Columns...), name)...)
	out.Rows = make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = append(append(make([]any, 0, len(row)+1), row...), value)
	}
	return out
}

// Concat stacks tables vertically in argument order. The result's columns
// are the union of the inputs' columns in first-seen order; cells for
// columns a table lacks are nil. Nil tables are skipped.
func Concat(tables ...*Table) *Table {
	out := &Table{}
	pos := make(map[string]int)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			if _, ok := pos[c]; !ok {
				pos[c] = len(out.Columns)
				out.Columns = append(out.Columns, c)
			}
		}
	}

	for _, t := range tables {
		if t == nil {
			continue
		}
		idx := make([]int, len(t.Columns))
		for i, c := range t.Columns {
			idx[i] = pos[c]
		}
		for _, row := range t.Rows {
			merged := make([]any, len(out.Columns))
			for i, v := range row {
				merged[idx[i]] = v
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out
}

// FromRecords builds a table from decoded JSON objects, flattening nested
// objects into dotted column names ("channelGroups.id"). Keys of each
// record are taken in sorted order; use FromJSON to keep document order.
func FromRecords(records []map[string]any) *Table {
	b := newBuilder()
	for _, rec := range records {
		var fields []field
		flattenMap("", rec, &fields)
		b.add(fields)
	}
	return b.table()
}

// FromJSON builds a table from a JSON array of objects, flattening nested
// objects into dotted column names. Columns appear in document order.
// A JSON null or empty array yields an empty table.
func FromJSON(data []byte) (*Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeOrdered(dec)
	if err != nil {
		return nil, fmt.Errorf("table: decode: %w", err)
	}

	b := newBuilder()
	switch v := v.(type) {
	case nil:
	case []any:
		for i, item := range v {
			obj, ok := item.(object)
			if !ok {
				return nil, fmt.Errorf("table: element %d is not an object", i)
			}
			var fields []field
			flattenObject("", obj, &fields)
			b.add(fields)
		}
	case object:
		var fields []field
		flattenObject("", v, &fields)
		b.add(fields)
	default:
		return nil, fmt.Errorf("table: expected an array of objects, got %T", v)
	}
	return b.table(), nil
}

// WriteCSV writes a header line and one line per row. Missing values and
// NaN are written as empty cells.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = FormatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatCell renders one cell for text output.
func FormatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		if math.IsNaN(float64(v)) {
			return ""
		}
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case json.Number:
		return v.String()
	case []any, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

type field struct {
	key   string
	value any
}

// object is a JSON object with its key order preserved.
type object []field

type builder struct {
	pos  map[string]int
	cols []string
	rows [][]field
}

func newBuilder() *builder {
	return &builder{pos: make(map[string]int)}
}

func (b *builder) add(fields []field) {
	for _, f := range fields {
		if _, ok := b.pos[f.key]; !ok {
			b.pos[f.key] = len(b.cols)
			b.cols = append(b.cols, f.key)
		}
	}
	b.rows = append(b.rows, fields)
}

func (b *builder) table() *Table {
	t := New(b.cols...)
	t.Rows = make([][]any, len(b.rows))
	for i, fields := range b.rows {
		row := make([]any, len(b.cols))
		for _, f := range fields {
			row[b.pos[f.key]] = f.value
		}
		t.Rows[i] = row
	}
	return t
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func flattenMap(prefix string, m map[string]any, out *[]field) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if nested, ok := m[k].(map[string]any); ok && len(nested) > 0 {
			flattenMap(join(prefix, k), nested, out)
			continue
		}
		*out = append(*out, field{key: join(prefix, k), value: m[k]})
	}
}

func flattenObject(prefix string, obj object, out *[]field) {
	for _, f := range obj {
		if nested, ok := f.value.(object); ok && len(nested) > 0 {
			flattenObject(join(prefix, f.key), nested, out)
			continue
		}
		*out = append(*out, field{key: join(prefix, f.key), value: plain(f.value)})
	}
}

// plain converts ordered values that stay inside a cell back to ordinary
// Go values.
func plain(v any) any {
	switch v := v.(type) {
	case object:
		m := make(map[string]any, len(v))
		for _, f := range v {
			m[f.key] = plain(f.value)
		}
		return m
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plain(item)
		}
		return out
	default:
		return v
	}
}

// decodeOrdered reads one JSON value, keeping object key order. Numbers
// become int64 when integral and float64 otherwise.
func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	switch tok := tok.(type) {
	case json.Delim:
		switch tok {
		case '{':
			var obj object
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				obj = append(obj, field{key: key, value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			if obj == nil {
				obj = object{}
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", tok)
		}
	case json.Number:
		if i, err := tok.Int64(); err == nil {
			return i, nil
		}
		f, err := tok.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return tok, nil
	}
}
