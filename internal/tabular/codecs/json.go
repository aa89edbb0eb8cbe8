package codecs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"sheetlocator/internal/domain"
	"sheetlocator/internal/tabular"
)

// ── JSON Codec ─────────────────────────────────────────────
// Accepts either an object of sheets, {"Sheet": [{...}, ...]}, or a bare
// array of row objects (one sheet named after the file). Encode writes the
// object form; Patch keeps the shape it was given. Sheet and column order
// follow first appearance.

type jsonCodec struct{}

func init() { tabular.RegisterCodec(&jsonCodec{}) }

func (c *jsonCodec) Format() string { return "json" }

func (c *jsonCodec) Decode(data []byte, name string) (*domain.Workbook, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	wb := &domain.Workbook{}
	switch tok {
	case json.Delim('['):
		t, err := decodeRows(dec, sheetName(name))
		if err != nil {
			return nil, err
		}
		wb.Sheets = append(wb.Sheets, t)
	case json.Delim('{'):
		for dec.More() {
			key, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("parse json: %w", err)
			}
			sheet, _ := key.(string)
			if open, err := dec.Token(); err != nil || open != json.Delim('[') {
				return nil, fmt.Errorf("sheet %q: expected array of rows", sheet)
			}
			t, err := decodeRows(dec, sheet)
			if err != nil {
				return nil, err
			}
			wb.Sheets = append(wb.Sheets, t)
		}
	default:
		return nil, fmt.Errorf("parse json: expected object or array, got %v", tok)
	}
	return wb, nil
}

// decodeRows reads row objects up to and including the closing ']'.
func decodeRows(dec *json.Decoder, sheet string) (*domain.Table, error) {
	t := &domain.Table{Name: sheet}
	seen := map[string]bool{}
	for dec.More() {
		var fields domain.OrderedFields
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("sheet %q row %d: %w", sheet, len(t.Rows), err)
		}
		rec := make(domain.Record, len(fields))
		for _, f := range fields {
			if !seen[f.Name] {
				seen[f.Name] = true
				t.Columns = append(t.Columns, f.Name)
			}
			if !f.Value.IsNull() {
				rec[f.Name] = f.Value
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}
	return t, nil
}

func (c *jsonCodec) Encode(ctx context.Context, wb *domain.Workbook) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range wb.Sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeSheetKey(&buf, t.Name); err != nil {
			return nil, err
		}
		if err := writeRows(&buf, t); err != nil {
			return nil, err
		}
	}
	buf.WriteString("\n}\n")
	return buf.Bytes(), nil
}

// Patch re-encodes the named sheets and copies every other sheet's array
// from base byte for byte. A bare-array file stays a bare array.
func (c *jsonCodec) Patch(ctx context.Context, base []byte, wb *domain.Workbook, sheets []string) ([]byte, error) {
	if trimmed := bytes.TrimSpace(base); len(trimmed) > 0 && trimmed[0] == '[' {
		if len(wb.Sheets) != 1 {
			return c.Encode(ctx, wb)
		}
		var buf bytes.Buffer
		if err := writeRows(&buf, wb.Sheets[0]); err != nil {
			return nil, err
		}
		buf.WriteByte('\n')
		return buf.Bytes(), nil
	}
	raw, err := rawSheets(base)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range wb.Sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeSheetKey(&buf, t.Name); err != nil {
			return nil, err
		}
		if kept, ok := raw[t.Name]; ok && !wb.IsTouched(t.Name) {
			buf.Write(kept)
			continue
		}
		if err := writeRows(&buf, t); err != nil {
			return nil, err
		}
	}
	buf.WriteString("\n}\n")
	return buf.Bytes(), nil
}

// rawSheets splits an object-of-sheets document into each sheet's undecoded
// array.
func rawSheets(data []byte) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("parse json: expected object of sheets")
	}
	out := map[string]json.RawMessage{}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		var rows json.RawMessage
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("sheet %v: %w", key, err)
		}
		if name, ok := key.(string); ok {
			out[name] = rows
		}
	}
	return out, nil
}

func writeSheetKey(buf *bytes.Buffer, name string) error {
	key, err := json.Marshal(name)
	if err != nil {
		return err
	}
	buf.WriteString("\n  ")
	buf.Write(key)
	buf.WriteString(": ")
	return nil
}

func writeRows(buf *bytes.Buffer, t *domain.Table) error {
	buf.WriteByte('[')
	for j := range t.Rows {
		if j > 0 {
			buf.WriteByte(',')
		}
		row, err := json.Marshal(t.Object(j))
		if err != nil {
			return fmt.Errorf("sheet %q row %d: %w", t.Name, j, err)
		}
		buf.WriteString("\n    ")
		buf.Write(row)
	}
	buf.WriteString("\n  ]")
	return nil
}
