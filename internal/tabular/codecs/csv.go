package codecs

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"sheetlocator/internal/domain"
	"sheetlocator/internal/tabular"
)

// ── CSV Codec ──────────────────────────────────────────────
// A CSV file is a workbook with one sheet named after the file.

type csvCodec struct{}

func init() { tabular.RegisterCodec(&csvCodec{}) }

func (c *csvCodec) Format() string { return "csv" }

func (c *csvCodec) Decode(data []byte, name string) (*domain.Workbook, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	t := &domain.Table{Name: sheetName(name)}
	if len(records) == 0 {
		return &domain.Workbook{Sheets: []*domain.Table{t}}, nil
	}

	width := 0
	for _, row := range records {
		width = max(width, len(row))
	}
	t.Header = make([]string, width)
	copy(t.Header, records[0])
	t.Columns = tabular.UniqueHeaders(t.Header)
	for _, row := range records[1:] {
		rec := make(domain.Record, len(t.Columns))
		for j, h := range t.Columns {
			if j < len(row) {
				if v := tabular.ParseCell(row[j]); !v.IsNull() {
					rec[h] = v
				}
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	return &domain.Workbook{Sheets: []*domain.Table{t}}, nil
}

func (c *csvCodec) Encode(ctx context.Context, wb *domain.Workbook) ([]byte, error) {
	if len(wb.Sheets) != 1 {
		return nil, fmt.Errorf("csv holds exactly one sheet, got %d", len(wb.Sheets))
	}
	t := wb.Sheets[0]

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.HeaderRow()); err != nil {
		return nil, err
	}
	row := make([]string, len(t.Columns))
	for i, r := range t.Rows {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for j, col := range t.Columns {
			row[j] = r[col].Text()
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func sheetName(fileName string) string {
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
