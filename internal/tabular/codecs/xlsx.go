package codecs

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"sheetlocator/internal/domain"
	"sheetlocator/internal/tabular"
)

// ── XLSX Codec ─────────────────────────────────────────────
// Every worksheet is a sheet; the first row is the header. Text cells stay
// text even when they look numeric. Numeric cells carrying a date number
// format are read as ISO dates (2006-01-02, with the time appended when it is
// not midnight). Blank header cells and blank rows are kept so the sheet
// writes back with the same shape.

type xlsxCodec struct{}

func init() { tabular.RegisterCodec(&xlsxCodec{}) }

func (c *xlsxCodec) Format() string { return "xlsx" }

func (c *xlsxCodec) Decode(data []byte, name string) (*domain.Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	styles := &dateStyles{f: f, cache: map[int]bool{}}

	wb := &domain.Workbook{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		t := &domain.Table{Name: sheet}
		if len(rows) > 0 {
			width := 0
			for _, row := range rows {
				width = max(width, len(row))
			}
			t.Header = make([]string, width)
			copy(t.Header, rows[0])
			t.Columns = tabular.UniqueHeaders(t.Header)
		}
		for r, row := range rows[min(1, len(rows)):] {
			rec := make(domain.Record, len(t.Columns))
			for j, h := range t.Columns {
				if j >= len(row) {
					break
				}
				v := tabular.ParseCell(row[j])
				if v.IsNull() {
					continue
				}
				if serial, ok := v.Float(); ok {
					cell, _ := excelize.CoordinatesToCellName(j+1, r+2)
					typ, _ := f.GetCellType(sheet, cell)
					switch {
					case typ == excelize.CellTypeBool:
						v = domain.Bool(serial != 0)
					case typ == excelize.CellTypeSharedString, typ == excelize.CellTypeInlineString:
						v = domain.String(row[j])
					case styles.isDate(sheet, cell):
						if iso, ok := excelDate(serial, date1904); ok {
							v = domain.String(iso)
						}
					}
				}
				rec[h] = v
			}
			t.Rows = append(t.Rows, rec)
		}
		wb.Sheets = append(wb.Sheets, t)
	}
	return wb, nil
}

func (c *xlsxCodec) Encode(ctx context.Context, wb *domain.Workbook) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range wb.Sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i == 0 {
			// NewFile starts with one default sheet; reuse it for the first.
			if err := f.SetSheetName(f.GetSheetName(0), t.Name); err != nil {
				return nil, fmt.Errorf("name sheet %q: %w", t.Name, err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", t.Name, err)
		}
		if err := writeSheet(ctx, f, t); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Patch rewrites the cells of the named sheets that differ from base. Other
// sheets, and unchanged cells of patched ones, keep their values and styles.
func (c *xlsxCodec) Patch(ctx context.Context, base []byte, wb *domain.Workbook, sheets []string) ([]byte, error) {
	prev, err := c.Decode(base, "")
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(base))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	styles := &dateStyles{f: f, cache: map[int]bool{}}

	for _, name := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := wb.Sheet(name)
		if t == nil {
			continue
		}
		old := prev.Sheet(name)
		if old == nil {
			if _, err := f.NewSheet(name); err != nil {
				return nil, fmt.Errorf("create sheet %q: %w", name, err)
			}
			if err := writeSheet(ctx, f, t); err != nil {
				return nil, err
			}
			continue
		}
		if err := patchSheet(ctx, f, styles, t, old); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// patchSheet writes t over old cell by cell, skipping equal cells and
// clearing cells past t's last row.
func patchSheet(ctx context.Context, f *excelize.File, styles *dateStyles, t, old *domain.Table) error {
	header, oldHeader := t.HeaderRow(), old.HeaderRow()
	for j, h := range header {
		if j < len(oldHeader) && oldHeader[j] == h {
			continue
		}
		v := domain.Null()
		if h != "" {
			v = domain.String(h)
		}
		if err := setCell(f, styles, t.Name, j+1, 1, v); err != nil {
			return err
		}
	}

	for i := range max(len(t.Rows), len(old.Rows)) {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for j, c := range t.Columns {
			var nv, ov domain.Value
			if i < len(t.Rows) {
				nv = t.Rows[i][c]
			}
			if i < len(old.Rows) && j < len(old.Columns) {
				ov = old.Rows[i][old.Columns[j]]
			}
			if nv.Equal(ov) {
				continue
			}
			if err := setCell(f, styles, t.Name, j+1, i+2, nv); err != nil {
				return err
			}
		}
	}
	return nil
}

// setCell writes v, turning ISO text back into a date when the cell is
// date-formatted. Null clears the cell but keeps its style.
func setCell(f *excelize.File, styles *dateStyles, sheet string, col, row int, v domain.Value) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	x := v.Any()
	if s, ok := x.(string); ok && styles.isDate(sheet, cell) {
		if tm, ok := parseISODate(s); ok {
			x = tm
		}
	}
	if err := f.SetCellValue(sheet, cell, x); err != nil {
		return fmt.Errorf("sheet %q cell %s: %w", sheet, cell, err)
	}
	return nil
}

func parseISODate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05"} {
		if tm, err := time.Parse(layout, s); err == nil {
			return tm, true
		}
	}
	return time.Time{}, false
}

func writeSheet(ctx context.Context, f *excelize.File, t *domain.Table) error {
	sw, err := f.NewStreamWriter(t.Name)
	if err != nil {
		return fmt.Errorf("stream sheet %q: %w", t.Name, err)
	}
	header := make([]any, len(t.Columns))
	for i, h := range t.HeaderRow() {
		if h != "" {
			header[i] = h
		}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("sheet %q header: %w", t.Name, err)
	}
	for i, r := range t.Rows {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		cells := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			cells[j] = r[c].Any()
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("sheet %q row %d: %w", t.Name, i, err)
		}
	}
	return sw.Flush()
}

func excelDate(serial float64, date1904 bool) (string, bool) {
	tm, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return "", false
	}
	if tm.Hour() == 0 && tm.Minute() == 0 && tm.Second() == 0 {
		return tm.Format("2006-01-02"), true
	}
	return tm.Format("2006-01-02 15:04:05"), true
}

// dateStyles memoizes which cell style ids carry a date number format.
type dateStyles struct {
	f     *excelize.File
	cache map[int]bool
}

func (d *dateStyles) isDate(sheet, cell string) bool {
	id, err := d.f.GetCellStyle(sheet, cell)
	if err != nil || id == 0 {
		return false
	}
	if v, ok := d.cache[id]; ok {
		return v
	}
	st, err := d.f.GetStyle(id)
	v := err == nil && isDateFormat(st)
	d.cache[id] = v
	return v
}

func isDateFormat(st *excelize.Style) bool {
	switch {
	case st.NumFmt >= 14 && st.NumFmt <= 22, st.NumFmt >= 45 && st.NumFmt <= 47:
		return true
	case st.CustomNumFmt == nil:
		return false
	}
	var b strings.Builder
	quoted, bracket := false, false
	for _, r := range strings.ToLower(*st.CustomNumFmt) {
		switch {
		case r == '"':
			quoted = !quoted
		case r == '[' && !quoted:
			bracket = true
		case r == ']' && !quoted:
			bracket = false
		case !quoted && !bracket:
			b.WriteRune(r)
		}
	}
	return strings.ContainsAny(b.String(), "dy")
}
