package tabular

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"sheetlocator/internal/domain"
)

// Clean normalizes a table as loaded from its backing store.
//
// Column names are normalized (domain.NormalizeColumnName). Columns whose
// normalized name is empty or starts with "unnamed" are dropped, duplicates
// are renamed name.1, name.2, ... Rows whose every cell is null are dropped.
// The raw names are kept in Source, aligned with Columns, and each row's raw
// index in Origin, so Merge can write the view back.
func Clean(t *domain.Table) *domain.Table {
	out := &domain.Table{Name: t.Name, Origin: []int{}}

	type keep struct{ raw, name string }
	var kept []keep
	used := map[string]bool{}
	for _, raw := range t.Columns {
		name := domain.NormalizeColumnName(raw)
		if name == "" || strings.HasPrefix(name, "unnamed") {
			continue
		}
		if used[name] {
			for n := 1; ; n++ {
				cand := fmt.Sprintf("%s.%d", name, n)
				if !used[cand] {
					name = cand
					break
				}
			}
		}
		used[name] = true
		kept = append(kept, keep{raw: raw, name: name})
	}

	out.Columns = make([]string, len(kept))
	out.Source = make([]string, len(kept))
	for i, k := range kept {
		out.Columns[i] = k.name
		out.Source[i] = k.raw
	}

	for i, r := range t.Rows {
		rec := make(domain.Record, len(kept))
		empty := true
		for _, k := range kept {
			v := r[k.raw]
			if v.IsNull() {
				continue
			}
			rec[k.name] = v
			empty = false
		}
		if !empty {
			out.Rows = append(out.Rows, rec)
			out.Origin = append(out.Origin, i)
		}
	}
	return out
}

// CleanWorkbook returns a cleaned copy of every sheet of wb.
func CleanWorkbook(wb *domain.Workbook) *domain.Workbook {
	out := &domain.Workbook{Sheets: make([]*domain.Table, len(wb.Sheets))}
	for i, t := range wb.Sheets {
		out.Sheets[i] = Clean(t)
	}
	return out
}

// Merge writes a cleaned view, possibly mutated, back into the raw table it
// was made from. Rows the view kept overlay their raw row, so cells under
// dropped columns travel with them. Raw rows the view never showed stay where
// they are. Rows missing from the view are gone, and rows the view added go
// to the end.
func Merge(raw, view *domain.Table) {
	keys := make([]string, len(view.Columns))
	for i, c := range view.Columns {
		keys[i] = view.SourceName(c)
	}
	shown := func(r domain.Record) bool {
		return lo.SomeBy(keys, func(k string) bool { return !r[k].IsNull() })
	}
	overlay := func(base, r domain.Record) domain.Record {
		out := make(domain.Record, len(base)+len(r))
		for k, v := range base {
			out[k] = v
		}
		for i, c := range view.Columns {
			if v := r[c]; v.IsNull() {
				delete(out, keys[i])
			} else {
				out[keys[i]] = v
			}
		}
		return out
	}

	kept := make(map[int]domain.Record, len(view.Rows))
	var added []domain.Record
	for i, r := range view.Rows {
		o := -1
		if i < len(view.Origin) {
			o = view.Origin[i]
		}
		if o < 0 || o >= len(raw.Rows) {
			added = append(added, r)
			continue
		}
		kept[o] = r
	}

	rows := make([]domain.Record, 0, len(raw.Rows)+len(added))
	for i, r := range raw.Rows {
		if v, ok := kept[i]; ok {
			rows = append(rows, overlay(r, v))
		} else if !shown(r) {
			rows = append(rows, r)
		}
	}
	for _, r := range added {
		rows = append(rows, overlay(nil, r))
	}
	raw.Rows = rows
}

// ParseCell turns a text cell (CSV, xlsx) into a Value. Empty cells are null;
// a cell is a number only when its canonical number form is the exact text,
// so "007" and "1e3" stay strings and writing back is lossless.
func ParseCell(s string) domain.Value {
	if s == "" {
		return domain.Null()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if strconv.FormatFloat(f, 'f', -1, 64) == s {
			return domain.Number(f)
		}
	}
	return domain.String(s)
}

// UniqueHeaders prepares a raw header row for keying records: blank headers
// become "Unnamed: i" and exact repeats become "name.1", "name.2".
func UniqueHeaders(raw []string) []string {
	out := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		if used[h] {
			base := h
			for n := 1; ; n++ {
				h = fmt.Sprintf("%s.%d", base, n)
				if !used[h] {
					break
				}
			}
		}
		used[h] = true
		out[i] = h
	}
	return out
}
