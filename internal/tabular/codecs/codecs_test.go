package codecs_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"sheetlocator/internal/domain"
	"sheetlocator/internal/registry"
	"sheetlocator/internal/tabular"
	_ "sheetlocator/internal/tabular/codecs"
)

func workbook() *domain.Workbook {
	return &domain.Workbook{Sheets: []*domain.Table{
		{
			Name:    "Projects",
			Columns: []string{"project_id", "project_name", "status", "budget", "billable"},
			Rows: []domain.Record{
				{"project_id": domain.String("PRJ001"), "project_name": domain.String("Phoenix"), "status": domain.String("Active"), "budget": domain.Number(1200.5), "billable": domain.Bool(true)},
				{"project_id": domain.String("007"), "project_name": domain.String("Atlas"), "budget": domain.Number(300)},
			},
		},
		{
			Name:    "Leave",
			Columns: []string{"emp_id", "status", "start_date"},
			Rows: []domain.Record{
				{"emp_id": domain.Number(17), "status": domain.String("Approved"), "start_date": domain.String("2025-09-01")},
			},
		},
	}}
}

func openStore(t *testing.T, name string) tabular.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	ds := registry.Dataset{Key: "test", Format: registry.FormatFromPath(path), Location: path}
	s, err := tabular.Open(context.Background(), ds, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func assertSameTable(t *testing.T, want, got *domain.Table) {
	t.Helper()
	if got.Name != want.Name {
		t.Errorf("sheet name = %q, want %q", got.Name, want.Name)
	}
	if len(got.Columns) != len(want.Columns) {
		t.Fatalf("sheet %q columns = %v, want %v", want.Name, got.Columns, want.Columns)
	}
	for i := range want.Columns {
		if got.Columns[i] != want.Columns[i] {
			t.Errorf("column %d = %q, want %q", i, got.Columns[i], want.Columns[i])
		}
	}
	if len(got.Rows) != len(want.Rows) {
		t.Fatalf("sheet %q has %d rows, want %d", want.Name, len(got.Rows), len(want.Rows))
	}
	for i := range want.Rows {
		for _, c := range want.Columns {
			if !got.Rows[i][c].Equal(want.Rows[i][c]) {
				t.Errorf("sheet %q row %d %s = %v (%s), want %v (%s)", want.Name, i, c,
					got.Rows[i][c], got.Rows[i][c].Kind(), want.Rows[i][c], want.Rows[i][c].Kind())
			}
		}
	}
}

func TestXLSX_RoundTripPreservesSheetsAndValues(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, "book.xlsx")
	want := workbook()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Sheets) != 2 {
		t.Fatalf("expected 2 sheets, got %v", got.SheetNames())
	}
	for i := range want.Sheets {
		assertSameTable(t, want.Sheets[i], got.Sheets[i])
	}
}

func TestXLSX_PatchLeavesUntouchedSheets(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "book.xlsx")
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", "Projects")
	f.NewSheet("Leave")
	f.SetSheetRow("Projects", "A1", &[]any{"Project ID", nil, "Budget"})
	f.SetSheetRow("Projects", "A2", &[]any{"P1", "scratch", 10})
	f.SetSheetRow("Projects", "A3", &[]any{"P2", nil, 20})
	f.SetSheetRow("Leave", "A1", &[]any{"Emp", "", "Start"})
	f.SetSheetRow("Leave", "A2", &[]any{17, "aside", time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)})
	f.SetSheetRow("Leave", "A4", &[]any{18})
	dateStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 14})
	f.SetCellStyle("Leave", "C2", "C2", dateStyle)
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	read := func(sheet string) [][]string {
		t.Helper()
		f, err := excelize.OpenFile(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			t.Fatal(err)
		}
		return rows
	}
	leaveBefore := read("Leave")

	s, err := tabular.Open(ctx, registry.Dataset{Key: "b", Format: "xlsx", Location: path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	wb, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	projects := wb.Sheet("Projects")
	if len(projects.Header) != 3 || projects.Header[1] != "" {
		t.Fatalf("header = %q, want a blank second cell", projects.Header)
	}
	projects.Rows[1]["Budget"] = domain.Number(25)
	wb.Touched = []string{"Projects"}
	if err := s.Save(ctx, wb); err != nil {
		t.Fatal(err)
	}

	leaveAfter := read("Leave")
	if !slices.EqualFunc(leaveBefore, leaveAfter, func(a, b []string) bool { return slices.Equal(a, b) }) {
		t.Errorf("Leave changed:\nbefore %q\nafter  %q", leaveBefore, leaveAfter)
	}
	got := read("Projects")
	want := [][]string{{"Project ID", "", "Budget"}, {"P1", "scratch", "10"}, {"P2", "", "25"}}
	if !slices.EqualFunc(got, want, func(a, b []string) bool { return slices.Equal(a, b) }) {
		t.Errorf("Projects = %q, want %q", got, want)
	}
}

func TestJSON_PatchCopiesUntouchedSheets(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "book.json")
	leave := `[ {"emp": 17,   "meta": {"days": [1, 2]}} ]`
	data := `{"Projects": [{"id": "P1", "budget": 10}], "Leave": ` + leave + `}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := tabular.Open(ctx, registry.Dataset{Key: "b", Format: "json", Location: path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	wb, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wb.Sheet("Projects").Rows[0]["budget"] = domain.Number(12)
	wb.Touched = []string{"Projects"}
	if err := s.Save(ctx, wb); err != nil {
		t.Fatal(err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"Leave": `+leave) {
		t.Errorf("Leave was rewritten:\n%s", out)
	}
	if !strings.Contains(string(out), `{"id":"P1","budget":12}`) {
		t.Errorf("Projects edit missing:\n%s", out)
	}
}

func TestJSON_NestedCellsWriteBackAsJSON(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "people.json")
	data := `[{"id": 1, "tags": ["a", "b"], "meta": {"k": "v"}}]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := tabular.Open(ctx, registry.Dataset{Key: "p", Format: "json", Location: path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	wb, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	row := wb.Sheets[0].Rows[0]
	if row["tags"].Kind() != domain.KindJSON || row["tags"].Text() != `["a","b"]` {
		t.Fatalf("tags = %v (%s)", row["tags"], row["tags"].Kind())
	}
	if err := s.Save(ctx, wb); err != nil {
		t.Fatal(err)
	}
	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `{"id":1,"tags":["a","b"],"meta":{"k":"v"}}`) {
		t.Errorf("nested cells were not written back as JSON:\n%s", out)
	}
}

func TestJSON_RoundTripKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, "book.json")
	want := workbook()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for i := range want.Sheets {
		assertSameTable(t, want.Sheets[i], got.Sheets[i])
	}
}

func TestJSON_BareArrayIsOneSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.json")
	data := `[{"Name":"Ana","Emp ID":1},{"Name":"Bo","City":"Lima"}]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := tabular.Open(context.Background(), registry.Dataset{Key: "p", Format: "json", Location: path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	wb, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if wb.Sheet("people") == nil {
		t.Fatalf("expected sheet named after the file, got %v", wb.SheetNames())
	}
	tbl := tabular.Clean(wb.Sheet("people"))
	want := []string{"name", "emp_id", "city"}
	for i, c := range want {
		if tbl.Columns[i] != c {
			t.Errorf("column %d = %q, want %q", i, tbl.Columns[i], c)
		}
	}
	if !tbl.Rows[1]["emp_id"].IsNull() {
		t.Error("missing key should load as null")
	}
}

func TestCSV_LosslessCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.csv")
	data := "Code,Qty,Note,,Qty\n007,3,1e3,x,4\n,,,,\nAB12,2.50,hello,y,5\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := tabular.Open(context.Background(), registry.Dataset{Key: "c", Format: "csv", Location: path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	wb, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	tbl := tabular.Clean(wb.Sheets[0])
	if tbl.Name != "codes" {
		t.Errorf("sheet name = %q", tbl.Name)
	}
	wantCols := []string{"code", "qty", "note", "qty.1"}
	if len(tbl.Columns) != len(wantCols) {
		t.Fatalf("columns = %v, want %v", tbl.Columns, wantCols)
	}
	for i, c := range wantCols {
		if tbl.Columns[i] != c {
			t.Errorf("column %d = %q, want %q", i, tbl.Columns[i], c)
		}
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("all-null row should be dropped, got %d rows", len(tbl.Rows))
	}
	r := tbl.Rows[0]
	if r["code"].Kind() != domain.KindString || r["code"].Text() != "007" {
		t.Errorf("code = %v (%s), want string 007", r["code"], r["code"].Kind())
	}
	if r["qty"].Kind() != domain.KindNumber {
		t.Errorf("qty should be numeric, got %s", r["qty"].Kind())
	}
	if r["note"].Kind() != domain.KindString {
		t.Errorf("1e3 should stay a string, got %s", r["note"].Kind())
	}
	if tbl.Rows[1]["qty"].Text() != "2.50" {
		t.Errorf("2.50 should keep its text, got %q", tbl.Rows[1]["qty"].Text())
	}

	if err := s.Save(context.Background(), wb); err != nil {
		t.Fatal(err)
	}
	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != data {
		t.Errorf("rewritten csv:\n%s\nwant:\n%s", out, data)
	}
}

func TestCSV_RejectsMultipleSheets(t *testing.T) {
	s := openStore(t, "two.csv")
	if err := s.Save(context.Background(), workbook()); err == nil {
		t.Fatal("expected error saving two sheets to csv")
	}
}

func TestSave_CancelledContextLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	s, err := tabular.Open(context.Background(), registry.Dataset{Key: "b", Format: "xlsx", Location: path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), workbook()); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(path)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Save(ctx, &domain.Workbook{Sheets: []*domain.Table{{Name: "Other"}}}); err == nil {
		t.Fatal("expected cancelled save to fail")
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Fatal("cancelled save modified the file")
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestOpen_MissingFile(t *testing.T) {
	s := openStore(t, "missing.xlsx")
	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("expected error loading a missing file")
	}
}
