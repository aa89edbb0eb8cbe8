package index_test

import (
	"math"
	"reflect"
	"testing"

	"sheetlocator/internal/domain"
	"sheetlocator/internal/index"
)

func strs(ss ...string) []domain.Value {
	out := make([]domain.Value, len(ss))
	for i, s := range ss {
		if s == "" {
			out[i] = domain.Null()
			continue
		}
		out[i] = domain.String(s)
	}
	return out
}

func nums(fs ...float64) []domain.Value {
	out := make([]domain.Value, len(fs))
	for i, f := range fs {
		out[i] = domain.Number(f)
	}
	return out
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestColumnConfidence(t *testing.T) {
	tests := []struct {
		name   string
		column string
		values []domain.Value
		want   float64
	}{
		{"fragment max plus uniqueness clamps", "project_name", strs("Phoenix", "Atlas", "Zephyr"), 1.0},
		{"fragment without uniqueness", "status", strs("Active", "Active", "Closed", "Active"), 0.9},
		{"base score", "hours", nums(8, 8, 8, 4), 0.5},
		{"base plus uniqueness", "hours", nums(1, 2, 3, 4, 5), 0.7},
		{"long free text", "notes", strs("needs a follow-up call", "same", "same", "same"), 0.6},
		{"numbers are never long text", "amount", nums(12345678901, 12345678901), 0.5},
		{"nulls only", "remarks", strs("", ""), 0.5},
		{"lower fragment", "city", strs("Lima", "Lima"), 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := index.ColumnConfidence(tt.column, tt.values)
			if !approx(got, tt.want) {
				t.Errorf("ColumnConfidence(%q) = %v, want %v", tt.column, got, tt.want)
			}
			if got < 0 || got > 1 {
				t.Errorf("confidence %v out of bounds", got)
			}
		})
	}
}

func TestColumnConfidence_UniquenessIgnoresNulls(t *testing.T) {
	values := strs("a", "", "", "", "b", "c", "d", "e")
	if got := index.ColumnConfidence("code", values); !approx(got, 0.7) {
		t.Errorf("got %v, want 0.7 (5 distinct over 5 non-null)", got)
	}
}

func TestInferDataType(t *testing.T) {
	tests := []struct {
		name   string
		values []domain.Value
		want   domain.DataType
	}{
		{"empty", nil, domain.TypeUnknown},
		{"all null", strs("", ""), domain.TypeUnknown},
		{"numbers with nulls", []domain.Value{domain.Number(1), domain.Null(), domain.Number(2.5)}, domain.TypeNumeric},
		{"iso date prefix", strs("Pending", "2025-09-01 10:00"), domain.TypeDate},
		{"booleans", strs("Yes", "no", "TRUE", "0"), domain.TypeBoolean},
		{"native bools", []domain.Value{domain.Bool(true), domain.Bool(false)}, domain.TypeBoolean},
		{"numeric strings are not numeric", strs("12", "13"), domain.TypeText},
		{"text", strs("Active", "Closed"), domain.TypeText},
		{"date only checked in first five", strs("a", "b", "c", "d", "e", "2025-01-01"), domain.TypeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := index.InferDataType(tt.values); got != tt.want {
				t.Errorf("InferDataType = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExtractPatterns(t *testing.T) {
	got := index.ExtractPatterns(strs("PRJ001", "2025-09-01", "42", "", "Team A"))
	want := []string{"01", "09", "2025", "42", "A", "CODE_PATTERN", "DATE_PATTERN", "NUMERIC_PATTERN", "PRJ001", "Team"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractPatterns = %v\nwant %v", got, want)
	}
}

func TestBuildColumn(t *testing.T) {
	values := strs("Active", "", "ACTIVE", "Closed", "Active", "Hold", "Open")
	loc, pat := index.BuildColumn("projects", "Sheet1", "status", values)

	wantSamples := []string{"active", "active", "closed", "active", "hold"}
	if !reflect.DeepEqual(loc.SampleValues, wantSamples) {
		t.Errorf("samples = %v, want %v", loc.SampleValues, wantSamples)
	}
	if loc.UniqueCount != 5 {
		t.Errorf("unique = %d, want 5", loc.UniqueCount)
	}
	if loc.DataType != domain.TypeText {
		t.Errorf("type = %s", loc.DataType)
	}
	if pat.NullCount != 1 {
		t.Errorf("null count = %d", pat.NullCount)
	}
	if pat.MostFrequentValue.Text() != "Active" {
		t.Errorf("most frequent = %v", pat.MostFrequentValue)
	}
	if !approx(pat.AvgLength, 32.0/6.0) {
		t.Errorf("avg length = %v", pat.AvgLength)
	}
}
