package index

import (
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"

	"sheetlocator/internal/domain"
)

// ── Column scoring ─────────────────────────────────────────

// fragmentScores maps semantic name fragments to a base confidence.
var fragmentScores = map[string]float64{
	"name":    0.9,
	"id":      0.9,
	"date":    0.9,
	"status":  0.9,
	"project": 0.8,
	"email":   0.9,
	"phone":   0.8,
	"address": 0.7,
	"city":    0.7,
	"country": 0.7,
}

const (
	baseConfidence  = 0.5
	uniquenessBoost = 0.2
	longTextBoost   = 0.1
	sampleSize      = 5
	patternSample   = 20
)

var (
	datePrefix  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	boolLiteral = regexp.MustCompile(`^(true|false|yes|no|1|0)$`)
	codeShape   = regexp.MustCompile(`^[A-Z]{2,}\d+$`)
	digitsOnly  = regexp.MustCompile(`^\d+$`)
	alnumToken  = regexp.MustCompile(`[A-Za-z0-9]+`)
)

// Pattern tags added next to literal tokens.
const (
	CodePattern    = "CODE_PATTERN"
	DatePattern    = "DATE_PATTERN"
	NumericPattern = "NUMERIC_PATTERN"
)

// ColumnConfidence scores how likely a column is the intended target of a
// query naming it. The result is always within [0, 1].
func ColumnConfidence(name string, values []domain.Value) float64 {
	score := 0.0
	for frag, s := range fragmentScores {
		if strings.Contains(name, frag) && s > score {
			score = s
		}
	}
	if score == 0 {
		score = baseConfidence
	}

	nonNull := nonNullValues(values)
	if len(nonNull) > 0 {
		if float64(distinctCount(nonNull))/float64(len(nonNull)) > 0.8 {
			score += uniquenessBoost
		}
		if isFreeText(nonNull) && lo.SomeBy(nonNull[:min(10, len(nonNull))], func(v domain.Value) bool {
			return len(v.Text()) > 10
		}) {
			score += longTextBoost
		}
	}
	return clamp(score)
}

// InferDataType classifies a column from its values.
func InferDataType(values []domain.Value) domain.DataType {
	nonNull := nonNullValues(values)
	if len(nonNull) == 0 {
		return domain.TypeUnknown
	}
	if lo.EveryBy(nonNull, func(v domain.Value) bool { return v.Kind() == domain.KindNumber }) {
		return domain.TypeNumeric
	}
	head := nonNull[:min(5, len(nonNull))]
	if lo.SomeBy(head, func(v domain.Value) bool { return datePrefix.MatchString(v.Text()) }) {
		return domain.TypeDate
	}
	if lo.EveryBy(head, func(v domain.Value) bool { return boolLiteral.MatchString(v.Lower()) }) {
		return domain.TypeBoolean
	}
	return domain.TypeText
}

// ExtractPatterns returns the sorted, de-duplicated literal tokens and shape
// tags of the first non-null values of a column.
func ExtractPatterns(values []domain.Value) []string {
	nonNull := nonNullValues(values)
	var out []string
	for _, v := range nonNull[:min(patternSample, len(nonNull))] {
		s := v.Text()
		out = append(out, alnumToken.FindAllString(s, -1)...)
		switch {
		case codeShape.MatchString(s):
			out = append(out, CodePattern)
		case datePrefix.MatchString(s):
			out = append(out, DatePattern)
		case digitsOnly.MatchString(s):
			out = append(out, NumericPattern)
		}
	}
	out = lo.Uniq(out)
	sort.Strings(out)
	return out
}

// BuildColumn computes the index entries for one column of one sheet.
func BuildColumn(dataset, sheet, column string, values []domain.Value) (domain.ColumnLocation, domain.ValuePattern) {
	nonNull := nonNullValues(values)
	unique := distinctCount(nonNull)

	samples := make([]string, 0, sampleSize)
	for _, v := range nonNull[:min(sampleSize, len(nonNull))] {
		samples = append(samples, v.Lower())
	}

	loc := domain.ColumnLocation{
		Column:       column,
		DatasetKey:   dataset,
		SheetName:    sheet,
		Confidence:   ColumnConfidence(column, values),
		DataType:     InferDataType(values),
		UniqueCount:  unique,
		SampleValues: samples,
	}

	pat := domain.ValuePattern{
		LiteralPatterns:   ExtractPatterns(values),
		NullCount:         len(values) - len(nonNull),
		UniqueCount:       unique,
		MostFrequentValue: mostFrequent(nonNull),
	}
	if len(nonNull) > 0 {
		total := lo.SumBy(nonNull, func(v domain.Value) int { return len(v.Text()) })
		pat.AvgLength = float64(total) / float64(len(nonNull))
	}
	return loc, pat
}

func nonNullValues(values []domain.Value) []domain.Value {
	return lo.Filter(values, func(v domain.Value, _ int) bool { return !v.IsNull() })
}

// distinctCount counts values distinct by kind and content.
func distinctCount(values []domain.Value) int {
	seen := make(map[domain.Value]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// isFreeText reports whether the column holds text rather than only numbers
// or booleans.
func isFreeText(values []domain.Value) bool {
	return lo.SomeBy(values, func(v domain.Value) bool {
		return v.Kind() == domain.KindString || v.Kind() == domain.KindJSON
	})
}

// mostFrequent returns the modal value; ties go to the smallest text form.
func mostFrequent(values []domain.Value) domain.Value {
	counts := make(map[domain.Value]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	best, bestN := domain.Null(), 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v.Text() < best.Text()) {
			best, bestN = v, n
		}
	}
	return best
}

func clamp(f float64) float64 {
	return max(0, min(1, f))
}
