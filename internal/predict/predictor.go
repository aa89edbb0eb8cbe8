package predict

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"

	"sheetlocator/internal/domain"
	"sheetlocator/internal/index"
)

// Index is the read surface of the column and value pattern indexes.
type Index interface {
	Lookup(column string) []domain.ColumnLocation
	EachColumn(fn func(column string, locs []domain.ColumnLocation))
	Pattern(key domain.PatternKey) (domain.ValuePattern, bool)
	ColumnContains(dataset, sheet, column, value string) bool
}

const (
	fuzzyThreshold = 0.3

	nameWeight  = 0.6
	valueWeight = 0.4

	sampleHit  = 0.8
	patternHit = 0.2
	typeHit    = 0.3
	topConfirm = 0.2
	otherFound = 0.3
)

// Predictor ranks (dataset, sheet) locations for a column name and an
// optional value. It is deterministic for a fixed index snapshot.
type Predictor struct {
	idx Index
}

func New(idx Index) *Predictor {
	return &Predictor{idx: idx}
}

// Predict returns the best location for column. A null or empty value means
// no value was supplied.
func (p *Predictor) Predict(column string, value domain.Value) domain.Prediction {
	cands := p.Candidates(column)
	if len(cands) == 0 {
		return domain.NoMatch()
	}
	top := cands[0]

	if value.IsNull() || value.Text() == "" {
		return found(top, top.Confidence)
	}

	needle := value.Lower()
	final := top.Confidence*nameWeight + p.valueScore(top, value)*valueWeight
	if p.idx.ColumnContains(top.DatasetKey, top.SheetName, top.Column, needle) {
		return found(top, final+topConfirm)
	}
	for _, c := range cands[1:] {
		if p.idx.ColumnContains(c.DatasetKey, c.SheetName, c.Column, needle) {
			return found(c, c.Confidence+otherFound)
		}
	}
	return found(top, top.Confidence)
}

// Candidates returns every location for column, best first: exact matches
// when any exist, fuzzy matches otherwise. Ties keep index order.
func (p *Predictor) Candidates(column string) []domain.ColumnLocation {
	name := strings.ToLower(strings.TrimSpace(column))
	cands := p.idx.Lookup(name)
	if len(cands) == 0 {
		cands = p.fuzzy(name)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Confidence > cands[j].Confidence
	})
	return cands
}

// fuzzy matches on underscore-separated token overlap and scales each
// candidate's confidence by its similarity.
func (p *Predictor) fuzzy(name string) []domain.ColumnLocation {
	query := tokens(name)
	var out []domain.ColumnLocation
	p.idx.EachColumn(func(column string, locs []domain.ColumnLocation) {
		sim := Similarity(query, tokens(column))
		if sim <= fuzzyThreshold {
			return
		}
		for _, l := range locs {
			l.Confidence *= sim
			l.SampleValues = append([]string(nil), l.SampleValues...)
			out = append(out, l)
		}
	})
	return out
}

func tokens(name string) []string {
	return lo.Uniq(strings.Split(name, "_"))
}

// Similarity is |a ∩ b| / max(|a|, |b|) over de-duplicated token sets.
func Similarity(a, b []string) float64 {
	a, b = lo.Uniq(a), lo.Uniq(b)
	n := max(len(a), len(b))
	if n == 0 {
		return 0
	}
	return float64(len(lo.Intersect(a, b))) / float64(n)
}

// valueScore measures how well value fits a location's cached evidence.
func (p *Predictor) valueScore(loc domain.ColumnLocation, value domain.Value) float64 {
	score := 0.0
	needle := value.Lower()
	if lo.Contains(loc.SampleValues, needle) {
		score += sampleHit
	} else if pat, ok := p.idx.Pattern(domain.PatternKey{DatasetKey: loc.DatasetKey, SheetName: loc.SheetName, Column: loc.Column}); ok {
		upper := strings.ToUpper(needle)
		if lo.SomeBy(pat.LiteralPatterns, func(lit string) bool { return strings.Contains(upper, lit) }) {
			score += patternHit
		}
	}
	if index.InferDataType([]domain.Value{value}) == loc.DataType {
		score += typeHit
	}
	return min(score, 1)
}

func found(loc domain.ColumnLocation, confidence float64) domain.Prediction {
	return domain.Prediction{
		DatasetKey: loc.DatasetKey,
		SheetName:  loc.SheetName,
		Confidence: round3(max(0, min(1, confidence))),
		DataType:   loc.DataType,
		Message:    fmt.Sprintf("Found in %s - %s", loc.DatasetKey, loc.SheetName),
	}
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
