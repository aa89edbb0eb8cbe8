package index

import (
	"slices"
	"sync"

	"sheetlocator/internal/domain"
)

// Store holds the Column Index, the Value Pattern Index and a snapshot of
// every indexed table. Writers replace whole sheets; readers always see a
// sheet either fully before or fully after a rebuild.
type Store struct {
	mu sync.RWMutex

	columns  map[string][]domain.ColumnLocation // normalized column name → locations
	order    []string                           // column names in first-indexed order
	patterns map[domain.PatternKey]domain.ValuePattern

	tables   map[string]map[string]*domain.Table // dataset → sheet → snapshot
	sheets   map[string][]string                 // dataset → sheet names in file order
	datasets []string
}

// Stats summarizes what is indexed.
type Stats struct {
	Datasets int
	Sheets   int
	Columns  int // distinct column names
}

func New() *Store {
	return &Store{
		columns:  make(map[string][]domain.ColumnLocation),
		patterns: make(map[domain.PatternKey]domain.ValuePattern),
		tables:   make(map[string]map[string]*domain.Table),
		sheets:   make(map[string][]string),
	}
}

// ── Writers ────────────────────────────────────────────────

// LoadDataset replaces everything indexed for dataset with the sheets of wb.
func (s *Store) LoadDataset(dataset string, wb *domain.Workbook) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sheet := range slices.Clone(s.sheets[dataset]) {
		if wb.Sheet(sheet) == nil {
			s.dropSheetLocked(dataset, sheet)
		}
	}
	if !slices.Contains(s.datasets, dataset) {
		s.datasets = append(s.datasets, dataset)
	}
	s.sheets[dataset] = nil
	for _, t := range wb.Sheets {
		s.indexLocked(dataset, t.Name, t)
	}
}

// Index rebuilds the entries of one (dataset, sheet) pair from table,
// leaving every other sheet untouched. The store keeps table as its snapshot;
// callers must not modify it afterwards.
func (s *Store) Index(dataset, sheet string, table *domain.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.Contains(s.datasets, dataset) {
		s.datasets = append(s.datasets, dataset)
	}
	s.indexLocked(dataset, sheet, table)
}

// RemoveDataset forgets a dataset entirely.
func (s *Store) RemoveDataset(dataset string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sheet := range slices.Clone(s.sheets[dataset]) {
		s.dropSheetLocked(dataset, sheet)
	}
	delete(s.sheets, dataset)
	delete(s.tables, dataset)
	s.datasets = slices.DeleteFunc(s.datasets, func(d string) bool { return d == dataset })
}

func (s *Store) indexLocked(dataset, sheet string, table *domain.Table) {
	// Columns that disappeared from the sheet lose their entry here.
	present := make(map[string]bool, len(table.Columns))
	for _, c := range table.Columns {
		present[c] = true
	}
	if old := s.tables[dataset][sheet]; old != nil {
		for _, c := range old.Columns {
			if !present[c] {
				s.removeLocationLocked(c, dataset, sheet)
				delete(s.patterns, domain.PatternKey{DatasetKey: dataset, SheetName: sheet, Column: c})
			}
		}
	}

	for _, c := range table.Columns {
		loc, pat := BuildColumn(dataset, sheet, c, table.Values(c))
		s.putLocationLocked(c, loc)
		s.patterns[domain.PatternKey{DatasetKey: dataset, SheetName: sheet, Column: c}] = pat
	}

	if s.tables[dataset] == nil {
		s.tables[dataset] = make(map[string]*domain.Table)
	}
	s.tables[dataset][sheet] = table
	if !slices.Contains(s.sheets[dataset], sheet) {
		s.sheets[dataset] = append(s.sheets[dataset], sheet)
	}
}

// putLocationLocked replaces the entry for loc's (dataset, sheet) in place,
// or appends it; at most one entry exists per triple.
func (s *Store) putLocationLocked(column string, loc domain.ColumnLocation) {
	locs, known := s.columns[column]
	if !known {
		s.order = append(s.order, column)
	}
	for i := range locs {
		if locs[i].DatasetKey == loc.DatasetKey && locs[i].SheetName == loc.SheetName {
			locs[i] = loc
			return
		}
	}
	s.columns[column] = append(locs, loc)
}

func (s *Store) removeLocationLocked(column, dataset, sheet string) {
	locs := slices.DeleteFunc(s.columns[column], func(l domain.ColumnLocation) bool {
		return l.DatasetKey == dataset && l.SheetName == sheet
	})
	if len(locs) > 0 {
		s.columns[column] = locs
		return
	}
	delete(s.columns, column)
	s.order = slices.DeleteFunc(s.order, func(c string) bool { return c == column })
}

func (s *Store) dropSheetLocked(dataset, sheet string) {
	if old := s.tables[dataset][sheet]; old != nil {
		for _, c := range old.Columns {
			s.removeLocationLocked(c, dataset, sheet)
			delete(s.patterns, domain.PatternKey{DatasetKey: dataset, SheetName: sheet, Column: c})
		}
	}
	delete(s.tables[dataset], sheet)
	s.sheets[dataset] = slices.DeleteFunc(s.sheets[dataset], func(n string) bool { return n == sheet })
}

// ── Readers ────────────────────────────────────────────────

// Lookup returns a copy of the locations of an exact column name.
func (s *Store) Lookup(column string) []domain.ColumnLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.columns[column])
}

// EachColumn calls fn for every indexed column name in first-indexed order.
// fn must not call back into the store's writers.
func (s *Store) EachColumn(fn func(column string, locs []domain.ColumnLocation)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.order {
		fn(c, s.columns[c])
	}
}

// Pattern returns the value pattern of one column of one sheet.
func (s *Store) Pattern(key domain.PatternKey) (domain.ValuePattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[key]
	return p, ok
}

// ColumnContains scans the full column for a cell whose lower-cased text
// equals value.
func (s *Store) ColumnContains(dataset, sheet, column, value string) bool {
	s.mu.RLock()
	t := s.tables[dataset][sheet]
	s.mu.RUnlock()
	if t == nil {
		return false
	}
	for _, r := range t.Rows {
		if v, ok := r[column]; ok && v.Lower() == value {
			return true
		}
	}
	return false
}

// Table returns the indexed snapshot of a sheet. It is shared and must be
// treated as read-only.
func (s *Store) Table(dataset, sheet string) *domain.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables[dataset][sheet]
}

// Datasets returns the indexed dataset keys in load order.
func (s *Store) Datasets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.datasets)
}

// Sheets returns the sheet names of a dataset in file order.
func (s *Store) Sheets(dataset string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sheets[dataset])
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Datasets: len(s.datasets), Columns: len(s.columns)}
	for _, d := range s.datasets {
		st.Sheets += len(s.sheets[d])
	}
	return st
}
