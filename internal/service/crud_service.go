package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"sheetlocator/internal/domain"
	"sheetlocator/internal/index"
	"sheetlocator/internal/predict"
	"sheetlocator/internal/registry"
	"sheetlocator/internal/tabular"
)

// ─────────────────────────────────────────────────────────────
// CRUD Service: predict, gate, load, mutate, persist, reindex
// ─────────────────────────────────────────────────────────────

// Gates are the minimum prediction confidences each operation accepts.
type Gates struct {
	Read   float64 `yaml:"read" json:"read"`
	Update float64 `yaml:"update" json:"update"`
	Insert float64 `yaml:"insert" json:"insert"`
	Delete float64 `yaml:"delete" json:"delete"`
}

func DefaultGates() Gates {
	return Gates{Read: 0.3, Update: 0.4, Insert: 0.2, Delete: 0.4}
}

// Config tunes the CRUD service. Zero timeouts mean no deadline.
type Config struct {
	Gates           Gates
	LoadTimeout     time.Duration
	SaveTimeout     time.Duration
	LoadConcurrency int
}

const defaultSearchResults = 10

// Opener builds the tabular store backing a dataset.
type Opener func(ctx context.Context, ds registry.Dataset) (tabular.Store, error)

// Mutation edits the target sheet of a freshly loaded workbook in place and
// reports the outcome. Unsuccessful outcomes are never persisted.
type Mutation func(t *domain.Table) Result

// CrudService runs the four CRUD verbs plus search against the indexed
// datasets. All load-mutate-persist cycles go through Transact.
type CrudService struct {
	reg     *registry.Registry
	open    Opener
	idx     *index.Store
	pred    *predict.Predictor
	emitter EventEmitter
	oplog   domain.OperationLog
	cfg     Config
	guard   fileGuard

	mu     sync.Mutex
	stores map[string]tabular.Store
	stamps map[string]fileStamp
}

// fileStamp identifies the on-disk state of a file dataset.
type fileStamp struct {
	mod  time.Time
	size int64
}

// NewCrudService creates a CrudService ready for use. oplog may be nil.
func NewCrudService(
	reg *registry.Registry,
	open Opener,
	idx *index.Store,
	emitter EventEmitter,
	oplog domain.OperationLog,
	cfg Config,
) *CrudService {
	if emitter == nil {
		emitter = LogEmitter{}
	}
	return &CrudService{
		reg:     reg,
		open:    open,
		idx:     idx,
		pred:    predict.New(idx),
		emitter: emitter,
		oplog:   oplog,
		cfg:     cfg,
		stores:  make(map[string]tabular.Store),
		stamps:  make(map[string]fileStamp),
	}
}

// ── Loading ────────────────────────────────────────────────

// LoadAll loads every registered dataset in parallel and indexes them in
// registration order. Each dataset is indexed while its guard is still held,
// so a transaction cannot land between its load and its indexing. Datasets
// that fail to load are logged and skipped.
func (s *CrudService) LoadAll(ctx context.Context) {
	datasets := s.reg.All()
	turns := make([]chan struct{}, len(datasets)+1)
	for i := range turns {
		turns[i] = make(chan struct{})
	}
	close(turns[0])

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.LoadConcurrency, 1))
	for i, ds := range datasets {
		g.Go(func() error {
			defer close(turns[i+1])
			if err := s.guard.Lock(gctx, ds.Key); err != nil {
				return err
			}
			defer s.guard.Unlock(ds.Key)

			wb, err := s.load(gctx, ds)
			select {
			case <-turns[i]:
			case <-gctx.Done():
				return gctx.Err()
			}
			if err != nil {
				log.Printf("[LOAD] skipping %s: %v", ds.Key, err)
				return nil
			}
			s.idx.LoadDataset(ds.Key, tabular.CleanWorkbook(wb))
			log.Printf("[LOAD] %s: %d sheet(s)", ds.Key, len(wb.Sheets))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("[LOAD] interrupted: %v", err)
	}
}

// ReloadDataset reloads one dataset from its backing store and rebuilds its
// index entries. On failure the previous index entries are kept.
func (s *CrudService) ReloadDataset(ctx context.Context, key string) error {
	ds, err := s.reg.Resolve(key)
	if err != nil {
		return err
	}
	if err := s.guard.Lock(ctx, key); err != nil {
		return err
	}
	defer s.guard.Unlock(key)

	wb, err := s.load(ctx, ds)
	if err != nil {
		return err
	}
	s.idx.LoadDataset(key, tabular.CleanWorkbook(wb))
	s.emitter.Emit(ctx, EventDatasetReloaded, map[string]any{
		"dataset_key": key,
		"sheets":      wb.SheetNames(),
	})
	return nil
}

// ReloadAll reloads every registered dataset in turn and reports every
// failure.
func (s *CrudService) ReloadAll(ctx context.Context) error {
	var errs []error
	for _, ds := range s.reg.All() {
		if err := s.ReloadDataset(ctx, ds.Key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// load reads a whole workbook. Callers hold the dataset's guard.
func (s *CrudService) load(ctx context.Context, ds registry.Dataset) (*domain.Workbook, error) {
	st, err := s.store(ctx, ds)
	if err != nil {
		return nil, err
	}
	lctx, cancel := withTimeout(ctx, s.cfg.LoadTimeout)
	defer cancel()

	wb, err := st.Load(lctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", domain.ErrBackingStore, ds.Key, err)
	}
	s.stamp(ds)
	return wb, nil
}

// store returns the cached store of a dataset, opening it on first use.
func (s *CrudService) store(ctx context.Context, ds registry.Dataset) (tabular.Store, error) {
	s.mu.Lock()
	st, ok := s.stores[ds.Key]
	s.mu.Unlock()
	if ok {
		return st, nil
	}

	st, err := s.open(ctx, ds)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrBackingStore, ds.Key, err)
	}
	s.mu.Lock()
	s.stores[ds.Key] = st
	s.mu.Unlock()
	return st, nil
}

// ── Transactions ───────────────────────────────────────────

// Transact is the only place a dataset is written. Under the dataset's
// exclusive section it loads the raw workbook and lets mutate edit a cleaned
// view of the target sheet. The edits are merged back into the raw sheet,
// only that sheet is marked for writing, and it is reindexed. Every other
// sheet is saved exactly as it was loaded.
//
// A save that exceeds the configured save timeout fails with
// domain.ErrPersistTimeout; other store failures wrap domain.ErrBackingStore.
func (s *CrudService) Transact(ctx context.Context, key, sheet string, mutate Mutation) (Result, error) {
	ds, err := s.reg.Resolve(key)
	if err != nil {
		return Result{}, err
	}
	if err := s.guard.Lock(ctx, key); err != nil {
		return Result{}, err
	}
	defer s.guard.Unlock(key)

	wb, err := s.load(ctx, ds)
	if err != nil {
		return Result{}, err
	}
	raw := wb.Sheet(sheet)
	if raw == nil {
		return reject(ReasonNoMatch, "Predicted location not available"), nil
	}

	view := tabular.Clean(raw)
	res := mutate(view)
	if !res.Success {
		return res, nil
	}
	tabular.Merge(raw, view)
	wb.Touched = []string{sheet}

	st, err := s.store(ctx, ds)
	if err != nil {
		return Result{}, err
	}
	sctx, cancel := withTimeout(ctx, s.cfg.SaveTimeout)
	defer cancel()
	if err := st.Save(sctx, wb); err != nil {
		if errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Result{}, fmt.Errorf("save %s: %w", key, domain.ErrPersistTimeout)
		}
		return Result{}, fmt.Errorf("%w: save %s: %w", domain.ErrBackingStore, key, err)
	}
	s.stamp(ds)

	s.idx.Index(key, sheet, tabular.Clean(raw))
	s.emitter.Emit(ctx, EventDatasetMutated, map[string]any{
		"dataset_key": key,
		"sheet_name":  sheet,
		"affected":    res.Affected,
	})
	return res, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// stamp remembers the on-disk state of a file dataset after this service
// read or wrote it.
func (s *CrudService) stamp(ds registry.Dataset) {
	if !ds.IsFile() {
		return
	}
	fi, err := os.Stat(ds.Location)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.stamps[ds.Key] = fileStamp{mod: fi.ModTime(), size: fi.Size()}
	s.mu.Unlock()
}

// Unchanged reports whether a file dataset still matches the state this
// service last loaded or saved. The reload watcher uses it to ignore the
// service's own writes.
func (s *CrudService) Unchanged(key string) bool {
	ds, err := s.reg.Resolve(key)
	if err != nil || !ds.IsFile() {
		return false
	}
	fi, err := os.Stat(ds.Location)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stamps[key]
	return ok && st.mod.Equal(fi.ModTime()) && st.size == fi.Size()
}

// WaitIdle blocks until no transaction or reload is in flight, or ctx ends.
func (s *CrudService) WaitIdle(ctx context.Context) {
	s.guard.WaitAll(ctx)
}

// Close closes every opened store.
func (s *CrudService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for key, st := range s.stores {
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	clear(s.stores)
	return errors.Join(errs...)
}

// ── Prediction ─────────────────────────────────────────────

// Predict returns the best location for a column name and optional value.
func (s *CrudService) Predict(column, value string) domain.Prediction {
	return s.pred.Predict(column, domain.String(value))
}

// gate predicts a location and rejects it below threshold.
func (s *CrudService) gate(column string, value domain.Value, threshold float64, lowMsg string) (domain.Prediction, *Result) {
	p := s.pred.Predict(column, value)
	if p.Confidence >= threshold && p.Found() {
		return p, nil
	}
	res := reject(ReasonLowConfidence, lowMsg)
	if !p.Found() {
		res.Reason = ReasonUnknownLocation
	}
	res.PredictedLocation = &p
	return p, &res
}

// ── Read ───────────────────────────────────────────────────

// Read returns the rows of the predicted sheet whose column equals the value,
// ignoring case, or every row when no value is given. It reads the indexed
// snapshot and never touches the backing store.
func (s *CrudService) Read(ctx context.Context, req ReadRequest) (Result, error) {
	if strings.TrimSpace(req.ColumnName) == "" {
		return reject(ReasonInvalidInput, "column_name is required"), nil
	}
	p, rej := s.gate(req.ColumnName, domain.String(req.ColumnValue), s.cfg.Gates.Read,
		"No confident prediction found. Try different column names or values.")
	if rej != nil {
		s.record(domain.OpRead, p, req.ColumnName, req.ColumnValue, *rej)
		return *rej, nil
	}

	res := s.readSnapshot(p, req)
	res.PredictedLocation = &p
	s.record(domain.OpRead, p, req.ColumnName, req.ColumnValue, res)
	return res, nil
}

func (s *CrudService) readSnapshot(p domain.Prediction, req ReadRequest) Result {
	t := s.idx.Table(p.DatasetKey, p.SheetName)
	if t == nil {
		return reject(ReasonNoMatch, "Predicted location not available")
	}
	col, ok := t.FindColumn(req.ColumnName)
	if !ok {
		return reject(ReasonNoMatch, fmt.Sprintf("Column '%s' not found", req.ColumnName))
	}

	data := make([]domain.RowObject, 0)
	for i, r := range t.Rows {
		if req.ColumnValue == "" || matches(r[col], req.ColumnValue) {
			data = append(data, t.Object(i))
		}
	}
	n := len(data)
	return Result{
		Success:      true,
		Message:      fmt.Sprintf("Found %d matching records", n),
		Data:         data,
		TotalRecords: &n,
		Affected:     n,
	}
}

// matches compares a cell to a request value ignoring case. Null cells
// never match.
func matches(v domain.Value, want string) bool {
	return !v.IsNull() && v.Lower() == strings.ToLower(want)
}

// ── Update ─────────────────────────────────────────────────

// Update sets update_column to update_value on every row of the predicted
// sheet whose column equals the value.
func (s *CrudService) Update(ctx context.Context, req UpdateRequest) (Result, error) {
	if strings.TrimSpace(req.ColumnName) == "" || strings.TrimSpace(req.UpdateColumn) == "" {
		return reject(ReasonInvalidInput, "column_name and update_column are required"), nil
	}
	if req.ColumnValue == "" {
		return reject(ReasonInvalidInput, "column_value is required"), nil
	}
	p, rej := s.gate(req.ColumnName, domain.String(req.ColumnValue), s.cfg.Gates.Update,
		"Low confidence for update operation")
	if rej != nil {
		s.record(domain.OpUpdate, p, req.ColumnName, req.ColumnValue, *rej)
		return *rej, nil
	}

	res, err := s.Transact(ctx, p.DatasetKey, p.SheetName, func(t *domain.Table) Result {
		col, ok1 := t.FindColumn(req.ColumnName)
		upd, ok2 := t.FindColumn(req.UpdateColumn)
		if !ok1 || !ok2 {
			return reject(ReasonNoMatch, "Required columns not found")
		}
		n := 0
		for _, r := range t.Rows {
			if matches(r[col], req.ColumnValue) {
				r[upd] = req.UpdateValue
				n++
			}
		}
		if n == 0 {
			return reject(ReasonNoMatch, "No matching records found")
		}
		return Result{
			Success:  true,
			Message:  fmt.Sprintf("Successfully updated %d record(s)", n),
			Affected: n,
		}
	})
	if err != nil {
		return Result{}, err
	}
	res.PredictedLocation = &p
	s.record(domain.OpUpdate, p, req.ColumnName, req.ColumnValue, res)
	return res, nil
}

// ── Insert ─────────────────────────────────────────────────

// Insert appends one row to the sheet predicted from the first field.
// Fields are mapped onto existing columns ignoring case; columns without a
// field are null and fields without a column are dropped.
func (s *CrudService) Insert(ctx context.Context, req InsertRequest) (Result, error) {
	if len(req.Data) == 0 {
		return reject(ReasonInvalidInput, "No data provided"), nil
	}
	first := req.Data[0]
	p, rej := s.gate(first.Name, first.Value, s.cfg.Gates.Insert,
		"Cannot determine where to insert data")
	if rej != nil {
		s.record(domain.OpInsert, p, first.Name, first.Value.Text(), *rej)
		return *rej, nil
	}

	res, err := s.Transact(ctx, p.DatasetKey, p.SheetName, func(t *domain.Table) Result {
		row := make(domain.Record, len(t.Columns))
		for _, f := range req.Data {
			if col, ok := t.FindColumn(f.Name); ok {
				row[col] = f.Value
			}
		}
		if len(row) == 0 {
			return reject(ReasonNoMatch, fmt.Sprintf("No input field matches a column of '%s'", t.Name))
		}
		t.AppendRow(row)
		return Result{
			Success:  true,
			Message:  "Successfully inserted new record",
			Affected: 1,
		}
	})
	if err != nil {
		return Result{}, err
	}
	res.PredictedLocation = &p
	s.record(domain.OpInsert, p, first.Name, first.Value.Text(), res)
	return res, nil
}

// ── Delete ─────────────────────────────────────────────────

// Delete removes every row of the predicted sheet whose column equals the value.
func (s *CrudService) Delete(ctx context.Context, req DeleteRequest) (Result, error) {
	if strings.TrimSpace(req.ColumnName) == "" || req.ColumnValue == "" {
		return reject(ReasonInvalidInput, "column_name and column_value are required"), nil
	}
	p, rej := s.gate(req.ColumnName, domain.String(req.ColumnValue), s.cfg.Gates.Delete,
		"Low confidence for delete operation")
	if rej != nil {
		s.record(domain.OpDelete, p, req.ColumnName, req.ColumnValue, *rej)
		return *rej, nil
	}

	res, err := s.Transact(ctx, p.DatasetKey, p.SheetName, func(t *domain.Table) Result {
		col, ok := t.FindColumn(req.ColumnName)
		if !ok {
			return reject(ReasonNoMatch, fmt.Sprintf("Column '%s' not found", req.ColumnName))
		}
		n := t.RemoveRows(func(r domain.Record) bool {
			return matches(r[col], req.ColumnValue)
		})
		if n == 0 {
			return reject(ReasonNoMatch, "No matching records found")
		}
		return Result{
			Success:  true,
			Message:  fmt.Sprintf("Successfully deleted %d record(s)", n),
			Affected: n,
		}
	})
	if err != nil {
		return Result{}, err
	}
	res.PredictedLocation = &p
	s.record(domain.OpDelete, p, req.ColumnName, req.ColumnValue, res)
	return res, nil
}

// ── Search ─────────────────────────────────────────────────

// Search scans every text column of every indexed sheet for cells containing
// the search text, ignoring case, and stops after max_results hits.
func (s *CrudService) Search(ctx context.Context, req SearchRequest) SearchResult {
	limit := req.MaxResults
	if limit <= 0 {
		limit = defaultSearchResults
	}
	out := SearchResult{Success: true, SearchText: req.SearchText, Results: make([]SearchHit, 0)}
	needle := strings.ToLower(req.SearchText)

	for _, ds := range s.idx.Datasets() {
		for _, sheet := range s.idx.Sheets(ds) {
			t := s.idx.Table(ds, sheet)
			if t == nil {
				continue
			}
			for _, col := range t.Columns {
				if !isTextColumn(t, col) {
					continue
				}
				for i, r := range t.Rows {
					v := r[col]
					if v.IsNull() || !strings.Contains(v.Lower(), needle) {
						continue
					}
					out.Results = append(out.Results, SearchHit{
						DatasetKey: ds,
						Sheet:      sheet,
						Column:     col,
						Value:      v,
						FullRecord: t.Object(i),
					})
					if len(out.Results) >= limit {
						out.ResultsFound = len(out.Results)
						return out
					}
				}
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	out.ResultsFound = len(out.Results)
	return out
}

// isTextColumn reports whether a column holds at least one string cell.
func isTextColumn(t *domain.Table, col string) bool {
	return lo.SomeBy(t.Rows, func(r domain.Record) bool {
		return r[col].Kind() == domain.KindString || r[col].Kind() == domain.KindJSON
	})
}

// ── Info ───────────────────────────────────────────────────

func (s *CrudService) Info() Info {
	st := s.idx.Stats()
	return Info{
		Status:       "healthy",
		TotalFiles:   st.Datasets,
		TotalSheets:  st.Sheets,
		TotalColumns: st.Columns,
		LoadedFiles:  s.idx.Datasets(),
	}
}

// ── History ────────────────────────────────────────────────

// History returns the most recent recorded operations, newest first.
func (s *CrudService) History(limit int) ([]domain.Operation, error) {
	if s.oplog == nil {
		return []domain.Operation{}, nil
	}
	return s.oplog.List(limit)
}

func (s *CrudService) record(kind domain.OperationKind, p domain.Prediction, column, value string, res Result) {
	if s.oplog == nil {
		return
	}
	op := &domain.Operation{
		Kind:       kind,
		DatasetKey: p.DatasetKey,
		SheetName:  p.SheetName,
		Column:     column,
		Value:      value,
		Affected:   res.Affected,
		Confidence: p.Confidence,
		Success:    res.Success,
		Message:    res.Message,
	}
	if err := s.oplog.Record(op); err != nil {
		log.Printf("[OPLOG] record %s failed: %v", kind, err)
	}
}
