package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sheetlocator/internal/domain"
	"sheetlocator/internal/httpapi"
	"sheetlocator/internal/index"
	"sheetlocator/internal/registry"
	"sheetlocator/internal/service"
	"sheetlocator/internal/tabular"
	_ "sheetlocator/internal/tabular/codecs"
)

const teamCSV = "emp_id,full_name,status,city\nE1,Ana Silva,Active,Pune\nE2,Raj Kumar,On Leave,Delhi\nE3,Li Wei,Active,Pune\n"

func newServer(t *testing.T, opts httpapi.Options) (*httpapi.Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "team.csv")
	if err := os.WriteFile(path, []byte(teamCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := registry.New("", []registry.Dataset{{Key: "team_info", Location: path}})
	if err != nil {
		t.Fatal(err)
	}
	open := func(ctx context.Context, ds registry.Dataset) (tabular.Store, error) {
		return tabular.Open(ctx, ds, nil)
	}
	svc := service.NewCrudService(reg, open, index.New(), &service.MockEmitter{}, nil,
		service.Config{Gates: service.DefaultGates(), LoadConcurrency: 1})
	svc.LoadAll(context.Background())
	t.Cleanup(func() { svc.Close() })

	opts.Quiet = true
	return httpapi.New(svc, opts), path
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestRootAndInfo(t *testing.T) {
	srv, _ := newServer(t, httpapi.Options{})

	rec := do(t, srv, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / = %d", rec.Code)
	}
	if _, ok := decode(t, rec)["endpoints"].(map[string]any)["read"]; !ok {
		t.Error("root should list the read endpoint")
	}

	info := decode(t, do(t, srv, http.MethodGet, "/info", ""))
	if info["status"] != "healthy" || info["total_files"] != float64(1) || info["total_columns"] != float64(4) {
		t.Fatalf("unexpected info %v", info)
	}
}

func TestReadContract(t *testing.T) {
	srv, _ := newServer(t, httpapi.Options{})

	rec := do(t, srv, http.MethodPost, "/read", `{"column_name":"city","column_value":"pune"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /read = %d: %s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	if body["success"] != true || body["total_records"] != float64(2) {
		t.Fatalf("unexpected body %v", body)
	}
	rows := body["data"].([]any)
	first := rows[0].(map[string]any)
	if first["emp_id"] != "E1" || first["full_name"] != "Ana Silva" {
		t.Errorf("unexpected first row %v", first)
	}
	// Row objects keep the sheet's column order.
	if !strings.Contains(rec.Body.String(), `{"emp_id":"E1","full_name":"Ana Silva","status":"Active","city":"Pune"}`) {
		t.Errorf("row not rendered in column order: %s", rec.Body)
	}
	loc := body["predicted_location"].(map[string]any)
	if loc["dataset_key"] != "team_info" || loc["sheet_name"] != "team" {
		t.Errorf("unexpected location %v", loc)
	}
}

func TestReadUnknownColumnIsNotAnError(t *testing.T) {
	srv, _ := newServer(t, httpapi.Options{})

	rec := do(t, srv, http.MethodPost, "/read", `{"column_name":"nonexistent_field"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("rejections must be 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["success"] != false {
		t.Fatal("expected success=false")
	}
	loc := body["predicted_location"].(map[string]any)
	if loc["dataset_key"] != "unknown" || loc["confidence"] != float64(0) {
		t.Errorf("unexpected location %v", loc)
	}
}

func TestUpdateInsertDelete(t *testing.T) {
	srv, path := newServer(t, httpapi.Options{})

	rec := do(t, srv, http.MethodPost, "/update",
		`{"column_name":"emp_id","column_value":"e2","update_column":"status","update_value":"Active"}`)
	if body := decode(t, rec); body["success"] != true || body["message"] != "Successfully updated 1 record(s)" {
		t.Fatalf("update: %v", body)
	}

	rec = do(t, srv, http.MethodPost, "/insert", `{"data":{"emp_id":"E4","city":"Goa","unknown_field":1}}`)
	if body := decode(t, rec); body["success"] != true {
		t.Fatalf("insert: %v", body)
	}

	rec = do(t, srv, http.MethodPost, "/delete", `{"column_name":"emp_id","column_value":"E1"}`)
	if body := decode(t, rec); body["success"] != true || body["message"] != "Successfully deleted 1 record(s)" {
		t.Fatalf("delete: %v", body)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "emp_id,full_name,status,city\nE2,Raj Kumar,Active,Delhi\nE3,Li Wei,Active,Pune\nE4,,,Goa\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}

func TestSearchContract(t *testing.T) {
	srv, _ := newServer(t, httpapi.Options{})

	body := decode(t, do(t, srv, http.MethodPost, "/search", `{"search_text":"PUNE","max_results":1}`))
	if body["success"] != true || body["search_text"] != "PUNE" || body["results_found"] != float64(1) {
		t.Fatalf("unexpected body %v", body)
	}
	hit := body["results"].([]any)[0].(map[string]any)
	if hit["dataset_key"] != "team_info" || hit["sheet"] != "team" || hit["column"] != "city" || hit["value"] != "Pune" {
		t.Errorf("unexpected hit %v", hit)
	}
	if hit["full_record"].(map[string]any)["emp_id"] != "E1" {
		t.Errorf("unexpected full_record %v", hit["full_record"])
	}
}

func TestPredictEndpoint(t *testing.T) {
	srv, _ := newServer(t, httpapi.Options{})
	body := decode(t, do(t, srv, http.MethodPost, "/predict", `{"column_name":" FULL_NAME "}`))
	if body["dataset_key"] != "team_info" {
		t.Errorf("unexpected prediction %v", body)
	}
}

func TestMalformedBody(t *testing.T) {
	srv, _ := newServer(t, httpapi.Options{})

	for _, target := range []string{"/read", "/insert"} {
		rec := do(t, srv, http.MethodPost, target, `{"column_name":`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
		if decode(t, rec)["detail"] == "" {
			t.Errorf("%s: expected a detail message", target)
		}
	}
	rec := do(t, srv, http.MethodPost, "/insert", `{"data":[1,2]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("array data: expected 400, got %d", rec.Code)
	}
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	srv, _ := newServer(t, httpapi.Options{})
	if rec := do(t, srv, http.MethodGet, "/history?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	rec := do(t, srv, http.MethodGet, "/history", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty history, got %d %s", rec.Code, rec.Body)
	}
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	srv, _ := newServer(t, httpapi.Options{RateLimit: 1, Burst: 1})

	body := `{"column_name":"emp_id","column_value":"nobody"}`
	if rec := do(t, srv, http.MethodPost, "/delete", body); rec.Code != http.StatusOK {
		t.Fatalf("first delete = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/delete", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second delete = %d, want 429", rec.Code)
	}
	// Reads are never limited.
	for range 3 {
		if rec := do(t, srv, http.MethodPost, "/read", `{"column_name":"city"}`); rec.Code != http.StatusOK {
			t.Fatalf("read = %d", rec.Code)
		}
	}
}

// ── Error mapping ──────────────────────────────────────────

// failingService fails every mutation with err.
type failingService struct {
	httpapi.Service
	err error
}

func (f failingService) Update(context.Context, service.UpdateRequest) (service.Result, error) {
	return service.Result{}, f.err
}

func (f failingService) ReloadDataset(context.Context, string) error { return f.err }

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    string
		body      string
		code      int
		retryable bool
	}{
		{"persist timeout", fmt.Errorf("save team_info: %w", domain.ErrPersistTimeout), "/update", `{"column_name":"a","column_value":"b","update_column":"c","update_value":1}`, http.StatusServiceUnavailable, true},
		{"backing store", fmt.Errorf("%w: load team_info: %w", domain.ErrBackingStore, os.ErrNotExist), "/update", `{"column_name":"a","column_value":"b","update_column":"c","update_value":1}`, http.StatusInternalServerError, false},
		{"unknown dataset", fmt.Errorf("%w: nope", domain.ErrUnknownDataset), "/reload", `{"dataset_key":"nope"}`, http.StatusNotFound, false},
		{"other", errors.New("boom"), "/reload", `{"dataset_key":"x"}`, http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httpapi.New(failingService{err: tt.err}, httpapi.Options{Quiet: true})
			rec := do(t, srv, http.MethodPost, tt.target, tt.body)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.code, rec.Body)
			}
			body := decode(t, rec)
			if got, _ := body["retryable"].(bool); got != tt.retryable {
				t.Errorf("retryable = %v, want %v", got, tt.retryable)
			}
			if !strings.Contains(body["detail"].(string), tt.err.Error()) {
				t.Errorf("detail %q does not carry the cause", body["detail"])
			}
		})
	}
}
