package registry

import (
	"fmt"
	"path/filepath"
	"strings"

	"sheetlocator/internal/domain"
)

// Format names accepted for a dataset.
const (
	FormatXLSX     = "xlsx"
	FormatCSV      = "csv"
	FormatJSON     = "json"
	FormatSQLite   = "sqlite"
	FormatMySQL    = "mysql"
	FormatPostgres = "postgres"
	FormatMongoDB  = "mongodb"
)

// Dataset maps a logical key to its physical location.
type Dataset struct {
	Key      string `json:"key" yaml:"key"`
	Format   string `json:"format" yaml:"format"`
	Location string `json:"location" yaml:"location"` // file path, s3:// URL or DSN
	Secret   string `json:"secret,omitempty" yaml:"secret,omitempty"`
}

// IsFile reports whether the dataset is a local file (watchable, stat-able).
func (d Dataset) IsFile() bool {
	switch d.Format {
	case FormatXLSX, FormatCSV, FormatJSON:
		return !strings.HasPrefix(d.Location, "s3://")
	}
	return false
}

// Registry is the ordered set of known datasets.
type Registry struct {
	datasets []Dataset
	byKey    map[string]int
}

// New builds a registry, inferring missing formats from file extensions and
// resolving relative file locations against dataDir.
func New(dataDir string, datasets []Dataset) (*Registry, error) {
	r := &Registry{byKey: make(map[string]int, len(datasets))}
	for _, d := range datasets {
		if d.Key == "" {
			return nil, fmt.Errorf("dataset with location %q has no key", d.Location)
		}
		if _, dup := r.byKey[d.Key]; dup {
			return nil, fmt.Errorf("duplicate dataset key %q", d.Key)
		}
		if d.Format == "" {
			d.Format = FormatFromPath(d.Location)
		}
		if d.Format == "" {
			return nil, fmt.Errorf("dataset %q: %w: cannot infer format of %q", d.Key, domain.ErrUnsupportedFormat, d.Location)
		}
		if d.IsFile() && !filepath.IsAbs(d.Location) && dataDir != "" {
			d.Location = filepath.Join(dataDir, d.Location)
		}
		r.byKey[d.Key] = len(r.datasets)
		r.datasets = append(r.datasets, d)
	}
	return r, nil
}

// Resolve returns the dataset registered under key.
func (r *Registry) Resolve(key string) (Dataset, error) {
	i, ok := r.byKey[key]
	if !ok {
		return Dataset{}, fmt.Errorf("%w: %s", domain.ErrUnknownDataset, key)
	}
	return r.datasets[i], nil
}

// All returns the datasets in registration order.
func (r *Registry) All() []Dataset {
	return append([]Dataset(nil), r.datasets...)
}

// FormatFromPath infers a file format from its extension.
// Object URLs may carry a query string, which is ignored.
func FormatFromPath(path string) string {
	path, _, _ = strings.Cut(path, "?")
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".csv":
		return FormatCSV
	case ".json":
		return FormatJSON
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	}
	return ""
}

// Defaults is the stock file mapping of the reporting workbooks.
func Defaults() []Dataset {
	return []Dataset{
		{Key: "project_detail", Location: "05-Project_Detail_Document.xlsx"},
		{Key: "leave_management", Location: "03-Leave_Management_2025.xlsx"},
		{Key: "month_efforts", Location: "02-2025_Sep_Month_efforts.xlsx"},
		{Key: "month_report", Location: "01-LAAD September Month Report - All.xlsx"},
		{Key: "team_info", Location: "06-Team Information.xlsx"},
	}
}
