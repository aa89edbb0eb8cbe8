package registry_test

import (
	"errors"
	"path/filepath"
	"testing"

	"sheetlocator/internal/domain"
	"sheetlocator/internal/registry"
)

func TestNew_InfersFormatAndResolvesPaths(t *testing.T) {
	r, err := registry.New("/data", []registry.Dataset{
		{Key: "projects", Location: "projects.xlsx"},
		{Key: "leave", Location: "/abs/leave.csv"},
		{Key: "remote", Location: "s3://bucket/team.xlsx"},
		{Key: "warehouse", Format: registry.FormatPostgres, Location: "host=db user=app"},
	})
	if err != nil {
		t.Fatal(err)
	}

	p, _ := r.Resolve("projects")
	if p.Format != registry.FormatXLSX || p.Location != filepath.Join("/data", "projects.xlsx") {
		t.Errorf("unexpected projects dataset: %+v", p)
	}
	l, _ := r.Resolve("leave")
	if l.Format != registry.FormatCSV || l.Location != "/abs/leave.csv" {
		t.Errorf("unexpected leave dataset: %+v", l)
	}
	rem, _ := r.Resolve("remote")
	if rem.IsFile() || rem.Location != "s3://bucket/team.xlsx" {
		t.Errorf("object storage location should be left alone: %+v", rem)
	}
	w, _ := r.Resolve("warehouse")
	if w.IsFile() {
		t.Error("postgres dataset is not a file")
	}

	keys := []string{}
	for _, d := range r.All() {
		keys = append(keys, d.Key)
	}
	if len(keys) != 4 || keys[0] != "projects" || keys[3] != "warehouse" {
		t.Errorf("registration order not preserved: %v", keys)
	}
}

func TestResolve_UnknownKey(t *testing.T) {
	r, _ := registry.New("", nil)
	_, err := r.Resolve("nope")
	if !errors.Is(err, domain.ErrUnknownDataset) {
		t.Fatalf("expected ErrUnknownDataset, got %v", err)
	}
}

func TestNew_Rejects(t *testing.T) {
	if _, err := registry.New("", []registry.Dataset{{Key: "a", Location: "a.txt"}}); !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Errorf("expected unsupported format, got %v", err)
	}
	if _, err := registry.New("", []registry.Dataset{{Key: "a", Location: "a.csv"}, {Key: "a", Location: "b.csv"}}); err == nil {
		t.Error("expected duplicate key error")
	}
	if _, err := registry.New("", []registry.Dataset{{Location: "a.csv"}}); err == nil {
		t.Error("expected missing key error")
	}
}

func TestDefaults(t *testing.T) {
	r, err := registry.New("data", registry.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if len(r.All()) != 5 {
		t.Fatalf("expected 5 default datasets, got %d", len(r.All()))
	}
	d, err := r.Resolve("team_info")
	if err != nil {
		t.Fatal(err)
	}
	if d.Location != filepath.Join("data", "06-Team Information.xlsx") {
		t.Errorf("unexpected location %q", d.Location)
	}
}
