package tabular

import (
	"testing"

	"sheetlocator/internal/secret"
)

func TestNewObjectBlob_ParsesLocation(t *testing.T) {
	secrets := secret.MapStore{"reports": "AKID:SECRET"}
	b, err := newObjectBlob("s3://minio.local:9000/reports/2025/team.xlsx?secure=false", secrets, "reports")
	if err != nil {
		t.Fatal(err)
	}
	if b.bucket != "reports" || b.key != "2025/team.xlsx" {
		t.Errorf("bucket/key = %q/%q", b.bucket, b.key)
	}
	if b.Name() != "team.xlsx" {
		t.Errorf("Name() = %q", b.Name())
	}
	if b.client.EndpointURL().Scheme != "http" {
		t.Errorf("secure=false should select http, got %s", b.client.EndpointURL())
	}
}

func TestNewObjectBlob_RejectsIncompleteLocation(t *testing.T) {
	for _, loc := range []string{"s3://minio.local:9000/reports", "s3:///bucket/key.csv"} {
		if _, err := newObjectBlob(loc, nil, ""); err == nil {
			t.Errorf("%s: expected an error", loc)
		}
	}
}

func TestOpenBlob_PicksBackend(t *testing.T) {
	b, err := openBlob("/tmp/team.csv", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*FileBlob); !ok {
		t.Errorf("local path opened as %T", b)
	}
	b, err = openBlob("s3://minio.local/bucket/team.csv", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*ObjectBlob); !ok {
		t.Errorf("s3 location opened as %T", b)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"a/b.XLSX": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"b.csv":    "text/csv",
		"c.json":   "application/json",
		"d.bin":    "application/octet-stream",
	}
	for key, want := range cases {
		if got := contentType(key); got != want {
			t.Errorf("contentType(%q) = %q, want %q", key, got, want)
		}
	}
}
