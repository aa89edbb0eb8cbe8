package tabular

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sheetlocator/internal/secret"
)

// Blob is the byte-level home of a file-shaped dataset.
type Blob interface {
	Name() string
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

func openBlob(location string, secrets secret.SecretStore, secretKey string) (Blob, error) {
	if strings.HasPrefix(location, "s3://") {
		return newObjectBlob(location, secrets, secretKey)
	}
	return &FileBlob{Path: location}, nil
}

// FileBlob is a dataset file on the local disk. Writes go to a temp file in
// the same directory and are renamed over the target, so readers never see
// a partial file.
type FileBlob struct {
	Path string
}

func (b *FileBlob) Name() string { return filepath.Base(b.Path) }

func (b *FileBlob) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.Path, err)
	}
	return data, nil
}

func (b *FileBlob) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(b.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, b.Path); err != nil {
		return fmt.Errorf("rename into %s: %w", b.Path, err)
	}
	return nil
}
