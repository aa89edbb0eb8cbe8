package tabular

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"sheetlocator/internal/domain"
	"sheetlocator/internal/registry"
	"sheetlocator/internal/secret"
)

// ── Store ──────────────────────────────────────────────────
// A Store loads and persists one dataset as a whole workbook, raw: headers
// and rows as the backing store holds them (see Clean for the indexed view).
// Save writes the sheets named in Workbook.Touched, or all of them.

// Store is the interface every dataset backend implements.
type Store interface {
	// Load reads every sheet of the dataset.
	Load(ctx context.Context) (*domain.Workbook, error)

	// Save writes wb back. Sheets outside wb.Touched keep their stored
	// content wherever the backend can write one sheet alone.
	Save(ctx context.Context, wb *domain.Workbook) error

	// Close releases connections held by the store.
	Close() error
}

// Codec converts a file-shaped workbook to and from bytes.
// Implementations live in tabular/codecs, one file per format.
type Codec interface {
	Format() string
	Decode(data []byte, name string) (*domain.Workbook, error)
	Encode(ctx context.Context, wb *domain.Workbook) ([]byte, error)
}

// Patcher is a Codec that can rewrite only some sheets of an encoded file,
// copying every other sheet from base untouched.
type Patcher interface {
	Patch(ctx context.Context, base []byte, wb *domain.Workbook, sheets []string) ([]byte, error)
}

// Backend opens a Store for formats that are not plain files (databases).
// dsn has its ${password} placeholder already substituted.
type Backend func(ctx context.Context, ds registry.Dataset, dsn string) (Store, error)

// ── Registry ───────────────────────────────────────────────
// Compile-time registration via init() in each implementation file.

var (
	registryMu sync.RWMutex
	codecs     = map[string]Codec{}
	backends   = map[string]Backend{}
)

// RegisterCodec registers a file codec by its format name.
func RegisterCodec(c Codec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	codecs[c.Format()] = c
}

// RegisterBackend registers a database backend for a format name.
func RegisterBackend(format string, b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[format] = b
}

// GetCodec returns a registered codec by format.
func GetCodec(format string) (Codec, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := codecs[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
	return c, nil
}

// Formats lists every registered format name.
func Formats() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(codecs)+len(backends))
	for f := range codecs {
		out = append(out, f)
	}
	for f := range backends {
		out = append(out, f)
	}
	return out
}

// Open builds the Store for a dataset.
func Open(ctx context.Context, ds registry.Dataset, secrets secret.SecretStore) (Store, error) {
	registryMu.RLock()
	codec, isCodec := codecs[ds.Format]
	backend, isBackend := backends[ds.Format]
	registryMu.RUnlock()

	switch {
	case isCodec:
		blob, err := openBlob(ds.Location, secrets, ds.Secret)
		if err != nil {
			return nil, err
		}
		return &codecStore{codec: codec, blob: blob}, nil
	case isBackend:
		dsn, err := expandDSN(ds.Location, secrets, ds.Secret)
		if err != nil {
			return nil, err
		}
		return backend(ctx, ds, dsn)
	default:
		return nil, fmt.Errorf("dataset %q: %w: %q", ds.Key, domain.ErrUnsupportedFormat, ds.Format)
	}
}

func expandDSN(dsn string, secrets secret.SecretStore, key string) (string, error) {
	if key == "" || secrets == nil || !strings.Contains(dsn, "${password}") {
		return dsn, nil
	}
	pw, err := secrets.Get(key)
	if err != nil {
		return "", fmt.Errorf("secret %q: %w", key, err)
	}
	return strings.ReplaceAll(dsn, "${password}", string(pw)), nil
}

// codecStore is a file-shaped dataset: bytes from a Blob through a Codec.
type codecStore struct {
	codec Codec
	blob  Blob
}

func (s *codecStore) Load(ctx context.Context) (*domain.Workbook, error) {
	data, err := s.blob.Read(ctx)
	if err != nil {
		return nil, err
	}
	wb, err := s.codec.Decode(data, s.blob.Name())
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.codec.Format(), err)
	}
	return wb, nil
}

func (s *codecStore) Save(ctx context.Context, wb *domain.Workbook) error {
	data, err := s.encode(ctx, wb)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.codec.Format(), err)
	}
	return s.blob.Write(ctx, data)
}

// encode patches the current file when only some sheets changed and the
// codec supports it, and encodes the whole workbook otherwise.
func (s *codecStore) encode(ctx context.Context, wb *domain.Workbook) ([]byte, error) {
	p, ok := s.codec.(Patcher)
	if !ok || len(wb.Touched) == 0 {
		return s.codec.Encode(ctx, wb)
	}
	base, err := s.blob.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("[STORE] Cannot read %s for patching, rewriting it: %v", s.blob.Name(), err)
		return s.codec.Encode(ctx, wb)
	}
	return p.Patch(ctx, base, wb, wb.Touched)
}

func (s *codecStore) Close() error { return nil }
