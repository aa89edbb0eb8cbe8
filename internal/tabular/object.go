package tabular

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sheetlocator/internal/secret"
)

// ObjectBlob is a dataset file in S3-compatible object storage.
//
// Location form: s3://endpoint/bucket/key/of/file.xlsx[?secure=false].
// Credentials come from the dataset secret as "ACCESS_KEY:SECRET_KEY".
type ObjectBlob struct {
	client *minio.Client
	bucket string
	key    string
}

// NewObjectBlob wraps an existing minio client.
func NewObjectBlob(client *minio.Client, bucket, key string) *ObjectBlob {
	return &ObjectBlob{client: client, bucket: bucket, key: key}
}

func newObjectBlob(location string, secrets secret.SecretStore, secretKey string) (*ObjectBlob, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse object location: %w", err)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if u.Host == "" || !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("object location %q: want s3://endpoint/bucket/key", location)
	}

	var access, secretAccess string
	if secretKey != "" && secrets != nil {
		raw, err := secrets.Get(secretKey)
		if err != nil {
			return nil, fmt.Errorf("secret %q: %w", secretKey, err)
		}
		access, secretAccess, _ = strings.Cut(string(raw), ":")
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secretAccess, ""),
		Secure: u.Query().Get("secure") != "false",
	})
	if err != nil {
		return nil, fmt.Errorf("object client: %w", err)
	}
	return NewObjectBlob(client, bucket, key), nil
}

func (b *ObjectBlob) Name() string { return path.Base(b.key) }

func (b *ObjectBlob) Read(ctx context.Context) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", b.bucket, b.key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", b.bucket, b.key, err)
	}
	return data, nil
}

// Write replaces the object in a single PUT; S3 never exposes a partial object.
func (b *ObjectBlob) Write(ctx context.Context, data []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, b.key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(b.key),
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", b.bucket, b.key, err)
	}
	return nil
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".xlsx", ".xlsm":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
