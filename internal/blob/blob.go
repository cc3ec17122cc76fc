// Package blob uploads export files to Google Cloud Storage or, for local
// runs, to a directory.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Uploader stores a named object and returns its location.
type Uploader interface {
	// Upload copies r to the object called name.
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// GCS uploads objects to a Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS connects to Cloud Storage with application default credentials.
func NewGCS(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("blob: bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// Upload writes r to gs://bucket/name.
func (g *GCS) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("blob: write gs://%s/%s: %w", g.bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("blob: finalize gs://%s/%s: %w", g.bucket, name, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, name), nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// Dir writes objects as files under a root directory.
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at root.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("blob: directory is required")
	}
	return &Dir{root: root}, nil
}

// Upload writes r to root/name, creating parent directories. Names that
// escape root are rejected.
func (d *Dir) Upload(_ context.Context, name string, r io.Reader) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("blob: object name %q escapes the destination directory", name)
	}
	path := filepath.Join(d.root, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("blob: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("blob: create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("blob: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("blob: close %s: %w", path, err)
	}
	return path, nil
}
