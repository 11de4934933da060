// Package file implements a local filesystem-backed data source. The bucket is
// a directory and the key a slash-separated path below it.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"telemetry/internal/datasource"
)

// Local reads objects from the local disk. It is safe for concurrent use.
type Local struct {
	// Root, when set, is joined in front of relative buckets.
	Root string
}

// NewLocal returns a Local reader resolving relative buckets against root.
func NewLocal(root string) *Local { return &Local{Root: root} }

// Open opens bucket/key for reading.
//
// A canceled context returns its error without touching the filesystem. Keys
// that would escape the bucket directory are rejected as read errors.
func (l *Local) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	p, err := l.resolve(bucket, key)
	if err != nil {
		return nil, &datasource.SourceReadError{Bucket: bucket, Key: key, Err: err}
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, datasource.NotFound(bucket, key)
		}
		return nil, &datasource.SourceReadError{Bucket: bucket, Key: key, Err: err}
	}
	st, err := f.Stat()
	if err == nil && st.IsDir() {
		_ = f.Close()
		return nil, &datasource.SourceReadError{Bucket: bucket, Key: key, Err: fmt.Errorf("%s is a directory", p)}
	}
	return f, nil
}

func (l *Local) resolve(bucket, key string) (string, error) {
	dir := bucket
	if !filepath.IsAbs(dir) && l.Root != "" {
		dir = filepath.Join(l.Root, dir)
	}
	rel := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes bucket", key)
	}
	return filepath.Join(dir, rel), nil
}
