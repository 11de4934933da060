// Package datasource defines how the pipeline fetches a source object by
// bucket and key. Implementations live in subpackages (file, s3, httpds).
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrSourceNotFound is returned (wrapped) when the bucket or key does not exist.
var ErrSourceNotFound = errors.New("source not found")

// Reader opens the object at bucket/key. The caller closes the stream.
type Reader interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// SourceReadError is any transport failure other than not-found.
type SourceReadError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("read %s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// NotFound wraps ErrSourceNotFound with the location that was missing.
func NotFound(bucket, key string) error {
	return fmt.Errorf("%w: %s/%s", ErrSourceNotFound, bucket, key)
}
