// Package objstore writes table data files to a location given as a URI:
// "s3://bucket/prefix/..." or a local path (optionally "file://").
package objstore

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

// Store writes and removes objects. The S3 client is only needed for s3://
// URIs.
type Store struct {
	S3 s3iface.S3API
}

func New(client s3iface.S3API) *Store { return &Store{S3: client} }

// IsS3 reports whether uri names an S3 location.
func IsS3(uri string) bool { return strings.HasPrefix(uri, "s3://") }

// Join appends slash-separated elements to a location URI.
func Join(location string, elem ...string) string {
	if IsS3(location) || strings.HasPrefix(location, "file://") {
		out := strings.TrimRight(location, "/")
		for _, e := range elem {
			out += "/" + strings.Trim(e, "/")
		}
		return out
	}
	return filepath.Join(append([]string{location}, elem...)...)
}

// Put stores contents at uri, creating local parent directories as needed.
func (s *Store) Put(ctx context.Context, uri string, contents []byte) error {
	if IsS3(uri) {
		bucket, key, err := splitS3(uri)
		if err != nil {
			return err
		}
		if s.S3 == nil {
			return errors.New("missing s3 client")
		}
		_, err = s.S3.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(contents),
			ContentLength: aws.Int64(int64(len(contents))),
		})
		return errors.Wrapf(err, "putting S3 object %v", uri)
	}
	p := LocalPath(uri)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %v", uri)
	}
	return errors.Wrapf(os.WriteFile(p, contents, 0o644), "writing file %v", uri)
}

// Delete removes the object at uri. A missing object is not an error.
func (s *Store) Delete(ctx context.Context, uri string) error {
	if IsS3(uri) {
		bucket, key, err := splitS3(uri)
		if err != nil {
			return err
		}
		if s.S3 == nil {
			return errors.New("missing s3 client")
		}
		_, err = s.S3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return errors.Wrapf(err, "deleting S3 object %v", uri)
	}
	err := os.Remove(LocalPath(uri))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing file %v", uri)
	}
	return nil
}

// LocalPath strips a file:// scheme.
func LocalPath(uri string) string {
	return filepath.FromSlash(strings.TrimPrefix(uri, "file://"))
}

func splitS3(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", errors.Wrapf(err, "parsing S3 URL %v", uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", errors.Errorf("S3 URL %v needs a bucket and key", uri)
	}
	return u.Host, key, nil
}
