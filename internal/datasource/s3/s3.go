// Package s3 reads source objects from Amazon S3 (or an S3-compatible
// endpoint) through the v1 SDK.
package s3

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"

	"telemetry/internal/datasource"
)

// Reader implements datasource.Reader with GetObject.
type Reader struct {
	client s3iface.S3API
}

func NewReader(client s3iface.S3API) *Reader { return &Reader{client: client} }

// Options selects region and, for S3-compatible stores, a custom endpoint.
type Options struct {
	Region   string
	Endpoint string
}

// NewSession builds an SDK session from the default credential chain.
func NewSession(opt Options) (*session.Session, error) {
	cfg := aws.NewConfig()
	if opt.Region != "" {
		cfg = cfg.WithRegion(opt.Region)
	}
	if opt.Endpoint != "" {
		cfg = cfg.WithEndpoint(opt.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *cfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating aws session")
	}
	return sess, nil
}

// Open fetches s3://bucket/key. NoSuchKey and NoSuchBucket map to
// datasource.ErrSourceNotFound.
func (r *Reader) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := r.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, datasource.NotFound(bucket, key)
		}
		return nil, &datasource.SourceReadError{
			Bucket: bucket,
			Key:    key,
			Err:    errors.Wrapf(err, "fetching S3 object s3://%s/%s", bucket, key),
		}
	}
	return out.Body, nil
}

// IsNotFound reports whether err is an S3 missing key or bucket error.
func IsNotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
