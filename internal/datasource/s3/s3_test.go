package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"telemetry/internal/datasource"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string]string
	err     error
	gotKey  string
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.gotKey = aws.StringValue(in.Bucket) + "/" + aws.StringValue(in.Key)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[f.gotKey]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestOpen(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"landing/raw/23001A_Q1.csv": "timeUtc\n"}}
	r := NewReader(fake)

	rc, err := r.Open(context.Background(), "landing", "raw/23001A_Q1.csv")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "timeUtc\n" {
		t.Fatalf("body=%q", b)
	}

	_, err = r.Open(context.Background(), "landing", "raw/missing.csv")
	if !errors.Is(err, datasource.ErrSourceNotFound) {
		t.Fatalf("err=%v; want ErrSourceNotFound", err)
	}
}

/*
TestOpen_ErrorMapping verifies that bucket-missing errors are reported as not
found while every other SDK error becomes a *SourceReadError.
*/
func TestOpen_ErrorMapping(t *testing.T) {
	cases := []struct {
		err      error
		notFound bool
	}{
		{err: awserr.New(s3.ErrCodeNoSuchBucket, "no bucket", nil), notFound: true},
		{err: awserr.New("AccessDenied", "denied", nil)},
		{err: errors.New("connection reset")},
	}
	for _, c := range cases {
		r := NewReader(&fakeS3{err: c.err})
		_, err := r.Open(context.Background(), "b", "k.csv")
		if c.notFound {
			if !errors.Is(err, datasource.ErrSourceNotFound) {
				t.Fatalf("%v: got %v", c.err, err)
			}
			continue
		}
		var rerr *datasource.SourceReadError
		if !errors.As(err, &rerr) || rerr.Key != "k.csv" {
			t.Fatalf("%v: got %T %v", c.err, err, err)
		}
	}
}
