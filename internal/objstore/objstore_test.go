package objstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

type fakeS3 struct {
	s3iface.S3API
	puts    map[string][]byte
	deletes []string
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	b, _ := io.ReadAll(in.Body)
	f.puts[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestPut_S3(t *testing.T) {
	fake := &fakeS3{puts: map[string][]byte{}}
	st := New(fake)
	uri := Join("s3://lake/iceberg_tbl/", "stg_23001A_Q1", "data.parquet")
	if uri != "s3://lake/iceberg_tbl/stg_23001A_Q1/data.parquet" {
		t.Fatalf("Join=%q", uri)
	}
	if err := st.Put(context.Background(), uri, []byte("PAR1")); err != nil {
		t.Fatal(err)
	}
	if string(fake.puts["lake/iceberg_tbl/stg_23001A_Q1/data.parquet"]) != "PAR1" {
		t.Fatalf("puts=%v", fake.puts)
	}
	if err := st.Delete(context.Background(), uri); err != nil || len(fake.deletes) != 1 {
		t.Fatalf("delete: %v %v", err, fake.deletes)
	}
}

func TestPut_Local(t *testing.T) {
	dir := t.TempDir()
	st := New(nil)
	uri := Join(dir, "stg", "data.parquet")
	if err := st.Put(context.Background(), uri, []byte("x")); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "stg", "data.parquet"))
	if err != nil || string(b) != "x" {
		t.Fatalf("read back: %q %v", b, err)
	}
	if err := st.Delete(context.Background(), uri); err != nil {
		t.Fatal(err)
	}
	if err := st.Delete(context.Background(), uri); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestPut_S3Errors(t *testing.T) {
	if err := New(nil).Put(context.Background(), "s3://lake/k", nil); err == nil {
		t.Fatal("want missing client error")
	}
	if err := New(&fakeS3{}).Put(context.Background(), "s3://lake", nil); err == nil {
		t.Fatal("want missing key error")
	}
}
