// Package sources builds a datasource.Reader from the source section of a
// pipeline config.
package sources

import (
	"fmt"

	"github.com/aws/aws-sdk-go/service/s3"

	"telemetry/internal/config"
	"telemetry/internal/datasource"
	"telemetry/internal/datasource/file"
	"telemetry/internal/datasource/httpds"
	s3ds "telemetry/internal/datasource/s3"
)

// newS3ReaderFn is swapped in tests to avoid building an AWS session.
var newS3ReaderFn = func(opt s3ds.Options) (datasource.Reader, error) {
	sess, err := s3ds.NewSession(opt)
	if err != nil {
		return nil, err
	}
	return s3ds.NewReader(s3.New(sess)), nil
}

// New returns the reader for s.Kind: "file", "s3" or "http".
func New(s config.Source) (datasource.Reader, error) {
	switch s.Kind {
	case "file":
		return file.NewLocal(s.Root), nil
	case "s3":
		r, err := newS3ReaderFn(s3ds.Options{Region: s.Region, Endpoint: s.Endpoint})
		if err != nil {
			return nil, fmt.Errorf("s3 source: %w", err)
		}
		return r, nil
	case "http":
		return httpds.NewReader(httpds.Config{Timeout: s.Timeout.D(), MaxRetries: s.MaxRetries}), nil
	}
	return nil, fmt.Errorf("unsupported source kind %q", s.Kind)
}
