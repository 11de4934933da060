// Package parser defines the decoding seam between a raw source stream and
// the in-memory frame.
package parser

import (
	"io"

	"telemetry/internal/frame"
)

// Decoder turns a byte stream into a frame of raw string cells. skipped counts
// rows dropped as malformed.
type Decoder interface {
	Decode(r io.Reader) (f *frame.Frame, skipped int, err error)
}
