package transformer

import (
	"errors"
	"fmt"
	"sort"

	"telemetry/internal/filemeta"
	"telemetry/internal/frame"
	"telemetry/internal/schema"
	"telemetry/internal/transformer/builtin"
)

// Step mutates a frame in place.
type Step interface{ Apply(*frame.Frame) }

// Chain is an ordered list of steps.
type Chain []Step

func (c Chain) Apply(f *frame.Frame) {
	for _, s := range c {
		s.Apply(f)
	}
}

// ErrInvalidMetadata is returned when the metadata map is not the full
// eight-key shape produced by filemeta.Metadata.Map.
var ErrInvalidMetadata = errors.New("invalid metadata")

var metadataKeys = []string{
	filemeta.KeyFileNameWithExtension,
	filemeta.KeyFileName,
	filemeta.KeyExtension,
	filemeta.KeyEventID,
	filemeta.KeyEventYear,
	filemeta.KeyEventNum,
	filemeta.KeyEventCode,
	filemeta.KeySessionID,
}

// insertOrder is the order columns are pushed onto the front of the frame;
// the result reads event_id, event_year, event_code, event_num, session_id.
var insertOrder = []string{
	schema.SessionID,
	schema.EventNum,
	schema.EventCode,
	schema.EventYear,
	schema.EventID,
}

// retype runs after the metadata columns are in place.
var retype = Chain{builtin.Coerce{Types: map[string]string{schema.TimeUTC: "timestamp"}}}

// Transform prepends the metadata columns and re-types timeUtc. Cells that no
// longer parse as timestamps become nil; no re-validation happens here.
func Transform(f *frame.Frame, meta map[string]string) error {
	if err := checkMetadata(meta); err != nil {
		return err
	}
	for _, col := range insertOrder {
		f.InsertFront(col, meta[col])
	}
	retype.Apply(f)
	return nil
}

func checkMetadata(meta map[string]string) error {
	var missing []string
	for _, k := range metadataKeys {
		if _, ok := meta[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrInvalidMetadata, missing)
	}
	if len(meta) != len(metadataKeys) {
		extra := make([]string, 0, len(meta)-len(metadataKeys))
		for k := range meta {
			if !isMetadataKey(k) {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		return fmt.Errorf("%w: unexpected keys %v", ErrInvalidMetadata, extra)
	}
	return nil
}

func isMetadataKey(k string) bool {
	for _, m := range metadataKeys {
		if m == k {
			return true
		}
	}
	return false
}
