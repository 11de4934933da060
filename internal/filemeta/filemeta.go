// Package filemeta derives event and session identifiers from the storage key
// of a telemetry file. Keys look like "some/prefix/<event_id>_<session_id>.csv",
// where event_id packs a two-character year, a three-character event number
// and a free-form event code, e.g. "23001A".
package filemeta

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKeyFormat is returned (wrapped) for any key that does not name a
// "<event_id>_<session_id>.csv" file.
var ErrInvalidKeyFormat = errors.New("invalid key format")

// Extension is the only accepted file extension.
const Extension = "csv"

// Metadata keys, as consumed by transformer.Transform.
const (
	KeyFileNameWithExtension = "file_name_with_extension"
	KeyFileName              = "file_name"
	KeyExtension             = "extension"
	KeyEventID               = "event_id"
	KeyEventYear             = "event_year"
	KeyEventNum              = "event_num"
	KeyEventCode             = "event_code"
	KeySessionID             = "session_id"
)

// Metadata is derived once per input file and is read-only afterwards.
type Metadata struct {
	FileNameWithExtension string
	FileName              string
	Extension             string
	EventID               string
	EventYear             string
	EventNum              string
	EventCode             string
	SessionID             string
}

// Parse extracts Metadata from a storage key. It is a pure function.
func Parse(key string) (Metadata, error) {
	name := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		name = key[i+1:]
	}
	if name == "" {
		return Metadata{}, fmt.Errorf("%w: key %q has no file name", ErrInvalidKeyFormat, key)
	}

	parts := strings.Split(name, ".")
	if len(parts) < 2 || parts[1] == "" {
		return Metadata{}, fmt.Errorf("%w: %q has no extension", ErrInvalidKeyFormat, name)
	}
	ext := parts[1]
	if ext != Extension {
		return Metadata{}, fmt.Errorf("%w: %q is not a .%s file", ErrInvalidKeyFormat, name, Extension)
	}

	base := parts[0]
	ids := strings.Split(base, "_")
	if len(ids) != 2 {
		return Metadata{}, fmt.Errorf("%w: file name must be '<event_id>_<session_id>.csv', got %q", ErrInvalidKeyFormat, name)
	}
	eventID, sessionID := ids[0], ids[1]
	if eventID == "" || sessionID == "" {
		return Metadata{}, fmt.Errorf("%w: empty event or session id in %q", ErrInvalidKeyFormat, name)
	}

	return Metadata{
		FileNameWithExtension: name,
		FileName:              base,
		Extension:             ext,
		EventID:               eventID,
		EventYear:             slice(eventID, 0, 2),
		EventNum:              slice(eventID, 2, 5),
		EventCode:             slice(eventID, 5, len(eventID)),
		SessionID:             sessionID,
	}, nil
}

// StagingTable is the name of the per-file staging table.
func (m Metadata) StagingTable() string {
	return "stg_" + m.EventID + "_" + m.SessionID
}

// Map renders the metadata as the eight-key map the transformer expects.
func (m Metadata) Map() map[string]string {
	return map[string]string{
		KeyFileNameWithExtension: m.FileNameWithExtension,
		KeyFileName:              m.FileName,
		KeyExtension:             m.Extension,
		KeyEventID:               m.EventID,
		KeyEventYear:             m.EventYear,
		KeyEventNum:              m.EventNum,
		KeyEventCode:             m.EventCode,
		KeySessionID:             m.SessionID,
	}
}

// slice clamps [from, to) to the string length, so short event ids yield
// empty trailing parts instead of panicking. Concatenating the three parts
// always reproduces the event id.
func slice(s string, from, to int) string {
	if from > len(s) {
		from = len(s)
	}
	if to > len(s) {
		to = len(s)
	}
	return s[from:to]
}
