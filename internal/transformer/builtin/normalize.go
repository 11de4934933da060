package builtin

import (
	"strings"

	"telemetry/internal/frame"
)

// Normalize trims surrounding whitespace from string cells and turns the
// mis-decoded non-breaking space ("Â ") into a plain space.
type Normalize struct{}

func (Normalize) Apply(f *frame.Frame) {
	for _, name := range f.Names() {
		vals, _ := f.Column(name)
		for i, v := range vals {
			if s, ok := v.(string); ok {
				vals[i] = strings.TrimSpace(strings.ReplaceAll(s, "Â ", " "))
			}
		}
	}
}
