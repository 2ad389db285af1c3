package report

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONFormatter renders the report as indented JSON for scripting.
type JSONFormatter struct{}

// Format writes the report as JSON to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	w.Write(data)
	w.WriteByte('\n')
	return nil
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)
