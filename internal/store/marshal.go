package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/roster/internal/executor"
)

// marshalReport converts a report to JSON TEXT for storage.
// HTML escaping is disabled so names with '&' or '<' read back verbatim in
// sqlite shells.
func marshalReport(r *executor.Report) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalReport parses a stored report.
func unmarshalReport(data string) (*executor.Report, error) {
	var r executor.Report
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	if r.Failures == nil {
		r.Failures = []executor.Failure{}
	}
	return &r, nil
}
