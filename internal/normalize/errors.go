package normalize

import (
	"errors"
	"fmt"
)

// ValidationError rejects a whole record. Field-level problems never produce
// one; they produce an Issue and the field is dropped.
type ValidationError struct {
	ExternalID string
	Field      string
	Message    string
}

func (e *ValidationError) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("invalid record %s: %s: %s", e.ExternalID, e.Field, e.Message)
	}
	return fmt.Sprintf("invalid record: %s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Issue records a field that was dropped during normalization.
type Issue struct {
	ExternalID string `json:"external_id"`
	Field      string `json:"field"`
	Value      string `json:"value"`
	Reason     string `json:"reason"`
}
