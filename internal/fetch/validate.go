package fetch

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrMissingField marks a payload that lacks a required nested field. Such
// payloads are skipped, not treated as pipeline failures.
var ErrMissingField = errors.New("missing required field")

// RequireFields checks that every gjson path resolves in the payload.
func RequireFields(payload []byte, paths ...string) error {
	for _, path := range paths {
		if !gjson.GetBytes(payload, path).Exists() {
			return fmt.Errorf("%w: %s", ErrMissingField, path)
		}
	}
	return nil
}
