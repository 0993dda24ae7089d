package dataset

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/kalambet/labelbench/internal/storage"
)

// Oversize fields are cut to these lengths instead of rejecting the record.
const (
	maxPromptRunes   = 10000
	maxResponseRunes = 50000
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Record is one sample as it appears in an import file, before validation.
type Record struct {
	ID       string         `json:"id"`
	Prompt   string         `json:"prompt"`
	Response string         `json:"response"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ValidationError describes why one record of an import file was rejected.
type ValidationError struct {
	File   string // empty when the source is not a file
	Record int    // 0-based position within the file
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: record %d: %s %s", e.File, e.Record, e.Field, e.Reason)
	}
	return fmt.Sprintf("record %d: %s %s", e.Record, e.Field, e.Reason)
}

// Validate checks one parsed record and converts it into a sample. The index
// identifies the record in error reports. Oversize prompt/response fields
// are truncated, not rejected.
func (r Record) Validate(index int) (storage.Sample, error) {
	if r.ID == "" {
		return storage.Sample{}, &ValidationError{Record: index, Field: "id", Reason: "is required"}
	}
	if !idPattern.MatchString(r.ID) {
		return storage.Sample{}, &ValidationError{Record: index, Field: "id", Reason: "may only contain letters, digits, underscores, and hyphens"}
	}
	if r.Prompt == "" {
		return storage.Sample{}, &ValidationError{Record: index, Field: "prompt", Reason: "is required"}
	}
	if r.Response == "" {
		return storage.Sample{}, &ValidationError{Record: index, Field: "response", Reason: "is required"}
	}
	return storage.Sample{
		ID:       r.ID,
		Prompt:   truncateRunes(r.Prompt, maxPromptRunes),
		Response: truncateRunes(r.Response, maxResponseRunes),
		Metadata: r.Metadata,
	}, nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
