package pii

import (
	"strings"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor scrubs configured fields from event metadata before it is stored.
// Field names match case-insensitively at any depth of nested objects.
type Redactor struct {
	fieldsToRedact map[string]struct{}
}

// NewRedactor creates a new Redactor instance with a given set of fields to redact.
func NewRedactor(fields []string) *Redactor {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if f := strings.ToLower(strings.TrimSpace(field)); f != "" {
			fieldSet[f] = struct{}{}
		}
	}
	return &Redactor{fieldsToRedact: fieldSet}
}

// Redact replaces matching values in place and reports whether anything changed.
func (r *Redactor) Redact(metadata map[string]any) bool {
	if len(r.fieldsToRedact) == 0 || len(metadata) == 0 {
		return false
	}
	return r.redactMap(metadata)
}

func (r *Redactor) redactMap(m map[string]any) bool {
	redacted := false
	for k, v := range m {
		if _, ok := r.fieldsToRedact[strings.ToLower(k)]; ok {
			m[k] = RedactedPlaceholder
			redacted = true
			continue
		}
		if r.redactValue(v) {
			redacted = true
		}
	}
	return redacted
}

func (r *Redactor) redactValue(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		return r.redactMap(t)
	case []any:
		redacted := false
		for _, item := range t {
			if r.redactValue(item) {
				redacted = true
			}
		}
		return redacted
	default:
		return false
	}
}
