package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of every sensitive attribute.
const RedactedValue = "..."

var sensitiveKeys = map[string]struct{}{
	"password":              {},
	"password_confirmation": {},
	"passwordconfirmation":  {},
	"password_confirm":      {},
	"passwordconfirm":       {},
	"confirmation":          {},
	"secret":                {},
}

// IsSensitive reports whether values logged under key must be hidden.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// NewHandlerOptions returns handler options at the given level whose
// ReplaceAttr hides sensitive attributes, including ones nested in groups.
func NewHandlerOptions(level slog.Leveler) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactAttr,
	}
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if IsSensitive(a.Key) {
		return slog.String(a.Key, RedactedValue)
	}
	return a
}

// Redact returns a copy of m with sensitive keys masked at any depth.
// It is used for request bodies that are logged as a whole.
func Redact(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if IsSensitive(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Redact(t)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = redactValue(t[i])
		}
		return cp
	default:
		return v
	}
}
