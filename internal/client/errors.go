package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMalformedResponse = errors.New("malformed response")
)

// HTTPError is a non-success response that is neither 401 nor 422.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote service responded with status %d", e.Status)
	}
	return fmt.Sprintf("remote service responded with status %d: %s", e.Status, e.Message)
}

// ValidationError carries the per-field messages of a 422 response.
type ValidationError struct {
	Fields  map[string][]string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// attributeMap renames remote attributes to their local names.
var attributeMap = map[string]string{
	"username": "email",
}

// attributeHides lists remote attributes that never reach the caller.
var attributeHides = map[string]struct{}{
	"userId": {},
}

// newValidationError interprets the message of a 422 response. The remote
// service sends either a field map or a JSON string that encodes one.
func newValidationError(raw json.RawMessage) *ValidationError {
	fields := map[string][]string{}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if err := json.Unmarshal([]byte(asString), &fields); err != nil {
			return &ValidationError{Message: asString}
		}
	} else if err := json.Unmarshal(raw, &fields); err != nil {
		return &ValidationError{Message: string(raw)}
	}

	out := make(map[string][]string, len(fields))
	for attr, msgs := range fields {
		if _, hidden := attributeHides[attr]; hidden {
			continue
		}
		if renamed, ok := attributeMap[attr]; ok {
			attr = renamed
		}
		for _, m := range msgs {
			for from, to := range attributeMap {
				m = strings.ReplaceAll(m, from, to)
			}
			out[attr] = append(out[attr], m)
		}
	}
	return &ValidationError{Fields: out}
}
