package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Mode toggles optional sync behavior.
type Mode string

const (
	// ModePasswords lets password hashes travel in both directions.
	ModePasswords Mode = "passwords"
	// ModeUsers restricts the run to an operator-selected subset.
	ModeUsers Mode = "users"
)

// Modes is the per-invocation set of enabled modes.
type Modes []Mode

func ParseModes(values ...string) (Modes, error) {
	var m Modes
	for _, v := range values {
		mode := Mode(strings.TrimSpace(v))
		switch mode {
		case ModePasswords, ModeUsers:
		default:
			return nil, fmt.Errorf("unknown mode %q", v)
		}
		m = m.With(mode)
	}
	return m, nil
}

func (m Modes) Has(mode Mode) bool {
	return slices.Contains(m, mode)
}

// With returns a copy of m including mode.
func (m Modes) With(mode Mode) Modes {
	if m.Has(mode) {
		return m
	}
	return append(slices.Clone(m), mode)
}

func (m Modes) String() string {
	parts := make([]string, len(m))
	for i, mode := range m {
		parts[i] = string(mode)
	}
	return strings.Join(parts, ", ")
}

// MarshalJSON always emits an array, never null.
func (m Modes) MarshalJSON() ([]byte, error) {
	out := make([]string, len(m))
	for i, mode := range m {
		out[i] = string(mode)
	}
	return json.Marshal(out)
}
