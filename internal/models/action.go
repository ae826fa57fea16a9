package models

import (
	"errors"
	"fmt"
)

// Action is the change the receiving side must apply for a record.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ErrUnknownAction marks an action outside the enumeration. It is a protocol
// error and aborts whatever run encountered it.
var ErrUnknownAction = errors.New("unknown action")

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}
