package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidRecord is returned when a remote record misses required fields.
var ErrInvalidRecord = errors.New("invalid remote record")

// RemoteUser is the remote service's view of a user. It is a value type:
// derive modified copies instead of mutating.
type RemoteUser struct {
	RemoteID  int64
	Name      *string
	Email     string
	Country   *string
	Password  *string
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	Action    Action

	// Problems lists malformed fields the record was accepted with. Such a
	// user is reported as a failure instead of being applied.
	Problems FieldErrors
}

// WithoutPassword returns a copy whose password is absent, so applying it
// never changes a local password.
func (u RemoteUser) WithoutPassword() RemoteUser {
	u.Password = nil
	return u
}

// WithAction returns a copy carrying a.
func (u RemoteUser) WithAction(a Action) RemoteUser {
	u.Action = a
	return u
}

// Record converts u to its wire form.
func (u RemoteUser) Record() RemoteRecord {
	return RemoteRecord{
		ID:        u.RemoteID,
		Name:      u.Name,
		Email:     u.Email,
		Country:   u.Country,
		Password:  u.Password,
		CreatedAt: NewTimestamp(u.CreatedAt),
		UpdatedAt: TimestampOf(u.UpdatedAt),
		DeletedAt: TimestampOf(u.DeletedAt),
		Action:    string(u.Action),
	}
}

// RemoteRecord is the wire form of a RemoteUser.
type RemoteRecord struct {
	ID        int64      `json:"id"`
	Name      *string    `json:"name"`
	Email     string     `json:"email"`
	Country   *string    `json:"country"`
	Password  *string    `json:"password"`
	CreatedAt *Timestamp `json:"created_at"`
	UpdatedAt *Timestamp `json:"updated_at"`
	DeletedAt *Timestamp `json:"deleted_at"`
	Action    string     `json:"action,omitempty"`
}

// FieldErrors maps a field name to its problems.
type FieldErrors map[string][]string

func (f FieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(f[k], "; "))
	}
	return strings.Join(parts, ", ")
}

// Validate reports missing or malformed fields. When requireAction is set
// the action must be present and known.
func (r RemoteRecord) Validate(requireAction bool) FieldErrors {
	errs := r.missing()
	r.malformed(errs)
	switch {
	case r.Action == "" && requireAction:
		errs.add("action", "is required")
	case r.Action != "" && !Action(r.Action).Valid():
		errs.add("action", "must be one of create, update, delete")
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// missing covers the fields a record cannot be matched or stored without.
func (r RemoteRecord) missing() FieldErrors {
	errs := FieldErrors{}
	if r.ID <= 0 {
		errs.add("id", "is required")
	}
	if strings.TrimSpace(r.Email) == "" {
		errs.add("email", "is required")
	}
	if r.CreatedAt == nil {
		errs.add("created_at", "is required")
	}
	return errs
}

func (r RemoteRecord) malformed(errs FieldErrors) {
	if strings.TrimSpace(r.Email) != "" && !strings.Contains(r.Email, "@") {
		errs.add("email", "must be a valid email address")
	}
	if r.Country != nil && len(*r.Country) != 2 {
		errs.add("country", "must be 2 characters")
	}
}

// RemoteUserFromDifference builds a RemoteUser from a difference entry.
// The action is mandatory; an unknown one yields ErrUnknownAction.
func RemoteUserFromDifference(r RemoteRecord) (RemoteUser, error) {
	if r.Action == "" {
		return RemoteUser{}, fmt.Errorf("%w: user %d: action is required", ErrInvalidRecord, r.ID)
	}
	if _, err := ParseAction(r.Action); err != nil {
		return RemoteUser{}, fmt.Errorf("user %d: %w", r.ID, err)
	}
	return RemoteUserFromRecord(r)
}

// RemoteUserFromRecord builds a RemoteUser from any wire record. An action,
// when present, must be known, and the id, email and creation time must be
// set. Other malformed fields end up in Problems. A blank country counts as
// no country.
func RemoteUserFromRecord(r RemoteRecord) (RemoteUser, error) {
	if r.Action != "" && !Action(r.Action).Valid() {
		return RemoteUser{}, fmt.Errorf("user %d: %w: %q", r.ID, ErrUnknownAction, r.Action)
	}
	if errs := r.missing(); len(errs) > 0 {
		return RemoteUser{}, fmt.Errorf("%w: user %d: %s", ErrInvalidRecord, r.ID, errs.Error())
	}
	if r.Country != nil && strings.TrimSpace(*r.Country) == "" {
		r.Country = nil
	}
	problems := FieldErrors{}
	r.malformed(problems)
	if len(problems) == 0 {
		problems = nil
	}
	return RemoteUser{
		RemoteID:  r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Country:   r.Country,
		Password:  r.Password,
		CreatedAt: r.CreatedAt.Time,
		UpdatedAt: r.UpdatedAt.Ptr(),
		DeletedAt: r.DeletedAt.Ptr(),
		Action:    Action(r.Action),
		Problems:  problems,
	}, nil
}
