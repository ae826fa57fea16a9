package models

import (
	"strings"
	"time"
)

// LocalUser is a user record owned by the host application.
type LocalUser struct {
	ID        int64
	RemoteID  *int64
	Name      *string
	Email     string
	Country   *string
	Password  *string
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
}

// Syncable is implemented by any host type that can present itself as a
// LocalUser. The reconciliation engine only reads through it.
type Syncable interface {
	AsLocalUser() LocalUser
}

func (u LocalUser) AsLocalUser() LocalUser {
	return u
}

// Trashed reports whether the record is soft-deleted.
func (u LocalUser) Trashed() bool {
	return u.DeletedAt != nil
}

// Collect flattens host values into LocalUsers, keeping order.
func Collect[S Syncable](items []S) []LocalUser {
	out := make([]LocalUser, len(items))
	for i, it := range items {
		out[i] = it.AsLocalUser()
	}
	return out
}

// NormalizeEmail is the comparison key for emails: trimmed and lowercased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LocalPayload is the wire form of a LocalUser sent to the remote service
// and written into dumps.
type LocalPayload struct {
	ID        int64      `json:"id"`
	RemoteID  *int64     `json:"remoteId"`
	Name      *string    `json:"name"`
	Email     string     `json:"email"`
	Password  *string    `json:"password"`
	Country   *string    `json:"country"`
	CreatedAt *Timestamp `json:"created_at"`
	UpdatedAt *Timestamp `json:"updated_at"`
}

// Payload flattens u for the wire.
func (u LocalUser) Payload() LocalPayload {
	return LocalPayload{
		ID:        u.ID,
		RemoteID:  u.RemoteID,
		Name:      u.Name,
		Email:     u.Email,
		Password:  u.Password,
		Country:   u.Country,
		CreatedAt: NewTimestamp(u.CreatedAt),
		UpdatedAt: TimestampOf(u.UpdatedAt),
	}
}

// Payloads flattens a slice of users, keeping order.
func Payloads(users []LocalUser) []LocalPayload {
	out := make([]LocalPayload, len(users))
	for i := range users {
		out[i] = users[i].Payload()
	}
	return out
}
