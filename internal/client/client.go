package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/authconnector/internal/models"
)

// SyncClient is the part of the remote API the reconciliation engine uses.
type SyncClient interface {
	Sync(ctx context.Context, users []models.LocalPayload, modes models.Modes) (*SyncResponse, error)
}

// Client is the full remote API surface.
type Client interface {
	SyncClient
	Login(ctx context.Context, email, password string, remember bool) (Response, error)
	UnsafeLogin(ctx context.Context, email string, remember bool) (Response, error)
	Register(ctx context.Context, in RegisterRequest) (Response, error)
	Refresh(ctx context.Context) (Response, error)
	Me(ctx context.Context) (Response, error)
	Update(ctx context.Context, remoteID int64, attributes map[string]any) (Response, error)
	Forgot(ctx context.Context, email string) (Response, error)
	ValidateReset(ctx context.Context, token, email string) (Response, error)
	Reset(ctx context.Context, in ResetRequest) (Response, error)
	Delete(ctx context.Context, remoteID int64) (Response, error)
	Restore(ctx context.Context, remoteID int64) (Response, error)
}

// TokenSource returns the bearer token of the current principal, or "".
type TokenSource func(ctx context.Context) string

// SyncRequest is the body of POST sync.
type SyncRequest struct {
	Users []models.LocalPayload `json:"users"`
	Modes models.Modes          `json:"modes"`
}

// SyncResponse is the decoded body of a successful sync.
type SyncResponse struct {
	Status     string                `json:"status"`
	Difference []models.RemoteRecord `json:"difference"`
	Stats      models.Stats          `json:"stats"`
}

// Users converts the difference into RemoteUsers. Each entry must carry a
// known action; anything else is a protocol error.
func (r *SyncResponse) Users() ([]models.RemoteUser, error) {
	out := make([]models.RemoteUser, 0, len(r.Difference))
	for i, rec := range r.Difference {
		u, err := models.RemoteUserFromDifference(rec)
		if err != nil {
			return nil, fmt.Errorf("difference entry %d: %w", i, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// RegisterRequest is the body of POST register.
type RegisterRequest struct {
	UserID   int64   `json:"userId"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Country  *string `json:"country"`
}

// ResetRequest holds the parameters of a password reset.
type ResetRequest struct {
	Token        string `json:"-"`
	Email        string `json:"-"`
	Password     string `json:"password"`
	Confirmation string `json:"password_confirmation"`
}

// Response is a decoded JSON object returned by single-record requests.
type Response map[string]any

func (r Response) Status() string {
	s, _ := r["status"].(string)
	return s
}

func (r Response) Token() string {
	s, _ := r["token"].(string)
	return s
}

// User returns the nested "user" object, if any.
func (r Response) User() map[string]any {
	u, _ := r["user"].(map[string]any)
	return u
}
