package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

func (c *HTTPClient) Login(ctx context.Context, email, password string, remember bool) (Response, error) {
	return c.call(ctx, "login", http.MethodPost, "login", map[string]any{
		"email":    email,
		"password": password,
		"remember": remember,
	})
}

func (c *HTTPClient) UnsafeLogin(ctx context.Context, email string, remember bool) (Response, error) {
	return c.call(ctx, "unsafeLogin", http.MethodPost, "unsafe-login", map[string]any{
		"email":    email,
		"remember": remember,
	})
}

func (c *HTTPClient) Register(ctx context.Context, in RegisterRequest) (Response, error) {
	return c.call(ctx, "register", http.MethodPost, "register", map[string]any{
		"userId":   in.UserID,
		"name":     in.Name,
		"email":    in.Email,
		"password": in.Password,
		"country":  in.Country,
	})
}

func (c *HTTPClient) Refresh(ctx context.Context) (Response, error) {
	return c.call(ctx, "refresh", http.MethodPost, "refresh", nil)
}

func (c *HTTPClient) Me(ctx context.Context) (Response, error) {
	return c.call(ctx, "me", http.MethodGet, "me", nil)
}

// Update changes attributes of the remote user.
func (c *HTTPClient) Update(ctx context.Context, remoteID int64, attributes map[string]any) (Response, error) {
	body := make(map[string]any, len(attributes)+1)
	for k, v := range attributes {
		body[k] = v
	}
	body["userId"] = remoteID
	return c.call(ctx, "update", http.MethodPost, "update", body)
}

func (c *HTTPClient) Forgot(ctx context.Context, email string) (Response, error) {
	return c.call(ctx, "forgot", http.MethodPost, "forgot", map[string]any{"email": email})
}

func (c *HTTPClient) ValidateReset(ctx context.Context, token, email string) (Response, error) {
	path := "reset/" + url.PathEscape(token) + "/" + url.PathEscape(email) + "/validate"
	return c.call(ctx, "validateReset", http.MethodPost, path, map[string]any{"email": email})
}

func (c *HTTPClient) Reset(ctx context.Context, in ResetRequest) (Response, error) {
	path := "reset/" + url.PathEscape(in.Token) + "/" + url.PathEscape(in.Email)
	return c.call(ctx, "reset", http.MethodPost, path, map[string]any{
		"password":              in.Password,
		"password_confirmation": in.Confirmation,
	})
}

func (c *HTTPClient) Delete(ctx context.Context, remoteID int64) (Response, error) {
	return c.call(ctx, "delete", http.MethodPost, "delete/"+strconv.FormatInt(remoteID, 10), nil)
}

func (c *HTTPClient) Restore(ctx context.Context, remoteID int64) (Response, error) {
	return c.call(ctx, "restore", http.MethodPost, "restore/"+strconv.FormatInt(remoteID, 10), nil)
}
