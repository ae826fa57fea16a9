package webhook

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/authconnector/internal/models"
	"github.com/dmitrijs2005/authconnector/internal/syncer"
)

// Applier applies remote changes locally.
type Applier interface {
	Apply(ctx context.Context, foreigners []models.RemoteUser, modes models.Modes) (*syncer.Result, error)
}

type userSyncPayload struct {
	User *models.RemoteRecord `json:"user"`
}

// UserSync applies a single remote change. Passwords always travel with it.
func UserSync(a Applier) HandlerFunc {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var p userSyncPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, &ValidationError{Fields: models.FieldErrors{"user": {err.Error()}}}
		}
		if p.User == nil {
			return nil, &ValidationError{Fields: models.FieldErrors{"user": {"is required"}}}
		}
		if errs := p.User.Validate(true); errs != nil {
			prefixed := make(models.FieldErrors, len(errs))
			for k, v := range errs {
				prefixed["user."+k] = v
			}
			return nil, &ValidationError{Fields: prefixed}
		}

		u, err := models.RemoteUserFromDifference(*p.User)
		if err != nil {
			return nil, err
		}

		res, err := a.Apply(ctx, []models.RemoteUser{u}, models.Modes{models.ModePasswords})
		if err != nil {
			return nil, err
		}
		if len(res.Failures) > 0 {
			errs := make([]error, len(res.Failures))
			for i, f := range res.Failures {
				errs[i] = f.Err
			}
			return nil, errors.Join(errs...)
		}
		return nil, nil
	}
}

type assessPayload struct {
	Keys []int64 `json:"keys"`
}

type assessResponse struct {
	UniqueTenantUsers     []models.LocalPayload `json:"uniqueTenantUsers"`
	UniqueServiceUserKeys []int64               `json:"uniqueServiceUserKeys"`
}

// AssessUsers compares the given remote keys against the local user set.
func AssessUsers(src syncer.AssessSource) HandlerFunc {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var p assessPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, &ValidationError{Fields: models.FieldErrors{"keys": {"must be an array of integers"}}}
		}

		a, err := syncer.Assess(ctx, src, p.Keys)
		if err != nil {
			return nil, err
		}
		return assessResponse{
			UniqueTenantUsers:     models.Payloads(a.UniqueTenantUsers),
			UniqueServiceUserKeys: a.UniqueServiceUserKeys,
		}, nil
	}
}
