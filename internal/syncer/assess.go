package syncer

import (
	"context"
	"slices"

	"github.com/dmitrijs2005/authconnector/internal/models"
)

// AssessSource is the local store view needed to compare user sets.
type AssessSource interface {
	RemoteIDs(ctx context.Context) (map[int64]*int64, error)
	ListByIDs(ctx context.Context, ids []int64) ([]models.LocalUser, error)
}

// Assessment compares the local and remote user sets by remote key.
type Assessment struct {
	// UniqueTenantUsers are live local users whose remote id is missing from
	// the remote keys, including users never synced.
	UniqueTenantUsers []models.LocalUser
	// UniqueServiceUserKeys are remote keys no local user points to, in the
	// order they were given.
	UniqueServiceUserKeys []int64
}

func Assess(ctx context.Context, src AssessSource, remoteKeys []int64) (*Assessment, error) {
	local, err := src.RemoteIDs(ctx)
	if err != nil {
		return nil, err
	}

	remote := make(map[int64]struct{}, len(remoteKeys))
	for _, k := range remoteKeys {
		remote[k] = struct{}{}
	}

	linked := make(map[int64]struct{}, len(local))
	var uniqueLocalIDs []int64
	for id, rid := range local {
		if rid != nil {
			linked[*rid] = struct{}{}
			if _, ok := remote[*rid]; ok {
				continue
			}
		}
		uniqueLocalIDs = append(uniqueLocalIDs, id)
	}
	slices.Sort(uniqueLocalIDs)

	out := &Assessment{
		UniqueTenantUsers:     []models.LocalUser{},
		UniqueServiceUserKeys: []int64{},
	}
	for _, k := range remoteKeys {
		if _, ok := linked[k]; !ok {
			out.UniqueServiceUserKeys = append(out.UniqueServiceUserKeys, k)
		}
	}

	if len(uniqueLocalIDs) == 0 {
		return out, nil
	}
	users, err := src.ListByIDs(ctx, uniqueLocalIDs)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if !u.Trashed() {
			out.UniqueTenantUsers = append(out.UniqueTenantUsers, u)
		}
	}
	return out, nil
}
