package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/authconnector/internal/flagx"
	"github.com/dmitrijs2005/authconnector/internal/models"
)

var ErrNoUsersPassed = errors.New("no users passed")

// modeFlags are the flags shared by sync and export.
type modeFlags struct {
	passwords *bool
	users     *string
	yes       *bool
}

func addModeFlags(fs *flag.FlagSet) modeFlags {
	return modeFlags{
		passwords: fs.Bool("passwords", false, "let password hashes travel in both directions"),
		users:     fs.String("users", "", "only these local user ids, e.g. 1,2,3"),
		yes:       fs.Bool("y", false, "do not ask for confirmation"),
	}
}

// modes reports the enabled modes. The users mode is on only when -users
// was given at all.
func (m modeFlags) modes(fs *flag.FlagSet) models.Modes {
	modes := models.Modes{}
	if *m.passwords {
		modes = modes.With(models.ModePasswords)
	}
	if flagWasSet(fs, "users") {
		modes = modes.With(models.ModeUsers)
	}
	return modes
}

// selectLocals loads the users a run works on: every live user, or the
// listed ids in the users mode.
func (a *App) selectLocals(ctx context.Context, modes models.Modes, raw string) ([]models.LocalUser, error) {
	repo := a.users()
	if !modes.Has(models.ModeUsers) {
		return repo.List(ctx)
	}

	ids, err := parseUserIDs(raw)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoUsersPassed
	}

	found, err := repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(found, func(u models.LocalUser) bool { return u.Trashed() }), nil
}

// parseUserIDs accepts "1,2,3" as well as keyed "a:1,b:2" lists.
func parseUserIDs(raw string) ([]int64, error) {
	items := flagx.ParseList(raw)
	values := make([]string, 0, len(items))
	for _, v := range items {
		values = append(values, v)
	}

	ids, err := flagx.ParseIDs(strings.Join(values, ","))
	if err != nil {
		return nil, fmt.Errorf("invalid user id list %q: %w", raw, err)
	}
	slices.Sort(ids)
	return ids, nil
}
