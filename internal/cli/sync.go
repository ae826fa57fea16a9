package cli

import (
	"context"
	"fmt"
)

// Sync reconciles local users with the remote service.
func (a *App) Sync(ctx context.Context, args []string) error {
	fs := newFlagSet("sync", a.out)
	mf := addModeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	modes := mf.modes(fs)
	if len(modes) > 0 {
		fmt.Fprintf(a.out, "Passed modes: %s\n", modes)
	}

	locals, err := a.selectLocals(ctx, modes, *mf.users)
	if err != nil {
		return err
	}
	if len(locals) == 0 {
		fmt.Fprintln(a.out, "No local users found.")
	}

	ok, err := Confirm(a.in, fmt.Sprintf("There are %d local user(s) to sync. Continue?", len(locals)), a.out, *mf.yes)
	if err != nil || !ok {
		return err
	}

	c, err := a.newClient()
	if err != nil {
		return err
	}
	s, err := a.newSyncer(c)
	if err != nil {
		return err
	}

	res, err := s.Sync(ctx, locals, modes)
	writeResult(a.out, res, true)
	if err != nil {
		return err
	}

	writeDuration(a.out, res.Duration)
	return nil
}
