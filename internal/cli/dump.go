package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dmitrijs2005/authconnector/internal/cryptox"
	"github.com/dmitrijs2005/authconnector/internal/dump"
	"github.com/dmitrijs2005/authconnector/internal/models"
)

var (
	ErrMissingDumpName = errors.New("dump file name must be passed")
	ErrMissingKey      = errors.New("encryption key must be passed")
)

// Export writes an encrypted dump of local users for the remote operator.
func (a *App) Export(ctx context.Context, args []string) error {
	fs := newFlagSet("export", a.out)
	mf := addModeFlags(fs)
	path := fs.String("path", "", "directory for the dump (file storage only)")
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

	ok, err := Confirm(a.in, fmt.Sprintf("There are %d local user(s) to export. Continue?", len(locals)), a.out, *mf.yes)
	if err != nil || !ok {
		return err
	}

	store, err := a.store(ctx, *path)
	if err != nil {
		return err
	}
	exporter := dump.NewExporter(store, a.config.Credentials(), a.logger).WithLinkTTL(a.config.S3LinkTTL)

	start := time.Now()
	exp, err := exporter.Export(ctx, dump.FileName(start), locals, modes)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Dump has been saved to %s (%d users, %s)\n", exp.Location, exp.Users, humanize.Bytes(uint64(exp.Bytes)))
	fmt.Fprintf(a.out, "Encryption key: %s\n", exp.Key)
	if exp.URL != "" {
		fmt.Fprintf(a.out, "Download link, valid for %s: %s\n", a.config.S3LinkTTL, exp.URL)
	}

	fmt.Fprintln(a.out, "\nThis encryption key is unique for each dump and supposed to be used safely.")
	fmt.Fprintln(a.out, "It's bound to this service and cannot be used on other tenants.")
	fmt.Fprintln(a.out, "\nTo sync the dump, run the following command on the authentication service:")
	fmt.Fprintf(a.out, "  sync:import-dump %s --key %q\n\n", filepath.Base(exp.Location), exp.Key)

	writeDuration(a.out, time.Since(start))
	return nil
}

// Import applies a dump to the local store.
func (a *App) Import(ctx context.Context, args []string) error {
	fs := newFlagSet("import", a.out)
	key := fs.String("key", "", "encryption key")
	fs.StringVar(key, "k", "", "encryption key (short)")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(positional) == 0 || positional[0] == "" {
		return ErrMissingDumpName
	}
	name := positional[0]

	secret := []byte(strings.TrimSpace(*key))
	if len(secret) == 0 {
		secret, err = GetSecret(a.in, a.inFd, "Encryption key", a.out)
		if err != nil {
			return err
		}
	}
	defer cryptox.Wipe(secret)
	if len(secret) == 0 {
		return ErrMissingKey
	}

	store, err := a.store(ctx, "")
	if err != nil {
		return err
	}
	importer := dump.NewImporter(store, a.config.Credentials(), a.logger, dump.WithDefaultAction(a.config.ImportAction()))

	start := time.Now()
	fmt.Fprintln(a.out, "Importing the dump...")
	d, err := importer.Import(ctx, name, string(secret))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Applying %d changes...\n", len(d.Users))
	s, err := a.newSyncer(nil)
	if err != nil {
		return err
	}

	// A dump is a whole user set; the subset mode does not apply here.
	modes := slices.DeleteFunc(d.Modes, func(m models.Mode) bool { return m == models.ModeUsers })
	res, err := s.Apply(ctx, d.Users, modes)
	writeResult(a.out, res, false)
	if err != nil {
		return err
	}

	writeDuration(a.out, time.Since(start))
	return nil
}

// parseInterspersed parses flags that may follow positional arguments, as
// in "import file.gz -key k", and returns the positional ones.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}
