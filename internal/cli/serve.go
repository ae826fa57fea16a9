package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/auth"
	"github.com/dmitrijs2005/authconnector/internal/webhook"
)

// Serve runs the webhook endpoint until ctx is cancelled.
func (a *App) Serve(ctx context.Context, args []string) error {
	fs := newFlagSet("serve", a.out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	creds := a.config.Credentials()
	if err := creds.Validate(); err != nil {
		return err
	}

	s, err := a.newSyncer(nil)
	if err != nil {
		return err
	}

	d := webhook.NewDispatcher()
	d.Register(webhook.KeyUserSync, webhook.UserSync(s))
	d.Register(webhook.KeyAssessUsers, webhook.AssessUsers(a.users()))

	router := webhook.NewRouter(webhook.RouterDeps{
		Dispatcher:        d,
		Credentials:       creds,
		Leeway:            a.config.WebhookLeeway,
		RequestsPerSecond: a.config.WebhookRate,
		Burst:             a.config.WebhookBurst,
		Gatherer:          a.registry,
		Metrics:           a.metrics,
		Logger:            a.logger,
	})

	a.logger.Info(ctx, "Starting app...", "webhooks", d.Keys())
	return webhook.NewServer(a.config.WebhookAddr, router, a.logger).Run(ctx)
}

// Migrate applies the embedded migrations to the local store.
func (a *App) Migrate(ctx context.Context, args []string) error {
	fs := newFlagSet("migrate", a.out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.repos.RunMigrations(ctx, a.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	fmt.Fprintf(a.out, "Migrations applied (%s).\n", a.repos.Driver())
	return nil
}

// Token issues a bearer token the remote service can call the webhook with.
func (a *App) Token(ctx context.Context, args []string) error {
	fs := newFlagSet("token", a.out)
	key := fs.String("webhook", "", "limit the token to one webhook key")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tok, err := auth.GenerateToken(a.config.Credentials(), *key, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, tok)
	return nil
}
