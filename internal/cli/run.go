package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/authconnector/internal/config"
	"github.com/dmitrijs2005/authconnector/internal/logging"
	"github.com/dmitrijs2005/authconnector/internal/tracing"
)

// ServiceName identifies the connector in traces.
const ServiceName = "authconnector"

var ErrUnknownCommand = errors.New("unknown command")

type command func(a *App, ctx context.Context, args []string) error

var commands = map[string]command{
	"sync":    (*App).Sync,
	"export":  (*App).Export,
	"import":  (*App).Import,
	"serve":   (*App).Serve,
	"migrate": (*App).Migrate,
	"token":   (*App).Token,
}

const usage = `Usage: connector <command> [flags]

Commands:
  sync     [-passwords] [-users 1,2] [-y]              synchronize users with the remote service
  export   [-path dir] [-users 1,2] [-passwords] [-y]  export local users into an encrypted dump
  import   <file> [-key key]                           apply a dump to the local store
  serve                                                run the webhook endpoint
  migrate                                              apply local store migrations
  token    [-webhook key] [-ttl 1h]                    issue a webhook token for the remote service

Global flags: -c/-config file ` + "-url -public -secret -driver -dsn -per-request -concurrency -workers -retries -dump-dir -storage -webhook-addr -otlp -log-level -log-format" + `
`

// Run executes one command. environ is the environment to read
// CONNECTOR_* settings from; nil means the process environment.
func Run(ctx context.Context, args []string, environ map[string]string, stdio IO) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(stdio.Out, usage)
		return nil
	}

	name, rest := args[0], args[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprint(stdio.Err, usage)
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	cfg, err := config.Load(rest, environ)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg, stdio.Err).With("command", name)

	shutdown, err := tracing.Setup(ctx, cfg.OTLPEndpoint, ServiceName)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "tracing shutdown failed", "error", err)
		}
	}()

	app, err := NewApp(ctx, cfg, logger, stdio)
	if err != nil {
		return err
	}
	defer app.Close()

	return cmd(app, ctx, rest)
}

func newLogger(cfg *config.Config, w io.Writer) logging.Logger {
	level := logging.ParseLevel(cfg.LogLevel)
	if strings.EqualFold(cfg.LogFormat, "json") {
		return logging.NewJSON(w, level)
	}
	return logging.NewText(w, level)
}

// newFlagSet returns a flag set for a command that tolerates the global
// flags, which config has already consumed.
func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	for _, f := range append([]string{"-c", "-config"}, config.GlobalFlags...) {
		fs.String(strings.TrimPrefix(f, "-"), "", "see global flags")
	}
	return fs
}

func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
