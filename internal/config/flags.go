package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/authconnector/internal/flagx"
)

// GlobalFlags lists the flags parseFlags understands; commands parse the
// rest of the command line themselves.
var GlobalFlags = []string{
	"-url", "-public", "-secret", "-driver", "-dsn",
	"-per-request", "-concurrency", "-workers", "-retries",
	"-dump-dir", "-storage", "-webhook-addr", "-otlp", "-log-level", "-log-format",
}

// parseFlags overlays the global flags found in args.
//
//	-url string          remote service url
//	-public string       tenant public key
//	-secret string       tenant secret key
//	-driver string       database driver (sqlite or pgx)
//	-dsn string          database DSN
//	-per-request int     users per sync request
//	-concurrency int     sync requests in flight
//	-workers int         apply workers
//	-retries int         retries per sync request
//	-dump-dir string     local directory for exports
//	-storage string      where exports go: file or s3
//	-webhook-addr string webhook listen address
//	-otlp string         OTLP/HTTP trace endpoint
//	-log-level string    debug, info, warn or error
//	-log-format string   text or json
func parseFlags(cfg *Config, args []string) error {
	filtered := flagx.FilterArgs(args, withDoubleDash(GlobalFlags))

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServiceURL, "url", cfg.ServiceURL, "remote service url")
	fs.StringVar(&cfg.PublicKey, "public", cfg.PublicKey, "tenant public key")
	fs.StringVar(&cfg.SecretKey, "secret", cfg.SecretKey, "tenant secret key")
	fs.StringVar(&cfg.DatabaseDriver, "driver", cfg.DatabaseDriver, "database driver")
	fs.StringVar(&cfg.DatabaseDSN, "dsn", cfg.DatabaseDSN, "database DSN")
	fs.IntVar(&cfg.UsersPerRequest, "per-request", cfg.UsersPerRequest, "users per sync request")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "sync requests in flight")
	fs.IntVar(&cfg.ApplyWorkers, "workers", cfg.ApplyWorkers, "apply workers")
	fs.Uint64Var(&cfg.Retries, "retries", cfg.Retries, "retries per sync request")
	fs.StringVar(&cfg.DumpDir, "dump-dir", cfg.DumpDir, "local directory for exports")
	storage := fs.String("storage", storageName(cfg.UseS3), "where exports go: file or s3")
	fs.StringVar(&cfg.WebhookAddr, "webhook-addr", cfg.WebhookAddr, "webhook listen address")
	fs.StringVar(&cfg.OTLPEndpoint, "otlp", cfg.OTLPEndpoint, "OTLP/HTTP trace endpoint")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format")

	if err := fs.Parse(filtered); err != nil {
		return err
	}

	switch *storage {
	case "s3":
		cfg.UseS3 = true
	case "file", "":
		cfg.UseS3 = false
	default:
		return fmt.Errorf("unknown storage %q, expected file or s3", *storage)
	}
	return nil
}

func storageName(useS3 bool) string {
	if useS3 {
		return "s3"
	}
	return "file"
}

func withDoubleDash(flags []string) []string {
	out := make([]string, 0, len(flags)*2)
	for _, f := range flags {
		out = append(out, f, "-"+f)
	}
	return out
}
