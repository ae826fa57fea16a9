package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrijs2005/authconnector/internal/client"
	"github.com/dmitrijs2005/authconnector/internal/config"
	"github.com/dmitrijs2005/authconnector/internal/dbx"
	"github.com/dmitrijs2005/authconnector/internal/handlers"
	"github.com/dmitrijs2005/authconnector/internal/logging"
	"github.com/dmitrijs2005/authconnector/internal/metrics"
	"github.com/dmitrijs2005/authconnector/internal/repositories/repomanager"
	"github.com/dmitrijs2005/authconnector/internal/repositories/users"
	"github.com/dmitrijs2005/authconnector/internal/storage"
	"github.com/dmitrijs2005/authconnector/internal/syncer"
)

// handlerRetries covers serialization failures on PostgreSQL.
const (
	handlerRetries = 3
	handlerBackoff = 50 * time.Millisecond
)

// IO is where a command reads from and writes to.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
	// InFd is the descriptor of In, used for hidden prompts.
	InFd int
}

type App struct {
	config *config.Config
	logger logging.Logger

	in   *bufio.Reader
	inFd int
	out  io.Writer
	mu   sync.Mutex

	db    *sql.DB
	repos repomanager.RepositoryManager

	registry *prometheus.Registry
	metrics  *metrics.Collector
}

// NewApp connects to the local store and prepares shared collaborators.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger, stdio IO) (*App, error) {
	db, repos, err := repomanager.Open(ctx, c.DatabaseDriver, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &App{
		config:   c,
		logger:   logger,
		in:       bufio.NewReader(stdio.In),
		inFd:     stdio.InFd,
		out:      stdio.Out,
		db:       db,
		repos:    repos,
		registry: reg,
		metrics:  metrics.NewCollector(reg),
	}, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

func (a *App) users() users.Repository {
	return a.repos.Users(a.db)
}

// println serializes writes coming from concurrent progress callbacks.
func (a *App) println(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintln(a.out, msg)
}

func (a *App) handlerRegistry() (*handlers.Registry, error) {
	reg := handlers.NewRegistry(dbx.NewSQLTxRunner(a.db), handlers.WithRetries(handlerRetries, handlerBackoff))
	if err := handlers.RegisterStoreHandlers(reg, a.repos); err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// newSyncer wires the engine. c may be nil for runs that only apply.
func (a *App) newSyncer(c client.SyncClient) (*syncer.Syncer, error) {
	reg, err := a.handlerRegistry()
	if err != nil {
		return nil, err
	}
	return syncer.New(c, syncer.NewResolver(a.users(), reg), syncer.Options{
		UsersPerRequest: a.config.UsersPerRequest,
		Concurrency:     a.config.Concurrency,
		ApplyWorkers:    a.config.ApplyWorkers,
		Retries:         a.config.Retries,
		RetryBackoff:    a.config.RetryBackoff,
		Logger:          a.logger,
		Metrics:         a.metrics,
		Progress: func(msg string) {
			a.println("[Syncer] " + msg)
		},
	}), nil
}

func (a *App) newClient() (*client.HTTPClient, error) {
	return client.New(client.Options{
		BaseURL:           a.config.ServiceURL,
		Credentials:       a.config.Credentials(),
		RequestTimeout:    a.config.RequestTimeout,
		SyncTimeout:       a.config.SyncTimeout,
		RequestsPerSecond: a.config.RequestsPerSecond,
		Logger:            a.logger.With("module", "client"),
	})
}

// store returns where dumps live. dir overrides the configured directory
// for the file store.
func (a *App) store(ctx context.Context, dir string) (storage.Store, error) {
	if a.config.UseS3 {
		s, err := storage.NewS3Store(ctx, a.config.S3Options())
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if dir == "" {
		dir = a.config.DumpDir
	}
	return storage.NewFileStore(dir), nil
}
