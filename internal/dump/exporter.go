package dump

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/logging"
	"github.com/dmitrijs2005/authconnector/internal/models"
	"github.com/dmitrijs2005/authconnector/internal/storage"
	"github.com/dmitrijs2005/authconnector/internal/tenant"
)

// Export describes a written artifact.
type Export struct {
	Location string
	Key      string
	Users    int
	Bytes    int
	// URL is a temporary download link, set when the store can make one.
	URL string
}

// Exporter encodes local users and writes the artifact to a store.
type Exporter struct {
	store   storage.Store
	creds   tenant.Credentials
	logger  logging.Logger
	linkTTL time.Duration
}

func NewExporter(store storage.Store, creds tenant.Credentials, logger logging.Logger) *Exporter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Exporter{store: store, creds: creds, logger: logger, linkTTL: storage.DefaultLinkTTL}
}

// WithLinkTTL sets how long download links stay valid.
func (e *Exporter) WithLinkTTL(ttl time.Duration) *Exporter {
	if ttl > 0 {
		e.linkTTL = ttl
	}
	return e
}

func (e *Exporter) Export(ctx context.Context, name string, locals []models.LocalUser, modes models.Modes) (*Export, error) {
	if name == "" {
		name = FileName(time.Now())
	}

	artifact, key, err := Encode(locals, modes, e.creds)
	if err != nil {
		return nil, err
	}

	location, err := e.store.Put(ctx, name, artifact)
	if err != nil {
		return nil, fmt.Errorf("store dump: %w", err)
	}

	out := &Export{Location: location, Key: key, Users: len(locals), Bytes: len(artifact)}
	if l, ok := e.store.(storage.Linker); ok {
		url, err := l.Link(ctx, location, e.linkTTL)
		if err != nil {
			e.logger.Warn(ctx, "cannot create a download link", "location", location, "error", err)
		} else {
			out.URL = url
		}
	}

	e.logger.Info(ctx, "users exported", "location", location, "users", out.Users, "bytes", out.Bytes)
	return out, nil
}

// Importer reads artifacts from a store and decodes them.
type Importer struct {
	store  storage.Store
	creds  tenant.Credentials
	logger logging.Logger
	opts   []DecodeOption
}

func NewImporter(store storage.Store, creds tenant.Credentials, logger logging.Logger, opts ...DecodeOption) *Importer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Importer{store: store, creds: creds, logger: logger, opts: opts}
}

func (i *Importer) Import(ctx context.Context, name, key string) (*Dump, error) {
	artifact, err := i.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrDumpNotFound, name, err)
		}
		return nil, fmt.Errorf("read dump: %w", err)
	}

	d, err := Decode(artifact, key, i.creds, i.opts...)
	if err != nil {
		return nil, err
	}

	i.logger.Info(ctx, "users imported", "name", name, "users", len(d.Users), "tenant", d.Public)
	return d, nil
}
