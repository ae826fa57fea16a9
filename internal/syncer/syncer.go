package syncer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/authconnector/internal/client"
	"github.com/dmitrijs2005/authconnector/internal/logging"
	"github.com/dmitrijs2005/authconnector/internal/metrics"
	"github.com/dmitrijs2005/authconnector/internal/models"
	"github.com/dmitrijs2005/authconnector/internal/tracing"
)

const DefaultRetryBackoff = 500 * time.Millisecond

// Options tunes a Syncer. The zero value sends pages one by one, applies
// differences sequentially and never retries.
type Options struct {
	UsersPerRequest int
	// Concurrency is the number of pages in flight at once.
	Concurrency int
	// ApplyWorkers is the number of differences applied at once. Entries
	// for the same email are still applied one after another, in order.
	ApplyWorkers int
	// Retries is how many extra attempts a page gets after a transient
	// transport failure.
	Retries      uint64
	RetryBackoff time.Duration

	Logger  logging.Logger
	Metrics metrics.Recorder
	// Progress receives operator-facing messages. With Concurrency or
	// ApplyWorkers above one it is called from several goroutines.
	Progress func(msg string)
}

type Syncer struct {
	client   client.SyncClient
	resolver *Resolver
	opts     Options
	logger   logging.Logger
	metrics  metrics.Recorder
	tracer   trace.Tracer
}

func New(c client.SyncClient, r *Resolver, opts Options) *Syncer {
	if opts.UsersPerRequest <= 0 {
		opts.UsersPerRequest = DefaultUsersPerRequest
	}
	opts.Concurrency = max(opts.Concurrency, 1)
	opts.ApplyWorkers = max(opts.ApplyWorkers, 1)
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}

	s := &Syncer{
		client:   c,
		resolver: r,
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracer:   tracing.Tracer(),
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	if s.metrics == nil {
		s.metrics = metrics.NoopRecorder{}
	}
	return s
}

type pageResult struct {
	users []models.RemoteUser
	stats models.Stats
}

// Sync sends locals to the remote service page by page, collects the
// differences it returns and applies them locally.
//
// A transport or protocol error stops the run. A cancelled context stops
// sending further pages; the result is then Partial and the error wraps
// ErrInterrupted. In both cases no difference is applied.
func (s *Syncer) Sync(ctx context.Context, locals []models.LocalUser, modes models.Modes) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	log := s.logger.With("run", res.RunID)

	ctx, span := s.tracer.Start(ctx, "syncer.Sync", trace.WithAttributes(
		attribute.String("run.id", res.RunID),
		attribute.Int("users", len(locals)),
		attribute.String("modes", modes.String()),
	))
	defer span.End()

	pager := NewPager(locals, s.opts.UsersPerRequest)
	s.progress(ctx, log, fmt.Sprintf("Total requests: %d", pager.RequestsCount()))

	results := make([]*pageResult, pager.PageCount())
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for page, users := range pager.Pages() {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			s.progress(gctx, log, fmt.Sprintf("Sending a request with bunch of %d users", len(users)))

			pr, err := s.sendPage(gctx, page, users, modes)
			if err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}

			mu.Lock()
			results[page-1] = pr
			res.Requests++
			res.Remote = res.Remote.Add(pr.stats)
			mu.Unlock()

			s.progress(gctx, log, fmt.Sprintf("Remote affection: created %d, updated %d, deleted %d",
				pr.stats.Created, pr.stats.Updated, pr.stats.Deleted))
			return nil
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		res.Partial = true
		res.Duration = time.Since(start)
		if ctx.Err() != nil {
			err = fmt.Errorf("%w after %d of %d requests: %w", ErrInterrupted, res.Requests, pager.PageCount(), ctx.Err())
			log.Warn(ctx, "sync interrupted", "requests", res.Requests, "err", err)
		} else {
			log.Error(ctx, "sync failed", "requests", res.Requests, "err", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	var foreigners []models.RemoteUser
	for _, pr := range results {
		foreigners = append(foreigners, pr.users...)
	}

	err = s.apply(ctx, log, foreigners, modes, res)
	res.Duration = time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// Apply applies differences obtained elsewhere, such as an imported dump or
// a webhook call.
func (s *Syncer) Apply(ctx context.Context, foreigners []models.RemoteUser, modes models.Modes) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	log := s.logger.With("run", res.RunID)

	err := s.apply(ctx, log, foreigners, modes, res)
	res.Duration = time.Since(start)
	return res, err
}

func (s *Syncer) sendPage(ctx context.Context, page int, users []models.LocalUser, modes models.Modes) (*pageResult, error) {
	ctx, span := s.tracer.Start(ctx, "syncer.page", trace.WithAttributes(
		attribute.Int("page", page),
		attribute.Int("users", len(users)),
	))
	defer span.End()

	payloads := models.Payloads(users)
	b := retry.WithMaxRetries(s.opts.Retries, retry.NewExponential(s.opts.RetryBackoff))

	var out *pageResult
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		started := time.Now()
		resp, err := s.client.Sync(ctx, payloads, modes)
		s.metrics.ObserveBatch(time.Since(started), err)
		if err != nil {
			if transient(err) {
				s.logger.Warn(ctx, "sync request failed, retrying", "page", page, "err", err)
				return retry.RetryableError(err)
			}
			return err
		}

		remote, err := resp.Users()
		if err != nil {
			return err
		}
		out = &pageResult{users: remote, stats: resp.Stats}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.metrics.AddRemote(out.stats)
	span.SetAttributes(attribute.Int("difference", len(out.users)))
	return out, nil
}

type indexedFailure struct {
	index int
	Failure
}

func (s *Syncer) apply(ctx context.Context, log logging.Logger, foreigners []models.RemoteUser, modes models.Modes, res *Result) error {
	ctx, span := s.tracer.Start(ctx, "syncer.Apply", trace.WithAttributes(
		attribute.Int("difference", len(foreigners)),
	))
	defer span.End()

	total := len(foreigners)
	res.Differences = total
	s.progress(ctx, log, fmt.Sprintf("Applying %d remote changes locally", total))

	var (
		counter  models.Counter
		mu       sync.Mutex
		failures []indexedFailure
	)

	handle := func(ctx context.Context, i int) error {
		remote := foreigners[i]
		s.progress(ctx, log, fmt.Sprintf("[%d of %d] Handling the action %q of %s (%s)",
			i+1, total, remote.Action, displayName(remote), remote.Email))

		outcome, err := s.resolver.Resolve(ctx, remote, modes)
		if err != nil {
			var rerr *RecordError
			if !errors.As(err, &rerr) {
				return err
			}
			log.Error(ctx, "cannot apply remote change", "action", string(rerr.Action), "email", rerr.Email, "err", rerr.Err)
			s.metrics.RecordFailure(remote.Action)

			mu.Lock()
			failures = append(failures, indexedFailure{index: i, Failure: Failure{Email: rerr.Email, Action: rerr.Action, Err: rerr.Err}})
			mu.Unlock()
			return nil
		}

		if outcome != Skipped {
			counter.Inc(remote.Action)
			s.metrics.RecordApplied(remote.Action)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, queue := range shardByEmail(foreigners, s.opts.ApplyWorkers) {
		g.Go(func() error {
			for _, i := range queue {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := handle(gctx, i); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()

	slices.SortFunc(failures, func(a, b indexedFailure) int { return a.index - b.index })
	for _, f := range failures {
		res.Failures = append(res.Failures, f.Failure)
	}
	res.Local = counter.Snapshot()

	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		res.Partial = true
		if ctx.Err() != nil && !errors.Is(err, models.ErrUnknownAction) {
			err = fmt.Errorf("%w while applying changes: %w", ErrInterrupted, ctx.Err())
		}
		log.Error(ctx, "apply stopped", "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	log.Info(ctx, "remote changes applied",
		"created", res.Local.Created, "updated", res.Local.Updated, "deleted", res.Local.Deleted,
		"failures", len(res.Failures))
	return nil
}

// shardByEmail splits the indexes of foreigners into at most n queues. All
// entries for one email land in the same queue, in list order.
func shardByEmail(foreigners []models.RemoteUser, n int) [][]int {
	queues := make([][]int, max(n, 1))
	for i, u := range foreigners {
		h := fnv.New32a()
		_, _ = h.Write([]byte(models.NormalizeEmail(u.Email)))
		q := int(h.Sum32() % uint32(len(queues)))
		queues[q] = append(queues[q], i)
	}
	return slices.DeleteFunc(queues, func(q []int) bool { return len(q) == 0 })
}

func (s *Syncer) progress(ctx context.Context, log logging.Logger, msg string) {
	log.Info(ctx, msg)
	if s.opts.Progress != nil {
		s.opts.Progress(msg)
	}
}

// transient reports whether a failed request may succeed when repeated.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, permanent := range []error{client.ErrUnauthorized, client.ErrMalformedResponse, models.ErrUnknownAction, models.ErrInvalidRecord} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	var ve *client.ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var he *client.HTTPError
	if errors.As(err, &he) {
		return he.Status >= http.StatusInternalServerError || he.Status == http.StatusTooManyRequests
	}
	return true
}

func displayName(u models.RemoteUser) string {
	if u.Name == nil || *u.Name == "" {
		return "unnamed user"
	}
	return *u.Name
}
