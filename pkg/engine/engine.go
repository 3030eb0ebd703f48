package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nitrodev1/telegram-gift-parser/pkg/checkpoint"
	"github.com/nitrodev1/telegram-gift-parser/pkg/config"
	errs "github.com/nitrodev1/telegram-gift-parser/pkg/errors"
	"github.com/nitrodev1/telegram-gift-parser/pkg/logger"
	"github.com/nitrodev1/telegram-gift-parser/pkg/metrics"
	"github.com/nitrodev1/telegram-gift-parser/pkg/ratelimit"
	"github.com/nitrodev1/telegram-gift-parser/pkg/resolver"
	"github.com/nitrodev1/telegram-gift-parser/pkg/retry"
	"github.com/nitrodev1/telegram-gift-parser/pkg/scheduler"
	"github.com/nitrodev1/telegram-gift-parser/pkg/sink"
)

// Provider is the session side of the identity provider
type Provider interface {
	Connect(ctx context.Context) error
	Authorized(ctx context.Context) (bool, error)
	Disconnect(ctx context.Context) error
}

// BatchRunner resolves one batch and returns a result per ID in ID order
type BatchRunner interface {
	RunBatch(ctx context.Context, ids []int64) []resolver.Result
}

// SignInFunc interactively authorizes the provider session
type SignInFunc func(ctx context.Context) error

// SinkOpener opens the output. The engine calls it only once the provider
// session is ready, so a failed bootstrap leaves prior output untouched.
type SinkOpener func() (sink.Sink, error)

// Config holds the engine tunables
type Config struct {
	Collection    string
	StartID       int64
	EndID         int64
	BatchSize     int
	ResumeFrom    int64
	FlushInterval int64
	// RateLimitRetries is how often a rate-limited batch is replayed
	RateLimitRetries  int
	ConnectRetries    int
	ConnectRetryDelay time.Duration
}

// FromConfig extracts the engine tunables from the application config
func FromConfig(cfg *config.Config) Config {
	return Config{
		Collection:        cfg.Provider.Collection,
		StartID:           cfg.Scan.StartID,
		EndID:             cfg.Scan.EndID,
		BatchSize:         cfg.Scan.BatchSize,
		ResumeFrom:        cfg.Scan.ResumeFrom,
		FlushInterval:     cfg.Scan.FlushInterval,
		RateLimitRetries:  cfg.RateLimit.RateLimitRetries,
		ConnectRetries:    cfg.Provider.ConnectRetries,
		ConnectRetryDelay: cfg.Provider.ConnectRetryDelay,
	}
}

// EffectiveStart is the first ID scanned: the resume ID when it lies past
// the range start
func (c Config) EffectiveStart() int64 {
	if c.ResumeFrom > c.StartID {
		return c.ResumeFrom
	}
	return c.StartID
}

// Validate checks the tunables
func (c Config) Validate() error {
	switch {
	case c.StartID < 1:
		return fmt.Errorf("start id must be positive, got %d", c.StartID)
	case c.EndID < c.StartID:
		return fmt.Errorf("end id %d is before start id %d", c.EndID, c.StartID)
	case c.BatchSize < 1:
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	case c.FlushInterval < 1:
		return fmt.Errorf("flush interval must be positive, got %d", c.FlushInterval)
	case c.RateLimitRetries < 0:
		return fmt.Errorf("rate limit retries must not be negative, got %d", c.RateLimitRetries)
	}
	return nil
}

// Stats summarizes a run
type Stats struct {
	RunID          string
	StartID        int64
	LastID         int64
	Processed      int
	Resolved       int
	Links          int
	RateLimitWaits int
	Replays        int
	Skipped        int
	FailedBatches  int
	Interrupted    bool
	Duration       time.Duration
}

// Progress is a snapshot of a running scan
type Progress struct {
	State     State
	StartID   int64
	EndID     int64
	LastID    int64
	Processed int
	Resolved  int
	Links     int
	// Wait is the pending rate-limit wait while State is StateWaitingOnRateLimit
	Wait time.Duration
}

// ProgressFunc receives a snapshot after every committed batch and before
// every rate-limit wait. It runs on the control goroutine.
type ProgressFunc func(Progress)

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCheckpoints enables checkpoint writes after every flush
func WithCheckpoints(m *checkpoint.Manager) Option {
	return func(e *Engine) { e.checkpoints = m }
}

// WithMetrics enables Prometheus collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSignIn sets the hook run when the session is not authorized
func WithSignIn(fn SignInFunc) Option {
	return func(e *Engine) { e.signIn = fn }
}

// WithProgress sets a progress observer
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithRunID overrides the generated run ID
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// Engine drives a scan: it bootstraps the provider session, walks the ID
// range batch by batch and commits results to the sink
type Engine struct {
	cfg         Config
	provider    Provider
	runner      BatchRunner
	open        SinkOpener
	sink        sink.Sink
	rate        *ratelimit.Controller
	checkpoints *checkpoint.Manager
	metrics     *metrics.Metrics
	signIn      SignInFunc
	progress    ProgressFunc
	logger      logger.Logger
	runID       string

	mu    sync.RWMutex
	state State
}

// New creates an Engine
func New(cfg Config, p Provider, runner BatchRunner, open SinkOpener, rate *ratelimit.Controller, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if p == nil || runner == nil || open == nil {
		return nil, errors.New("provider, batch runner and sink opener are required")
	}
	if rate == nil {
		rate = ratelimit.NewController(ratelimit.RealClock{}, 0, 0)
	}

	e := &Engine{
		cfg:      cfg,
		provider: p,
		runner:   runner,
		open:     open,
		rate:     rate,
		logger:   logger.NewNopLogger(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == "" {
		e.runID = uuid.NewString()
	}
	e.logger = e.logger.WithFields(map[string]interface{}{
		"component": "engine",
		"run_id":    e.runID,
	})
	return e, nil
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// RunID returns the identifier of this run
func (e *Engine) RunID() string {
	return e.runID
}

func (e *Engine) transition(to State) {
	e.mu.Lock()
	from := e.state
	e.state = to
	e.mu.Unlock()

	e.metrics.SetState(string(to), stateNames())
	e.logger.DebugWithFields("state transition", map[string]interface{}{
		"from": string(from),
		"to":   string(to),
	})
}

// Run executes the scan. Bootstrap failures are fatal: nothing is scanned
// and the output is never opened. The engine closes the output it opened. Cancelling ctx stops the scan at the next batch boundary and
// drains; that is reported through Stats.Interrupted, not an error.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	if e.State() != StateIdle {
		return Stats{}, fmt.Errorf("engine already ran (state %s)", e.State())
	}

	started := e.rate.Clock().Now()
	stats := Stats{RunID: e.runID, StartID: e.cfg.EffectiveStart(), LastID: e.cfg.EffectiveStart() - 1}

	if err := e.bootstrap(ctx); err != nil {
		e.transition(StateFailed)
		e.logger.WithError(err).Error("Bootstrap failed, scan not started")
		return stats, err
	}

	out, err := e.open()
	if err != nil {
		e.transition(StateFailed)
		if derr := e.provider.Disconnect(context.WithoutCancel(ctx)); derr != nil {
			e.logger.WithError(derr).Warn("Disconnect failed")
		}
		e.logger.WithError(err).Error("Failed to open output, scan not started")
		return stats, fmt.Errorf("failed to open output: %w", err)
	}
	e.sink = out

	e.transition(StateScanning)
	logger.LogComponentStart(e.logger, "scan", map[string]interface{}{
		"collection":     e.cfg.Collection,
		"start_id":       stats.StartID,
		"end_id":         e.cfg.EndID,
		"batch_size":     e.cfg.BatchSize,
		"flush_interval": e.cfg.FlushInterval,
	})

	cp := e.createCheckpoint(stats.StartID)
	e.scan(ctx, &stats, cp)

	e.transition(StateDraining)
	err = e.drain(ctx, &stats, cp)

	stats.Duration = e.rate.Clock().Now().Sub(started)
	if err != nil {
		e.transition(StateFailed)
		return stats, err
	}

	e.transition(StateDone)
	reason := "completed"
	if stats.Interrupted {
		reason = "interrupted"
	}
	logger.LogComponentStop(e.logger, "scan", reason)
	return stats, nil
}

// connectPolicy bounds the retries of the session bootstrap calls
func (e *Engine) connectPolicy(ctx context.Context) *retry.Config {
	attempts := e.cfg.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}
	return &retry.Config{
		MaxAttempts: attempts,
		Backoff:     &retry.ConstantBackoff{Delay: e.cfg.ConnectRetryDelay},
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Sleep:       e.rate.Clock().Sleep,
		Logger:      e.logger,
	}
}

// bootstrap connects with bounded retry and ensures the session is authorized
func (e *Engine) bootstrap(ctx context.Context) error {
	e.transition(StateConnecting)

	policy := e.connectPolicy(ctx)
	err := retry.Do(func() error {
		return e.provider.Connect(ctx)
	}, policy)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeConnection, err, "failed to connect to provider")
	}

	e.transition(StateAuthenticating)

	// Auth errors are not retryable, so only a flaky gateway is retried here
	authorized, err := retry.DoWithResult(func() (bool, error) {
		return e.provider.Authorized(ctx)
	}, policy)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeAuth, err, "failed to check authorization")
	}
	if authorized {
		return nil
	}
	if e.signIn == nil {
		return errs.New(errs.ErrorTypeAuth, 401, "session is not authorized and no interactive sign-in is available")
	}

	e.logger.Info("Session not authorized, starting sign-in")
	if err := e.signIn(ctx); err != nil {
		return errs.Wrap(errs.ErrorTypeAuth, err, "sign-in failed")
	}

	authorized, err = e.provider.Authorized(ctx)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeAuth, err, "failed to check authorization")
	}
	if !authorized {
		return errs.New(errs.ErrorTypeAuth, 401, "session still not authorized after sign-in")
	}
	return nil
}

// scan walks the batches until the range is exhausted or ctx is cancelled
func (e *Engine) scan(ctx context.Context, stats *Stats, cp *checkpoint.Checkpoint) {
	for batch := range scheduler.Batches(stats.StartID, e.cfg.EndID, e.cfg.BatchSize) {
		if ctx.Err() != nil {
			stats.Interrupted = true
			return
		}
		if !e.processBatch(ctx, batch, stats, cp) {
			stats.Interrupted = true
			return
		}
	}
}

// processBatch runs, commits and paces one batch. It returns false when the
// scan must stop.
func (e *Engine) processBatch(ctx context.Context, batch scheduler.Batch, stats *Stats, cp *checkpoint.Checkpoint) bool {
	log := e.logger.WithFields(map[string]interface{}{
		"batch_start": batch.First(),
		"batch_end":   batch.Last(),
	})

	var (
		results []resolver.Result
		wait    time.Duration
		limited bool
	)
	for attempt := 0; ; attempt++ {
		start := e.rate.Clock().Now()
		results = e.runner.RunBatch(ctx, batch.IDs)
		e.metrics.ObserveBatch(e.rate.Clock().Now().Sub(start))

		// A batch cut short by cancellation is never committed
		if ctx.Err() != nil {
			return false
		}

		wait, limited = maxRetryAfter(results)
		if !limited || attempt >= e.cfg.RateLimitRetries {
			break
		}

		if !e.waitOnRateLimit(ctx, batch, wait, attempt+1, stats) {
			return false
		}
		stats.Replays++
		log.WithField("attempt", attempt+1).Info("Replaying rate-limited batch")
	}

	e.commit(log, results, stats)
	e.report(StateScanning, stats, 0)

	if limited {
		// Replays exhausted; the signaled wait still applies before the next batch
		if !e.waitOnRateLimit(ctx, batch, wait, e.cfg.RateLimitRetries+1, stats) {
			return false
		}
	}

	if err := e.rate.Steady(ctx); err != nil {
		return false
	}

	if crossesInterval(batch.First()-1, batch.Last(), e.cfg.FlushInterval) {
		e.flush(log, batch.Last(), stats, cp)
	}
	return true
}

// waitOnRateLimit suspends dispatch for the provider-imposed wait
func (e *Engine) waitOnRateLimit(ctx context.Context, batch scheduler.Batch, wait time.Duration, attempt int, stats *Stats) bool {
	e.transition(StateWaitingOnRateLimit)
	logger.LogRateLimit(e.logger, batch.First(), batch.Last(), e.rate.Effective(wait), attempt)
	e.report(StateWaitingOnRateLimit, stats, e.rate.Effective(wait))

	waited, err := e.rate.Penalize(ctx, wait)
	if err != nil {
		return false
	}
	stats.RateLimitWaits++
	e.metrics.ObserveRateLimit(waited)
	e.transition(StateScanning)
	return true
}

// commit routes resolved results to the sink in ID order
func (e *Engine) commit(log logger.Logger, results []resolver.Result, stats *Stats) {
	var skipped []int64
	var failed error

	for _, r := range results {
		e.metrics.ObserveResult(r.Status.String(), string(r.Source))

		switch r.Status {
		case resolver.StatusRateLimited:
			skipped = append(skipped, r.ID)
			continue
		case resolver.StatusTransientError:
			log.WithField("gift_id", r.ID).WithError(r.Err).Debug("ID not resolved")
		case resolver.StatusNotFound:
			log.WithField("gift_id", r.ID).Debug("No owner found")
		}

		stats.Processed++
		if r.ID > stats.LastID {
			stats.LastID = r.ID
		}
		if !r.Resolved() || failed != nil {
			continue
		}

		if err := e.sink.AppendOwner(r.ID, r.Owner); err != nil {
			failed = err
			continue
		}
		stats.Resolved++
		log.WithFields(map[string]interface{}{
			"gift_id": r.ID,
			"owner":   r.Owner,
			"source":  string(r.Source),
		}).Info("Owner found")

		if r.HasLink() {
			if err := e.sink.AppendValidLink(r.ID, r.SourceURL); err != nil {
				failed = err
				continue
			}
			stats.Links++
		}
	}

	if len(skipped) > 0 {
		stats.Skipped += len(skipped)
		log.WithField("skipped_ids", skipped).Warn("Rate-limited IDs skipped after exhausting replays")
	}
	if failed != nil {
		stats.FailedBatches++
		e.metrics.ObserveFailedBatch()
		log.WithError(failed).Error("Failed to write batch results")
	}
}

// flush makes written records durable and advances the checkpoint
func (e *Engine) flush(log logger.Logger, lastID int64, stats *Stats, cp *checkpoint.Checkpoint) {
	if err := e.sink.Flush(); err != nil {
		log.WithError(err).Error("Flush failed")
		return
	}
	e.metrics.ObserveFlush(lastID)
	logger.LogScanProgress(e.logger, lastID, e.cfg.EndID, stats.Processed, stats.Resolved, stats.Links)

	if cp != nil {
		if err := e.checkpoints.RecordFlush(cp, lastID, stats.Resolved, stats.Links); err != nil {
			log.WithError(err).Warn("Failed to save checkpoint")
		}
	}
}

// drain performs the final flush, checkpoint, output close and disconnect
func (e *Engine) drain(ctx context.Context, stats *Stats, cp *checkpoint.Checkpoint) error {
	var flushErr error
	if err := e.sink.Flush(); err != nil {
		flushErr = fmt.Errorf("final flush: %w", err)
		e.logger.WithError(err).Error("Final flush failed")
	} else {
		e.metrics.ObserveFlush(stats.LastID)
		if cp != nil {
			if err := e.checkpoints.RecordFlush(cp, stats.LastID, stats.Resolved, stats.Links); err != nil {
				e.logger.WithError(err).Warn("Failed to save checkpoint")
			}
			if !stats.Interrupted && stats.LastID == e.cfg.EndID {
				if err := e.checkpoints.MarkCompleted(cp); err != nil {
					e.logger.WithError(err).Warn("Failed to save checkpoint")
				}
			}
		}
	}

	var closeErr error
	if err := e.sink.Close(); err != nil {
		closeErr = fmt.Errorf("close output: %w", err)
		e.logger.WithError(err).Error("Failed to close output")
	}

	if err := e.provider.Disconnect(context.WithoutCancel(ctx)); err != nil {
		e.logger.WithError(err).Warn("Disconnect failed")
	}

	e.logger.InfoWithFields("Scan finished", map[string]interface{}{
		"processed":        stats.Processed,
		"resolved":         stats.Resolved,
		"links":            stats.Links,
		"last_id":          stats.LastID,
		"rate_limit_waits": stats.RateLimitWaits,
		"skipped":          stats.Skipped,
		"failed_batches":   stats.FailedBatches,
		"interrupted":      stats.Interrupted,
	})
	return errors.Join(flushErr, closeErr)
}

func (e *Engine) report(state State, stats *Stats, wait time.Duration) {
	if e.progress == nil {
		return
	}
	e.progress(Progress{
		State:     state,
		StartID:   stats.StartID,
		EndID:     e.cfg.EndID,
		LastID:    stats.LastID,
		Processed: stats.Processed,
		Resolved:  stats.Resolved,
		Links:     stats.Links,
		Wait:      wait,
	})
}

func (e *Engine) createCheckpoint(start int64) *checkpoint.Checkpoint {
	if e.checkpoints == nil {
		return nil
	}
	cp, err := e.checkpoints.Create(e.runID, e.cfg.Collection, start, e.cfg.EndID)
	if err != nil {
		e.logger.WithError(err).Warn("Checkpointing disabled")
		return nil
	}
	return cp
}

// maxRetryAfter returns the largest wait signaled in the batch
func maxRetryAfter(results []resolver.Result) (time.Duration, bool) {
	var wait time.Duration
	limited := false
	for _, r := range results {
		if r.Status == resolver.StatusRateLimited {
			limited = true
			if r.RetryAfter > wait {
				wait = r.RetryAfter
			}
		}
	}
	return wait, limited
}

// crossesInterval reports whether (prev, last] contains a multiple of interval
func crossesInterval(prev, last, interval int64) bool {
	if interval <= 0 {
		return false
	}
	return last/interval > prev/interval
}
