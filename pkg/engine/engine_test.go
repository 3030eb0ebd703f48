package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitrodev1/telegram-gift-parser/pkg/checkpoint"
	errs "github.com/nitrodev1/telegram-gift-parser/pkg/errors"
	"github.com/nitrodev1/telegram-gift-parser/pkg/logger"
	"github.com/nitrodev1/telegram-gift-parser/pkg/metrics"
	"github.com/nitrodev1/telegram-gift-parser/pkg/ratelimit"
	"github.com/nitrodev1/telegram-gift-parser/pkg/resolver"
	"github.com/nitrodev1/telegram-gift-parser/pkg/scheduler"
	"github.com/nitrodev1/telegram-gift-parser/pkg/sink"
)

type fakeProvider struct {
	mu           sync.Mutex
	connectErrs  int
	connectErr   error
	connects     int
	authErrs     int
	authErr      error
	authChecks   int
	authorized   bool
	disconnected bool
}

func (p *fakeProvider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	if p.connectErr != nil && (p.connectErrs < 0 || p.connects <= p.connectErrs) {
		return p.connectErr
	}
	return nil
}

func (p *fakeProvider) Authorized(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authChecks++
	if p.authErr != nil && p.authChecks <= p.authErrs {
		return false, p.authErr
	}
	return p.authorized, nil
}

func (p *fakeProvider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = true
	return nil
}

// scriptedResolver answers from fixed owner tables and can signal rate
// limits for chosen IDs
type scriptedResolver struct {
	mu sync.Mutex
	// owners found by the structured path
	structured map[int64]string
	// owners found on the page
	pages map[int64]string
	// limited maps an ID to the wait it signals; limitCalls bounds how many
	// calls are limited, 0 meaning every call
	limited    map[int64]time.Duration
	limitCalls int
	calls      map[int64]int
}

func (r *scriptedResolver) Resolve(ctx context.Context, id int64) resolver.Result {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[int64]int)
	}
	r.calls[id]++
	n := r.calls[id]
	r.mu.Unlock()

	if wait, ok := r.limited[id]; ok && (r.limitCalls == 0 || n <= r.limitCalls) {
		return resolver.Result{ID: id, Status: resolver.StatusRateLimited, RetryAfter: wait}
	}
	url := "https://t.me/nft/LolPop-" + strconv.FormatInt(id, 10)
	if owner, ok := r.structured[id]; ok {
		return resolver.Result{ID: id, Status: resolver.StatusResolved, Owner: owner, SourceURL: url, Source: resolver.SourceStructured}
	}
	if owner, ok := r.pages[id]; ok {
		return resolver.Result{ID: id, Status: resolver.StatusResolved, Owner: owner, SourceURL: url, Source: resolver.SourcePage}
	}
	return resolver.Result{ID: id, Status: resolver.StatusNotFound}
}

func (r *scriptedResolver) callsFor(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

type record struct {
	table string
	id    int64
	value string
}

// recordingSink keeps every write in memory
type recordingSink struct {
	mu      sync.Mutex
	records []record
	flushes int
	failOn  int64
	opens   int
	closed  bool
}

// opener hands the sink to the engine and counts how often it was opened
func (s *recordingSink) opener() SinkOpener {
	return func() (sink.Sink, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.opens++
		return s, nil
	}
}

func (s *recordingSink) AppendOwner(id int64, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.failOn {
		return errors.New("disk full")
	}
	s.records = append(s.records, record{"owners", id, owner})
	return nil
}

func (s *recordingSink) AppendValidLink(id int64, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record{"valid_links", id, url})
	return nil
}

func (s *recordingSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) ids(table string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, r := range s.records {
		if r.table == table {
			ids = append(ids, r.id)
		}
	}
	return ids
}

func baseConfig(start, end int64) Config {
	return Config{
		Collection:        "LolPop",
		StartID:           start,
		EndID:             end,
		BatchSize:         5,
		FlushInterval:     100,
		RateLimitRetries:  3,
		ConnectRetries:    3,
		ConnectRetryDelay: time.Second,
	}
}

func newTestEngine(t *testing.T, cfg Config, p Provider, r scheduler.Resolver, open SinkOpener, clock *ratelimit.FakeClock, opts ...Option) *Engine {
	t.Helper()
	rate := ratelimit.NewController(clock, 2*time.Second, 0)
	e, err := New(cfg, p, scheduler.New(r, cfg.BatchSize, nil), open, rate, opts...)
	require.NoError(t, err)
	return e
}

func csvOpener(ownersPath, linksPath string, resuming bool) SinkOpener {
	return func() (sink.Sink, error) {
		return sink.OpenCSV(ownersPath, linksPath, resuming, nil)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunResolvesRange(t *testing.T) {
	dir := t.TempDir()
	ownersPath := filepath.Join(dir, "owners.csv")
	linksPath := filepath.Join(dir, "links.csv")

	p := &fakeProvider{authorized: true}
	r := &scriptedResolver{
		structured: map[int64]string{3: "@alice"},
		pages:      map[int64]string{8: "Bob"},
	}
	clock := ratelimit.NewFakeClock(time.Unix(0, 0))

	e := newTestEngine(t, baseConfig(1, 10), p, r, csvOpener(ownersPath, linksPath, false), clock)
	stats, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Gift ID,Owner\n3,@alice\n8,Bob\n", readFile(t, ownersPath))
	assert.Equal(t, "Gift ID,Link\n3,https://t.me/nft/LolPop-3\n8,https://t.me/nft/LolPop-8\n", readFile(t, linksPath))

	assert.Equal(t, 10, stats.Processed)
	assert.Equal(t, 2, stats.Resolved)
	assert.Equal(t, 2, stats.Links)
	assert.Equal(t, int64(10), stats.LastID)
	assert.False(t, stats.Interrupted)
	assert.Equal(t, StateDone, e.State())
	assert.True(t, p.disconnected)

	// Two batches, each followed by the steady delay
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, clock.Sleeps())
	assert.Equal(t, 4*time.Second, stats.Duration)
}

func TestRateLimitedBatchIsReplayed(t *testing.T) {
	out := &recordingSink{}
	r := &scriptedResolver{
		structured: map[int64]string{3: "@alice", 8: "Bob"},
		limited:    map[int64]time.Duration{6: 5 * time.Second, 9: 3 * time.Second},
		limitCalls: 1,
	}
	clock := ratelimit.NewFakeClock(time.Unix(0, 0))
	log := logger.NewTestLogger()

	e := newTestEngine(t, baseConfig(1, 10), &fakeProvider{authorized: true}, r, out.opener(), clock, WithLogger(log))
	stats, err := e.Run(context.Background())
	require.NoError(t, err)

	// [1,5] is committed once and never re-dispatched
	for id := int64(1); id <= 5; id++ {
		assert.Equal(t, 1, r.callsFor(id), "id %d", id)
	}
	for id := int64(6); id <= 10; id++ {
		assert.Equal(t, 2, r.callsFor(id), "id %d", id)
	}

	assert.Equal(t, []int64{3, 8}, out.ids("owners"))
	assert.Equal(t, 1, stats.RateLimitWaits)
	assert.Equal(t, 1, stats.Replays)
	assert.Equal(t, 0, stats.Skipped)

	// The largest signaled wait is honored before the replay
	assert.Contains(t, clock.Sleeps(), 5*time.Second)
	assert.GreaterOrEqual(t, stats.Duration, 5*time.Second)
	assert.NotEmpty(t, log.GetMessagesByLevel("WARN"))
	assert.True(t, log.HasMessage("Replaying rate-limited batch"))
}

func TestProgressReports(t *testing.T) {
	r := &scriptedResolver{
		structured: map[int64]string{2: "@alice"},
		limited:    map[int64]time.Duration{7: 4 * time.Second},
		limitCalls: 1,
	}
	var reports []Progress
	e := newTestEngine(t, baseConfig(1, 10), &fakeProvider{authorized: true}, r, (&recordingSink{}).opener(),
		ratelimit.NewFakeClock(time.Unix(0, 0)), WithProgress(func(p Progress) { reports = append(reports, p) }))

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, reports, 3)
	assert.Equal(t, StateScanning, reports[0].State)
	assert.Equal(t, int64(5), reports[0].LastID)
	assert.Equal(t, 1, reports[0].Resolved)
	assert.Equal(t, StateWaitingOnRateLimit, reports[1].State)
	assert.Equal(t, 4*time.Second, reports[1].Wait)
	assert.Equal(t, int64(10), reports[2].LastID)
	assert.Equal(t, int64(10), reports[2].EndID)
	assert.Equal(t, 10, reports[2].Processed)
}

func TestRateLimitRetriesExhausted(t *testing.T) {
	out := &recordingSink{}
	r := &scriptedResolver{
		structured: map[int64]string{6: "@carol", 8: "Dave"},
		limited:    map[int64]time.Duration{7: 2 * time.Second},
	}
	clock := ratelimit.NewFakeClock(time.Unix(0, 0))
	log := logger.NewTestLogger()

	cfg := baseConfig(6, 10)
	cfg.RateLimitRetries = 0
	e := newTestEngine(t, cfg, &fakeProvider{authorized: true}, r, out.opener(), clock, WithLogger(log))
	stats, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{6, 8}, out.ids("owners"))
	assert.Equal(t, 1, r.callsFor(7))
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 4, stats.Processed)
	assert.Equal(t, 1, stats.RateLimitWaits)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, clock.Sleeps())
	assert.True(t, log.HasMessage("Rate-limited IDs skipped"))
}

func TestMaxWaitCapsPenalty(t *testing.T) {
	r := &scriptedResolver{
		limited:    map[int64]time.Duration{1: 30 * time.Second},
		limitCalls: 1,
	}
	clock := ratelimit.NewFakeClock(time.Unix(0, 0))
	rate := ratelimit.NewController(clock, 0, time.Second)

	cfg := baseConfig(1, 5)
	e, err := New(cfg, &fakeProvider{authorized: true}, scheduler.New(r, 5, nil), (&recordingSink{}).opener(), rate)
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, clock.Sleeps(), time.Second)
	assert.NotContains(t, clock.Sleeps(), 30*time.Second)
}

func TestResumeIsIdempotent(t *testing.T) {
	owners := map[int64]string{2: "@alice", 7: "Bob", 9: "@carol"}
	clock := ratelimit.NewFakeClock(time.Unix(0, 0))

	fullDir := t.TempDir()
	_, err := newTestEngine(t, baseConfig(1, 10), &fakeProvider{authorized: true},
		&scriptedResolver{structured: owners}, csvOpener(filepath.Join(fullDir, "o.csv"), filepath.Join(fullDir, "l.csv"), false),
		clock).Run(context.Background())
	require.NoError(t, err)

	// First run stops after [1,5]; the second resumes from 6 on the same files
	dir := t.TempDir()
	ownersPath, linksPath := filepath.Join(dir, "o.csv"), filepath.Join(dir, "l.csv")

	_, err = newTestEngine(t, baseConfig(1, 5), &fakeProvider{authorized: true},
		&scriptedResolver{structured: owners}, csvOpener(ownersPath, linksPath, false), clock).Run(context.Background())
	require.NoError(t, err)

	cfg := baseConfig(1, 10)
	cfg.ResumeFrom = 6
	r := &scriptedResolver{structured: owners}
	stats, err := newTestEngine(t, cfg, &fakeProvider{authorized: true}, r, csvOpener(ownersPath, linksPath, true), clock).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(6), stats.StartID)
	for id := int64(1); id <= 5; id++ {
		assert.Zero(t, r.callsFor(id))
	}
	assert.Equal(t, readFile(t, filepath.Join(fullDir, "o.csv")), readFile(t, ownersPath))
	assert.Equal(t, readFile(t, filepath.Join(fullDir, "l.csv")), readFile(t, linksPath))
}

func TestWritesAreMonotonic(t *testing.T) {
	structured := make(map[int64]string)
	for id := int64(1); id <= 60; id += 3 {
		structured[id] = "@user" + strconv.FormatInt(id, 10)
	}
	out := &recordingSink{}
	r := &scriptedResolver{structured: structured}

	cfg := baseConfig(1, 60)
	cfg.BatchSize = 12
	e := newTestEngine(t, cfg, &fakeProvider{authorized: true}, r, out.opener(), ratelimit.NewFakeClock(time.Unix(0, 0)))
	_, err := e.Run(context.Background())
	require.NoError(t, err)

	ids := out.ids("owners")
	require.Len(t, ids, len(structured))
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
	for id := int64(1); id <= 60; id++ {
		assert.Equal(t, 1, r.callsFor(id), "id %d dispatched once", id)
	}
}

func TestFlushFollowsInterval(t *testing.T) {
	out := &recordingSink{}
	checkpoints, err := checkpoint.NewManager(t.TempDir(), "LolPop", nil)
	require.NoError(t, err)
	m := metrics.New()

	cfg := baseConfig(1, 20)
	cfg.FlushInterval = 7
	e := newTestEngine(t, cfg, &fakeProvider{authorized: true}, &scriptedResolver{}, out.opener(),
		ratelimit.NewFakeClock(time.Unix(0, 0)), WithCheckpoints(checkpoints), WithMetrics(m), WithRunID("run-1"))

	_, err = e.Run(context.Background())
	require.NoError(t, err)

	// Batches ending at 10 and 15 cross 7 and 14, plus the final flush
	assert.Equal(t, 3, out.flushes)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Flushes))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.LastFlushedID))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineState.WithLabelValues(string(StateDone))))

	cp, err := checkpoints.Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "run-1", cp.RunID)
	assert.Equal(t, int64(21), cp.NextID)
	assert.True(t, cp.Completed)
}

func TestCrossesInterval(t *testing.T) {
	tests := []struct {
		prev, last, interval int64
		want                 bool
	}{
		{0, 5, 100, false},
		{95, 100, 100, true},
		{100, 105, 100, false},
		{96, 101, 100, true},
		{0, 5, 5, true},
		{5, 10, 0, false},
	}
	for _, tt := range tests {
		if got := crossesInterval(tt.prev, tt.last, tt.interval); got != tt.want {
			t.Errorf("crossesInterval(%d, %d, %d) = %v, want %v", tt.prev, tt.last, tt.interval, got, tt.want)
		}
	}
}

func TestConnectFailureIsFatal(t *testing.T) {
	out := &recordingSink{}
	p := &fakeProvider{connectErr: errs.New(errs.ErrorTypeConnection, 0, "gateway down"), connectErrs: -1}
	r := &scriptedResolver{}
	clock := ratelimit.NewFakeClock(time.Unix(0, 0))

	e := newTestEngine(t, baseConfig(1, 10), p, r, out.opener(), clock)
	_, err := e.Run(context.Background())
	require.Error(t, err)

	assert.True(t, errs.Is(err, errs.ErrorTypeConnection))
	assert.Equal(t, 3, p.connects)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.Sleeps())
	assert.Equal(t, StateFailed, e.State())
	assert.Zero(t, r.callsFor(1))
	assert.Empty(t, out.records)
	assert.Zero(t, out.flushes)
	assert.Zero(t, out.opens, "output opened before the session was ready")
}

func TestAuthorizationCheckRetriesTransientFailure(t *testing.T) {
	out := &recordingSink{}
	p := &fakeProvider{authorized: true, authErr: errs.New(errs.ErrorTypeNetwork, 0, "connection reset"), authErrs: 1}
	r := &scriptedResolver{structured: map[int64]string{2: "@alice"}}
	clock := ratelimit.NewFakeClock(time.Unix(0, 0))

	stats, err := newTestEngine(t, baseConfig(1, 3), p, r, out.opener(), clock).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, p.authChecks)
	assert.Equal(t, []time.Duration{time.Second}, clock.Sleeps()[:1])
	assert.Equal(t, 1, stats.Resolved)
}

func TestAuthorizationCheckDoesNotRetryAuthErrors(t *testing.T) {
	out := &recordingSink{}
	p := &fakeProvider{authErr: errs.New(errs.ErrorTypeAuth, 401, "AUTH_KEY_UNREGISTERED"), authErrs: 5}
	clock := ratelimit.NewFakeClock(time.Unix(0, 0))

	_, err := newTestEngine(t, baseConfig(1, 3), p, &scriptedResolver{}, out.opener(), clock).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	assert.Equal(t, 1, p.authChecks)
	assert.Zero(t, out.opens)
}

func TestFailedBootstrapKeepsPriorOutput(t *testing.T) {
	dir := t.TempDir()
	ownersPath, linksPath := filepath.Join(dir, "owners.csv"), filepath.Join(dir, "links.csv")
	prior := "Gift ID,Owner\n1,@old\n2,@prior\n"
	require.NoError(t, os.WriteFile(ownersPath, []byte(prior), 0644))
	require.NoError(t, os.WriteFile(linksPath, []byte("Gift ID,Link\n"), 0644))

	t.Run("connect fails", func(t *testing.T) {
		p := &fakeProvider{connectErr: errs.New(errs.ErrorTypeConnection, 0, "gateway down"), connectErrs: -1}
		cfg := baseConfig(1, 10)
		cfg.ConnectRetries = 1
		_, err := newTestEngine(t, cfg, p, &scriptedResolver{}, csvOpener(ownersPath, linksPath, false),
			ratelimit.NewFakeClock(time.Unix(0, 0))).Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, prior, readFile(t, ownersPath))
	})

	t.Run("not authorized", func(t *testing.T) {
		_, err := newTestEngine(t, baseConfig(1, 10), &fakeProvider{}, &scriptedResolver{}, csvOpener(ownersPath, linksPath, false),
			ratelimit.NewFakeClock(time.Unix(0, 0))).Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, prior, readFile(t, ownersPath))
	})
}

func TestOpenFailureIsFatal(t *testing.T) {
	p := &fakeProvider{authorized: true}
	r := &scriptedResolver{}
	open := func() (sink.Sink, error) { return nil, errors.New("read-only filesystem") }

	e := newTestEngine(t, baseConfig(1, 10), p, r, open, ratelimit.NewFakeClock(time.Unix(0, 0)))
	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only filesystem")
	assert.Equal(t, StateFailed, e.State())
	assert.True(t, p.disconnected)
	assert.Zero(t, r.callsFor(1))
}

func TestConnectRecovers(t *testing.T) {
	p := &fakeProvider{connectErr: errs.New(errs.ErrorTypeNetwork, 0, "reset"), connectErrs: 2, authorized: true}
	e := newTestEngine(t, baseConfig(1, 5), p, &scriptedResolver{}, (&recordingSink{}).opener(), ratelimit.NewFakeClock(time.Unix(0, 0)))

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, p.connects)
}

func TestAuthentication(t *testing.T) {
	t.Run("unauthorized without sign-in", func(t *testing.T) {
		e := newTestEngine(t, baseConfig(1, 5), &fakeProvider{}, &scriptedResolver{}, (&recordingSink{}).opener(),
			ratelimit.NewFakeClock(time.Unix(0, 0)))
		_, err := e.Run(context.Background())
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
		assert.Equal(t, StateFailed, e.State())
	})

	t.Run("sign-in authorizes", func(t *testing.T) {
		p := &fakeProvider{}
		signIn := func(ctx context.Context) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.authorized = true
			return nil
		}
		e := newTestEngine(t, baseConfig(1, 5), p, &scriptedResolver{}, (&recordingSink{}).opener(),
			ratelimit.NewFakeClock(time.Unix(0, 0)), WithSignIn(signIn))
		_, err := e.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StateDone, e.State())
	})

	t.Run("sign-in fails", func(t *testing.T) {
		signIn := func(ctx context.Context) error { return errors.New("wrong code") }
		e := newTestEngine(t, baseConfig(1, 5), &fakeProvider{}, &scriptedResolver{}, (&recordingSink{}).opener(),
			ratelimit.NewFakeClock(time.Unix(0, 0)), WithSignIn(signIn))
		_, err := e.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "wrong code")
	})
}

// cancellingRunner cancels the scan while resolving the given batch
type cancellingRunner struct {
	inner   BatchRunner
	cancel  context.CancelFunc
	atFirst int64
}

func (c *cancellingRunner) RunBatch(ctx context.Context, ids []int64) []resolver.Result {
	if ids[0] == c.atFirst {
		c.cancel()
	}
	return c.inner.RunBatch(ctx, ids)
}

func TestCancellationStopsAtBatchBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &recordingSink{}
	r := &scriptedResolver{structured: map[int64]string{2: "@alice", 7: "Bob"}}
	runner := &cancellingRunner{inner: scheduler.New(r, 5, nil), cancel: cancel, atFirst: 6}
	p := &fakeProvider{authorized: true}

	rate := ratelimit.NewController(ratelimit.NewFakeClock(time.Unix(0, 0)), 0, 0)
	e, err := New(baseConfig(1, 15), p, runner, out.opener(), rate)
	require.NoError(t, err)

	stats, err := e.Run(ctx)
	require.NoError(t, err)

	assert.True(t, stats.Interrupted)
	assert.Equal(t, []int64{2}, out.ids("owners"))
	assert.Equal(t, int64(5), stats.LastID)
	assert.Equal(t, 1, out.flushes)
	assert.True(t, out.closed)
	assert.True(t, p.disconnected)
	assert.Zero(t, r.callsFor(11))
	assert.Equal(t, StateDone, e.State())
}

func TestSinkFailureIsNotFatal(t *testing.T) {
	out := &recordingSink{failOn: 3}
	r := &scriptedResolver{structured: map[int64]string{3: "@alice", 4: "@bob", 8: "Carol"}}
	log := logger.NewTestLogger()

	e := newTestEngine(t, baseConfig(1, 10), &fakeProvider{authorized: true}, r, out.opener(),
		ratelimit.NewFakeClock(time.Unix(0, 0)), WithLogger(log))
	stats, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FailedBatches)
	assert.Equal(t, []int64{8}, out.ids("owners"))
	assert.True(t, log.HasError())
}

func TestRunOnlyOnce(t *testing.T) {
	e := newTestEngine(t, baseConfig(1, 5), &fakeProvider{authorized: true}, &scriptedResolver{}, (&recordingSink{}).opener(),
		ratelimit.NewFakeClock(time.Unix(0, 0)))
	_, err := e.Run(context.Background())
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero start", func(c *Config) { c.StartID = 0 }},
		{"end before start", func(c *Config) { c.EndID = 0 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"zero flush interval", func(c *Config) { c.FlushInterval = 0 }},
		{"negative retries", func(c *Config) { c.RateLimitRetries = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(1, 10)
			tt.mutate(&cfg)
			_, err := New(cfg, &fakeProvider{}, scheduler.New(&scriptedResolver{}, 1, nil), (&recordingSink{}).opener(), nil)
			assert.Error(t, err)
		})
	}
}

func TestEffectiveStart(t *testing.T) {
	cfg := baseConfig(10, 100)
	assert.Equal(t, int64(10), cfg.EffectiveStart())
	cfg.ResumeFrom = 40
	assert.Equal(t, int64(40), cfg.EffectiveStart())
	cfg.ResumeFrom = 3
	assert.Equal(t, int64(10), cfg.EffectiveStart())
}
