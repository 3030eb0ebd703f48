package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nitrodev1/telegram-gift-parser/pkg/auth"
	"github.com/nitrodev1/telegram-gift-parser/pkg/checkpoint"
	"github.com/nitrodev1/telegram-gift-parser/pkg/config"
	"github.com/nitrodev1/telegram-gift-parser/pkg/engine"
	"github.com/nitrodev1/telegram-gift-parser/pkg/logger"
	"github.com/nitrodev1/telegram-gift-parser/pkg/metrics"
	"github.com/nitrodev1/telegram-gift-parser/pkg/provider"
	"github.com/nitrodev1/telegram-gift-parser/pkg/ratelimit"
	"github.com/nitrodev1/telegram-gift-parser/pkg/resolver"
	"github.com/nitrodev1/telegram-gift-parser/pkg/scheduler"
	"github.com/nitrodev1/telegram-gift-parser/pkg/sink"
	"github.com/nitrodev1/telegram-gift-parser/pkg/ui"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Resolve owners across an ID range",
	Long: `Scan walks [start-id, end-id] of one collection in batches and resolves
every gift to its owner.

Examples:
  giftparser scan --start-id 1 --end-id 5000
  giftparser scan --collection LolPop --format sqlite --output ./data
  giftparser scan --end-id 100000 --resume-from 2401`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanAccount  string
	showProgress bool
)

func init() {
	rootCmd.AddCommand(scanCmd)

	f := scanCmd.Flags()
	f.String("api-base-url", "", "provider gateway URL")
	f.String("collection", "", "gift collection slug")
	f.Int64("start-id", 0, "first gift ID to scan")
	f.Int64("end-id", 0, "last gift ID to scan")
	f.Int("batch-size", 0, "IDs resolved concurrently per batch")
	f.Int64("resume-from", 0, "continue an interrupted scan from this ID")
	f.Int64("flush-interval", 0, "flush output every N IDs")
	f.Duration("steady-delay", 0, "pause between batches")
	f.Int("rate-limit-retries", 0, "replays of a rate-limited batch before its IDs are skipped")
	f.String("format", "", "output format (csv, sqlite)")
	f.StringP("output", "o", "", "output directory")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringVarP(&scanAccount, "account", "a", "", "stored profile to scan with")
	f.BoolVar(&showProgress, "progress", true, "show a live progress line")
}

// scanFlags collects the flags the operator actually set
func scanFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	fs := cmd.Flags()

	for _, name := range []string{"api-base-url", "collection", "format", "output", "metrics-addr"} {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			flags[name] = v
		}
	}
	for _, name := range []string{"start-id", "end-id", "resume-from", "flush-interval"} {
		if fs.Changed(name) {
			v, _ := fs.GetInt64(name)
			flags[name] = v
		}
	}
	for _, name := range []string{"batch-size", "rate-limit-retries"} {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			flags[name] = v
		}
	}
	if fs.Changed("steady-delay") {
		v, _ := fs.GetDuration("steady-delay")
		flags["steady-delay"] = v
	}

	return flags
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(scanFlags(cmd))
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("credential store unavailable, sessions will not be saved")
	}
	account, err := resolveAccount(cfg, manager, scanAccount)
	if err != nil {
		return err
	}

	limiter := ratelimit.NewRequestLimiter(cfg.RateLimit.RequestsPerSecond, cfg.Scan.BatchSize)
	client := provider.NewClient(provider.Options{
		BaseURL:      cfg.Provider.APIBaseURL,
		Channel:      cfg.Provider.Channel,
		APIID:        account.APIID,
		APIHash:      account.APIHash,
		SessionToken: account.SessionToken,
		Timeout:      cfg.Provider.RequestTimeout,
		Limiter:      limiter,
	}, log)
	pages := provider.NewPageFetcher(provider.PageOptions{
		UserAgent: cfg.Provider.UserAgent,
		Timeout:   cfg.Provider.RequestTimeout,
		Limiter:   limiter,
	}, log)

	res := resolver.New(client, pages, resolver.Options{
		PageBaseURL: cfg.Provider.PageBaseURL,
		Collection:  cfg.Provider.Collection,
		OwnerLabels: cfg.Provider.OwnerLabels,
	}, log)
	runner := scheduler.New(res, cfg.Scan.BatchSize, log)

	checkpoints, err := checkpoint.NewManager(cfg.Output.CheckpointDir, cfg.Provider.Collection, log)
	if err != nil {
		return err
	}

	m := metrics.New()
	if cfg.Metrics.ListenAddr != "" {
		srv := serveMetrics(cfg.Metrics.ListenAddr, m, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithCheckpoints(checkpoints),
		engine.WithMetrics(m),
		engine.WithSignIn(newSignInFunc(client, newTerminalPrompter(), manager, account, log)),
	}

	var display *ui.ProgressDisplay
	if showProgress && !quiet && term.IsTerminal(int(os.Stdout.Fd())) {
		display = ui.NewProgressDisplay(os.Stdout, cfg.Provider.Collection)
		opts = append(opts, engine.WithProgress(display.Update))
	}

	rate := ratelimit.NewController(ratelimit.RealClock{}, cfg.RateLimit.SteadyDelay, cfg.RateLimit.MaxWait)
	eng, err := engine.New(engine.FromConfig(cfg), client, runner, sinkOpener(cfg, log), rate, opts...)
	if err != nil {
		return err
	}

	if !quiet {
		ui.PrintInfo(os.Stderr, "Collection", cfg.Provider.Collection)
		ui.PrintInfo(os.Stderr, "Range", fmt.Sprintf("%d-%d", cfg.EffectiveStart(), cfg.Scan.EndID))
		ui.PrintInfo(os.Stderr, "Output", outputDescription(cfg))
	}

	stats, err := eng.Run(ctx)
	if display != nil {
		display.Complete(stats)
	}
	if err != nil {
		return err
	}

	if !quiet {
		ui.PrintSummary(os.Stdout, cfg.Provider.Collection, stats)
	}
	return nil
}

// resolveAccount picks the credentials for a scan: a named profile, a token
// from config or environment, the default stored profile, or the bare
// config values which will trigger an interactive sign-in
func resolveAccount(cfg *config.Config, manager *auth.Manager, profile string) (*auth.Account, error) {
	fromConfig := &auth.Account{
		Name:         "default",
		Phone:        cfg.Provider.Phone,
		APIID:        cfg.Provider.APIID,
		APIHash:      cfg.Provider.APIHash,
		SessionToken: cfg.Provider.SessionToken,
	}

	if profile != "" {
		if manager == nil {
			return nil, fmt.Errorf("profile %q requested but no credential store is available", profile)
		}
		account, err := manager.Retrieve(profile)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile %q: %w", profile, err)
		}
		return fillFromConfig(account, fromConfig), nil
	}

	if fromConfig.SessionToken != "" {
		return fromConfig, nil
	}

	if manager != nil {
		account, err := manager.RetrieveDefault()
		if err == nil {
			return fillFromConfig(account, fromConfig), nil
		}
		if !errors.Is(err, auth.ErrCredentialsNotFound) {
			return nil, err
		}
	}

	return fromConfig, nil
}

func fillFromConfig(account, cfg *auth.Account) *auth.Account {
	if account.Phone == "" {
		account.Phone = cfg.Phone
	}
	if account.APIID == "" {
		account.APIID = cfg.APIID
	}
	if account.APIHash == "" {
		account.APIHash = cfg.APIHash
	}
	return account
}

// sinkOpener defers opening the output until the engine has a session
func sinkOpener(cfg *config.Config, log logger.Logger) engine.SinkOpener {
	return func() (sink.Sink, error) {
		return openSink(cfg, log)
	}
}

// openSink opens the configured output, appending only for explicit resumes
func openSink(cfg *config.Config, log logger.Logger) (sink.Sink, error) {
	dir := cfg.Output.Directory
	switch strings.ToLower(cfg.Output.Format) {
	case config.FormatSQLite:
		return sink.OpenSQLite(filepath.Join(dir, cfg.Output.DatabaseFile), cfg.Resuming(), log)
	default:
		return sink.OpenCSV(
			filepath.Join(dir, cfg.Output.OwnersFile),
			filepath.Join(dir, cfg.Output.LinksFile),
			cfg.Resuming(),
			log,
		)
	}
}

func outputDescription(cfg *config.Config) string {
	dir := cfg.Output.Directory
	if strings.ToLower(cfg.Output.Format) == config.FormatSQLite {
		return filepath.Join(dir, cfg.Output.DatabaseFile)
	}
	return filepath.Join(dir, cfg.Output.OwnersFile) + ", " + filepath.Join(dir, cfg.Output.LinksFile)
}

func serveMetrics(addr string, m *metrics.Metrics, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	return srv
}
