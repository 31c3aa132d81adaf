// Package app wires the validation service together from configuration:
// data files, blob storage, the crawler, the job store, progress sinks, and
// the optional results database and event publisher.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/clock/system"
	"github.com/storefrontlabs/pricewatch/internal/config"
	"github.com/storefrontlabs/pricewatch/internal/id/uuid"
	"github.com/storefrontlabs/pricewatch/internal/jobs"
	"github.com/storefrontlabs/pricewatch/internal/match"
	"github.com/storefrontlabs/pricewatch/internal/metrics"
	"github.com/storefrontlabs/pricewatch/internal/pricing"
	"github.com/storefrontlabs/pricewatch/internal/progress"
	"github.com/storefrontlabs/pricewatch/internal/progress/sinks"
	"github.com/storefrontlabs/pricewatch/internal/publisher"
	pubsubpub "github.com/storefrontlabs/pricewatch/internal/publisher/pubsub"
	"github.com/storefrontlabs/pricewatch/internal/reconcile"
	"github.com/storefrontlabs/pricewatch/internal/report"
	"github.com/storefrontlabs/pricewatch/internal/retry"
	"github.com/storefrontlabs/pricewatch/internal/scrape"
	"github.com/storefrontlabs/pricewatch/internal/storage"
	"github.com/storefrontlabs/pricewatch/internal/storage/gcs"
	"github.com/storefrontlabs/pricewatch/internal/storage/local"
	"github.com/storefrontlabs/pricewatch/internal/storage/memory"
	"github.com/storefrontlabs/pricewatch/internal/store"
	"github.com/storefrontlabs/pricewatch/internal/store/postgres"

	"github.com/shopspring/decimal"
)

// App holds the assembled service.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	Store  *jobs.Store
	Hub    *progress.Hub
	Runner *jobs.Runner

	locations  []pricing.LocationTarget
	expected   []pricing.ExpectedPrice
	categories []string

	results *postgres.ResultsStore
	pub     publisher.Publisher

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New builds the service from configuration. The context bounds external
// connections (GCS, Pub/Sub, Postgres) made during startup.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	clk := system.New()
	ids := uuid.New()

	locations, err := config.LoadLocations(cfg.LocationsFile)
	if err != nil {
		return nil, err
	}
	expected, err := config.LoadExpected(cfg.ExpectedFile)
	if err != nil {
		return nil, err
	}

	blobs, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	tolerance := reconcile.DefaultTolerance
	if cfg.Reconcile.Tolerance != "" {
		tolerance, err = decimal.NewFromString(cfg.Reconcile.Tolerance)
		if err != nil {
			return nil, fmt.Errorf("parse reconcile tolerance %q: %w", cfg.Reconcile.Tolerance, err)
		}
	}
	engine := reconcile.NewEngine(match.New(cfg.Matching.Threshold), tolerance, logger)

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	recorder := scrape.NewDebugRecorder(blobs, clk, logger)
	crawler, err := scrape.NewCrawler(scrape.Config{
		BaseURL:           cfg.Crawler.BaseURL,
		MaxSessions:       cfg.Crawler.MaxSessions,
		NavigationTimeout: cfg.Crawler.NavigationTimeout,
		StepTimeout:       cfg.Crawler.StepTimeout,
		CaptureCart:       cfg.Crawler.CaptureCart,
		Headless:          cfg.Crawler.Headless,
		UserAgent:         cfg.Crawler.UserAgent,
	}, scrape.DefaultSelectors().Overlay(cfg.Crawler.Selectors), policy, recorder, clk, logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:        cfg,
		logger:     logger,
		locations:  locations,
		expected:   expected,
		categories: cfg.Crawler.Categories,
	}
	if len(app.categories) == 0 {
		app.categories = pricing.DefaultCategories
	}

	hubSinks := []progress.Sink{sinks.NewLogSink(logger)}
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, err
	}
	hubSinks = append(hubSinks, promSink)

	if cfg.PubSub.Enabled {
		pub, err := pubsubpub.NewPublisher(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, err
		}
		app.pub = pub
		hubSinks = append(hubSinks, sinks.NewPublisherSink(pub, cfg.PubSub.Topic, logger))
	}
	app.Hub = progress.NewHub(progress.Config{Logger: logger}, hubSinks...)

	app.Store = jobs.NewStore(jobs.StoreConfig{
		MaxActive: cfg.Jobs.MaxActive,
		MaxTotal:  cfg.Jobs.MaxTotal,
		Retention: cfg.Jobs.Retention,
	}, clk, ids)

	reports, err := report.NewJSONWriter(blobs, clk, logger)
	if err != nil {
		return nil, err
	}

	var runRecorder jobs.Recorder
	if cfg.Database.Enabled {
		results, err := postgres.NewResultsStore(ctx, cfg.Database.DSN, logger)
		if err != nil {
			return nil, err
		}
		app.results = results
		runRecorder = store.NewRunRecorder(results)
	}

	app.Runner, err = jobs.NewRunner(jobs.RunnerDeps{
		Store:      app.Store,
		Crawler:    crawler,
		Reconciler: engine,
		Reports:    reports,
		Recorder:   runRecorder,
		Hub:        app.Hub,
		Clock:      clk,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Crawler.Preflight {
		if err := crawler.Preflight(app.categories); err != nil {
			logger.Warn("category preflight failed", zap.Error(err))
		}
	}
	return app, nil
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig) (storage.BlobStore, error) {
	switch cfg.Backend {
	case "memory":
		return memory.NewBlobStore(), nil
	case "local":
		return local.New(local.Config{BaseDir: cfg.LocalDir})
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// StartJob admits a job covering the requested provinces and categories and
// launches its run in the background.
func (a *App) StartJob(ctx context.Context, req jobs.Request) (jobs.Snapshot, error) {
	locations := filterLocations(a.locations, req.Provinces)
	if len(locations) == 0 {
		return jobs.Snapshot{}, fmt.Errorf("start job: no locations match provinces %v", req.Provinces)
	}
	categories, err := resolveCategories(a.categories, req.Categories)
	if err != nil {
		return jobs.Snapshot{}, err
	}

	snap, err := a.Store.Create(ctx, groupSpecs(locations))
	if err != nil {
		return jobs.Snapshot{}, err
	}
	go func() {
		if err := a.Runner.Run(context.Background(), snap.ID, locations, categories, a.expected); err != nil {
			a.logger.Error("job run failed", zap.String("job_id", snap.ID), zap.Error(err))
		}
	}()
	return snap, nil
}

// RunOnce executes a full validation synchronously, for the CLI path.
func (a *App) RunOnce(ctx context.Context, req jobs.Request) (jobs.Snapshot, error) {
	locations := filterLocations(a.locations, req.Provinces)
	if len(locations) == 0 {
		return jobs.Snapshot{}, fmt.Errorf("validate: no locations match provinces %v", req.Provinces)
	}
	categories, err := resolveCategories(a.categories, req.Categories)
	if err != nil {
		return jobs.Snapshot{}, err
	}
	snap, err := a.Store.Create(ctx, groupSpecs(locations))
	if err != nil {
		return jobs.Snapshot{}, err
	}
	if err := a.Runner.Run(ctx, snap.ID, locations, categories, a.expected); err != nil {
		return jobs.Snapshot{}, err
	}
	return a.Store.Get(ctx, snap.ID)
}

// StartSweeper begins the background retention sweep.
func (a *App) StartSweeper() {
	interval := a.cfg.Jobs.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	a.sweepStop = make(chan struct{})
	a.sweepDone = make(chan struct{})
	go func() {
		defer close(a.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := a.Store.Sweep(context.Background()); removed > 0 {
					a.logger.Info("swept finished jobs", zap.Int("removed", removed))
				}
			case <-a.sweepStop:
				return
			}
		}
	}()
}

// Close flushes progress events and releases external connections.
func (a *App) Close(ctx context.Context) error {
	if a.sweepStop != nil {
		close(a.sweepStop)
		<-a.sweepDone
	}
	var firstErr error
	if err := a.Hub.Close(ctx); err != nil {
		firstErr = err
	}
	if a.pub != nil {
		if err := a.pub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.results != nil {
		a.results.Close()
	}
	return firstErr
}

func filterLocations(all []pricing.LocationTarget, provinces []string) []pricing.LocationTarget {
	if len(provinces) == 0 {
		return all
	}
	want := make(map[string]struct{}, len(provinces))
	for _, p := range provinces {
		want[strings.ToUpper(strings.TrimSpace(p))] = struct{}{}
	}
	var out []pricing.LocationTarget
	for _, loc := range all {
		if _, ok := want[strings.ToUpper(loc.Province)]; ok {
			out = append(out, loc)
		}
	}
	return out
}

func resolveCategories(configured, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return configured, nil
	}
	known := make(map[string]struct{}, len(configured))
	for _, c := range configured {
		known[c] = struct{}{}
	}
	for _, c := range requested {
		if _, ok := known[c]; !ok {
			return nil, fmt.Errorf("unknown category %q", c)
		}
	}
	return requested, nil
}

func groupSpecs(locations []pricing.LocationTarget) []jobs.GroupSpec {
	counts := make(map[string]int)
	var order []string
	for _, loc := range locations {
		code := loc.GroupCode()
		if _, ok := counts[code]; !ok {
			order = append(order, code)
		}
		counts[code]++
	}
	specs := make([]jobs.GroupSpec, 0, len(order))
	for _, code := range order {
		specs = append(specs, jobs.GroupSpec{Code: code, Name: pricing.GroupName(code), Total: counts[code]})
	}
	return specs
}
