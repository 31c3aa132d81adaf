package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlabs/pricewatch/internal/pricing"
	"github.com/storefrontlabs/pricewatch/internal/progress"
	"github.com/storefrontlabs/pricewatch/internal/reconcile"
)

func testLocations() []pricing.LocationTarget {
	return []pricing.LocationTarget{
		{Province: "BC", Level: pricing.PL1, StoreName: "Vancouver Broadway", Address: "123 Broadway W"},
		{Province: "BC", Level: pricing.PL1, StoreName: "Victoria Douglas", Address: "456 Douglas St"},
		{Province: "ON", Level: pricing.PL4, StoreName: "Toronto Queen", Address: "789 Queen St W"},
	}
}

func groupsFor(locations []pricing.LocationTarget) []GroupSpec {
	counts := map[string]int{}
	var order []string
	for _, loc := range locations {
		if _, ok := counts[loc.GroupCode()]; !ok {
			order = append(order, loc.GroupCode())
		}
		counts[loc.GroupCode()]++
	}
	specs := make([]GroupSpec, 0, len(order))
	for _, code := range order {
		specs = append(specs, GroupSpec{Code: code, Name: pricing.GroupName(code), Total: counts[code]})
	}
	return specs
}

func newRunnerFixture(t *testing.T) (*Runner, *Store, *stubCrawler, *stubReports, *captureSink, *progress.Hub) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)}
	store := NewStore(StoreConfig{}, clk, &fakeIDs{})
	crawler := &stubCrawler{}
	reports := &stubReports{uri: "memory://reports/run.json"}
	sink := &captureSink{}
	hub := progress.NewHub(progress.Config{MaxBatchEvents: 1, MaxBatchWait: 5 * time.Millisecond}, sink)
	t.Cleanup(func() {
		require.NoError(t, hub.Close(context.Background()))
	})
	runner, err := NewRunner(RunnerDeps{
		Store:      store,
		Crawler:    crawler,
		Reconciler: reconcile.NewEngine(nil, decimal.Zero, nil),
		Reports:    reports,
		Hub:        hub,
		Clock:      clk,
	})
	require.NoError(t, err)
	return runner, store, crawler, reports, sink, hub
}

func TestRunnerCompletesJob(t *testing.T) {
	t.Parallel()

	runner, store, _, reports, sink, _ := newRunnerFixture(t)
	ctx := context.Background()
	locations := testLocations()
	snap, err := store.Create(ctx, groupsFor(locations))
	require.NoError(t, err)

	expected := []pricing.ExpectedPrice{
		{ProductName: "Classic Pepperoni", Category: "pizzas", Level: pricing.PL1, Price: decimal.RequireFromString("15.99")},
	}
	require.NoError(t, runner.Run(ctx, snap.ID, locations, []string{"pizzas"}, expected))

	final, err := store.Get(ctx, snap.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, final.Status)
	require.Equal(t, 3, final.Succeeded)
	require.Zero(t, final.Failed)
	require.Equal(t, "memory://reports/run.json", final.ReportURI)
	require.NotNil(t, final.Summary)
	require.Equal(t, snap.ID, reports.jobID)

	require.Eventually(t, func() bool {
		return sink.count(progress.StageJobDone) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, 1, sink.count(progress.StageJobStart))
	require.Equal(t, 3, sink.count(progress.StageLocationDone))
	// Two groups, but the final one is folded into JOB_DONE.
	require.Equal(t, 1, sink.count(progress.StageGroupDone))
}

func TestRunnerIsolatesLocationFailures(t *testing.T) {
	t.Parallel()

	runner, store, crawler, _, _, _ := newRunnerFixture(t)
	crawler.failStores = map[string]bool{"Victoria Douglas": true}
	ctx := context.Background()
	locations := testLocations()
	snap, err := store.Create(ctx, groupsFor(locations))
	require.NoError(t, err)

	expected := []pricing.ExpectedPrice{
		{ProductName: "Classic Pepperoni", Category: "pizzas", Level: pricing.PL1, Price: decimal.RequireFromString("15.99")},
	}
	require.NoError(t, runner.Run(ctx, snap.ID, locations, []string{"pizzas"}, expected))

	final, err := store.Get(ctx, snap.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, final.Status)
	require.Equal(t, 2, final.Succeeded)
	require.Equal(t, 1, final.Failed)
}

func TestRunnerAllLocationsFailedStillReports(t *testing.T) {
	t.Parallel()

	runner, store, crawler, reports, _, _ := newRunnerFixture(t)
	crawler.failStores = map[string]bool{
		"Vancouver Broadway": true,
		"Victoria Douglas":   true,
		"Toronto Queen":      true,
	}
	ctx := context.Background()
	locations := testLocations()
	snap, err := store.Create(ctx, groupsFor(locations))
	require.NoError(t, err)

	expected := []pricing.ExpectedPrice{
		{ProductName: "Classic Pepperoni", Category: "pizzas", Level: pricing.PL1, Price: decimal.RequireFromString("15.99")},
	}
	require.NoError(t, runner.Run(ctx, snap.ID, locations, []string{"pizzas"}, expected))

	// No scraped records at all is still a completed run: the report lands
	// with every expected row MISSING_ACTUAL.
	final, err := store.Get(ctx, snap.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, final.Status)
	require.Equal(t, 3, final.Failed)
	require.Equal(t, "memory://reports/run.json", final.ReportURI)
	require.NotNil(t, final.Summary)
	require.Equal(t, 1, final.Summary.MissingActual)
	require.Equal(t, snap.ID, reports.jobID)
}

func TestRunnerReportWriteFailureMarksError(t *testing.T) {
	t.Parallel()

	runner, store, _, reports, sink, _ := newRunnerFixture(t)
	reports.err = errors.New("bucket unavailable")
	ctx := context.Background()
	locations := testLocations()
	snap, err := store.Create(ctx, groupsFor(locations))
	require.NoError(t, err)

	expected := []pricing.ExpectedPrice{
		{ProductName: "Classic Pepperoni", Category: "pizzas", Level: pricing.PL1, Price: decimal.RequireFromString("15.99")},
	}
	err = runner.Run(ctx, snap.ID, locations, []string{"pizzas"}, expected)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bucket unavailable")

	final, err := store.Get(ctx, snap.ID)
	require.NoError(t, err)
	require.Equal(t, StatusError, final.Status)

	require.Eventually(t, func() bool {
		return sink.count(progress.StageJobError) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRunnerRequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(RunnerDeps{})
	require.Error(t, err)
}

type stubCrawler struct {
	mu         sync.Mutex
	failStores map[string]bool
	calls      int
}

func (c *stubCrawler) CrawlLocation(_ context.Context, target pricing.LocationTarget, categories []string) ([]pricing.ScrapedPrice, error) {
	c.mu.Lock()
	c.calls++
	fail := c.failStores[target.StoreName]
	c.mu.Unlock()
	if fail {
		return nil, errors.New("menu page did not load")
	}
	records := make([]pricing.ScrapedPrice, 0, len(categories))
	for _, category := range categories {
		records = append(records, pricing.ScrapedPrice{
			Province:    target.Province,
			Level:       target.Level,
			StoreName:   target.StoreName,
			Category:    category,
			ProductName: "Classic Pepperoni",
			Price:       decimal.RequireFromString("15.99"),
			RawText:     "$15.99",
			ScrapedAt:   time.Now().UTC(),
		})
	}
	return records, nil
}

type stubReports struct {
	mu    sync.Mutex
	uri   string
	err   error
	jobID string
}

func (r *stubReports) Write(_ context.Context, jobID string, _ reconcile.Report) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.jobID = jobID
	return r.uri, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []progress.Event
}

func (s *captureSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *captureSink) Close(context.Context) error { return nil }

func (s *captureSink) count(stage progress.Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, evt := range s.events {
		if evt.Stage == stage {
			n++
		}
	}
	return n
}
