package scrape

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/storefrontlabs/pricewatch/internal/metrics"
	"github.com/storefrontlabs/pricewatch/internal/pricing"
	"github.com/storefrontlabs/pricewatch/internal/retry"
)

// Config tunes the headless crawl.
//   - BaseURL: storefront origin, e.g. https://order.example.com.
//   - MaxSessions: concurrent browser sessions across all jobs (default 2).
//   - NavigationTimeout: full page load budget (default 45s).
//   - StepTimeout: budget for an individual picker or extraction step
//     (default 15s).
//   - CaptureCart: also add one item per category to the cart and read the
//     total back.
//   - Headless: run Chrome headless; disable for local debugging.
//   - UserAgent: overrides the browser default when set.
type Config struct {
	BaseURL           string
	MaxSessions       int64
	NavigationTimeout time.Duration
	StepTimeout       time.Duration
	CaptureCart       bool
	Headless          bool
	UserAgent         string
}

// Clock supplies scrape timestamps.
type Clock interface {
	Now() time.Time
}

// Crawler visits store locations with a headless browser and extracts menu
// prices. One CrawlLocation call is one browser session; a weighted
// semaphore bounds how many run at once across all jobs.
type Crawler struct {
	cfg       Config
	selectors Selectors
	policy    retry.Policy
	sem       *semaphore.Weighted
	recorder  *DebugRecorder
	clock     Clock
	logger    *zap.Logger
}

// NewCrawler validates the config and builds a Crawler. The recorder may be
// nil to disable failure captures.
func NewCrawler(cfg Config, selectors Selectors, policy retry.Policy, recorder *DebugRecorder, clock Clock, logger *zap.Logger) (*Crawler, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("crawler: base url is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("crawler: clock is required")
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 2
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 15 * time.Second
	}
	if policy.MaxAttempts <= 0 {
		policy = retry.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		cfg:       cfg,
		selectors: selectors,
		policy:    policy,
		sem:       semaphore.NewWeighted(cfg.MaxSessions),
		recorder:  recorder,
		clock:     clock,
		logger:    logger,
	}, nil
}

// CrawlLocation selects the target store and walks every requested menu
// category. Category failures are isolated: a broken category page is
// logged, captured, and skipped, and the remaining categories still run.
// The call fails only when the session cannot be established, the location
// cannot be selected, or every category fails.
func (c *Crawler) CrawlLocation(ctx context.Context, target pricing.LocationTarget, categories []string) ([]pricing.ScrapedPrice, error) {
	if len(categories) == 0 {
		categories = pricing.DefaultCategories
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire browser session: %w", err)
	}
	defer c.sem.Release(1)

	browserCtx, cancel := c.newSession(ctx)
	defer cancel()

	start := c.clock.Now()
	records, err := c.crawlSession(browserCtx, target, categories)
	if err != nil {
		metrics.ObserveScrapeSession(false, 0)
		return nil, err
	}
	metrics.ObserveScrapeSession(true, len(records))
	c.logger.Info("location crawled",
		zap.String("store", target.StoreName),
		zap.String("province", target.Province),
		zap.Int("records", len(records)),
		zap.Duration("duration", c.clock.Now().Sub(start)),
	)
	return records, nil
}

func (c *Crawler) newSession(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if c.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if c.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.cfg.UserAgent))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	return browserCtx, func() {
		cancelBrowser()
		cancelAlloc()
	}
}

func (c *Crawler) crawlSession(browserCtx context.Context, target pricing.LocationTarget, categories []string) ([]pricing.ScrapedPrice, error) {
	// Fix the viewport so tile layouts (and therefore selectors) stay stable
	// across environments.
	err := chromedp.Run(browserCtx,
		network.Enable(),
		emulation.SetDeviceMetricsOverride(1440, 900, 1, false),
	)
	if err != nil {
		return nil, fmt.Errorf("prepare browser session: %w", err)
	}
	if err := c.navigate(browserCtx, c.cfg.BaseURL); err != nil {
		return nil, err
	}
	err = c.policy.Do(browserCtx, "select location", func(ctx context.Context) error {
		return c.selectLocation(ctx, target)
	})
	if err != nil {
		c.capture(browserCtx, target.StoreName, "location", err)
		return nil, err
	}

	var records []pricing.ScrapedPrice
	failedCategories := 0
	for i, category := range categories {
		if i > 0 {
			c.pause(browserCtx)
		}
		var categoryRecords []pricing.ScrapedPrice
		err := c.policy.Do(browserCtx, "scrape "+category, func(ctx context.Context) error {
			var scrapeErr error
			categoryRecords, scrapeErr = c.scrapeCategory(ctx, target, category)
			return scrapeErr
		})
		if err != nil {
			failedCategories++
			c.capture(browserCtx, target.StoreName, category, err)
			c.logger.Warn("category scrape failed",
				zap.String("store", target.StoreName),
				zap.String("category", category),
				zap.Error(err),
			)
			continue
		}
		if c.cfg.CaptureCart && len(categoryRecords) > 0 {
			categoryRecords[0].CartPrice = c.captureCartPrice(browserCtx, target, category)
		}
		records = append(records, categoryRecords...)
	}
	if failedCategories == len(categories) {
		return nil, fmt.Errorf("store %q: all %d categories failed", target.StoreName, len(categories))
	}
	return records, nil
}

// pause sleeps a randomized 200-700ms between category pages so the session
// paces like a person browsing rather than a tight loop.
func (c *Crawler) pause(ctx context.Context) {
	select {
	case <-time.After(pauseDuration()):
	case <-ctx.Done():
	}
}

const (
	pauseBase   = 200 * time.Millisecond
	pauseJitter = 500 * time.Millisecond
)

func pauseDuration() time.Duration {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		return pauseBase
	}
	v := int64(buf[0])<<8 | int64(buf[1])
	return pauseBase + time.Duration(v)*pauseJitter/(1<<16)
}

func (c *Crawler) capture(browserCtx context.Context, store, category string, cause error) {
	if c.recorder == nil {
		return
	}
	captureCtx, cancel := context.WithTimeout(context.Background(), c.cfg.StepTimeout)
	defer cancel()
	c.recorder.Capture(captureCtx, browserCtx, store, category, cause)
}
