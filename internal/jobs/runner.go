package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/storefrontlabs/pricewatch/internal/pricing"
	"github.com/storefrontlabs/pricewatch/internal/progress"
	"github.com/storefrontlabs/pricewatch/internal/reconcile"
)

// Crawler fetches the menu prices visible at one store location.
type Crawler interface {
	CrawlLocation(ctx context.Context, target pricing.LocationTarget, categories []string) ([]pricing.ScrapedPrice, error)
}

// Reconciler joins scraped prices against the expected table.
type Reconciler interface {
	Reconcile(expected []pricing.ExpectedPrice, scraped []pricing.ScrapedPrice) (reconcile.Report, error)
}

// ReportWriter persists a finished report and returns its URI.
type ReportWriter interface {
	Write(ctx context.Context, jobID string, report reconcile.Report) (string, error)
}

// Recorder stores a finished run for later querying. Optional; a nil
// Recorder disables persistence.
type Recorder interface {
	RecordRun(ctx context.Context, snap Snapshot, report reconcile.Report) error
}

// Runner drives one validation job end to end: fan out the crawl per
// location, fold progress into the Store, reconcile, and persist the report.
type Runner struct {
	store      *Store
	crawler    Crawler
	reconciler Reconciler
	reports    ReportWriter
	recorder   Recorder
	hub        *progress.Hub
	clock      Clock
	logger     *zap.Logger
}

// RunnerDeps collects the runner's collaborators.
type RunnerDeps struct {
	Store      *Store
	Crawler    Crawler
	Reconciler Reconciler
	Reports    ReportWriter
	Recorder   Recorder
	Hub        *progress.Hub
	Clock      Clock
	Logger     *zap.Logger
}

// NewRunner wires a Runner. Store, Crawler, Reconciler, Reports, and Clock
// are required; Recorder and Hub may be nil.
func NewRunner(deps RunnerDeps) (*Runner, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("new runner: store is required")
	case deps.Crawler == nil:
		return nil, fmt.Errorf("new runner: crawler is required")
	case deps.Reconciler == nil:
		return nil, fmt.Errorf("new runner: reconciler is required")
	case deps.Reports == nil:
		return nil, fmt.Errorf("new runner: report writer is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("new runner: clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:      deps.Store,
		crawler:    deps.Crawler,
		reconciler: deps.Reconciler,
		reports:    deps.Reports,
		recorder:   deps.Recorder,
		hub:        deps.Hub,
		clock:      deps.Clock,
		logger:     logger,
	}, nil
}

// Run executes the job with the given id over the provided locations. The
// crawler bounds its own concurrency; the runner only fans out and folds
// results back in. Location failures are isolated: one broken store never
// aborts the job, it just shows up in the failure counts.
func (r *Runner) Run(ctx context.Context, jobID string, locations []pricing.LocationTarget, categories []string, expected []pricing.ExpectedPrice) error {
	snap, err := r.store.MarkRunning(ctx, jobID)
	if err != nil {
		return fmt.Errorf("run job %s: %w", jobID, err)
	}
	started := r.clock.Now()
	r.emit(progress.Event{JobID: jobID, TS: started, Stage: progress.StageJobStart, Total: snap.Total})

	var (
		mu      sync.Mutex
		scraped []pricing.ScrapedPrice
		wg      sync.WaitGroup
	)
	for _, loc := range locations {
		wg.Add(1)
		go func(loc pricing.LocationTarget) {
			defer wg.Done()
			records, crawlErr := r.crawler.CrawlLocation(ctx, loc, categories)
			if crawlErr != nil {
				r.logger.Warn("location crawl failed",
					zap.String("job_id", jobID),
					zap.String("store", loc.StoreName),
					zap.String("group", loc.GroupCode()),
					zap.Error(crawlErr),
				)
			} else {
				mu.Lock()
				scraped = append(scraped, records...)
				mu.Unlock()
			}
			r.recordLocation(ctx, jobID, loc, crawlErr == nil)
		}(loc)
	}
	wg.Wait()

	if ctx.Err() != nil {
		note := fmt.Sprintf("crawl aborted: %v", ctx.Err())
		if _, markErr := r.store.MarkError(ctx, jobID, note); markErr != nil {
			r.logger.Warn("mark job error failed", zap.String("job_id", jobID), zap.Error(markErr))
		}
		r.emit(progress.Event{JobID: jobID, TS: r.clock.Now(), Stage: progress.StageJobError, Note: note, Dur: r.clock.Now().Sub(started)})
		return fmt.Errorf("run job %s: %w", jobID, ctx.Err())
	}

	report, err := r.reconciler.Reconcile(expected, scraped)
	if err != nil {
		return r.failResult(ctx, jobID, started, fmt.Errorf("reconcile: %w", err))
	}
	uri, err := r.reports.Write(ctx, jobID, report)
	if err != nil {
		return r.failResult(ctx, jobID, started, fmt.Errorf("write report: %w", err))
	}
	final, err := r.store.AttachResult(ctx, jobID, uri, &report.Summary, nil)
	if err != nil {
		return fmt.Errorf("run job %s: attach result: %w", jobID, err)
	}
	if r.recorder != nil {
		if recErr := r.recorder.RecordRun(ctx, final, report); recErr != nil {
			r.logger.Warn("record run failed", zap.String("job_id", jobID), zap.Error(recErr))
		}
	}
	r.emit(progress.Event{
		JobID:     jobID,
		TS:        r.clock.Now(),
		Stage:     progress.StageJobDone,
		Succeeded: final.Succeeded,
		Failed:    final.Failed,
		Total:     final.Total,
		Dur:       r.clock.Now().Sub(started),
	})
	return nil
}

func (r *Runner) recordLocation(ctx context.Context, jobID string, loc pricing.LocationTarget, succeeded bool) {
	snap, milestone, _, err := r.store.RecordLocationDone(ctx, jobID, loc.GroupCode(), succeeded)
	if err != nil {
		r.logger.Warn("record location failed",
			zap.String("job_id", jobID),
			zap.String("group", loc.GroupCode()),
			zap.Error(err),
		)
		return
	}
	now := r.clock.Now()
	r.emit(progress.Event{
		JobID:     jobID,
		TS:        now,
		Stage:     progress.StageLocationDone,
		Group:     loc.GroupCode(),
		Province:  loc.Province,
		StoreName: loc.StoreName,
		Succeeded: snap.Succeeded,
		Failed:    snap.Failed,
		Total:     snap.Total,
	})
	if milestone != nil {
		r.emit(progress.Event{
			JobID:     jobID,
			TS:        milestone.TS,
			Stage:     progress.StageGroupDone,
			Group:     milestone.GroupCode,
			GroupName: milestone.GroupName,
			Succeeded: milestone.Succeeded,
			Failed:    milestone.Failed,
			Total:     milestone.Total,
		})
	}
}

func (r *Runner) failResult(ctx context.Context, jobID string, started time.Time, cause error) error {
	if _, attachErr := r.store.AttachResult(ctx, jobID, "", nil, cause); attachErr != nil {
		r.logger.Warn("attach failed result", zap.String("job_id", jobID), zap.Error(attachErr))
	}
	r.emit(progress.Event{
		JobID: jobID,
		TS:    r.clock.Now(),
		Stage: progress.StageJobError,
		Note:  cause.Error(),
		Dur:   r.clock.Now().Sub(started),
	})
	return fmt.Errorf("run job %s: %w", jobID, cause)
}

func (r *Runner) emit(evt progress.Event) {
	if r.hub == nil {
		return
	}
	r.hub.Emit(evt)
}
