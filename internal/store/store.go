// Package store persists finished validation runs for later querying.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/storefrontlabs/pricewatch/internal/jobs"
	"github.com/storefrontlabs/pricewatch/internal/reconcile"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("validation run not found")

// ValidationRun is the persisted record of one finished job.
type ValidationRun struct {
	ID              string
	Status          jobs.Status
	StartedAt       time.Time
	FinishedAt      time.Time
	ReportURI       string
	Total           int
	Passed          int
	Failed          int
	MissingActual   int
	MissingExpected int
	PassRate        string
}

// Repository stores validation runs and their per-product rows.
type Repository interface {
	SaveRun(ctx context.Context, run ValidationRun, rows []reconcile.Row) error
	GetRun(ctx context.Context, id string) (ValidationRun, error)
	ListRuns(ctx context.Context, limit int) ([]ValidationRun, error)
}

// RunRecorder adapts a Repository to the runner's persistence hook.
type RunRecorder struct {
	repo Repository
}

// NewRunRecorder wraps a repository.
func NewRunRecorder(repo Repository) *RunRecorder {
	return &RunRecorder{repo: repo}
}

// RecordRun flattens a finished job snapshot and its report into one
// ValidationRun plus row records.
func (r *RunRecorder) RecordRun(ctx context.Context, snap jobs.Snapshot, report reconcile.Report) error {
	run := ValidationRun{
		ID:         snap.ID,
		Status:     snap.Status,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.FinishedAt,
		ReportURI:  snap.ReportURI,
	}
	run.Total = report.Summary.Total
	run.Passed = report.Summary.Passed
	run.Failed = report.Summary.Failed
	run.MissingActual = report.Summary.MissingActual
	run.MissingExpected = report.Summary.MissingExpected
	run.PassRate = report.Summary.PassRate
	return r.repo.SaveRun(ctx, run, report.Rows)
}
