package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/storefrontlabs/pricewatch/internal/reconcile"
)

var (
	// ErrNotFound is returned when a job id is unknown or already swept.
	ErrNotFound = errors.New("job not found")
	// ErrJobLimit is returned when admission would exceed the active or
	// total job limits.
	ErrJobLimit = errors.New("job limit reached")
)

// Clock supplies the current time; swapped out in tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints job identifiers.
type IDGenerator interface {
	NewID() string
}

// StoreConfig bounds the in-memory job store.
//   - MaxActive: maximum PENDING plus RUNNING jobs (default 4).
//   - MaxTotal: maximum retained jobs including finished ones (default 100).
//   - Retention: how long terminal jobs stay visible before Sweep removes
//     them (default 24h).
type StoreConfig struct {
	MaxActive int
	MaxTotal  int
	Retention time.Duration
}

const (
	defaultMaxActive = 4
	defaultMaxTotal  = 100
	defaultRetention = 24 * time.Hour
)

// Store tracks validation jobs in memory. All methods are safe for
// concurrent use.
type Store struct {
	cfg   StoreConfig
	clock Clock
	ids   IDGenerator

	mu   sync.Mutex
	jobs map[string]*job
}

// NewStore builds a Store with defaults applied for zero config fields.
func NewStore(cfg StoreConfig, clock Clock, ids IDGenerator) *Store {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = defaultMaxActive
	}
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = defaultMaxTotal
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	return &Store{
		cfg:   cfg,
		clock: clock,
		ids:   ids,
		jobs:  make(map[string]*job),
	}
}

// Create admits a new PENDING job covering the given groups. Admission is
// checked before any state is created, so a rejected request leaves the
// store untouched.
func (s *Store) Create(_ context.Context, groups []GroupSpec) (Snapshot, error) {
	if len(groups) == 0 {
		return Snapshot{}, fmt.Errorf("create job: no location groups")
	}
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if g.Code == "" {
			return Snapshot{}, fmt.Errorf("create job: group with empty code")
		}
		if g.Total <= 0 {
			return Snapshot{}, fmt.Errorf("create job: group %q has no locations", g.Code)
		}
		if _, dup := seen[g.Code]; dup {
			return Snapshot{}, fmt.Errorf("create job: duplicate group %q", g.Code)
		}
		seen[g.Code] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.jobs) >= s.cfg.MaxTotal {
		return Snapshot{}, fmt.Errorf("%w: %d jobs retained", ErrJobLimit, len(s.jobs))
	}
	active := 0
	for _, j := range s.jobs {
		if !j.status.Terminal() {
			active++
		}
	}
	if active >= s.cfg.MaxActive {
		return Snapshot{}, fmt.Errorf("%w: %d jobs active", ErrJobLimit, active)
	}

	j := &job{
		id:        s.ids.NewID(),
		status:    StatusPending,
		createdAt: s.clock.Now(),
		groups:    make(map[string]*GroupProgress, len(groups)),
	}
	for _, g := range groups {
		j.groups[g.Code] = &GroupProgress{Code: g.Code, Name: g.Name, Total: g.Total}
	}
	s.jobs[j.id] = j
	return s.snapshotLocked(j), nil
}

// Get returns the current snapshot for the job.
func (s *Store) Get(_ context.Context, id string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return s.snapshotLocked(j), nil
}

// List returns snapshots of every retained job, newest first.
func (s *Store) List(_ context.Context) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, s.snapshotLocked(j))
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].ID < out[k].ID
	})
	return out
}

// MarkRunning transitions a PENDING job to RUNNING.
func (s *Store) MarkRunning(_ context.Context, id string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if j.status != StatusPending {
		return Snapshot{}, fmt.Errorf("job %s: cannot start from %s", id, j.status)
	}
	j.status = StatusRunning
	j.startedAt = s.clock.Now()
	return s.snapshotLocked(j), nil
}

// MarkError moves the job to ERROR with a note. Used for fatal failures
// before or during the crawl; terminal jobs are left unchanged.
func (s *Store) MarkError(_ context.Context, id, note string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if j.status.Terminal() {
		return s.snapshotLocked(j), nil
	}
	j.status = StatusError
	j.note = note
	j.finishedAt = s.clock.Now()
	return s.snapshotLocked(j), nil
}

// RecordLocationDone accounts one finished location crawl within the named
// group. When the tally completes the group, exactly one milestone is
// appended, regardless of how many goroutines report concurrently. The one
// exception is the final group of the job: its completion transitions the
// job to COMPLETED in the same critical section and the group milestone is
// suppressed in favour of the job-level completion.
//
// The returned milestone is nil unless this call completed a non-final
// group; jobDone is true only for the call that completed the job.
func (s *Store) RecordLocationDone(_ context.Context, id, groupCode string, succeeded bool) (Snapshot, *Milestone, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Snapshot{}, nil, false, ErrNotFound
	}
	if j.status != StatusRunning {
		return Snapshot{}, nil, false, fmt.Errorf("job %s: not running (%s)", id, j.status)
	}
	g, ok := j.groups[groupCode]
	if !ok {
		return Snapshot{}, nil, false, fmt.Errorf("job %s: unknown group %q", id, groupCode)
	}
	if g.Completed >= g.Total {
		return Snapshot{}, nil, false, fmt.Errorf("job %s: group %q already complete", id, groupCode)
	}

	g.Completed++
	if succeeded {
		g.Succeeded++
	} else {
		g.Failed++
	}

	var milestone *Milestone
	jobDone := false
	if g.Done() && !g.milestoned {
		g.milestoned = true
		if s.allGroupsDoneLocked(j) {
			jobDone = true
			j.status = StatusCompleted
			j.finishedAt = s.clock.Now()
		} else {
			m := Milestone{
				Seq:       len(j.milestones) + 1,
				GroupCode: g.Code,
				GroupName: g.Name,
				Succeeded: g.Succeeded,
				Failed:    g.Failed,
				Total:     g.Total,
				TS:        s.clock.Now(),
			}
			j.milestones = append(j.milestones, m)
			milestone = &m
		}
	}
	return s.snapshotLocked(j), milestone, jobDone, nil
}

// AttachResult records the reconciliation outcome on a finished job. A
// reconciliation failure demotes COMPLETED to ERROR; a success leaves the
// status alone and stores the report location and summary.
func (s *Store) AttachResult(_ context.Context, id, reportURI string, summary *reconcile.Summary, reconcileErr error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if !j.status.Terminal() {
		return Snapshot{}, fmt.Errorf("job %s: result attached before completion (%s)", id, j.status)
	}
	if reconcileErr != nil {
		j.status = StatusError
		j.note = reconcileErr.Error()
		return s.snapshotLocked(j), nil
	}
	j.reportURI = reportURI
	if summary != nil {
		cp := *summary
		j.summary = &cp
	}
	return s.snapshotLocked(j), nil
}

// MilestonesSince returns milestones with a sequence number greater than
// since, in order. Callers keep the highest Seq they have seen as their
// cursor, so repeated polls neither redeliver nor skip.
func (s *Store) MilestonesSince(_ context.Context, id string, since int) ([]Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if since < 0 {
		since = 0
	}
	if since >= len(j.milestones) {
		return nil, nil
	}
	out := make([]Milestone, len(j.milestones)-since)
	copy(out, j.milestones[since:])
	return out, nil
}

// Sweep removes terminal jobs whose finish time is older than the retention
// window and returns how many were removed. Active jobs are never swept.
func (s *Store) Sweep(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clock.Now().Add(-s.cfg.Retention)
	removed := 0
	for id, j := range s.jobs {
		if !j.status.Terminal() {
			continue
		}
		if j.finishedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

func (s *Store) allGroupsDoneLocked(j *job) bool {
	for _, g := range j.groups {
		if !g.Done() {
			return false
		}
	}
	return true
}

func (s *Store) snapshotLocked(j *job) Snapshot {
	snap := Snapshot{
		ID:         j.id,
		Status:     j.status,
		CreatedAt:  j.createdAt,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
		Groups:     make([]GroupProgress, 0, len(j.groups)),
		ReportURI:  j.reportURI,
		Note:       j.note,
	}
	for _, g := range j.groups {
		snap.Groups = append(snap.Groups, *g)
		snap.Completed += g.Completed
		snap.Succeeded += g.Succeeded
		snap.Failed += g.Failed
		snap.Total += g.Total
	}
	sort.Slice(snap.Groups, func(i, k int) bool { return snap.Groups[i].Code < snap.Groups[k].Code })
	if snap.Total > 0 {
		snap.Progress = float64(snap.Completed) / float64(snap.Total)
	}
	if j.summary != nil {
		cp := *j.summary
		snap.Summary = &cp
	}
	return snap
}
