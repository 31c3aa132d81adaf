// Package jobs owns the validation job lifecycle: creation under admission
// limits, per-group crawl accounting, milestone emission, and retention of
// finished jobs.
package jobs

import (
	"time"

	"github.com/storefrontlabs/pricewatch/internal/reconcile"
)

// Status is the lifecycle state of a validation job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
)

// Terminal reports whether the status admits no further transitions except
// the reconciliation annotation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Request narrows what a submitted job covers. Empty slices mean every
// configured province and category.
type Request struct {
	Provinces  []string `json:"provinces,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// GroupSpec declares one pricing-level group: its code, the display name
// shown on milestones, and how many locations it contains. Jobs are created
// from a set of these.
type GroupSpec struct {
	Code  string
	Name  string
	Total int
}

// GroupProgress is the crawl tally for one pricing-level group.
type GroupProgress struct {
	Code      string `json:"code"`
	Name      string `json:"name,omitempty"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`

	milestoned bool
}

// Done reports whether every location in the group has been accounted for.
func (g GroupProgress) Done() bool {
	return g.Total > 0 && g.Completed >= g.Total
}

// Milestone marks the completion of one pricing-level group. Seq is a
// monotonically increasing per-job sequence number used as a delivery cursor.
type Milestone struct {
	Seq       int       `json:"seq"`
	GroupCode string    `json:"group_code"`
	GroupName string    `json:"group_name,omitempty"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Total     int       `json:"total"`
	TS        time.Time `json:"ts"`
}

// Snapshot is an immutable copy of a job's state safe to hand to callers.
type Snapshot struct {
	ID         string             `json:"id"`
	Status     Status             `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	StartedAt  time.Time          `json:"started_at,omitzero"`
	FinishedAt time.Time          `json:"finished_at,omitzero"`
	Groups     []GroupProgress    `json:"groups"`
	Completed  int                `json:"completed"`
	Succeeded  int                `json:"succeeded"`
	Failed     int                `json:"failed"`
	Total      int                `json:"total"`
	Progress   float64            `json:"progress"`
	ReportURI  string             `json:"report_uri,omitempty"`
	Summary    *reconcile.Summary `json:"summary,omitempty"`
	Note       string             `json:"note,omitempty"`
}

type job struct {
	id         string
	status     Status
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	groups     map[string]*GroupProgress
	milestones []Milestone
	reportURI  string
	summary    *reconcile.Summary
	note       string
}
