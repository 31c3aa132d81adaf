// Package progress defines the event stream emitted by the job runner and
// the hub that fans it out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the lifecycle point an Event represents.
type Stage string

// Supported progress stages.
const (
	StageJobStart     Stage = "JOB_START"
	StageLocationDone Stage = "LOCATION_DONE"
	StageGroupDone    Stage = "GROUP_DONE"
	StageJobDone      Stage = "JOB_DONE"
	StageJobError     Stage = "JOB_ERROR"
)

// Boundary reports whether the stage marks a group or job boundary. The hub
// flushes these immediately so milestone subscribers are not left waiting out
// the batch window; per-location events batch normally.
func (s Stage) Boundary() bool {
	switch s {
	case StageGroupDone, StageJobDone, StageJobError:
		return true
	}
	return false
}

// Event captures one progress milestone for a validation job.
type Event struct {
	// JobID identifies the job run.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Group scopes group and location events to a pricing-level code.
	Group string
	// GroupName carries the display name for the group, when known.
	GroupName string
	// Province optionally scopes location events.
	Province string
	// StoreName optionally scopes location events.
	StoreName string
	// Succeeded, Failed and Total carry group counters for group events.
	Succeeded int
	Failed    int
	Total     int
	// Dur captures execution latency for location and job completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageLocationDone:
		if e.Group == "" {
			return errors.New("location done requires group")
		}
	case StageGroupDone:
		if e.Group == "" {
			return errors.New("group done requires group")
		}
		if e.Total <= 0 {
			return errors.New("group done requires total")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
