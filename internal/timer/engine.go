// Package timer derives the live view of a session from its stored timestamps.
//
// Nothing here accumulates ticks: every call recomputes from absolute time, so a late or
// skipped poll corrects itself on the next one.
package timer

import (
	"time"

	"studyplan/backend/internal/clock"
	"studyplan/backend/internal/model"
)

type Snapshot struct {
	Status                 model.SessionStatus `json:"status"`
	IsActive               bool                `json:"isActive"`
	IsPaused               bool                `json:"isPaused"`
	RemainingSeconds       int                 `json:"remainingSeconds"`
	ElapsedSeconds         int                 `json:"elapsedSeconds"`
	PlannedDurationSeconds int                 `json:"plannedDurationSeconds"`
	// Expired is set when an active session has no time left. Ending it is the caller's job.
	Expired bool `json:"-"`
}

// Compute returns the view of session at now. A nil session yields an idle snapshot
// sized to defaultSeconds.
func Compute(session *model.Session, now time.Time, defaultSeconds int) Snapshot {
	if session == nil {
		return Snapshot{RemainingSeconds: defaultSeconds, PlannedDurationSeconds: defaultSeconds}
	}

	planned := session.PlannedDurationSeconds
	switch session.Status {
	case model.StatusActive:
		sinceAnchor := wholeSeconds(now.Sub(session.StartedAt))
		anchor := clamp(session.RemainingSeconds, 0, planned)
		remaining := anchor - sinceAnchor
		if remaining < 0 {
			remaining = 0
		}
		return Snapshot{
			Status:                 model.StatusActive,
			IsActive:               true,
			RemainingSeconds:       remaining,
			ElapsedSeconds:         planned - anchor + sinceAnchor,
			PlannedDurationSeconds: planned,
			Expired:                remaining == 0,
		}
	case model.StatusPaused:
		remaining := clamp(session.RemainingSeconds, 0, planned)
		return Snapshot{
			Status:                 model.StatusPaused,
			IsActive:               true,
			IsPaused:               true,
			RemainingSeconds:       remaining,
			ElapsedSeconds:         planned - remaining,
			PlannedDurationSeconds: planned,
		}
	default:
		return Snapshot{
			Status:                 session.Status,
			RemainingSeconds:       planned,
			PlannedDurationSeconds: planned,
		}
	}
}

// Engine binds Compute to a clock.
type Engine struct {
	clock          clock.Clock
	defaultSeconds int
}

func NewEngine(c clock.Clock, defaultSeconds int) *Engine {
	return &Engine{clock: c, defaultSeconds: defaultSeconds}
}

func (e *Engine) Snapshot(session *model.Session) Snapshot {
	return Compute(session, e.clock.Now(), e.defaultSeconds)
}

func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// wholeSeconds floors d to seconds. A clock that reads earlier than the anchor counts as zero.
func wholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
