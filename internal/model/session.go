package model

import "time"

type SessionType string

const (
	SessionTypeFocus      SessionType = "focus"
	SessionTypeShortBreak SessionType = "short_break"
	SessionTypeLongBreak  SessionType = "long_break"
)

func (t SessionType) Valid() bool {
	return t == SessionTypeFocus || t == SessionTypeShortBreak || t == SessionTypeLongBreak
}

type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusCanceled  SessionStatus = "canceled"
)

// Open reports whether the session still occupies the user's single open slot.
func (s SessionStatus) Open() bool {
	return s == StatusActive || s == StatusPaused
}

func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

var transitions = map[SessionStatus][]SessionStatus{
	StatusActive: {StatusPaused, StatusCompleted, StatusCanceled},
	StatusPaused: {StatusActive, StatusCompleted, StatusCanceled},
}

// CanTransition reports whether from -> to is a legal edge of the session state machine.
// Terminal states have no outgoing edges.
func CanTransition(from, to SessionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

const (
	DefaultFocusDurationSeconds      = 25 * 60
	DefaultShortBreakDurationSeconds = 5 * 60
	DefaultLongBreakDurationSeconds  = 15 * 60
)

// Session is one timed interval of study or break for a subject.
//
// While active, RemainingSeconds is the remaining time at the instant StartedAt was
// anchored (creation or last resume); the live value is derived by the timer package.
// While paused it is authoritative.
type Session struct {
	ID                     string        `json:"id"`
	UserID                 string        `json:"userId"`
	SubjectID              string        `json:"subjectId"`
	SessionType            SessionType   `json:"sessionType"`
	PlannedDurationSeconds int           `json:"plannedDurationSeconds"`
	StartedAt              time.Time     `json:"startedAt"`
	PausedAt               *time.Time    `json:"pausedAt,omitempty"`
	RemainingSeconds       int           `json:"remainingSeconds"`
	Status                 SessionStatus `json:"status"`
	EndedAt                *time.Time    `json:"endedAt,omitempty"`
	ActualDurationSeconds  int           `json:"actualDurationSeconds"`
	CreatedAt              time.Time     `json:"createdAt"`
	UpdatedAt              time.Time     `json:"updatedAt"`
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.PausedAt != nil {
		t := *s.PausedAt
		c.PausedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}
