package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"studyplan/backend/internal/clock"
	apperrors "studyplan/backend/internal/errors"
	"studyplan/backend/internal/model"
	"studyplan/backend/internal/timer"
)

const (
	NoticeStaleSessionReclaimed = "stale_session_reclaimed"
	NoticeSessionCompleted      = "session_completed"
	WarningInvalidTransition    = "invalid_transition"
)

type SessionHistory interface {
	ListSessions(ctx context.Context, userID string, limit int) ([]model.Session, error)
}

type SessionRecords interface {
	SessionStore
	SessionHistory
}

type SubjectCatalog interface {
	Name(ctx context.Context, userID, subjectID string) (string, error)
}

// SessionView is what the UI renders on every tick and after every operation.
type SessionView struct {
	SessionID              string              `json:"sessionId,omitempty"`
	SubjectID              string              `json:"subjectId,omitempty"`
	SubjectName            string              `json:"subjectName,omitempty"`
	SessionType            model.SessionType   `json:"sessionType,omitempty"`
	Status                 model.SessionStatus `json:"status,omitempty"`
	IsActive               bool                `json:"isActive"`
	IsPaused               bool                `json:"isPaused"`
	RemainingSeconds       int                 `json:"remainingSeconds"`
	ElapsedSeconds         int                 `json:"elapsedSeconds"`
	PlannedDurationSeconds int                 `json:"plannedDurationSeconds"`
	StartedAt              *time.Time          `json:"startedAt,omitempty"`
	PausedAt               *time.Time          `json:"pausedAt,omitempty"`
	ServerTime             time.Time           `json:"serverTime"`
	Notice                 string              `json:"notice,omitempty"`
	Warning                string              `json:"warning,omitempty"`
}

// SessionService serves lifecycle operations over HTTP. Each call behaves like a freshly
// opened tab: it reconciles against the store before acting.
type SessionService struct {
	sessions SessionRecords
	stats    *StatisticsService
	subjects SubjectCatalog
	clock    clock.Clock
	policy   Policy
}

func NewSessionService(
	sessions SessionRecords,
	stats *StatisticsService,
	subjects SubjectCatalog,
	c clock.Clock,
	policy Policy,
) *SessionService {
	return &SessionService{
		sessions: sessions,
		stats:    stats,
		subjects: subjects,
		clock:    c,
		policy:   policy,
	}
}

func (s *SessionService) Current(ctx context.Context, userID string) (*SessionView, *apperrors.APIError) {
	controller, loaded, apiErr := s.load(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	return s.view(ctx, controller, loaded.Snapshot, loaded), nil
}

func (s *SessionService) Start(ctx context.Context, userID string, input StartInput) (*SessionView, *apperrors.APIError) {
	return s.run(ctx, userID, "start", func(c *SessionController) (timer.Snapshot, error) {
		return c.StartSession(ctx, input)
	})
}

func (s *SessionService) Pause(ctx context.Context, userID string) (*SessionView, *apperrors.APIError) {
	return s.run(ctx, userID, "pause", func(c *SessionController) (timer.Snapshot, error) {
		return c.PauseSession(ctx)
	})
}

func (s *SessionService) Resume(ctx context.Context, userID string) (*SessionView, *apperrors.APIError) {
	return s.run(ctx, userID, "resume", func(c *SessionController) (timer.Snapshot, error) {
		return c.ResumeSession(ctx)
	})
}

func (s *SessionService) End(ctx context.Context, userID string) (*SessionView, *apperrors.APIError) {
	return s.run(ctx, userID, "end", func(c *SessionController) (timer.Snapshot, error) {
		return c.EndSession(ctx)
	})
}

func (s *SessionService) Cancel(ctx context.Context, userID string) (*SessionView, *apperrors.APIError) {
	return s.run(ctx, userID, "cancel", func(c *SessionController) (timer.Snapshot, error) {
		return c.CancelSession(ctx)
	})
}

func (s *SessionService) Reset(ctx context.Context, userID string) (*SessionView, *apperrors.APIError) {
	return s.run(ctx, userID, "reset", func(c *SessionController) (timer.Snapshot, error) {
		return c.ResetSession(ctx)
	})
}

func (s *SessionService) Tick(ctx context.Context, userID string) (*SessionView, *apperrors.APIError) {
	return s.run(ctx, userID, "tick", func(c *SessionController) (timer.Snapshot, error) {
		return c.Tick(ctx)
	})
}

func (s *SessionService) History(ctx context.Context, userID string, limit int) ([]model.Session, *apperrors.APIError) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	sessions, err := s.sessions.ListSessions(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.FromError(err, "failed to get history")
	}
	return sessions, nil
}

func (s *SessionService) Statistics(ctx context.Context, userID string) ([]model.SubjectStatistics, *apperrors.APIError) {
	items, err := s.stats.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.FromError(err, "failed to get statistics")
	}
	return items, nil
}

func (s *SessionService) run(
	ctx context.Context,
	userID, op string,
	fn func(c *SessionController) (timer.Snapshot, error),
) (*SessionView, *apperrors.APIError) {
	controller, loaded, apiErr := s.load(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}

	snap, err := fn(controller)
	if errors.Is(err, apperrors.ErrInvalidTransition) {
		view := s.view(ctx, controller, controller.Snapshot(), loaded)
		view.Warning = WarningInvalidTransition
		return view, nil
	}
	if err != nil {
		return nil, apperrors.FromError(err, "failed to "+op+" session")
	}
	if loaded.Completed != nil && snap.Status == "" {
		// Reconciliation already ended the session; report that rather than an idle timer.
		snap = loaded.Snapshot
	}
	return s.view(ctx, controller, snap, loaded), nil
}

func (s *SessionService) load(ctx context.Context, userID string) (*SessionController, LoadResult, *apperrors.APIError) {
	controller := NewSessionController(userID, s.sessions, s.stats, s.clock, s.policy)
	loaded, err := controller.LoadActiveSession(ctx)
	if err != nil {
		return nil, LoadResult{}, apperrors.FromError(err, "failed to load session")
	}
	return controller, loaded, nil
}

func (s *SessionService) view(ctx context.Context, controller *SessionController, snap timer.Snapshot, loaded LoadResult) *SessionView {
	view := &SessionView{
		Status:                 snap.Status,
		IsActive:               snap.IsActive,
		IsPaused:               snap.IsPaused,
		RemainingSeconds:       snap.RemainingSeconds,
		ElapsedSeconds:         snap.ElapsedSeconds,
		PlannedDurationSeconds: snap.PlannedDurationSeconds,
		ServerTime:             s.clock.Now(),
	}
	switch {
	case errors.Is(loaded.Notice, apperrors.ErrStaleSessionReclaimed):
		view.Notice = NoticeStaleSessionReclaimed
	case loaded.Completed != nil:
		view.Notice = NoticeSessionCompleted
	}

	session := controller.Current()
	if session == nil {
		return view
	}
	startedAt := session.StartedAt
	view.SessionID = session.ID
	view.SubjectID = session.SubjectID
	view.SessionType = session.SessionType
	view.StartedAt = &startedAt
	view.PausedAt = session.PausedAt

	if s.subjects != nil {
		name, err := s.subjects.Name(ctx, session.UserID, session.SubjectID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			log.Warn().Err(err).Str("subject_id", session.SubjectID).Msg("subject name lookup failed")
		}
		view.SubjectName = name
	}
	return view
}
