package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"studyplan/backend/internal/clock"
	apperrors "studyplan/backend/internal/errors"
	"studyplan/backend/internal/metrics"
	"studyplan/backend/internal/model"
	"studyplan/backend/internal/timer"
)

type SessionStore interface {
	FindOpenSession(ctx context.Context, userID, subjectID string) (*model.Session, error)
	Create(ctx context.Context, userID, subjectID string, sessionType model.SessionType, plannedDurationSeconds int, now time.Time) (*model.Session, error)
	TransitionToPaused(ctx context.Context, session *model.Session, remainingSeconds int, now time.Time) (*model.Session, error)
	TransitionToActive(ctx context.Context, session *model.Session, now time.Time) (*model.Session, error)
	Complete(ctx context.Context, session *model.Session, finalRemainingSeconds int, now time.Time) (*model.Session, bool, error)
	Cancel(ctx context.Context, session *model.Session, finalRemainingSeconds int, now time.Time) (*model.Session, bool, error)
}

// Policy holds the product decisions of the session lifecycle.
type Policy struct {
	// StaleAfter is how long an active interval may run before reconciliation treats the
	// session as abandoned.
	StaleAfter             time.Duration
	DefaultDurationSeconds int
	MaxDurationMinutes     int
}

func DefaultPolicy() Policy {
	return Policy{
		StaleAfter:             4 * time.Hour,
		DefaultDurationSeconds: model.DefaultFocusDurationSeconds,
		MaxDurationMinutes:     180,
	}
}

type StartInput struct {
	SubjectID       string            `json:"subjectId" validate:"required,max=64"`
	SessionType     model.SessionType `json:"sessionType" validate:"required,oneof=focus short_break long_break"`
	DurationMinutes int               `json:"durationMinutes" validate:"required,min=1"`
}

// LoadResult describes what reconciliation found in the store.
type LoadResult struct {
	Snapshot timer.Snapshot
	// Resumed is set when an open session was adopted as the current one.
	Resumed bool
	// Completed is a session that ran out while no tab was watching it.
	Completed *model.Session
	// Reclaimed is an abandoned session that was force-completed.
	Reclaimed *model.Session
	// Notice is ErrStaleSessionReclaimed when Reclaimed is set.
	Notice error
}

// SessionController owns the session state machine for one user as seen from one tab.
// It caches the last confirmed session but never treats the cache as authoritative: every
// mutation is a conditional write against the store, and the cache only changes after the
// store confirms.
type SessionController struct {
	userID string
	store  SessionStore
	stats  CompletionRecorder
	engine *timer.Engine
	policy Policy

	// inflight makes mutating operations single-flight.
	inflight sync.Mutex

	mu      sync.RWMutex
	current *model.Session
}

func NewSessionController(
	userID string,
	store SessionStore,
	stats CompletionRecorder,
	c clock.Clock,
	policy Policy,
) *SessionController {
	return &SessionController{
		userID: userID,
		store:  store,
		stats:  stats,
		engine: timer.NewEngine(c, policy.DefaultDurationSeconds),
		policy: policy,
	}
}

// Current returns a copy of the cached open session, or nil.
func (c *SessionController) Current() *model.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Clone()
}

// Snapshot recomputes the timer view from the cached session at the current instant.
func (c *SessionController) Snapshot() timer.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine.Snapshot(c.current)
}

// LoadActiveSession rebuilds the controller from the store. It is run on every tab
// initialization.
func (c *SessionController) LoadActiveSession(ctx context.Context) (LoadResult, error) {
	release, err := c.begin("load")
	if err != nil {
		return LoadResult{Snapshot: c.Snapshot()}, err
	}
	defer release()

	session, err := c.store.FindOpenSession(ctx, c.userID, "")
	if errors.Is(err, apperrors.ErrNotFound) {
		c.setCurrent(nil)
		return LoadResult{Snapshot: c.engine.Snapshot(nil)}, nil
	}
	if err != nil {
		return LoadResult{Snapshot: c.Snapshot()}, c.storeFailure("load", err)
	}

	now := c.engine.Now()
	switch {
	case c.isStale(session, now):
		reclaimed, err := c.reclaim(ctx, session, now)
		if err != nil {
			return LoadResult{Snapshot: c.Snapshot()}, err
		}
		return LoadResult{
			Snapshot:  c.engine.Snapshot(nil),
			Reclaimed: reclaimed,
			Notice:    apperrors.ErrStaleSessionReclaimed,
		}, nil
	case timer.Compute(session, now, c.policy.DefaultDurationSeconds).Expired:
		c.setCurrent(session)
		snap, finished, err := c.finish(ctx, "end", session, 0, now)
		if err != nil {
			return LoadResult{Snapshot: snap}, err
		}
		return LoadResult{Snapshot: snap, Completed: finished}, nil
	}

	c.setCurrent(session)
	log.Debug().
		Str("user_id", c.userID).
		Str("session_id", session.ID).
		Str("status", string(session.Status)).
		Msg("open session resumed from store")
	return LoadResult{
		Snapshot: timer.Compute(session, now, c.policy.DefaultDurationSeconds),
		Resumed:  true,
	}, nil
}

// StartSession closes whatever session the user has open, on any subject, and starts a
// new one. The last start wins.
func (c *SessionController) StartSession(ctx context.Context, input StartInput) (timer.Snapshot, error) {
	if err := validateInput(input); err != nil {
		return c.Snapshot(), err
	}
	if input.DurationMinutes > c.policy.MaxDurationMinutes {
		return c.Snapshot(), fmt.Errorf("%w: DurationMinutes must be at most %d", apperrors.ErrInvalidInput, c.policy.MaxDurationMinutes)
	}
	if time.Duration(input.DurationMinutes)*time.Minute >= c.policy.StaleAfter {
		return c.Snapshot(), fmt.Errorf("%w: DurationMinutes must be shorter than the staleness threshold", apperrors.ErrInvalidInput)
	}

	release, err := c.begin("start")
	if err != nil {
		return c.Snapshot(), err
	}
	defer release()

	return c.start(ctx, input.SubjectID, input.SessionType, input.DurationMinutes*60)
}

// PauseSession freezes the current session at the remaining time observed now.
func (c *SessionController) PauseSession(ctx context.Context) (timer.Snapshot, error) {
	release, err := c.begin("pause")
	if err != nil {
		return c.Snapshot(), err
	}
	defer release()

	session := c.Current()
	if session == nil {
		return c.engine.Snapshot(nil), nil
	}

	now := c.engine.Now()
	snap := timer.Compute(session, now, c.policy.DefaultDurationSeconds)
	if snap.Expired {
		snap, _, err = c.finish(ctx, "end", session, 0, now)
		return snap, err
	}
	if !model.CanTransition(session.Status, model.StatusPaused) {
		return snap, c.reject("pause", session)
	}

	updated, err := c.store.TransitionToPaused(ctx, session, snap.RemainingSeconds, now)
	if err != nil {
		return c.Snapshot(), c.writeFailed(ctx, "pause", err)
	}
	c.setCurrent(updated)
	c.confirmed("pause", updated)
	return timer.Compute(updated, now, c.policy.DefaultDurationSeconds), nil
}

// ResumeSession re-anchors the paused session's running interval at now.
func (c *SessionController) ResumeSession(ctx context.Context) (timer.Snapshot, error) {
	release, err := c.begin("resume")
	if err != nil {
		return c.Snapshot(), err
	}
	defer release()

	session := c.Current()
	if session == nil {
		return c.engine.Snapshot(nil), nil
	}

	now := c.engine.Now()
	snap := timer.Compute(session, now, c.policy.DefaultDurationSeconds)
	if !model.CanTransition(session.Status, model.StatusActive) {
		return snap, c.reject("resume", session)
	}

	updated, err := c.store.TransitionToActive(ctx, session, now)
	if err != nil {
		return c.Snapshot(), c.writeFailed(ctx, "resume", err)
	}
	c.setCurrent(updated)
	c.confirmed("resume", updated)
	return timer.Compute(updated, now, c.policy.DefaultDurationSeconds), nil
}

// EndSession completes the current session. Actual duration is planned minus the final
// remaining time, so pause gaps are never counted.
func (c *SessionController) EndSession(ctx context.Context) (timer.Snapshot, error) {
	release, err := c.begin("end")
	if err != nil {
		return c.Snapshot(), err
	}
	defer release()

	session := c.Current()
	if session == nil {
		return c.engine.Snapshot(nil), nil
	}

	now := c.engine.Now()
	snap := timer.Compute(session, now, c.policy.DefaultDurationSeconds)
	snap, _, err = c.finish(ctx, "end", session, snap.RemainingSeconds, now)
	return snap, err
}

// CancelSession abandons the current session without feeding statistics.
func (c *SessionController) CancelSession(ctx context.Context) (timer.Snapshot, error) {
	release, err := c.begin("cancel")
	if err != nil {
		return c.Snapshot(), err
	}
	defer release()

	session := c.Current()
	if session == nil {
		return c.engine.Snapshot(nil), nil
	}

	now := c.engine.Now()
	snap := timer.Compute(session, now, c.policy.DefaultDurationSeconds)
	snap, _, err = c.finish(ctx, "cancel", session, snap.RemainingSeconds, now)
	return snap, err
}

// ResetSession ends the current session and immediately starts an identical one.
func (c *SessionController) ResetSession(ctx context.Context) (timer.Snapshot, error) {
	release, err := c.begin("reset")
	if err != nil {
		return c.Snapshot(), err
	}
	defer release()

	session := c.Current()
	if session == nil {
		return c.engine.Snapshot(nil), nil
	}

	now := c.engine.Now()
	snap := timer.Compute(session, now, c.policy.DefaultDurationSeconds)
	if snap, _, err = c.finish(ctx, "end", session, snap.RemainingSeconds, now); err != nil {
		return snap, err
	}
	return c.start(ctx, session.SubjectID, session.SessionType, session.PlannedDurationSeconds)
}

// Tick recomputes the view and completes the session once its time has run out. A tick
// that arrives while another operation is in flight only reports the current view.
func (c *SessionController) Tick(ctx context.Context) (timer.Snapshot, error) {
	if !c.inflight.TryLock() {
		return c.Snapshot(), nil
	}
	defer c.inflight.Unlock()

	session := c.Current()
	now := c.engine.Now()
	snap := timer.Compute(session, now, c.policy.DefaultDurationSeconds)
	if session == nil || !snap.Expired {
		return snap, nil
	}
	snap, _, err := c.finish(ctx, "end", session, 0, now)
	return snap, err
}

func (c *SessionController) start(
	ctx context.Context,
	subjectID string,
	sessionType model.SessionType,
	plannedSeconds int,
) (timer.Snapshot, error) {
	// A second tab may open a session between close and create; one more round settles it.
	for attempt := 0; attempt < 2; attempt++ {
		if err := c.closeOpen(ctx); err != nil {
			return c.Snapshot(), err
		}

		now := c.engine.Now()
		session, err := c.store.Create(ctx, c.userID, subjectID, sessionType, plannedSeconds, now)
		if errors.Is(err, apperrors.ErrConflict) {
			log.Warn().Str("user_id", c.userID).Int("attempt", attempt+1).Msg("open session appeared while starting")
			continue
		}
		if err != nil {
			return c.Snapshot(), c.storeFailure("start", err)
		}

		c.setCurrent(session)
		c.confirmed("start", session)
		return timer.Compute(session, now, c.policy.DefaultDurationSeconds), nil
	}
	return c.Snapshot(), fmt.Errorf("start session: %w", apperrors.ErrConflict)
}

// closeOpen ends the user's open session, if any, as the implicit cancel of a new start.
// Sessions that already ran out or were abandoned are settled the way reconciliation
// would settle them.
func (c *SessionController) closeOpen(ctx context.Context) error {
	open, err := c.store.FindOpenSession(ctx, c.userID, "")
	if errors.Is(err, apperrors.ErrNotFound) {
		c.setCurrent(nil)
		return nil
	}
	if err != nil {
		return c.storeFailure("start", err)
	}

	now := c.engine.Now()
	if c.isStale(open, now) {
		_, err := c.reclaim(ctx, open, now)
		return err
	}

	snap := timer.Compute(open, now, c.policy.DefaultDurationSeconds)
	op, remaining := "cancel", snap.RemainingSeconds
	if snap.Expired {
		op, remaining = "end", 0
	}
	_, _, err = c.finish(ctx, op, open, remaining, now)
	return err
}

// finish runs a terminal transition. Only the caller whose write applied feeds
// statistics, so duplicate ends from several tabs count once. After an applied write a
// failed roll-up is logged and not returned: the session has ended either way.
func (c *SessionController) finish(
	ctx context.Context,
	op string,
	session *model.Session,
	remaining int,
	now time.Time,
) (timer.Snapshot, *model.Session, error) {
	target := model.StatusCompleted
	if op == "cancel" {
		target = model.StatusCanceled
	}
	if !model.CanTransition(session.Status, target) {
		return timer.Compute(session, now, c.policy.DefaultDurationSeconds), nil, c.reject(op, session)
	}

	var (
		finished *model.Session
		applied  bool
		err      error
	)
	if target == model.StatusCanceled {
		finished, applied, err = c.store.Cancel(ctx, session, remaining, now)
	} else {
		finished, applied, err = c.store.Complete(ctx, session, remaining, now)
	}
	if err != nil {
		return c.Snapshot(), nil, c.writeFailed(ctx, op, err)
	}

	c.clearIf(session.ID)
	snap := timer.Compute(finished, now, c.policy.DefaultDurationSeconds)
	if !applied {
		log.Debug().Str("user_id", c.userID).Str("session_id", session.ID).Msg("session already ended elsewhere")
		return snap, finished, nil
	}
	c.confirmed(op, finished)

	if finished.Status == model.StatusCompleted && finished.SessionType == model.SessionTypeFocus && c.stats != nil {
		if err := c.stats.RecordCompletion(ctx, c.userID, finished.SubjectID, finished.ActualDurationSeconds); err != nil {
			metrics.StoreErrorsTotal.WithLabelValues("record_statistics").Inc()
			log.Error().
				Err(err).
				Str("user_id", c.userID).
				Str("session_id", finished.ID).
				Int("actual_duration_seconds", finished.ActualDurationSeconds).
				Msg("failed to record completion")
		}
	}
	return snap, finished, nil
}

// reclaim force-completes an abandoned session with its last stored remaining time.
// Its real focus time is unknown, so it is not counted in statistics.
func (c *SessionController) reclaim(ctx context.Context, session *model.Session, now time.Time) (*model.Session, error) {
	reclaimed, applied, err := c.store.Complete(ctx, session, session.RemainingSeconds, now)
	if err != nil {
		return nil, c.storeFailure("reclaim", err)
	}
	c.clearIf(session.ID)
	if applied {
		metrics.StaleSessionsReclaimedTotal.Inc()
		log.Info().
			Str("user_id", c.userID).
			Str("session_id", session.ID).
			Time("started_at", session.StartedAt).
			Msg("stale session reclaimed")
	}
	return reclaimed, nil
}

func (c *SessionController) isStale(session *model.Session, now time.Time) bool {
	return session.Status == model.StatusActive && now.Sub(session.StartedAt) >= c.policy.StaleAfter
}

func (c *SessionController) begin(op string) (func(), error) {
	if !c.inflight.TryLock() {
		metrics.RejectedOperationsTotal.WithLabelValues(op, "in_flight").Inc()
		return nil, fmt.Errorf("%s session: %w", op, apperrors.ErrOperationInFlight)
	}
	return c.inflight.Unlock, nil
}

func (c *SessionController) reject(op string, session *model.Session) error {
	metrics.RejectedOperationsTotal.WithLabelValues(op, "invalid_transition").Inc()
	log.Warn().
		Str("user_id", c.userID).
		Str("session_id", session.ID).
		Str("status", string(session.Status)).
		Msgf("%s ignored", op)
	return fmt.Errorf("%s session from %s: %w", op, session.Status, apperrors.ErrInvalidTransition)
}

// writeFailed classifies a failed conditional write. When another tab moved the session
// first, the cache is refreshed from the store before the error is returned.
func (c *SessionController) writeFailed(ctx context.Context, op string, err error) error {
	if errors.Is(err, apperrors.ErrInvalidTransition) || errors.Is(err, apperrors.ErrNotFound) {
		metrics.RejectedOperationsTotal.WithLabelValues(op, "invalid_transition").Inc()
		log.Warn().Err(err).Str("user_id", c.userID).Msgf("%s lost a race, refreshing from store", op)
		c.refresh(ctx)
		return err
	}
	return c.storeFailure(op, err)
}

func (c *SessionController) storeFailure(op string, err error) error {
	if errors.Is(err, apperrors.ErrStoreUnavailable) {
		metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
		log.Error().Err(err).Str("user_id", c.userID).Msgf("%s failed: store unavailable", op)
	}
	return err
}

func (c *SessionController) refresh(ctx context.Context) {
	session, err := c.store.FindOpenSession(ctx, c.userID, "")
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.setCurrent(nil)
	case err != nil:
		log.Warn().Err(err).Str("user_id", c.userID).Msg("refresh after rejected write failed")
	default:
		c.setCurrent(session)
	}
}

func (c *SessionController) confirmed(op string, session *model.Session) {
	metrics.SessionTransitionsTotal.WithLabelValues(op).Inc()
	log.Info().
		Str("user_id", c.userID).
		Str("session_id", session.ID).
		Str("subject_id", session.SubjectID).
		Str("status", string(session.Status)).
		Int("remaining_seconds", session.RemainingSeconds).
		Msgf("session %s", op)
}

func (c *SessionController) setCurrent(session *model.Session) {
	c.mu.Lock()
	c.current = session.Clone()
	c.mu.Unlock()
}

func (c *SessionController) clearIf(id string) {
	c.mu.Lock()
	if c.current != nil && c.current.ID == id {
		c.current = nil
	}
	c.mu.Unlock()
}
