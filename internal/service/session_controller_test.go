package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"studyplan/backend/internal/clock"
	"studyplan/backend/internal/db/dbtest"
	apperrors "studyplan/backend/internal/errors"
	"studyplan/backend/internal/model"
	"studyplan/backend/internal/repository"
	"studyplan/backend/internal/service"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	clock    *clock.Manual
	sessions *repository.SessionRepository
	stats    *repository.StatisticsRepository
	recorder *service.StatisticsService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	database := dbtest.Open(t)
	clk := clock.NewManual(t0)
	stats := repository.NewStatisticsRepository(database)
	return &harness{
		clock:    clk,
		sessions: repository.NewSessionRepository(database),
		stats:    stats,
		recorder: service.NewStatisticsService(stats, clk),
	}
}

// tab opens a controller over store and reconciles it, like a page load.
func (h *harness) tab(t *testing.T, store service.SessionStore) *service.SessionController {
	t.Helper()
	if store == nil {
		store = h.sessions
	}
	c := service.NewSessionController("u1", store, h.recorder, h.clock, service.DefaultPolicy())
	if _, err := c.LoadActiveSession(context.Background()); err != nil {
		t.Fatalf("load active session: %v", err)
	}
	return c
}

func (h *harness) statsFor(t *testing.T, subjectID string) model.SubjectStatistics {
	t.Helper()
	stats, err := h.stats.Get(context.Background(), "u1", subjectID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return model.SubjectStatistics{}
	}
	if err != nil {
		t.Fatalf("get statistics: %v", err)
	}
	return *stats
}

func focus(subjectID string, minutes int) service.StartInput {
	return service.StartInput{SubjectID: subjectID, SessionType: model.SessionTypeFocus, DurationMinutes: minutes}
}

func TestPauseResumeRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.tab(t, nil)

	snap, err := c.StartSession(ctx, focus("math", 25))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.RemainingSeconds != 1500 || snap.ElapsedSeconds != 0 || !snap.IsActive {
		t.Fatalf("unexpected start snapshot %+v", snap)
	}

	h.clock.Advance(600 * time.Second)
	snap, err = c.PauseSession(ctx)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !snap.IsPaused || snap.RemainingSeconds != 900 {
		t.Fatalf("unexpected pause snapshot %+v", snap)
	}

	h.clock.Advance(7 * time.Hour)
	if got := c.Snapshot(); got.RemainingSeconds != 900 || got.ElapsedSeconds != 600 {
		t.Fatalf("paused session moved during gap: %+v", got)
	}

	snap, err = c.ResumeSession(ctx)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if snap.IsPaused || snap.RemainingSeconds != 900 || snap.ElapsedSeconds != 600 {
		t.Fatalf("unexpected resume snapshot %+v", snap)
	}
	if current := c.Current(); !current.StartedAt.Equal(h.clock.Now()) || current.PausedAt != nil {
		t.Fatalf("resume must re-anchor started_at: %+v", current)
	}

	h.clock.Advance(100 * time.Second)
	if got := c.Snapshot(); got.RemainingSeconds != 800 || got.ElapsedSeconds != 700 {
		t.Fatalf("unexpected snapshot after resume: %+v", got)
	}
}

func TestHappyPathAutoCompletes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.tab(t, nil)

	if _, err := c.StartSession(ctx, focus("7", 25)); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 5; i++ {
		h.clock.Advance(250 * time.Second)
		if _, err := c.Tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	h.clock.Set(t0.Add(1500 * time.Second))

	snap, err := c.Tick(ctx)
	if err != nil {
		t.Fatalf("final tick: %v", err)
	}
	if snap.Status != model.StatusCompleted || snap.IsActive {
		t.Fatalf("expected completed snapshot, got %+v", snap)
	}
	if c.Current() != nil {
		t.Fatal("current session must be cleared after completion")
	}

	stats := h.statsFor(t, "7")
	if stats.TotalFocusSeconds != 1500 || stats.SessionsCompleted != 1 {
		t.Fatalf("unexpected statistics %+v", stats)
	}
	if stats.LastSessionCompletedAt == nil || !stats.LastSessionCompletedAt.Equal(t0.Add(1500*time.Second)) {
		t.Fatalf("unexpected last completion %v", stats.LastSessionCompletedAt)
	}
}

func TestReloadMidSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first := h.tab(t, nil)
	if _, err := first.StartSession(ctx, focus("math", 25)); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.clock.Advance(300*time.Second + 400*time.Millisecond)

	reloaded := service.NewSessionController("u1", h.sessions, h.recorder, h.clock, service.DefaultPolicy())
	loaded, err := reloaded.LoadActiveSession(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !loaded.Resumed || loaded.Reclaimed != nil {
		t.Fatalf("expected resumed session, got %+v", loaded)
	}
	if e := loaded.Snapshot.ElapsedSeconds; e < 300 || e > 301 {
		t.Fatalf("elapsed %d outside [300, 301]", e)
	}
	if reloaded.Current().ID != first.Current().ID {
		t.Fatal("reload must adopt the same session")
	}
}

func TestStaleSessionReclaimedOnLoad(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	stale, err := h.sessions.Create(ctx, "u1", "math", model.SessionTypeFocus, 1500, t0.Add(-5*time.Hour))
	if err != nil {
		t.Fatalf("seed stale session: %v", err)
	}

	c := service.NewSessionController("u1", h.sessions, h.recorder, h.clock, service.DefaultPolicy())
	loaded, err := c.LoadActiveSession(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !errors.Is(loaded.Notice, apperrors.ErrStaleSessionReclaimed) {
		t.Fatalf("expected stale notice, got %v", loaded.Notice)
	}
	if loaded.Resumed || loaded.Snapshot.IsActive || c.Current() != nil {
		t.Fatalf("stale session must not be resumable: %+v", loaded)
	}

	stored, err := h.sessions.Get(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != model.StatusCompleted || stored.EndedAt == nil || stored.RemainingSeconds != 1500 {
		t.Fatalf("unexpected reclaimed session %+v", stored)
	}
	if stats := h.statsFor(t, "math"); stats.SessionsCompleted != 0 {
		t.Fatalf("reclaimed sessions must not feed statistics: %+v", stats)
	}
}

func TestExpiredWhileAwayCompletesOnLoad(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	if _, err := h.sessions.Create(ctx, "u1", "math", model.SessionTypeFocus, 1500, t0.Add(-time.Hour)); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	c := service.NewSessionController("u1", h.sessions, h.recorder, h.clock, service.DefaultPolicy())
	loaded, err := c.LoadActiveSession(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if loaded.Completed == nil || loaded.Completed.Status != model.StatusCompleted {
		t.Fatalf("expected completion on load, got %+v", loaded)
	}
	if stats := h.statsFor(t, "math"); stats.TotalFocusSeconds != 1500 || stats.SessionsCompleted != 1 {
		t.Fatalf("unexpected statistics %+v", stats)
	}
}

func TestStartClosesOpenSessionOnAnySubject(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.tab(t, nil)

	if _, err := c.StartSession(ctx, focus("x", 25)); err != nil {
		t.Fatalf("start A: %v", err)
	}
	a := c.Current()

	h.clock.Advance(2 * time.Minute)
	other := h.tab(t, nil)
	if _, err := other.StartSession(ctx, focus("y", 50)); err != nil {
		t.Fatalf("start B: %v", err)
	}
	b := other.Current()

	storedA, err := h.sessions.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get A: %v", err)
	}
	if !storedA.Status.Terminal() {
		t.Fatalf("A must be terminal, got %s", storedA.Status)
	}
	if storedA.Status != model.StatusCanceled || storedA.RemainingSeconds != 1380 {
		t.Fatalf("unexpected A %+v", storedA)
	}

	open, err := h.sessions.FindOpenSession(ctx, "u1", "")
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	if open.ID != b.ID || open.SubjectID != "y" {
		t.Fatalf("B must be the sole open session, got %+v", open)
	}
	if stats := h.statsFor(t, "x"); stats.SessionsCompleted != 0 {
		t.Fatalf("implicit cancel must not feed statistics: %+v", stats)
	}
}

func TestEndSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.tab(t, nil)

	if _, err := c.StartSession(ctx, focus("math", 25)); err != nil {
		t.Fatalf("start: %v", err)
	}
	id := c.Current().ID
	h.clock.Advance(600 * time.Second)

	if _, err := c.EndSession(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	endedAt := h.clock.Now()
	h.clock.Advance(time.Second)
	if _, err := c.EndSession(ctx); err != nil {
		t.Fatalf("second end must be a no-op: %v", err)
	}

	stored, err := h.sessions.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.EndedAt == nil || !stored.EndedAt.Equal(endedAt) || stored.ActualDurationSeconds != 600 {
		t.Fatalf("unexpected stored session %+v", stored)
	}
	if stats := h.statsFor(t, "math"); stats.SessionsCompleted != 1 || stats.TotalFocusSeconds != 600 {
		t.Fatalf("unexpected statistics %+v", stats)
	}
}

func TestConcurrentEndFromTwoTabs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	starter := h.tab(t, nil)
	if _, err := starter.StartSession(ctx, focus("math", 25)); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(10 * time.Minute)

	tabs := []*service.SessionController{h.tab(t, nil), h.tab(t, nil), starter}
	var wg sync.WaitGroup
	errs := make(chan error, len(tabs))
	for _, tab := range tabs {
		wg.Add(1)
		go func(c *service.SessionController) {
			defer wg.Done()
			if _, err := c.EndSession(ctx); err != nil {
				errs <- err
			}
		}(tab)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("end from tab: %v", err)
	}

	if stats := h.statsFor(t, "math"); stats.SessionsCompleted != 1 || stats.TotalFocusSeconds != 600 {
		t.Fatalf("expected exactly one increment, got %+v", stats)
	}
}

func TestResetRestartsFromZero(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.tab(t, nil)

	if _, err := c.StartSession(ctx, focus("math", 25)); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := c.Current()
	h.clock.Advance(300 * time.Second)

	snap, err := c.ResetSession(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	second := c.Current()
	if second == nil || second.ID == first.ID {
		t.Fatalf("reset must open a new session, got %+v", second)
	}
	if second.SubjectID != "math" || second.SessionType != model.SessionTypeFocus || second.PlannedDurationSeconds != 1500 {
		t.Fatalf("reset must keep subject, type and duration: %+v", second)
	}
	if snap.RemainingSeconds != 1500 || snap.ElapsedSeconds != 0 {
		t.Fatalf("unexpected reset snapshot %+v", snap)
	}
	if stats := h.statsFor(t, "math"); stats.TotalFocusSeconds != 300 || stats.SessionsCompleted != 1 {
		t.Fatalf("unexpected statistics %+v", stats)
	}
}

func TestBreaksDoNotFeedStatistics(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.tab(t, nil)

	input := service.StartInput{SubjectID: "math", SessionType: model.SessionTypeShortBreak, DurationMinutes: 5}
	if _, err := c.StartSession(ctx, input); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(5 * time.Minute)
	snap, err := c.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if snap.Status != model.StatusCompleted {
		t.Fatalf("expected completion, got %+v", snap)
	}
	if stats := h.statsFor(t, "math"); stats.SessionsCompleted != 0 {
		t.Fatalf("breaks must not feed statistics: %+v", stats)
	}
}

func TestCancelFromPaused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.tab(t, nil)

	if _, err := c.StartSession(ctx, focus("math", 25)); err != nil {
		t.Fatalf("start: %v", err)
	}
	id := c.Current().ID
	h.clock.Advance(time.Minute)
	if _, err := c.PauseSession(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}

	snap, err := c.CancelSession(ctx)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if snap.Status != model.StatusCanceled || c.Current() != nil {
		t.Fatalf("unexpected cancel snapshot %+v", snap)
	}
	stored, _ := h.sessions.Get(ctx, id)
	if stored.Status != model.StatusCanceled || stored.RemainingSeconds != 1440 {
		t.Fatalf("unexpected stored session %+v", stored)
	}
	if stats := h.statsFor(t, "math"); stats.SessionsCompleted != 0 {
		t.Fatalf("cancel must not feed statistics: %+v", stats)
	}
}

func TestOperationsWithoutSessionAreNoops(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.tab(t, nil)

	ops := map[string]func(context.Context) error{
		"pause":  func(ctx context.Context) error { _, err := c.PauseSession(ctx); return err },
		"resume": func(ctx context.Context) error { _, err := c.ResumeSession(ctx); return err },
		"end":    func(ctx context.Context) error { _, err := c.EndSession(ctx); return err },
		"cancel": func(ctx context.Context) error { _, err := c.CancelSession(ctx); return err },
		"reset":  func(ctx context.Context) error { _, err := c.ResetSession(ctx); return err },
		"tick":   func(ctx context.Context) error { _, err := c.Tick(ctx); return err },
	}
	for name, op := range ops {
		if err := op(ctx); err != nil {
			t.Errorf("%s without session: %v", name, err)
		}
	}
	if snap := c.Snapshot(); snap.IsActive || snap.RemainingSeconds != model.DefaultFocusDurationSeconds {
		t.Fatalf("unexpected idle snapshot %+v", snap)
	}
}

func TestInvalidTransitionsAreRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.tab(t, nil)

	if _, err := c.StartSession(ctx, focus("math", 25)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.ResumeSession(ctx); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("resume of active session: expected ErrInvalidTransition, got %v", err)
	}

	h.clock.Advance(time.Minute)
	if _, err := c.PauseSession(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	snap, err := c.PauseSession(ctx)
	if !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("double pause: expected ErrInvalidTransition, got %v", err)
	}
	if !snap.IsPaused || snap.RemainingSeconds != 1440 {
		t.Fatalf("rejected pause must not change state: %+v", snap)
	}
}

func TestLostRaceRefreshesFromStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	a := h.tab(t, nil)
	if _, err := a.StartSession(ctx, focus("math", 25)); err != nil {
		t.Fatalf("start: %v", err)
	}
	b := h.tab(t, nil)

	h.clock.Advance(time.Minute)
	if _, err := a.PauseSession(ctx); err != nil {
		t.Fatalf("pause from A: %v", err)
	}

	h.clock.Advance(time.Minute)
	_, err := b.PauseSession(ctx)
	if !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("pause from B: expected ErrInvalidTransition, got %v", err)
	}
	if current := b.Current(); current == nil || current.Status != model.StatusPaused || current.RemainingSeconds != 1440 {
		t.Fatalf("B must adopt the stored paused session, got %+v", current)
	}
}

func TestStartValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.tab(t, nil)

	inputs := []service.StartInput{
		{SubjectID: "", SessionType: model.SessionTypeFocus, DurationMinutes: 25},
		{SubjectID: "math", SessionType: "nap", DurationMinutes: 25},
		{SubjectID: "math", SessionType: model.SessionTypeFocus, DurationMinutes: 0},
		{SubjectID: "math", SessionType: model.SessionTypeFocus, DurationMinutes: 181},
	}
	for _, input := range inputs {
		if _, err := c.StartSession(ctx, input); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("StartSession(%+v): expected ErrInvalidInput, got %v", input, err)
		}
	}
	if c.Current() != nil {
		t.Fatal("invalid input must not open a session")
	}
}
