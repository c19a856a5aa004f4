package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"studyplan/backend/internal/clock"
	"studyplan/backend/internal/metrics"
	"studyplan/backend/internal/model"
)

const reclaimBatchSize = 500

type StaleSessionStore interface {
	ListStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]model.Session, error)
	Complete(ctx context.Context, session *model.Session, finalRemainingSeconds int, now time.Time) (*model.Session, bool, error)
}

// Reclaimer sweeps abandoned sessions of every user, the same way reconciliation does for
// one user on tab load.
type Reclaimer struct {
	store      StaleSessionStore
	clock      clock.Clock
	staleAfter time.Duration
}

func NewReclaimer(store StaleSessionStore, c clock.Clock, staleAfter time.Duration) *Reclaimer {
	return &Reclaimer{store: store, clock: c, staleAfter: staleAfter}
}

// Run completes every stale active session and returns them. With dryRun set nothing is
// written.
func (r *Reclaimer) Run(ctx context.Context, dryRun bool) ([]model.Session, error) {
	now := r.clock.Now()
	stale, err := r.store.ListStaleActive(ctx, now.Add(-r.staleAfter), reclaimBatchSize)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return stale, nil
	}

	reclaimed := make([]model.Session, 0, len(stale))
	for i := range stale {
		session := &stale[i]
		finished, applied, err := r.store.Complete(ctx, session, session.RemainingSeconds, now)
		if err != nil {
			return reclaimed, err
		}
		if !applied {
			continue
		}
		metrics.StaleSessionsReclaimedTotal.Inc()
		log.Info().
			Str("user_id", session.UserID).
			Str("session_id", session.ID).
			Time("started_at", session.StartedAt).
			Msg("stale session reclaimed")
		reclaimed = append(reclaimed, *finished)
	}
	return reclaimed, nil
}
