package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"studyplan/backend/internal/clock"
	apperrors "studyplan/backend/internal/errors"
	"studyplan/backend/internal/metrics"
	"studyplan/backend/internal/model"
)

type StatisticsStore interface {
	Get(ctx context.Context, userID, subjectID string) (*model.SubjectStatistics, error)
	Insert(ctx context.Context, stats *model.SubjectStatistics) error
	Update(ctx context.Context, stats *model.SubjectStatistics) error
	ListForUser(ctx context.Context, userID string) ([]model.SubjectStatistics, error)
}

// CompletionRecorder receives completed focus sessions.
type CompletionRecorder interface {
	RecordCompletion(ctx context.Context, userID, subjectID string, actualDurationSeconds int) error
}

// StatisticsService folds completed focus sessions into per-subject totals.
type StatisticsService struct {
	store StatisticsStore
	clock clock.Clock
}

func NewStatisticsService(store StatisticsStore, c clock.Clock) *StatisticsService {
	return &StatisticsService{store: store, clock: c}
}

// RecordCompletion adds one completed session to the subject's totals. A write that loses
// a race to another tab is retried once; a second conflict is returned to the caller.
func (s *StatisticsService) RecordCompletion(ctx context.Context, userID, subjectID string, actualDurationSeconds int) error {
	if actualDurationSeconds < 0 {
		actualDurationSeconds = 0
	}

	err := s.apply(ctx, userID, subjectID, actualDurationSeconds)
	if errors.Is(err, apperrors.ErrConflict) {
		metrics.StatisticsRetriesTotal.Inc()
		log.Debug().Str("user_id", userID).Str("subject_id", subjectID).Msg("statistics write conflicted, retrying")
		err = s.apply(ctx, userID, subjectID, actualDurationSeconds)
	}
	if err != nil {
		return fmt.Errorf("record completion for subject %s: %w", subjectID, err)
	}
	return nil
}

func (s *StatisticsService) apply(ctx context.Context, userID, subjectID string, actualDurationSeconds int) error {
	now := s.clock.Now()

	stats, err := s.store.Get(ctx, userID, subjectID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	if stats == nil {
		return s.store.Insert(ctx, &model.SubjectStatistics{
			UserID:                 userID,
			SubjectID:              subjectID,
			TotalFocusSeconds:      actualDurationSeconds,
			SessionsCompleted:      1,
			LastSessionCompletedAt: &now,
			UpdatedAt:              now,
		})
	}

	stats.TotalFocusSeconds += actualDurationSeconds
	stats.SessionsCompleted++
	stats.LastSessionCompletedAt = &now
	stats.UpdatedAt = now
	return s.store.Update(ctx, stats)
}

func (s *StatisticsService) ListForUser(ctx context.Context, userID string) ([]model.SubjectStatistics, error) {
	return s.store.ListForUser(ctx, userID)
}
