package model

import "time"

type SubjectStatistics struct {
	UserID                 string     `json:"userId"`
	SubjectID              string     `json:"subjectId"`
	TotalFocusSeconds      int        `json:"totalFocusSeconds"`
	SessionsCompleted      int        `json:"sessionsCompleted"`
	LastSessionCompletedAt *time.Time `json:"lastSessionCompletedAt,omitempty"`
	Version                int        `json:"-"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}
