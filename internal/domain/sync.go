package domain

import (
	"time"

	"github.com/google/uuid"
)

type SyncStatus string

const (
	SyncStatusRequested  SyncStatus = "REQUESTED"
	SyncStatusQueued     SyncStatus = "QUEUED"
	SyncStatusInProgress SyncStatus = "IN_PROGRESS"
	SyncStatusComplete   SyncStatus = "COMPLETE"
	SyncStatusFailed     SyncStatus = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusRequested, SyncStatusQueued, SyncStatusInProgress, SyncStatusComplete, SyncStatusFailed:
		return true
	}
	return false
}

func (s SyncStatus) IsTerminal() bool {
	switch s {
	case SyncStatusComplete, SyncStatusFailed:
		return true
	case SyncStatusRequested, SyncStatusQueued, SyncStatusInProgress:
		return false
	}
	return false
}

// CanTransitionTo encodes {REQUESTED|QUEUED} -> IN_PROGRESS -> {COMPLETE|FAILED}.
func (s SyncStatus) CanTransitionTo(next SyncStatus) bool {
	switch s {
	case SyncStatusRequested:
		return next == SyncStatusQueued || next == SyncStatusInProgress
	case SyncStatusQueued:
		return next == SyncStatusInProgress
	case SyncStatusInProgress:
		return next == SyncStatusComplete || next == SyncStatusFailed
	case SyncStatusComplete, SyncStatusFailed:
		return false
	}
	return false
}

type SyncType string

const (
	SyncTypeRecent SyncType = "RECENT"
	SyncTypeFull   SyncType = "FULL"
)

func (t SyncType) Valid() bool {
	switch t {
	case SyncTypeRecent, SyncTypeFull:
		return true
	}
	return false
}

// SyncResult is the summary returned by a unit of work on success.
type SyncResult struct {
	SyncedCount int            `json:"syncedCount"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SyncAttempt is the persisted record of one tracked sync execution.
type SyncAttempt struct {
	ID                uuid.UUID   `db:"id" json:"id"`
	SubjectID         string      `db:"subject_id" json:"subjectId"`
	Type              SyncType    `db:"type" json:"type"`
	Status            SyncStatus  `db:"status" json:"status"`
	StartDate         *time.Time  `db:"start_date" json:"startDate,omitempty"`
	EndDate           *time.Time  `db:"end_date" json:"endDate,omitempty"`
	LastPageProcessed *int        `db:"last_page_processed" json:"lastPageProcessed,omitempty"`
	Notes             *string     `db:"notes" json:"notes,omitempty"`
	ResultSummary     *SyncResult `db:"result_summary" json:"resultSummary,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
}

// AttemptUpdate carries the fields to change on a SyncAttempt. Nil fields are left untouched.
type AttemptUpdate struct {
	Status            *SyncStatus
	StartDate         *time.Time
	EndDate           *time.Time
	LastPageProcessed *int
	Notes             *string
	ResultSummary     *SyncResult
}

// Apply copies the non-nil fields of u onto a.
func (u AttemptUpdate) Apply(a *SyncAttempt) {
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.StartDate != nil {
		a.StartDate = u.StartDate
	}
	if u.EndDate != nil {
		a.EndDate = u.EndDate
	}
	if u.LastPageProcessed != nil {
		a.LastPageProcessed = u.LastPageProcessed
	}
	if u.Notes != nil {
		a.Notes = u.Notes
	}
	if u.ResultSummary != nil {
		a.ResultSummary = u.ResultSummary
	}
}

// SyncStats holds statistics about one user's activity sync.
type SyncStats struct {
	SubjectID string
	Fetched   int
	New       int
	Updated   int
	Skipped   int
	Errors    int
	Published int
	Pages     int
	Duration  time.Duration
}

// RunSummary reports one batch run over several users.
type RunSummary struct {
	ItemType  string        `json:"type"`
	SyncType  SyncType      `json:"syncType"`
	Synced    int           `json:"synced"`
	Users     int           `json:"users"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Deferred  bool          `json:"deferred,omitempty"`
	Attempts  []SyncAttempt `json:"attempts"`
}
