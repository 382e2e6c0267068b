// Package progression contains the per-learner progress records and the
// state machine that derives chapter statuses (locked/active/completed)
// from chapter order plus stored progress. Stored status is only a cache
// hint of "where are we"; the derivation is the source of truth.
// This is a pure domain layer with zero external dependencies.
package progression

import (
	"errors"
	"time"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
)

// Domain errors for progression package.
var (
	ErrInvalidRecordID   = errors.New("progression: invalid record ID")
	ErrInvalidLearnerID  = errors.New("progression: invalid learner ID")
	ErrInvalidChapterID  = errors.New("progression: invalid chapter ID")
	ErrInvalidCatalog    = errors.New("progression: invalid catalog kind")
	ErrNegativeDelta     = errors.New("progression: activity deltas must be non-negative")
	ErrAlreadyCompleted  = errors.New("progression: chapter already completed")
	ErrCompletedAtReset  = errors.New("progression: completed_at is set exactly once")
	ErrMixedCatalogKinds = errors.New("progression: records span multiple catalog kinds")
)

// Status represents the progression state of a chapter for a learner.
type Status string

const (
	// StatusLocked - the chapter cannot be worked on yet.
	StatusLocked Status = "locked"

	// StatusActive - the single chapter the learner is currently on.
	StatusActive Status = "active"

	// StatusCompleted - the chapter is finished; further activity is a no-op.
	StatusCompleted Status = "completed"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusLocked, StatusActive, StatusCompleted:
		return true
	}
	return false
}

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// Record is a per-learner-per-chapter progress record. Absence of a record
// is equivalent to locked, except chapter #1 which is implicitly active when
// no record exists for the whole catalog.
//
// Version supports optimistic concurrency: writes are conditioned on the
// version being unchanged since read, so two concurrent activities for the
// same learner and chapter cannot both observe pre-update totals and both
// decide to complete.
type Record struct {
	ID        string
	LearnerID catalog.LearnerID
	ChapterID catalog.ChapterID
	Catalog   catalog.Kind

	Status           Status
	XPEarned         int
	TimeSpentMinutes int
	CompletedAt      *time.Time

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord creates a new active progress record for a chapter the learner
// is starting. Records are created lazily on first activity or on explicit
// initialization; they are never deleted.
func NewRecord(id string, learnerID catalog.LearnerID, chapterID catalog.ChapterID, kind catalog.Kind) (*Record, error) {
	if id == "" {
		return nil, ErrInvalidRecordID
	}
	if !learnerID.IsValid() {
		return nil, ErrInvalidLearnerID
	}
	if !chapterID.IsValid() {
		return nil, ErrInvalidChapterID
	}
	if !kind.IsValid() {
		return nil, ErrInvalidCatalog
	}

	now := time.Now().UTC()
	return &Record{
		ID:        id,
		LearnerID: learnerID,
		ChapterID: chapterID,
		Catalog:   kind,
		Status:    StatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsCompleted returns true if the record has reached completed.
func (r *Record) IsCompleted() bool {
	return r.Status == StatusCompleted
}

// AddActivity folds activity deltas into the running totals. Totals are
// non-decreasing until the record completes; after completion any further
// activity targeting this chapter is a no-op and must be rejected upstream.
func (r *Record) AddActivity(xpDelta, timeDeltaMinutes int) error {
	if r.IsCompleted() {
		return ErrAlreadyCompleted
	}
	if xpDelta < 0 || timeDeltaMinutes < 0 {
		return ErrNegativeDelta
	}

	r.XPEarned += xpDelta
	r.TimeSpentMinutes += timeDeltaMinutes
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete transitions the record to completed and stamps completed_at
// exactly once. The final totals are set here rather than via AddActivity
// so the transition is a single state change.
func (r *Record) Complete(finalXP, finalTimeMinutes int, completedAt time.Time) error {
	if r.IsCompleted() {
		return ErrAlreadyCompleted
	}
	if finalXP < r.XPEarned || finalTimeMinutes < r.TimeSpentMinutes {
		return ErrNegativeDelta
	}
	if r.CompletedAt != nil {
		return ErrCompletedAtReset
	}

	r.Status = StatusCompleted
	r.XPEarned = finalXP
	r.TimeSpentMinutes = finalTimeMinutes
	at := completedAt.UTC()
	r.CompletedAt = &at
	r.UpdatedAt = at
	return nil
}

// ValidateCatalogExclusivity checks that all records belong to one catalog
// kind. A learner's progress references personalized XOR default chapters,
// never both.
func ValidateCatalogExclusivity(records []*Record) error {
	var kind catalog.Kind
	for _, rec := range records {
		if kind == "" {
			kind = rec.Catalog
			continue
		}
		if rec.Catalog != kind {
			return ErrMixedCatalogKinds
		}
	}
	return nil
}

// IndexByChapter builds a chapter-id lookup over records.
func IndexByChapter(records []*Record) map[catalog.ChapterID]*Record {
	index := make(map[catalog.ChapterID]*Record, len(records))
	for _, rec := range records {
		index[rec.ChapterID] = rec
	}
	return index
}
