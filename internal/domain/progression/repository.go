package progression

import (
	"context"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
)

// Repository defines the interface for progress record persistence.
// This interface is implemented by the infrastructure layer.
//
// The progress store is the only mutable shared resource of the engine, so
// the write operations carry the concurrency discipline: Create fails on
// duplicates, UpdateCAS is conditioned on the record's version being
// unchanged since read.
type Repository interface {
	// GetRecords returns all progress records for a learner within one
	// catalog kind. Absence of records is not an error.
	GetRecords(ctx context.Context, learnerID catalog.LearnerID, kind catalog.Kind) ([]*Record, error)

	// GetRecord returns the record for one chapter, or shared.ErrRecordNotFound.
	GetRecord(ctx context.Context, learnerID catalog.LearnerID, chapterID catalog.ChapterID, kind catalog.Kind) (*Record, error)

	// Create persists a new record. Returns shared.ErrRecordAlreadyExists if a
	// record for (learner, chapter, catalog) already exists.
	Create(ctx context.Context, rec *Record) error

	// UpdateCAS persists record changes conditioned on rec.Version matching
	// the stored version. On success the stored and in-memory versions are
	// incremented. On a version mismatch it returns
	// shared.ErrConcurrentModification and the caller re-reads and retries
	// the decision once.
	UpdateCAS(ctx context.Context, rec *Record) error

	// CompleteTransactional atomically marks the record completed and credits
	// the learner XP total in one transaction, conditioned on rec.Version.
	// ledgerDelta is the amount credited to the total (the chapter's
	// cumulative XP minus what was already credited incrementally).
	//
	// Implementations that cannot update both stores atomically return
	// shared.ErrReconciliationFailure after the progress write succeeded;
	// callers then fall back to the two-step path and leave recovery to the
	// reconciliation sweep.
	CompleteTransactional(ctx context.Context, rec *Record, ledgerDelta int) error

	// LearnersWithCompletions returns the IDs of learners that have at least
	// one completed record. Used by the reconciliation sweep.
	LearnersWithCompletions(ctx context.Context) ([]catalog.LearnerID, error)

	// SumCompletedXP returns the sum of xp_earned over a learner's completed
	// records across both catalog kinds.
	SumCompletedXP(ctx context.Context, learnerID catalog.LearnerID) (int, error)
}
