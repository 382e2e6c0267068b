// Package xp contains the learner experience-point ledger: a single
// monotonically non-decreasing counter per learner, updated once per chapter
// completion (lump sum) and incrementally otherwise.
package xp

import (
	"context"
	"errors"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
)

// Domain errors for xp package.
var (
	ErrNegativeAmount = errors.New("xp: amount must be non-negative")
	ErrInvalidLearner = errors.New("xp: invalid learner ID")
)

// Mode documents the intent of a reconcile call. The numeric effect is
// additive either way; the mode exists so logs and events can distinguish
// the two code paths.
type Mode string

const (
	// ModeLumpSum credits the completion amount of a chapter, exactly once
	// per chapter.
	ModeLumpSum Mode = "lump_sum"

	// ModeIncremental credits a partial amount for activity that did not yet
	// complete the chapter.
	ModeIncremental Mode = "incremental"
)

// String returns the string representation of Mode.
func (m Mode) String() string {
	return string(m)
}

// Total is a learner's cumulative XP counter.
type Total struct {
	LearnerID catalog.LearnerID
	TotalXP   int
}

// Ledger defines the interface for the backing XP counter.
// Implemented by the infrastructure layer; the counter may live in the same
// database as progress or behind a remote collaborator.
type Ledger interface {
	// Increment adds amount to the learner's total. The counter never
	// decreases; amount must be non-negative.
	Increment(ctx context.Context, learnerID catalog.LearnerID, amount int) error

	// Total returns the learner's current cumulative XP (zero if the learner
	// has no counter yet).
	Total(ctx context.Context, learnerID catalog.LearnerID) (int, error)

	// SetIfGreater raises the learner's total to value when the stored total
	// is lower, and reports whether a repair happened. Used by the
	// reconciliation sweep; idempotent and safe to run anytime.
	SetIfGreater(ctx context.Context, learnerID catalog.LearnerID, value int) (bool, error)
}

// Request describes one reconcile call.
//
// On completion the caller reports the chapter's cumulative total together
// with the amount already credited incrementally for that chapter; the
// ledger credit is the difference. This is what keeps the same underlying
// activity from being counted twice - once through the incremental path and
// again inside the lump sum (property: over any sequence of activities
// leading to one completion, the total rises by exactly the chapter's final
// cumulative xp_earned).
type Request struct {
	LearnerID catalog.LearnerID
	Mode      Mode

	// Amount is the incremental delta (ModeIncremental) or the chapter's
	// cumulative xp_earned at completion (ModeLumpSum).
	Amount int

	// AlreadyCredited is the portion of Amount previously credited through
	// incremental calls. Zero for ModeIncremental.
	AlreadyCredited int
}

// CreditAmount returns the amount to add to the counter.
func (r Request) CreditAmount() int {
	credit := r.Amount - r.AlreadyCredited
	if credit < 0 {
		return 0
	}
	return credit
}

// Validate validates the request.
func (r Request) Validate() error {
	if !r.LearnerID.IsValid() {
		return ErrInvalidLearner
	}
	if r.Amount < 0 || r.AlreadyCredited < 0 {
		return ErrNegativeAmount
	}
	return nil
}
