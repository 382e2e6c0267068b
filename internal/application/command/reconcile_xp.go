// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"

	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
	"github.com/saga-hub/saga-progress-hub/internal/domain/xp"
	"github.com/saga-hub/saga-progress-hub/pkg/circuitbreaker"
	"github.com/saga-hub/saga-progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP LEDGER RECONCILER
// Updates the learner's cumulative XP counter: a lump sum once per chapter
// completion, incremental credits otherwise. The counter backend sits behind
// a circuit breaker - when it keeps failing, inline reconciliation stops and
// recovery is left to the periodic sweep.
// ══════════════════════════════════════════════════════════════════════════════

// XPReconciler applies XP credits to the learner ledger.
type XPReconciler struct {
	ledger    xp.Ledger
	breaker   *circuitbreaker.CircuitBreaker
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewXPReconciler creates a new XPReconciler. The breaker may be nil, in
// which case ledger calls are made directly.
func NewXPReconciler(ledger xp.Ledger, breaker *circuitbreaker.CircuitBreaker, publisher shared.EventPublisher, log *logger.Logger) *XPReconciler {
	if log == nil {
		log = logger.Default()
	}
	return &XPReconciler{
		ledger:    ledger,
		breaker:   breaker,
		publisher: publisher,
		log:       log.With(logger.Component("xp_reconciler")),
	}
}

// Reconcile credits the learner's XP total per the request. A failure is
// returned as shared.ErrReconciliationFailure; callers treat it as non-fatal
// because progress is already durably recorded and the sweep can re-derive
// the total from completed chapters later.
func (r *XPReconciler) Reconcile(ctx context.Context, req xp.Request) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("reconcile_xp: %w", err)
	}

	credit := req.CreditAmount()
	if credit == 0 {
		return nil
	}

	increment := func(ctx context.Context) error {
		return r.ledger.Increment(ctx, req.LearnerID, credit)
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Execute(ctx, increment)
	} else {
		err = increment(ctx)
	}
	if err != nil {
		r.log.Error("XP total update failed",
			logger.LearnerID(req.LearnerID.String()),
			logger.XPAmount(credit),
			logger.String("mode", req.Mode.String()),
			logger.Err(err),
		)
		return shared.WrapError("xp", "Reconcile", shared.ErrReconciliationFailure,
			fmt.Sprintf("crediting %d XP (%s)", credit, req.Mode), err)
	}

	if r.publisher != nil {
		_ = r.publisher.Publish(shared.NewXPReconciledEvent(req.LearnerID.String(), credit, req.Mode.String()))
	}

	r.log.Debug("XP total updated",
		logger.LearnerID(req.LearnerID.String()),
		logger.XPAmount(credit),
		logger.String("mode", req.Mode.String()),
	)
	return nil
}
