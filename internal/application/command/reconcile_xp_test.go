package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
	"github.com/saga-hub/saga-progress-hub/internal/domain/xp"
)

func TestXPReconciler_IncrementalCredit(t *testing.T) {
	ledger := newFakeLedger()
	pub := &capturingPublisher{}
	reconciler := NewXPReconciler(ledger, nil, pub, nil)

	err := reconciler.Reconcile(context.Background(), xp.Request{
		LearnerID: "learner1",
		Mode:      xp.ModeIncremental,
		Amount:    25,
	})
	require.NoError(t, err)

	assert.Equal(t, 25, ledger.totals["learner1"])
	assert.Contains(t, pub.types(), shared.EventXPReconciled)
}

func TestXPReconciler_LumpSumCreditsDifference(t *testing.T) {
	ledger := newFakeLedger()
	reconciler := NewXPReconciler(ledger, nil, nil, nil)

	err := reconciler.Reconcile(context.Background(), xp.Request{
		LearnerID:       "learner1",
		Mode:            xp.ModeLumpSum,
		Amount:          90,
		AlreadyCredited: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 40, ledger.totals["learner1"])
}

func TestXPReconciler_ZeroCreditIsNoop(t *testing.T) {
	ledger := newFakeLedger()
	pub := &capturingPublisher{}
	reconciler := NewXPReconciler(ledger, nil, pub, nil)

	err := reconciler.Reconcile(context.Background(), xp.Request{
		LearnerID:       "learner1",
		Mode:            xp.ModeLumpSum,
		Amount:          50,
		AlreadyCredited: 80,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, ledger.totals["learner1"])
	assert.Empty(t, pub.events)
}

func TestXPReconciler_FailureMapsToReconciliationFailure(t *testing.T) {
	ledger := newFakeLedger()
	ledger.incrementErr = errors.New("counter backend down")
	reconciler := NewXPReconciler(ledger, nil, nil, nil)

	err := reconciler.Reconcile(context.Background(), xp.Request{
		LearnerID: "learner1",
		Mode:      xp.ModeIncremental,
		Amount:    10,
	})
	assert.ErrorIs(t, err, shared.ErrReconciliationFailure)
}

func TestXPReconciler_InvalidRequest(t *testing.T) {
	reconciler := NewXPReconciler(newFakeLedger(), nil, nil, nil)

	err := reconciler.Reconcile(context.Background(), xp.Request{
		LearnerID: "",
		Amount:    10,
	})
	assert.ErrorIs(t, err, xp.ErrInvalidLearner)

	err = reconciler.Reconcile(context.Background(), xp.Request{
		LearnerID: "learner1",
		Amount:    -5,
	})
	assert.ErrorIs(t, err, xp.ErrNegativeAmount)
}
