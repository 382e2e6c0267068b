package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
)

type stubLedger struct {
	total    int
	totalErr error
}

func (s *stubLedger) Increment(ctx context.Context, learnerID catalog.LearnerID, amount int) error {
	return errors.New("not used by queries")
}

func (s *stubLedger) Total(ctx context.Context, learnerID catalog.LearnerID) (int, error) {
	return s.total, s.totalErr
}

func (s *stubLedger) SetIfGreater(ctx context.Context, learnerID catalog.LearnerID, value int) (bool, error) {
	return false, errors.New("not used by queries")
}

func TestGetXPTotal(t *testing.T) {
	handler := NewGetXPTotalHandler(&stubLedger{total: 450})

	result, err := handler.Handle(context.Background(), GetXPTotalQuery{LearnerID: "learner1"})
	require.NoError(t, err)

	assert.Equal(t, "learner1", result.LearnerID)
	assert.Equal(t, 450, result.Total)
}

func TestGetXPTotal_MissingCounterIsZero(t *testing.T) {
	handler := NewGetXPTotalHandler(&stubLedger{totalErr: shared.ErrLearnerTotalNotFound})

	result, err := handler.Handle(context.Background(), GetXPTotalQuery{LearnerID: "learner1"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
}

func TestGetXPTotal_BackendFailure(t *testing.T) {
	handler := NewGetXPTotalHandler(&stubLedger{totalErr: errors.New("counter backend down")})

	_, err := handler.Handle(context.Background(), GetXPTotalQuery{LearnerID: "learner1"})
	assert.ErrorIs(t, err, shared.ErrExternalService)
}

func TestGetXPTotal_Validation(t *testing.T) {
	handler := NewGetXPTotalHandler(&stubLedger{})

	_, err := handler.Handle(context.Background(), GetXPTotalQuery{})
	assert.True(t, shared.IsValidation(err))
}
