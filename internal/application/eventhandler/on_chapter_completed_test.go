package eventhandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saga-hub/saga-progress-hub/internal/application/query"
	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
)

type invalidatingCache struct {
	invalidated   []catalog.LearnerID
	invalidateErr error
}

func (c *invalidatingCache) GetView(ctx context.Context, learnerID catalog.LearnerID) (*query.GetSagaViewResult, error) {
	return nil, errors.New("cache miss")
}

func (c *invalidatingCache) SetView(ctx context.Context, learnerID catalog.LearnerID, view *query.GetSagaViewResult) error {
	return nil
}

func (c *invalidatingCache) InvalidateView(ctx context.Context, learnerID catalog.LearnerID) error {
	c.invalidated = append(c.invalidated, learnerID)
	return c.invalidateErr
}

func TestOnProgressChanged_InvalidatesLearnerView(t *testing.T) {
	cache := &invalidatingCache{}
	handler := NewOnProgressChangedHandler(cache, nil)

	event := shared.NewChapterCompletedEvent("learner1", "default", "ch1", 1, 100, 60, time.Now().UTC())
	require.NoError(t, handler.Handle(event))

	require.Len(t, cache.invalidated, 1)
	assert.Equal(t, catalog.LearnerID("learner1"), cache.invalidated[0])
}

func TestOnProgressChanged_SubscribesToProgressEvents(t *testing.T) {
	handler := NewOnProgressChangedHandler(&invalidatingCache{}, nil)

	types := handler.EventTypes()
	assert.Contains(t, types, shared.EventProgressInitialized)
	assert.Contains(t, types, shared.EventProgressUpdated)
	assert.Contains(t, types, shared.EventChapterCompleted)
}

func TestOnProgressChanged_NilCacheIsNoop(t *testing.T) {
	handler := NewOnProgressChangedHandler(nil, nil)

	event := shared.NewProgressUpdatedEvent("learner1", "default", "ch1", 10, 5)
	assert.NoError(t, handler.Handle(event))
}

func TestOnProgressChanged_InvalidationFailureIsSwallowed(t *testing.T) {
	cache := &invalidatingCache{invalidateErr: errors.New("redis down")}
	handler := NewOnProgressChangedHandler(cache, nil)

	event := shared.NewProgressUpdatedEvent("learner1", "default", "ch1", 10, 5)
	assert.NoError(t, handler.Handle(event))
	assert.Len(t, cache.invalidated, 1)
}
