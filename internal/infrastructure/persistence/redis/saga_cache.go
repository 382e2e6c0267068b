package redis

import (
	"context"

	"github.com/saga-hub/saga-progress-hub/internal/application/query"
	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
)

// ══════════════════════════════════════════════════════════════════════════════
// SAGA VIEW CACHE
// ══════════════════════════════════════════════════════════════════════════════

// SagaViewCache implements query.SagaViewCache on top of the JSON cache.
// Entries are invalidated by the progress event handlers and additionally
// expire after TTLSagaView.
type SagaViewCache struct {
	cache *Cache
}

// NewSagaViewCache creates a new SagaViewCache.
func NewSagaViewCache(cache *Cache) *SagaViewCache {
	return &SagaViewCache{cache: cache}
}

// GetView returns the cached saga map for a learner, or ErrCacheMiss.
func (c *SagaViewCache) GetView(ctx context.Context, learnerID catalog.LearnerID) (*query.GetSagaViewResult, error) {
	var view query.GetSagaViewResult
	if err := c.cache.Get(ctx, SagaViewKey(learnerID.String()), &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// SetView stores the saga map for a learner.
func (c *SagaViewCache) SetView(ctx context.Context, learnerID catalog.LearnerID, view *query.GetSagaViewResult) error {
	return c.cache.Set(ctx, SagaViewKey(learnerID.String()), view, TTLSagaView)
}

// InvalidateView removes the saga map for a learner.
func (c *SagaViewCache) InvalidateView(ctx context.Context, learnerID catalog.LearnerID) error {
	return c.cache.Delete(ctx, SagaViewKey(learnerID.String()))
}
