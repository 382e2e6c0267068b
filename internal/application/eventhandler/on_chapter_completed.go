// Package eventhandler содержит обработчики доменных событий.
// Обработчики реализуют реактивную часть системы: они связывают
// запись прогресса с побочными эффектами вроде инвалидации кешей
// и операционных сигналов, не замедляя основной путь записи.
package eventhandler

import (
	"context"
	"time"

	"github.com/saga-hub/saga-progress-hub/internal/application/query"
	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
	"github.com/saga-hub/saga-progress-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS CHANGED HANDLER
// Инвалидирует кеш карты саги при любом изменении прогресса ученика.
// Карта пересобирается лениво при следующем чтении.
// ═══════════════════════════════════════════════════════════════════════════

// invalidateTimeout ограничивает время на инвалидацию кеша.
const invalidateTimeout = 2 * time.Second

// OnProgressChangedHandler инвалидирует закешированную карту саги, когда
// прогресс ученика меняется. Без инвалидации карта оставалась бы устаревшей
// до истечения TTL.
type OnProgressChangedHandler struct {
	cache query.SagaViewCache
	log   *logger.Logger
}

// NewOnProgressChangedHandler создаёт новый обработчик изменения прогресса.
func NewOnProgressChangedHandler(cache query.SagaViewCache, log *logger.Logger) *OnProgressChangedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnProgressChangedHandler{
		cache: cache,
		log:   log.With(logger.Component("saga_cache_invalidator")),
	}
}

// EventTypes возвращает типы событий, на которые подписан обработчик.
func (h *OnProgressChangedHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventProgressInitialized,
		shared.EventProgressUpdated,
		shared.EventChapterCompleted,
	}
}

// Handle обрабатывает событие изменения прогресса.
func (h *OnProgressChangedHandler) Handle(event shared.Event) error {
	if h.cache == nil {
		return nil
	}

	learnerID, ok := learnerIDOf(event)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()

	if err := h.cache.InvalidateView(ctx, catalog.LearnerID(learnerID)); err != nil {
		// Кеш не критичен: устаревшая карта исчезнет по TTL.
		h.log.Warn("failed to invalidate saga view cache",
			logger.LearnerID(learnerID),
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
	return nil
}

// learnerIDOf извлекает идентификатор ученика из полезной нагрузки события.
func learnerIDOf(event shared.Event) (string, bool) {
	id, ok := event.Payload()["learner_id"].(string)
	return id, ok && id != ""
}
