package query

import (
	"context"
	"errors"
	"time"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
	"github.com/saga-hub/saga-progress-hub/internal/domain/progression"
	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACTIVE CHAPTER QUERY
// Отдаёт единственную активную главу ученика. Лёгкая версия карты саги для
// виджетов "продолжить обучение".
// ══════════════════════════════════════════════════════════════════════════════

// GetActiveChapterQuery содержит параметры запроса активной главы.
type GetActiveChapterQuery struct {
	// LearnerID - идентификатор ученика.
	LearnerID string
}

// Validate проверяет корректность параметров запроса.
func (q GetActiveChapterQuery) Validate() error {
	if q.LearnerID == "" {
		return errors.New("learner_id is required")
	}
	return nil
}

// GetActiveChapterResult содержит результат запроса активной главы.
type GetActiveChapterResult struct {
	// LearnerID - идентификатор ученика.
	LearnerID string `json:"learner_id"`

	// Catalog - источник каталога: personalized или default.
	Catalog string `json:"catalog"`

	// Chapter - активная глава, nil если сага завершена или каталог пуст.
	Chapter *SagaNodeDTO `json:"chapter,omitempty"`

	// AllCompleted - завершена ли вся сага.
	AllCompleted bool `json:"all_completed"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetActiveChapterHandler обрабатывает запросы на получение активной главы.
type GetActiveChapterHandler struct {
	resolver     *catalog.Resolver
	progressRepo progression.Repository
}

// NewGetActiveChapterHandler создаёт новый обработчик запроса активной главы.
func NewGetActiveChapterHandler(
	resolver *catalog.Resolver,
	progressRepo progression.Repository,
) *GetActiveChapterHandler {
	return &GetActiveChapterHandler{
		resolver:     resolver,
		progressRepo: progressRepo,
	}
}

// Handle выполняет запрос активной главы.
func (h *GetActiveChapterHandler) Handle(ctx context.Context, query GetActiveChapterQuery) (*GetActiveChapterResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetActiveChapter", shared.ErrValidation, err.Error(), err)
	}

	learnerID := catalog.LearnerID(query.LearnerID)

	resolved, err := h.resolver.Resolve(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	result := &GetActiveChapterResult{
		LearnerID:   query.LearnerID,
		Catalog:     resolved.Kind.String(),
		GeneratedAt: time.Now().UTC(),
	}
	if resolved.IsEmpty() {
		return result, nil
	}

	records, err := h.progressRepo.GetRecords(ctx, learnerID, resolved.Kind)
	if err != nil {
		return nil, shared.WrapError("query", "GetActiveChapter", shared.ErrExternalService, "failed to read progress", err)
	}

	derived := progression.DeriveStatuses(resolved.Chapters, records)
	active := derived.ActiveView()
	if active == nil {
		result.AllCompleted = derived.AllCompleted()
		return result, nil
	}

	dto := toSagaNodeDTO(active)
	result.Chapter = &dto
	return result, nil
}
