// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
	"github.com/saga-hub/saga-progress-hub/internal/domain/progression"
	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
	"github.com/saga-hub/saga-progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SAGA VIEW QUERY
// Собирает полную карту саги ученика: каталог глав, прогресс и производные
// статусы (locked/active/completed). Статусы вычисляются на чтении и никогда
// не читаются из хранилища напрямую.
// ══════════════════════════════════════════════════════════════════════════════

// GetSagaViewQuery содержит параметры запроса карты саги.
type GetSagaViewQuery struct {
	// LearnerID - идентификатор ученика.
	LearnerID string

	// SkipCache - принудительно читать из хранилища, минуя кеш.
	SkipCache bool
}

// Validate проверяет корректность параметров запроса.
func (q GetSagaViewQuery) Validate() error {
	if q.LearnerID == "" {
		return errors.New("learner_id is required")
	}
	return nil
}

// SagaNodeDTO - DTO одной главы саги вместе с прогрессом ученика.
type SagaNodeDTO struct {
	// ChapterID - идентификатор главы.
	ChapterID string `json:"chapter_id"`

	// Number - порядковый номер главы (начиная с 1).
	Number int `json:"number"`

	// Title - название главы.
	Title string `json:"title"`

	// Subtitle - подзаголовок (опционально).
	Subtitle string `json:"subtitle,omitempty"`

	// Type - тип главы: video, quiz, boss_fight.
	Type string `json:"type"`

	// Status - производный статус: locked, active, completed.
	Status string `json:"status"`

	// XPReward - полная награда за главу.
	XPReward int `json:"xp_reward"`

	// XPEarned - накопленный учеником XP по главе.
	XPEarned int `json:"xp_earned"`

	// EstimatedTimeMinutes - оценка времени на главу.
	EstimatedTimeMinutes int `json:"estimated_time_minutes"`

	// TimeSpentMinutes - накопленное учеником время.
	TimeSpentMinutes int `json:"time_spent_minutes"`

	// CourseID - привязанный курс (опционально).
	CourseID string `json:"course_id,omitempty"`

	// Action - целевое действие главы (опционально).
	Action *SagaActionDTO `json:"action,omitempty"`

	// CompletedAt - время завершения (только для completed).
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SagaActionDTO - DTO действия, на которое указывает глава.
type SagaActionDTO struct {
	Type   string                 `json:"type"`
	URL    string                 `json:"url,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// GetSagaViewResult содержит результат запроса карты саги.
type GetSagaViewResult struct {
	// LearnerID - идентификатор ученика.
	LearnerID string `json:"learner_id"`

	// Catalog - источник каталога: personalized или default.
	Catalog string `json:"catalog"`

	// Nodes - главы в порядке возрастания номера.
	Nodes []SagaNodeDTO `json:"nodes"`

	// ActiveChapterID - текущая активная глава (пустая, если всё завершено).
	ActiveChapterID string `json:"active_chapter_id,omitempty"`

	// CompletedCount - количество завершённых глав.
	CompletedCount int `json:"completed_count"`

	// TotalCount - общее количество глав.
	TotalCount int `json:"total_count"`

	// AllCompleted - завершена ли вся сага.
	AllCompleted bool `json:"all_completed"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// SagaViewCache кеширует собранную карту саги.
type SagaViewCache interface {
	// GetView возвращает закешированную карту; любая ошибка трактуется
	// обработчиком как промах кеша.
	GetView(ctx context.Context, learnerID catalog.LearnerID) (*GetSagaViewResult, error)

	// SetView сохраняет карту в кеш.
	SetView(ctx context.Context, learnerID catalog.LearnerID, view *GetSagaViewResult) error

	// InvalidateView удаляет карту из кеша.
	InvalidateView(ctx context.Context, learnerID catalog.LearnerID) error
}

// GetSagaViewHandler обрабатывает запросы на получение карты саги.
type GetSagaViewHandler struct {
	resolver     *catalog.Resolver
	progressRepo progression.Repository
	cache        SagaViewCache
	publisher    shared.EventPublisher
	log          *logger.Logger
}

// NewGetSagaViewHandler создаёт новый обработчик запроса карты саги.
// Кеш опционален: при nil все запросы идут в хранилище.
func NewGetSagaViewHandler(
	resolver *catalog.Resolver,
	progressRepo progression.Repository,
	cache SagaViewCache,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *GetSagaViewHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetSagaViewHandler{
		resolver:     resolver,
		progressRepo: progressRepo,
		cache:        cache,
		publisher:    publisher,
		log:          log.With(logger.Component("saga_view")),
	}
}

// Handle выполняет запрос карты саги.
func (h *GetSagaViewHandler) Handle(ctx context.Context, query GetSagaViewQuery) (*GetSagaViewResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetSagaView", shared.ErrValidation, err.Error(), err)
	}

	learnerID := catalog.LearnerID(query.LearnerID)

	// Попытка получить из кеша
	if h.cache != nil && !query.SkipCache {
		if view, err := h.cache.GetView(ctx, learnerID); err == nil {
			return view, nil
		}
	}

	resolved, err := h.resolver.Resolve(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	records, err := h.progressRepo.GetRecords(ctx, learnerID, resolved.Kind)
	if err != nil {
		return nil, shared.WrapError("query", "GetSagaView", shared.ErrExternalService, "failed to read progress", err)
	}

	derived := progression.DeriveStatuses(resolved.Chapters, records)
	h.reportAnomalies(query.LearnerID, resolved.Kind, derived.Anomalies)

	result := buildSagaView(query.LearnerID, resolved.Kind, derived)

	if h.cache != nil {
		if err := h.cache.SetView(ctx, learnerID, result); err != nil {
			// Кеш не критичен - логируем и отдаём результат
			h.log.Warn("failed to cache saga view",
				logger.LearnerID(query.LearnerID),
				logger.Err(err),
			)
		}
	}

	return result, nil
}

// reportAnomalies логирует расхождения между хранимым и производным статусом.
func (h *GetSagaViewHandler) reportAnomalies(learnerID string, kind catalog.Kind, anomalies []progression.Anomaly) {
	for _, a := range anomalies {
		h.log.Warn("stored status contradicts chapter order, derivation wins",
			logger.LearnerID(learnerID),
			logger.ChapterID(a.ChapterID.String()),
			logger.ChapterNum(a.ChapterNumber),
			logger.String("stored", a.StoredStatus.String()),
			logger.String("derived", a.DerivedStatus.String()),
		)
		if h.publisher != nil {
			_ = h.publisher.Publish(shared.NewIntegrityAnomalyEvent(
				learnerID, kind.String(), a.ChapterID.String(),
				a.ChapterNumber, a.StoredStatus.String(), a.DerivedStatus.String(),
			))
		}
	}
}

// buildSagaView собирает итоговый результат из производного состояния.
func buildSagaView(learnerID string, kind catalog.Kind, derived progression.Derived) *GetSagaViewResult {
	nodes := make([]SagaNodeDTO, len(derived.Views))
	completed := 0
	activeID := ""

	for i := range derived.Views {
		v := &derived.Views[i]
		nodes[i] = toSagaNodeDTO(v)
		switch v.Status {
		case progression.StatusCompleted:
			completed++
		case progression.StatusActive:
			activeID = v.Chapter.ID.String()
		}
	}

	return &GetSagaViewResult{
		LearnerID:       learnerID,
		Catalog:         kind.String(),
		Nodes:           nodes,
		ActiveChapterID: activeID,
		CompletedCount:  completed,
		TotalCount:      len(nodes),
		AllCompleted:    len(nodes) > 0 && completed == len(nodes),
		GeneratedAt:     time.Now().UTC(),
	}
}

// toSagaNodeDTO конвертирует доменное представление главы в DTO.
func toSagaNodeDTO(v *progression.ChapterView) SagaNodeDTO {
	dto := SagaNodeDTO{
		ChapterID:            v.Chapter.ID.String(),
		Number:               v.Chapter.Number,
		Title:                v.Chapter.Title,
		Subtitle:             v.Chapter.Subtitle,
		Type:                 string(v.Chapter.Type),
		Status:               v.Status.String(),
		XPReward:             v.Chapter.XPReward,
		XPEarned:             v.XPEarned,
		EstimatedTimeMinutes: v.Chapter.EstimatedTimeMinutes,
		TimeSpentMinutes:     v.TimeSpentMinutes,
	}

	if v.Chapter.CourseID != nil {
		dto.CourseID = *v.Chapter.CourseID
	}
	if v.Chapter.Action != nil {
		dto.Action = &SagaActionDTO{
			Type:   string(v.Chapter.Action.Type),
			URL:    v.Chapter.Action.URL,
			Params: v.Chapter.Action.Params,
		}
	}
	if v.Record != nil && v.Record.CompletedAt != nil {
		t := *v.Record.CompletedAt
		dto.CompletedAt = &t
	}

	return dto
}
