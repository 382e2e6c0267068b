package query

import (
	"context"
	"errors"
	"time"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
	"github.com/saga-hub/saga-progress-hub/internal/domain/xp"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET XP TOTAL QUERY
// Отдаёт накопительный итог XP ученика из леджера.
// ══════════════════════════════════════════════════════════════════════════════

// GetXPTotalQuery содержит параметры запроса итога XP.
type GetXPTotalQuery struct {
	// LearnerID - идентификатор ученика.
	LearnerID string
}

// Validate проверяет корректность параметров запроса.
func (q GetXPTotalQuery) Validate() error {
	if q.LearnerID == "" {
		return errors.New("learner_id is required")
	}
	return nil
}

// GetXPTotalResult содержит результат запроса итога XP.
type GetXPTotalResult struct {
	// LearnerID - идентификатор ученика.
	LearnerID string `json:"learner_id"`

	// Total - накопительный итог XP. Ученик без записей имеет итог 0.
	Total int `json:"total"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetXPTotalHandler обрабатывает запросы на получение итога XP.
type GetXPTotalHandler struct {
	ledger xp.Ledger
}

// NewGetXPTotalHandler создаёт новый обработчик запроса итога XP.
func NewGetXPTotalHandler(ledger xp.Ledger) *GetXPTotalHandler {
	return &GetXPTotalHandler{ledger: ledger}
}

// Handle выполняет запрос итога XP.
func (h *GetXPTotalHandler) Handle(ctx context.Context, query GetXPTotalQuery) (*GetXPTotalResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetXPTotal", shared.ErrValidation, err.Error(), err)
	}

	total, err := h.ledger.Total(ctx, catalog.LearnerID(query.LearnerID))
	if err != nil {
		if shared.IsNotFound(err) {
			total = 0
		} else {
			return nil, shared.WrapError("query", "GetXPTotal", shared.ErrExternalService, "failed to read XP total", err)
		}
	}

	return &GetXPTotalResult{
		LearnerID:   query.LearnerID,
		Total:       total,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
