package eventhandler

import (
	"sync"
	"time"

	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
	"github.com/saga-hub/saga-progress-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON INTEGRITY SIGNAL HANDLER
// Собирает сигналы целостности (аномалии статусов, провалы сверки XP) в
// операционный журнал. Счётчики живут в памяти и отдаются в health-эндпоинт;
// ни один сигнал не прерывает запросы учеников.
// ═══════════════════════════════════════════════════════════════════════════

// IntegritySnapshot - срез счётчиков сигналов целостности.
type IntegritySnapshot struct {
	// Anomalies - количество зафиксированных аномалий статусов.
	Anomalies int `json:"anomalies"`

	// ReconcileFailures - количество провалов сверки XP.
	ReconcileFailures int `json:"reconcile_failures"`

	// LastSignalAt - время последнего сигнала (zero, если сигналов не было).
	LastSignalAt time.Time `json:"last_signal_at,omitempty"`
}

// OnIntegritySignalHandler журналирует сигналы целостности и ведёт счётчики.
type OnIntegritySignalHandler struct {
	log *logger.Logger

	mu       sync.Mutex
	snapshot IntegritySnapshot
}

// NewOnIntegritySignalHandler создаёт новый обработчик сигналов целостности.
func NewOnIntegritySignalHandler(log *logger.Logger) *OnIntegritySignalHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnIntegritySignalHandler{
		log: log.With(logger.Component("integrity_audit")),
	}
}

// EventTypes возвращает типы событий, на которые подписан обработчик.
func (h *OnIntegritySignalHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventIntegrityAnomaly,
		shared.EventReconcileFailed,
	}
}

// Handle обрабатывает сигнал целостности.
func (h *OnIntegritySignalHandler) Handle(event shared.Event) error {
	h.mu.Lock()
	switch event.EventType() {
	case shared.EventIntegrityAnomaly:
		h.snapshot.Anomalies++
	case shared.EventReconcileFailed:
		h.snapshot.ReconcileFailures++
	}
	h.snapshot.LastSignalAt = event.OccurredAt()
	h.mu.Unlock()

	fields := []logger.Field{
		logger.String("event_type", string(event.EventType())),
	}
	for key, value := range event.Payload() {
		if s, ok := value.(string); ok {
			fields = append(fields, logger.String(key, s))
		}
	}
	h.log.Warn("integrity signal", fields...)
	return nil
}

// Snapshot возвращает текущий срез счётчиков.
func (h *OnIntegritySignalHandler) Snapshot() IntegritySnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot
}
