// Package shared contains common domain types, errors, and events
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened in the progression engine.
const (
	// Progression events
	EventProgressInitialized EventType = "saga.progress_initialized"
	EventProgressUpdated     EventType = "saga.progress_updated"
	EventChapterCompleted    EventType = "saga.chapter_completed"
	EventIntegrityAnomaly    EventType = "saga.integrity_anomaly"

	// XP ledger events
	EventXPReconciled       EventType = "saga.xp_reconciled"
	EventReconcileFailed    EventType = "saga.xp_reconcile_failed"
	EventXPTotalsRecomputed EventType = "saga.xp_totals_recomputed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression Events
// ═══════════════════════════════════════════════════════════════════════════

// ProgressInitializedEvent is emitted when a learner's saga progress is bootstrapped.
type ProgressInitializedEvent struct {
	BaseEvent
	LearnerID string `json:"learner_id"`
	Catalog   string `json:"catalog"`
	ChapterID string `json:"chapter_id"`
}

// NewProgressInitializedEvent creates a ProgressInitializedEvent.
func NewProgressInitializedEvent(learnerID, catalog, chapterID string) ProgressInitializedEvent {
	return ProgressInitializedEvent{
		BaseEvent: NewBaseEvent(EventProgressInitialized, learnerID),
		LearnerID: learnerID,
		Catalog:   catalog,
		ChapterID: chapterID,
	}
}

// Payload implements Event interface.
func (e ProgressInitializedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id": e.LearnerID,
		"catalog":    e.Catalog,
		"chapter_id": e.ChapterID,
	}
}

// ProgressUpdatedEvent is emitted when activity advanced a chapter without completing it.
type ProgressUpdatedEvent struct {
	BaseEvent
	LearnerID        string `json:"learner_id"`
	Catalog          string `json:"catalog"`
	ChapterID        string `json:"chapter_id"`
	XPEarned         int    `json:"xp_earned"`
	TimeSpentMinutes int    `json:"time_spent_minutes"`
}

// NewProgressUpdatedEvent creates a ProgressUpdatedEvent.
func NewProgressUpdatedEvent(learnerID, catalog, chapterID string, xpEarned, timeSpent int) ProgressUpdatedEvent {
	return ProgressUpdatedEvent{
		BaseEvent:        NewBaseEvent(EventProgressUpdated, learnerID),
		LearnerID:        learnerID,
		Catalog:          catalog,
		ChapterID:        chapterID,
		XPEarned:         xpEarned,
		TimeSpentMinutes: timeSpent,
	}
}

// Payload implements Event interface.
func (e ProgressUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":         e.LearnerID,
		"catalog":            e.Catalog,
		"chapter_id":         e.ChapterID,
		"xp_earned":          e.XPEarned,
		"time_spent_minutes": e.TimeSpentMinutes,
	}
}

// ChapterCompletedEvent is emitted when a chapter crosses its completion threshold.
type ChapterCompletedEvent struct {
	BaseEvent
	LearnerID        string    `json:"learner_id"`
	Catalog          string    `json:"catalog"`
	ChapterID        string    `json:"chapter_id"`
	ChapterNumber    int       `json:"chapter_number"`
	XPEarned         int       `json:"xp_earned"`
	TimeSpentMinutes int       `json:"time_spent_minutes"`
	CompletedAt      time.Time `json:"completed_at"`
}

// NewChapterCompletedEvent creates a ChapterCompletedEvent.
func NewChapterCompletedEvent(learnerID, catalog, chapterID string, chapterNumber, xpEarned, timeSpent int, completedAt time.Time) ChapterCompletedEvent {
	return ChapterCompletedEvent{
		BaseEvent:        NewBaseEvent(EventChapterCompleted, learnerID),
		LearnerID:        learnerID,
		Catalog:          catalog,
		ChapterID:        chapterID,
		ChapterNumber:    chapterNumber,
		XPEarned:         xpEarned,
		TimeSpentMinutes: timeSpent,
		CompletedAt:      completedAt,
	}
}

// Payload implements Event interface.
func (e ChapterCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":         e.LearnerID,
		"catalog":            e.Catalog,
		"chapter_id":         e.ChapterID,
		"chapter_number":     e.ChapterNumber,
		"xp_earned":          e.XPEarned,
		"time_spent_minutes": e.TimeSpentMinutes,
		"completed_at":       e.CompletedAt,
	}
}

// IntegrityAnomalyEvent is emitted when derived statuses contradict stored ones.
// The derivation wins; the event exists for observability only.
type IntegrityAnomalyEvent struct {
	BaseEvent
	LearnerID     string `json:"learner_id"`
	Catalog       string `json:"catalog"`
	ChapterID     string `json:"chapter_id"`
	ChapterNumber int    `json:"chapter_number"`
	StoredStatus  string `json:"stored_status"`
	DerivedStatus string `json:"derived_status"`
}

// NewIntegrityAnomalyEvent creates an IntegrityAnomalyEvent.
func NewIntegrityAnomalyEvent(learnerID, catalog, chapterID string, chapterNumber int, stored, derived string) IntegrityAnomalyEvent {
	return IntegrityAnomalyEvent{
		BaseEvent:     NewBaseEvent(EventIntegrityAnomaly, learnerID),
		LearnerID:     learnerID,
		Catalog:       catalog,
		ChapterID:     chapterID,
		ChapterNumber: chapterNumber,
		StoredStatus:  stored,
		DerivedStatus: derived,
	}
}

// Payload implements Event interface.
func (e IntegrityAnomalyEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":     e.LearnerID,
		"catalog":        e.Catalog,
		"chapter_id":     e.ChapterID,
		"chapter_number": e.ChapterNumber,
		"stored_status":  e.StoredStatus,
		"derived_status": e.DerivedStatus,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// XP Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// XPReconciledEvent is emitted when the learner XP total was updated.
type XPReconciledEvent struct {
	BaseEvent
	LearnerID string `json:"learner_id"`
	Amount    int    `json:"amount"`
	Mode      string `json:"mode"` // "lump_sum" or "incremental"
}

// NewXPReconciledEvent creates an XPReconciledEvent.
func NewXPReconciledEvent(learnerID string, amount int, mode string) XPReconciledEvent {
	return XPReconciledEvent{
		BaseEvent: NewBaseEvent(EventXPReconciled, learnerID),
		LearnerID: learnerID,
		Amount:    amount,
		Mode:      mode,
	}
}

// Payload implements Event interface.
func (e XPReconciledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id": e.LearnerID,
		"amount":     e.Amount,
		"mode":       e.Mode,
	}
}

// ReconcileFailedEvent is emitted when the XP total update failed after
// progress was durably written. The periodic sweep recovers the total.
type ReconcileFailedEvent struct {
	BaseEvent
	LearnerID string `json:"learner_id"`
	ChapterID string `json:"chapter_id"`
	Amount    int    `json:"amount"`
	Reason    string `json:"reason"`
}

// NewReconcileFailedEvent creates a ReconcileFailedEvent.
func NewReconcileFailedEvent(learnerID, chapterID string, amount int, reason string) ReconcileFailedEvent {
	return ReconcileFailedEvent{
		BaseEvent: NewBaseEvent(EventReconcileFailed, learnerID),
		LearnerID: learnerID,
		ChapterID: chapterID,
		Amount:    amount,
		Reason:    reason,
	}
}

// Payload implements Event interface.
func (e ReconcileFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id": e.LearnerID,
		"chapter_id": e.ChapterID,
		"amount":     e.Amount,
		"reason":     e.Reason,
	}
}

// XPTotalsRecomputedEvent is emitted by the reconciliation sweep.
type XPTotalsRecomputedEvent struct {
	BaseEvent
	LearnersChecked int `json:"learners_checked"`
	TotalsRepaired  int `json:"totals_repaired"`
}

// NewXPTotalsRecomputedEvent creates an XPTotalsRecomputedEvent.
func NewXPTotalsRecomputedEvent(checked, repaired int) XPTotalsRecomputedEvent {
	return XPTotalsRecomputedEvent{
		BaseEvent:       NewBaseEvent(EventXPTotalsRecomputed, "sweep"),
		LearnersChecked: checked,
		TotalsRepaired:  repaired,
	}
}

// Payload implements Event interface.
func (e XPTotalsRecomputedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learners_checked": e.LearnersChecked,
		"totals_repaired":  e.TotalsRepaired,
	}
}

// EventPublisher publishes domain events to interested subscribers.
// Implemented by the infrastructure messaging layer.
type EventPublisher interface {
	Publish(event Event) error
}

// EventHandler handles a domain event.
type EventHandler interface {
	Handle(event Event) error
	EventTypes() []EventType
}
