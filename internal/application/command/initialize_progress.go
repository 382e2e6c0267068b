package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
	"github.com/saga-hub/saga-progress-hub/internal/domain/progression"
	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
	"github.com/saga-hub/saga-progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// INITIALIZE PROGRESS COMMAND
// Eagerly materializes the progress record for the learner's first chapter.
// Purely optional: the state machine derives the first chapter as active
// without any stored record, so this only exists to make the active chapter
// visible in raw storage for operational tooling.
// ══════════════════════════════════════════════════════════════════════════════

// InitializeProgressCommand contains the data to bootstrap a learner's saga.
type InitializeProgressCommand struct {
	LearnerID     string
	CorrelationID string
}

// Validate validates the command.
func (c InitializeProgressCommand) Validate() error {
	if c.LearnerID == "" {
		return errors.New("initialize_progress: learner_id is required")
	}
	return nil
}

// InitializeProgressResult contains the result of the bootstrap.
type InitializeProgressResult struct {
	LearnerID string
	ChapterID string
	Catalog   catalog.Kind

	// Created is false when a record already existed (idempotent repeat)
	// or when the catalog resolved empty.
	Created bool

	InitializedAt time.Time
}

// InitializeProgressHandler handles the InitializeProgressCommand.
type InitializeProgressHandler struct {
	resolver     *catalog.Resolver
	progressRepo progression.Repository
	publisher    shared.EventPublisher
	log          *logger.Logger
}

// NewInitializeProgressHandler creates a new InitializeProgressHandler.
func NewInitializeProgressHandler(
	resolver *catalog.Resolver,
	progressRepo progression.Repository,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *InitializeProgressHandler {
	if log == nil {
		log = logger.Default()
	}
	return &InitializeProgressHandler{
		resolver:     resolver,
		progressRepo: progressRepo,
		publisher:    publisher,
		log:          log.With(logger.Component("progress_bootstrap")),
	}
}

// Handle executes the initialize progress command.
func (h *InitializeProgressHandler) Handle(ctx context.Context, cmd InitializeProgressCommand) (*InitializeProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	resolved, err := h.resolver.Resolve(ctx, catalog.LearnerID(cmd.LearnerID))
	if err != nil {
		return nil, fmt.Errorf("initialize_progress: resolving catalog: %w", err)
	}

	result := &InitializeProgressResult{
		LearnerID:     cmd.LearnerID,
		Catalog:       resolved.Kind,
		InitializedAt: time.Now().UTC(),
	}
	if resolved.IsEmpty() {
		return result, nil
	}

	records, err := h.progressRepo.GetRecords(ctx, catalog.LearnerID(cmd.LearnerID), resolved.Kind)
	if err != nil {
		return nil, fmt.Errorf("initialize_progress: reading progress: %w", err)
	}

	derived := progression.DeriveStatuses(resolved.Chapters, records)
	active := derived.ActiveView()
	if active == nil {
		// Everything completed, nothing to materialize.
		return result, nil
	}
	result.ChapterID = active.Chapter.ID.String()
	if active.Record != nil {
		return result, nil
	}

	rec, err := progression.NewRecord(uuid.NewString(), catalog.LearnerID(cmd.LearnerID), active.Chapter.ID, resolved.Kind)
	if err != nil {
		return nil, fmt.Errorf("initialize_progress: creating record: %w", err)
	}
	if err := h.progressRepo.Create(ctx, rec); err != nil {
		if shared.IsAlreadyExists(err) {
			// Concurrent bootstrap won the race, which is the same outcome.
			return result, nil
		}
		return nil, fmt.Errorf("initialize_progress: creating record: %w", err)
	}
	result.Created = true

	if h.publisher != nil {
		event := shared.NewProgressInitializedEvent(cmd.LearnerID, resolved.Kind.String(), active.Chapter.ID.String())
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		_ = h.publisher.Publish(event)
	}

	h.log.Info("saga progress initialized",
		logger.LearnerID(cmd.LearnerID),
		logger.ChapterID(result.ChapterID),
		logger.Catalog(resolved.Kind.String()),
	)
	return result, nil
}
