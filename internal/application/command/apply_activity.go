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
	"github.com/saga-hub/saga-progress-hub/internal/domain/xp"
	"github.com/saga-hub/saga-progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY ACTIVITY COMMAND
// Folds a reported learning activity (a lesson watched, a quiz finished) into
// the target chapter's running totals and applies the completion policy.
// ══════════════════════════════════════════════════════════════════════════════

// ActivityKind defines the kind of learning activity being reported.
type ActivityKind string

const (
	// ActivityLesson - the learner watched (part of) a lesson.
	ActivityLesson ActivityKind = "lesson"

	// ActivityQuiz - the learner submitted a quiz. A quiz submission always
	// completes its chapter regardless of score.
	ActivityQuiz ActivityKind = "quiz"
)

// Outcome is the result classification of applying an activity. Applying an
// activity never fails for "nothing to do": no active chapter and
// already-completed chapters are valid outcomes, not errors.
type Outcome string

const (
	// OutcomeProgressed - totals advanced, no completion threshold crossed.
	OutcomeProgressed Outcome = "progressed"

	// OutcomeCompleted - the chapter is completed (now or previously).
	OutcomeCompleted Outcome = "completed"

	// OutcomeNoActiveChapter - no chapter to apply the activity to.
	OutcomeNoActiveChapter Outcome = "no_active_chapter"
)

// completionRatio is the share of a chapter's XP reward or time estimate
// that completes it. Fast learners finish via time, thorough learners via
// points, and any quiz submission counts as decisive evidence of engagement.
const completionRatio = 0.8

// ApplyActivityCommand contains the data of one reported activity.
type ApplyActivityCommand struct {
	// LearnerID is the learner reporting the activity.
	LearnerID string

	// Kind is the kind of activity (lesson or quiz).
	Kind ActivityKind

	// XPDelta is the XP earned by this activity (>= 0).
	XPDelta int

	// TimeDeltaMinutes is the time spent on this activity (>= 0).
	TimeDeltaMinutes int

	// TargetChapterID optionally pins the chapter; when empty the current
	// active chapter is used.
	TargetChapterID string

	// Timestamp is when the activity occurred (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ApplyActivityCommand) Validate() error {
	if c.LearnerID == "" {
		return errors.New("apply_activity: learner_id is required")
	}
	switch c.Kind {
	case ActivityLesson, ActivityQuiz:
	default:
		return fmt.Errorf("apply_activity: unknown activity kind: %s", c.Kind)
	}
	if c.XPDelta < 0 || c.TimeDeltaMinutes < 0 {
		return errors.New("apply_activity: xp and time deltas must be non-negative")
	}
	return nil
}

// ApplyActivityResult contains the result of applying an activity.
type ApplyActivityResult struct {
	// Outcome classifies what happened.
	Outcome Outcome

	// LearnerID is the learner the activity was applied for.
	LearnerID string

	// ChapterID is the chapter the activity targeted (empty for
	// OutcomeNoActiveChapter).
	ChapterID string

	// Catalog is the catalog kind the learner is served from.
	Catalog catalog.Kind

	// XPEarned / TimeSpentMinutes are the chapter totals after application.
	XPEarned         int
	TimeSpentMinutes int

	// CompletedAt is set when the outcome is OutcomeCompleted.
	CompletedAt *time.Time

	// XPCredited is the amount added to the learner XP total by this call.
	XPCredited int

	// ReconcileFailed reports that the XP total update failed while progress
	// was durably written; the periodic sweep repairs the total later.
	ReconcileFailed bool

	// AppliedAt is when the activity was applied.
	AppliedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ApplyActivityHandler handles the ApplyActivityCommand.
//
// Per-learner updates are serialized through optimistic concurrency: the
// progress write is conditioned on the record version observed at read time.
// On a conflict the whole decision is re-read and retried once; a second
// conflict surfaces as a transient failure the caller may retry.
type ApplyActivityHandler struct {
	resolver     *catalog.Resolver
	progressRepo progression.Repository
	reconciler   *XPReconciler
	publisher    shared.EventPublisher
	log          *logger.Logger
}

// NewApplyActivityHandler creates a new ApplyActivityHandler.
func NewApplyActivityHandler(
	resolver *catalog.Resolver,
	progressRepo progression.Repository,
	reconciler *XPReconciler,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *ApplyActivityHandler {
	if log == nil {
		log = logger.Default()
	}
	return &ApplyActivityHandler{
		resolver:     resolver,
		progressRepo: progressRepo,
		reconciler:   reconciler,
		publisher:    publisher,
		log:          log.With(logger.Component("activity_aggregator")),
	}
}

// Handle executes the apply activity command.
func (h *ApplyActivityHandler) Handle(ctx context.Context, cmd ApplyActivityCommand) (*ApplyActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	resolved, err := h.resolver.Resolve(ctx, catalog.LearnerID(cmd.LearnerID))
	if err != nil {
		return nil, fmt.Errorf("apply_activity: resolving catalog: %w", err)
	}

	// One retry on an optimistic-concurrency conflict: re-read the records
	// and redo the completion decision against the fresh totals.
	var result *ApplyActivityResult
	for attempt := 1; ; attempt++ {
		result, err = h.apply(ctx, cmd, resolved, timestamp)
		if err == nil {
			break
		}
		if shared.IsConflict(err) && attempt == 1 {
			h.log.Warn("progress write conflict, retrying decision",
				logger.LearnerID(cmd.LearnerID),
				logger.String("chapter_id", cmd.TargetChapterID),
			)
			continue
		}
		return nil, err
	}

	h.log.Info("activity applied",
		logger.LearnerID(cmd.LearnerID),
		logger.ChapterID(result.ChapterID),
		logger.Catalog(result.Catalog.String()),
		logger.Outcome(string(result.Outcome)),
		logger.XPAmount(result.XPCredited),
	)
	return result, nil
}

// apply performs one read-decide-write pass.
func (h *ApplyActivityHandler) apply(ctx context.Context, cmd ApplyActivityCommand, resolved catalog.Resolved, timestamp time.Time) (*ApplyActivityResult, error) {
	result := &ApplyActivityResult{
		Outcome:   OutcomeNoActiveChapter,
		LearnerID: cmd.LearnerID,
		Catalog:   resolved.Kind,
		AppliedAt: timestamp,
	}

	if resolved.IsEmpty() {
		return result, nil
	}

	records, err := h.progressRepo.GetRecords(ctx, catalog.LearnerID(cmd.LearnerID), resolved.Kind)
	if err != nil {
		return nil, fmt.Errorf("apply_activity: reading progress: %w", err)
	}

	derived := progression.DeriveStatuses(resolved.Chapters, records)
	h.reportAnomalies(cmd.LearnerID, resolved.Kind, derived.Anomalies)

	// Target resolution: explicit chapter wins, otherwise the active one.
	var view *progression.ChapterView
	if cmd.TargetChapterID != "" {
		view = derived.ViewByChapter(catalog.ChapterID(cmd.TargetChapterID))
	} else {
		view = derived.ActiveView()
	}
	if view == nil {
		return result, nil
	}

	chapter := view.Chapter
	result.ChapterID = chapter.ID.String()

	// Idempotent re-entry: activity against a completed chapter mutates
	// nothing. The record check also covers a completed record on a chapter
	// the derivation shows locked (reported above as an anomaly); re-entry
	// stays a no-op there too instead of tripping over the completed record.
	if view.Status == progression.StatusCompleted || (view.Record != nil && view.Record.IsCompleted()) {
		result.Outcome = OutcomeCompleted
		result.XPEarned = view.XPEarned
		result.TimeSpentMinutes = view.TimeSpentMinutes
		if view.Record != nil {
			result.CompletedAt = view.Record.CompletedAt
		}
		return result, nil
	}

	rec := view.Record
	if rec == nil {
		rec, err = h.createRecord(ctx, cmd, resolved.Kind, chapter.ID)
		if err != nil {
			return nil, err
		}
	}
	priorCredited := rec.XPEarned

	newXP := rec.XPEarned + cmd.XPDelta
	newTime := rec.TimeSpentMinutes + cmd.TimeDeltaMinutes

	if completes(cmd.Kind, chapter, newXP, newTime) {
		return h.complete(ctx, cmd, rec, chapter, result, newXP, newTime, priorCredited, timestamp)
	}
	return h.progress(ctx, cmd, rec, result)
}

// completes applies the completion policy: 80% of the XP reward, or 80% of
// the time estimate, or any quiz submission.
func completes(kind ActivityKind, chapter *catalog.Chapter, newXP, newTime int) bool {
	return float64(newXP) >= completionRatio*float64(chapter.XPReward) ||
		float64(newTime) >= completionRatio*float64(chapter.EstimatedTimeMinutes) ||
		kind == ActivityQuiz
}

// complete runs the completion transition: the record flips to completed and
// the learner total is credited with the chapter's cumulative XP minus what
// incremental calls already credited. The next chapter needs no unlock
// write - it derives as active on the next read.
func (h *ApplyActivityHandler) complete(
	ctx context.Context,
	cmd ApplyActivityCommand,
	rec *progression.Record,
	chapter *catalog.Chapter,
	result *ApplyActivityResult,
	newXP, newTime, priorCredited int,
	timestamp time.Time,
) (*ApplyActivityResult, error) {
	if err := rec.Complete(newXP, newTime, timestamp); err != nil {
		return nil, fmt.Errorf("apply_activity: completing chapter: %w", err)
	}

	ledgerDelta := newXP - priorCredited
	if ledgerDelta < 0 {
		ledgerDelta = 0
	}

	err := h.progressRepo.CompleteTransactional(ctx, rec, ledgerDelta)
	switch {
	case err == nil:
		result.XPCredited = ledgerDelta
	case errors.Is(err, shared.ErrReconciliationFailure):
		// Progress is durable, the inline credit is not. Second step of the
		// two-step completion: retry the credit through the reconciler as a
		// lump sum net of what incremental calls already counted.
		rerr := h.reconciler.Reconcile(ctx, xp.Request{
			LearnerID:       rec.LearnerID,
			Mode:            xp.ModeLumpSum,
			Amount:          newXP,
			AlreadyCredited: priorCredited,
		})
		if rerr == nil {
			result.XPCredited = ledgerDelta
			break
		}
		// Both credit paths down; the reconciliation sweep repairs the total.
		result.ReconcileFailed = true
		if h.publisher != nil {
			_ = h.publisher.Publish(shared.NewReconcileFailedEvent(cmd.LearnerID, chapter.ID.String(), ledgerDelta, rerr.Error()))
		}
		h.log.Error("chapter completed but XP credit failed",
			logger.LearnerID(cmd.LearnerID),
			logger.ChapterID(chapter.ID.String()),
			logger.XPAmount(ledgerDelta),
			logger.Err(rerr),
		)
	default:
		return nil, fmt.Errorf("apply_activity: completing chapter: %w", err)
	}

	result.Outcome = OutcomeCompleted
	result.XPEarned = newXP
	result.TimeSpentMinutes = newTime
	result.CompletedAt = rec.CompletedAt

	if h.publisher != nil {
		event := shared.NewChapterCompletedEvent(
			cmd.LearnerID, rec.Catalog.String(), chapter.ID.String(),
			chapter.Number, newXP, newTime, *rec.CompletedAt,
		)
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		_ = h.publisher.Publish(event)
	}
	return result, nil
}

// progress runs the non-completion path: persist the new totals and credit
// the delta incrementally. This path must never re-report XP that a later
// lump sum will include, which is why only the delta goes to the reconciler.
func (h *ApplyActivityHandler) progress(
	ctx context.Context,
	cmd ApplyActivityCommand,
	rec *progression.Record,
	result *ApplyActivityResult,
) (*ApplyActivityResult, error) {
	if err := rec.AddActivity(cmd.XPDelta, cmd.TimeDeltaMinutes); err != nil {
		return nil, fmt.Errorf("apply_activity: folding activity: %w", err)
	}
	if err := h.progressRepo.UpdateCAS(ctx, rec); err != nil {
		return nil, fmt.Errorf("apply_activity: writing progress: %w", err)
	}

	err := h.reconciler.Reconcile(ctx, xp.Request{
		LearnerID: rec.LearnerID,
		Mode:      xp.ModeIncremental,
		Amount:    cmd.XPDelta,
	})
	if err != nil {
		// Non-fatal: progress is durable, the sweep repairs the total.
		result.ReconcileFailed = true
		if h.publisher != nil {
			_ = h.publisher.Publish(shared.NewReconcileFailedEvent(cmd.LearnerID, rec.ChapterID.String(), cmd.XPDelta, err.Error()))
		}
	} else {
		result.XPCredited = cmd.XPDelta
	}

	result.Outcome = OutcomeProgressed
	result.XPEarned = rec.XPEarned
	result.TimeSpentMinutes = rec.TimeSpentMinutes

	if h.publisher != nil {
		event := shared.NewProgressUpdatedEvent(
			cmd.LearnerID, rec.Catalog.String(), rec.ChapterID.String(),
			rec.XPEarned, rec.TimeSpentMinutes,
		)
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		_ = h.publisher.Publish(event)
	}
	return result, nil
}

// createRecord lazily creates the progress record on first activity.
func (h *ApplyActivityHandler) createRecord(ctx context.Context, cmd ApplyActivityCommand, kind catalog.Kind, chapterID catalog.ChapterID) (*progression.Record, error) {
	rec, err := progression.NewRecord(uuid.NewString(), catalog.LearnerID(cmd.LearnerID), chapterID, kind)
	if err != nil {
		return nil, fmt.Errorf("apply_activity: creating record: %w", err)
	}
	if err := h.progressRepo.Create(ctx, rec); err != nil {
		if shared.IsAlreadyExists(err) {
			// Lost a creation race; treat as a conflict so the caller
			// re-reads and retries against the stored record.
			return nil, shared.ErrProgressConflict
		}
		return nil, fmt.Errorf("apply_activity: creating record: %w", err)
	}
	return rec, nil
}

// reportAnomalies logs derivation anomalies and publishes observability events.
func (h *ApplyActivityHandler) reportAnomalies(learnerID string, kind catalog.Kind, anomalies []progression.Anomaly) {
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
