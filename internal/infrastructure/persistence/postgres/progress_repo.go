package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
	"github.com/saga-hub/saga-progress-hub/internal/domain/progression"
	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progression.Repository for PostgreSQL.
//
// Writes carry the engine's concurrency discipline: UPDATE statements are
// conditioned on the version column, so a concurrent writer that advanced
// the record since our read turns into zero affected rows rather than a
// silent lost update.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

const progressColumns = `
	id, learner_id, chapter_id, catalog, status, xp_earned,
	time_spent_minutes, completed_at, version, created_at, updated_at
`

// GetRecords returns all progress records for a learner within one catalog kind.
func (r *ProgressRepository) GetRecords(ctx context.Context, learnerID catalog.LearnerID, kind catalog.Kind) ([]*progression.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM saga_progress
		WHERE learner_id = $1 AND catalog = $2
	`, progressColumns)

	rows, err := r.conn.Query(ctx, query, learnerID.String(), kind.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query progress records: %w", err)
	}
	defer rows.Close()

	var records []*progression.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetRecord returns the record for one chapter.
func (r *ProgressRepository) GetRecord(ctx context.Context, learnerID catalog.LearnerID, chapterID catalog.ChapterID, kind catalog.Kind) (*progression.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM saga_progress
		WHERE learner_id = $1 AND chapter_id = $2 AND catalog = $3
	`, progressColumns)

	row := r.conn.QueryRow(ctx, query, learnerID.String(), chapterID.String(), kind.String())
	rec, err := scanRecord(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Create persists a new record.
func (r *ProgressRepository) Create(ctx context.Context, rec *progression.Record) error {
	query := `
		INSERT INTO saga_progress (
			id, learner_id, chapter_id, catalog, status, xp_earned,
			time_spent_minutes, completed_at, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.conn.Exec(ctx, query,
		rec.ID,
		rec.LearnerID.String(),
		rec.ChapterID.String(),
		rec.Catalog.String(),
		rec.Status.String(),
		rec.XPEarned,
		rec.TimeSpentMinutes,
		rec.CompletedAt,
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrRecordAlreadyExists
		}
		return fmt.Errorf("failed to create progress record: %w", err)
	}

	return nil
}

// UpdateCAS persists record changes conditioned on the stored version.
func (r *ProgressRepository) UpdateCAS(ctx context.Context, rec *progression.Record) error {
	query := `
		UPDATE saga_progress SET
			status = $1,
			xp_earned = $2,
			time_spent_minutes = $3,
			completed_at = $4,
			version = version + 1,
			updated_at = $5
		WHERE id = $6 AND version = $7
	`

	result, err := r.conn.Exec(ctx, query,
		rec.Status.String(),
		rec.XPEarned,
		rec.TimeSpentMinutes,
		rec.CompletedAt,
		time.Now().UTC(),
		rec.ID,
		rec.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrProgressConflict
	}

	rec.Version++
	return nil
}

// CompleteTransactional marks the record completed and credits the learner XP
// total in one transaction, conditioned on the record version. The XP upsert
// shares the transaction, so progress and ledger commit or roll back together
// and the two-step fallback never runs against this implementation.
func (r *ProgressRepository) CompleteTransactional(ctx context.Context, rec *progression.Record, ledgerDelta int) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		updateQuery := `
			UPDATE saga_progress SET
				status = $1,
				xp_earned = $2,
				time_spent_minutes = $3,
				completed_at = $4,
				version = version + 1,
				updated_at = $5
			WHERE id = $6 AND version = $7
		`

		result, err := tx.Exec(ctx, updateQuery,
			rec.Status.String(),
			rec.XPEarned,
			rec.TimeSpentMinutes,
			rec.CompletedAt,
			time.Now().UTC(),
			rec.ID,
			rec.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to complete progress record: %w", err)
		}
		if result.RowsAffected() == 0 {
			return shared.ErrProgressConflict
		}

		if ledgerDelta > 0 {
			creditQuery := `
				INSERT INTO learner_xp_totals (learner_id, total_xp, updated_at)
				VALUES ($1, $2, NOW())
				ON CONFLICT (learner_id) DO UPDATE SET
					total_xp = learner_xp_totals.total_xp + EXCLUDED.total_xp,
					updated_at = NOW()
			`
			if _, err := tx.Exec(ctx, creditQuery, rec.LearnerID.String(), ledgerDelta); err != nil {
				return fmt.Errorf("failed to credit XP total: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	rec.Version++
	return nil
}

// LearnersWithCompletions returns learners that have at least one completed record.
func (r *ProgressRepository) LearnersWithCompletions(ctx context.Context) ([]catalog.LearnerID, error) {
	query := `
		SELECT DISTINCT learner_id
		FROM saga_progress
		WHERE status = 'completed'
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query learners with completions: %w", err)
	}
	defer rows.Close()

	var learners []catalog.LearnerID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan learner id: %w", err)
		}
		learners = append(learners, catalog.LearnerID(id))
	}
	return learners, rows.Err()
}

// SumCompletedXP returns the sum of xp_earned over completed records across
// both catalog kinds.
func (r *ProgressRepository) SumCompletedXP(ctx context.Context, learnerID catalog.LearnerID) (int, error) {
	query := `
		SELECT COALESCE(SUM(xp_earned), 0)
		FROM saga_progress
		WHERE learner_id = $1 AND status = 'completed'
	`

	var sum int
	if err := r.conn.QueryRow(ctx, query, learnerID.String()).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum completed XP: %w", err)
	}
	return sum, nil
}

func scanRecord(row pgx.Row) (*progression.Record, error) {
	var (
		rec       progression.Record
		learnerID string
		chapterID string
		kind      string
		status    string
	)

	err := row.Scan(
		&rec.ID,
		&learnerID,
		&chapterID,
		&kind,
		&status,
		&rec.XPEarned,
		&rec.TimeSpentMinutes,
		&rec.CompletedAt,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan progress row: %w", err)
	}

	rec.LearnerID = catalog.LearnerID(learnerID)
	rec.ChapterID = catalog.ChapterID(chapterID)
	rec.Catalog = catalog.Kind(kind)
	rec.Status = progression.Status(status)
	return &rec, nil
}
