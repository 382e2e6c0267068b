package postgres

import (
	"context"
	"fmt"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP LEDGER IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements xp.Ledger for PostgreSQL.
//
// The ledger is a single upserted row per learner. Increments are additive
// and atomic at the statement level; SetIfGreater is a conditional raise used
// by the reconciliation sweep, safe to run at any time because it never
// lowers a total.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

// Increment adds amount to the learner's XP total, creating the row on first
// credit.
func (r *LedgerRepository) Increment(ctx context.Context, learnerID catalog.LearnerID, amount int) error {
	query := `
		INSERT INTO learner_xp_totals (learner_id, total_xp, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (learner_id) DO UPDATE SET
			total_xp = learner_xp_totals.total_xp + EXCLUDED.total_xp,
			updated_at = NOW()
	`

	if _, err := r.conn.Exec(ctx, query, learnerID.String(), amount); err != nil {
		return fmt.Errorf("failed to increment XP total: %w", err)
	}
	return nil
}

// Total returns the learner's XP total, or shared.ErrLearnerTotalNotFound.
func (r *LedgerRepository) Total(ctx context.Context, learnerID catalog.LearnerID) (int, error) {
	query := `
		SELECT total_xp
		FROM learner_xp_totals
		WHERE learner_id = $1
	`

	var total int
	err := r.conn.QueryRow(ctx, query, learnerID.String()).Scan(&total)
	if err != nil {
		if IsNoRows(err) {
			return 0, shared.ErrLearnerTotalNotFound
		}
		return 0, fmt.Errorf("failed to read XP total: %w", err)
	}
	return total, nil
}

// SetIfGreater raises the learner's total to value when the stored total is
// lower, creating the row if absent. Returns true when the total changed.
func (r *LedgerRepository) SetIfGreater(ctx context.Context, learnerID catalog.LearnerID, value int) (bool, error) {
	query := `
		INSERT INTO learner_xp_totals (learner_id, total_xp, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (learner_id) DO UPDATE SET
			total_xp = EXCLUDED.total_xp,
			updated_at = NOW()
		WHERE learner_xp_totals.total_xp < EXCLUDED.total_xp
	`

	result, err := r.conn.Exec(ctx, query, learnerID.String(), value)
	if err != nil {
		return false, fmt.Errorf("failed to raise XP total: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
