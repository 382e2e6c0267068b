package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements catalog.Repository for PostgreSQL.
// Chapters are written by catalog setup tooling and read-only here.
type CatalogRepository struct {
	conn *Connection
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

const chapterColumns = `
	id, number, title, subtitle, xp_reward, estimated_time_minutes,
	chapter_type, prerequisite_id, course_id, action_type, action_url, action_params
`

// ListPersonalized returns the learner's personalized chapters ordered by
// number. An empty slice means the learner has no personalized track.
func (r *CatalogRepository) ListPersonalized(ctx context.Context, learnerID catalog.LearnerID) ([]*catalog.Chapter, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM personalized_saga_chapters
		WHERE learner_id = $1
		ORDER BY number
	`, chapterColumns)

	rows, err := r.conn.Query(ctx, query, learnerID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query personalized chapters: %w", err)
	}
	defer rows.Close()

	return scanChapters(rows)
}

// ListDefault returns the shared default chapters ordered by number.
func (r *CatalogRepository) ListDefault(ctx context.Context) ([]*catalog.Chapter, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM saga_chapters
		ORDER BY number
	`, chapterColumns)

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query default chapters: %w", err)
	}
	defer rows.Close()

	return scanChapters(rows)
}

func scanChapters(rows pgx.Rows) ([]*catalog.Chapter, error) {
	var chapters []*catalog.Chapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

func scanChapter(row pgx.Row) (*catalog.Chapter, error) {
	var (
		ch             catalog.Chapter
		id             string
		subtitle       *string
		chapterType    string
		prerequisiteID *string
		actionType     *string
		actionURL      *string
		actionParams   []byte
	)

	err := row.Scan(
		&id,
		&ch.Number,
		&ch.Title,
		&subtitle,
		&ch.XPReward,
		&ch.EstimatedTimeMinutes,
		&chapterType,
		&prerequisiteID,
		&ch.CourseID,
		&actionType,
		&actionURL,
		&actionParams,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan chapter row: %w", err)
	}

	ch.ID = catalog.ChapterID(id)
	ch.Type = catalog.ChapterType(chapterType)
	if subtitle != nil {
		ch.Subtitle = *subtitle
	}
	if prerequisiteID != nil {
		prereq := catalog.ChapterID(*prerequisiteID)
		ch.PrerequisiteID = &prereq
	}
	if actionType != nil {
		action := &catalog.Action{Type: catalog.ActionType(*actionType)}
		if actionURL != nil {
			action.URL = *actionURL
		}
		if len(actionParams) > 0 {
			if err := json.Unmarshal(actionParams, &action.Params); err != nil {
				return nil, fmt.Errorf("failed to unmarshal action params: %w", err)
			}
		}
		ch.Action = action
	}

	return &ch, nil
}
