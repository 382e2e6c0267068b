package postgres

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_saga_chapters",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_personalized_saga_chapters",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_saga_progress",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
		{
			Version: 4,
			Name:    "create_learner_xp_totals",
			UpSQL:   migration004Up,
			DownSQL: migration004Down,
		},
	}
}

// Migration 001: default chapter catalog shared by every learner without a
// personalized track.
const migration001Up = `
CREATE TABLE IF NOT EXISTS saga_chapters (
	id TEXT PRIMARY KEY,
	number INTEGER NOT NULL,
	title TEXT NOT NULL,
	subtitle TEXT,
	xp_reward INTEGER NOT NULL CHECK (xp_reward >= 0),
	estimated_time_minutes INTEGER NOT NULL CHECK (estimated_time_minutes >= 0),
	chapter_type TEXT NOT NULL DEFAULT 'video',
	prerequisite_id TEXT REFERENCES saga_chapters(id),
	course_id TEXT,
	action_type TEXT,
	action_url TEXT,
	action_params JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

	CONSTRAINT uq_saga_chapters_number UNIQUE (number)
);

CREATE INDEX IF NOT EXISTS idx_saga_chapters_number ON saga_chapters(number);
`

const migration001Down = `
DROP TABLE IF EXISTS saga_chapters;
`

// Migration 002: personalized catalogs keyed by learner. A learner with rows
// here is served their personalized track instead of the default one.
const migration002Up = `
CREATE TABLE IF NOT EXISTS personalized_saga_chapters (
	id TEXT PRIMARY KEY,
	learner_id TEXT NOT NULL,
	number INTEGER NOT NULL,
	title TEXT NOT NULL,
	subtitle TEXT,
	xp_reward INTEGER NOT NULL CHECK (xp_reward >= 0),
	estimated_time_minutes INTEGER NOT NULL CHECK (estimated_time_minutes >= 0),
	chapter_type TEXT NOT NULL DEFAULT 'video',
	prerequisite_id TEXT,
	course_id TEXT,
	action_type TEXT,
	action_url TEXT,
	action_params JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

	CONSTRAINT uq_personalized_chapters_learner_number UNIQUE (learner_id, number)
);

CREATE INDEX IF NOT EXISTS idx_personalized_chapters_learner
	ON personalized_saga_chapters(learner_id, number);
`

const migration002Down = `
DROP TABLE IF EXISTS personalized_saga_chapters;
`

// Migration 003: per-learner progress records. Status is stored for
// observability but derived on read; version drives optimistic locking.
const migration003Up = `
CREATE TABLE IF NOT EXISTS saga_progress (
	id TEXT PRIMARY KEY,
	learner_id TEXT NOT NULL,
	chapter_id TEXT NOT NULL,
	catalog TEXT NOT NULL CHECK (catalog IN ('default', 'personalized')),
	status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('locked', 'active', 'completed')),
	xp_earned INTEGER NOT NULL DEFAULT 0 CHECK (xp_earned >= 0),
	time_spent_minutes INTEGER NOT NULL DEFAULT 0 CHECK (time_spent_minutes >= 0),
	completed_at TIMESTAMPTZ,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

	CONSTRAINT uq_saga_progress_learner_chapter UNIQUE (learner_id, chapter_id, catalog)
);

CREATE INDEX IF NOT EXISTS idx_saga_progress_learner
	ON saga_progress(learner_id, catalog);
CREATE INDEX IF NOT EXISTS idx_saga_progress_completed
	ON saga_progress(learner_id) WHERE status = 'completed';
`

const migration003Down = `
DROP TABLE IF EXISTS saga_progress;
`

// Migration 004: cumulative XP totals, the ledger the reconciler credits.
const migration004Up = `
CREATE TABLE IF NOT EXISTS learner_xp_totals (
	learner_id TEXT PRIMARY KEY,
	total_xp INTEGER NOT NULL DEFAULT 0 CHECK (total_xp >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migration004Down = `
DROP TABLE IF EXISTS learner_xp_totals;
`
