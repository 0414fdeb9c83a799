package sqlite

import (
	"context"
	"fmt"
	"time"
)

// migration is one versioned schema change. Statements run inside a single
// transaction together with the version bookkeeping row.
type migration struct {
	version string
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: "20260101120000",
		name:    "create_tasks_table",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS simbank_tasks (
				id              TEXT PRIMARY KEY,
				kind            TEXT NOT NULL,
				status          TEXT NOT NULL DEFAULT 'pending',
				schedule_kind   TEXT NOT NULL,
				lineage         TEXT NOT NULL,
				window_start    TEXT NOT NULL,
				window_end      TEXT NOT NULL,
				stage           TEXT,
				seed            INTEGER NOT NULL DEFAULT 0,
				max_retries     INTEGER NOT NULL DEFAULT 3,
				retry_count     INTEGER NOT NULL DEFAULT 0,
				last_error      TEXT,
				next_run_at     TEXT,
				started_at      TEXT,
				completed_at    TEXT,
				last_success_at TEXT,
				created_at      TEXT NOT NULL,
				updated_at      TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_simbank_tasks_kind_status
				ON simbank_tasks (kind, status)`,
			`CREATE INDEX IF NOT EXISTS idx_simbank_tasks_completed
				ON simbank_tasks (completed_at)
				WHERE status IN ('completed', 'failed', 'cancelled')`,
		},
	},
	{
		version: "20260101120001",
		name:    "create_checkpoints_table",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS simbank_checkpoints (
				id         TEXT PRIMARY KEY,
				task_id    TEXT NOT NULL,
				lineage    TEXT NOT NULL,
				codec      TEXT NOT NULL,
				payload    BLOB NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_simbank_checkpoints_lineage
				ON simbank_checkpoints (lineage, created_at DESC, id DESC)`,
		},
	},
	{
		version: "20260101120002",
		name:    "create_validations_table",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS simbank_validations (
				id            TEXT PRIMARY KEY,
				task_id       TEXT NOT NULL,
				entity_type   TEXT NOT NULL,
				total         INTEGER NOT NULL DEFAULT 0,
				passed        INTEGER NOT NULL DEFAULT 0,
				failed        INTEGER NOT NULL DEFAULT 0,
				details       TEXT,
				error_samples TEXT,
				at            TEXT NOT NULL,
				created_at    TEXT NOT NULL,
				updated_at    TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_simbank_validations_task
				ON simbank_validations (task_id, at ASC)`,
		},
	},
	{
		version: "20260101120003",
		name:    "create_records_table",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS simbank_records (
				entity_type TEXT NOT NULL,
				id          TEXT NOT NULL,
				base_id     TEXT NOT NULL,
				at          TEXT NOT NULL,
				fields      TEXT,
				task_id     TEXT NOT NULL,
				written_at  TEXT NOT NULL,
				PRIMARY KEY (entity_type, id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_simbank_records_at
				ON simbank_records (entity_type, at)`,
			`CREATE INDEX IF NOT EXISTS idx_simbank_records_base
				ON simbank_records (entity_type, base_id)`,
		},
	},
}

// Migrate applies all pending schema migrations in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS simbank_schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("simbank/sqlite: create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM simbank_schema_migrations WHERE version = ?`,
			m.version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("simbank/sqlite: check migration %s: %w", m.version, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("simbank/sqlite: begin migration %s: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("simbank/sqlite: migration %s (%s): %w", m.version, m.name, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO simbank_schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.version, m.name, fmtTime(time.Now()),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("simbank/sqlite: record migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("simbank/sqlite: commit migration %s: %w", m.version, err)
		}
		s.logger.Debug("applied migration", "version", m.version, "name", m.name)
	}
	return nil
}
