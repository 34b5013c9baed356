package postgres

import (
	"context"

	"github.com/uptrace/bun"
)

// Migrate bootstraps the schema on startup.
func Migrate(ctx context.Context, db *bun.DB) error {
	return applyMigrations(ctx, db)
}

// applyMigrations is kept as plain DDL strings so the integration tests can
// build a throwaway schema without external tooling.
func applyMigrations(ctx context.Context, db bun.IDB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS engagements (
			id UUID PRIMARY KEY,
			client_id TEXT NOT NULL,
			provider_id TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			address TEXT NOT NULL,
			tasks JSONB,
			scheduled_date TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
			preferred_weekday SMALLINT,
			frequency_unit TEXT NOT NULL DEFAULT '',
			frequency_interval INTEGER NOT NULL DEFAULT 0,
			horizon_count INTEGER NOT NULL DEFAULT 0,
			recurrence_series_id UUID,
			recurrence_index INTEGER,
			reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		// One engagement per (series, index); the generator's index-set check
		// is the primary guard, this fences retried runs racing each other.
		`CREATE UNIQUE INDEX IF NOT EXISTS engagements_series_index
			ON engagements (recurrence_series_id, recurrence_index)
			WHERE recurrence_series_id IS NOT NULL AND recurrence_index IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS engagements_scheduled_date ON engagements (scheduled_date)`,
		`CREATE TABLE IF NOT EXISTS time_blocks (
			id UUID PRIMARY KEY,
			provider_id TEXT NOT NULL,
			engagement_id UUID NOT NULL,
			status TEXT NOT NULL,
			service_start TIMESTAMPTZ NOT NULL,
			service_end TIMESTAMPTZ NOT NULL,
			padded_start TIMESTAMPTZ NOT NULL,
			padded_end TIMESTAMPTZ NOT NULL,
			hold_expires_at TIMESTAMPTZ,
			occurrence_index INTEGER NOT NULL DEFAULT 0,
			is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS time_blocks_provider_padded_start
			ON time_blocks (provider_id, padded_start)`,
		`CREATE INDEX IF NOT EXISTS time_blocks_engagement ON time_blocks (engagement_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.NewRaw(stmt).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
