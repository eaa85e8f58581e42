package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the recur store (SQLite).
var Migrations = migrate.NewGroup("recur")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_recur_rules",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS recur_rules (
    id                   TEXT PRIMARY KEY,
    organization_id      TEXT NOT NULL,
    base_event_id        TEXT NOT NULL,
    pattern              TEXT NOT NULL,
    start_date           TEXT NOT NULL,
    end_date             TEXT,
    occurrence_limit     INTEGER,
    latest_instance_date TEXT NOT NULL,
    created_at           TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at           TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_recur_rules_checkpoint ON recur_rules (organization_id, latest_instance_date);
CREATE INDEX IF NOT EXISTS idx_recur_rules_created ON recur_rules (organization_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS recur_rules`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_recur_events",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS recur_events (
    id                 TEXT PRIMARY KEY,
    organization_id    TEXT NOT NULL,
    title              TEXT NOT NULL,
    description        TEXT NOT NULL DEFAULT '',
    location           TEXT NOT NULL DEFAULT '',
    creator_id         TEXT NOT NULL DEFAULT '',
    admin_ids          TEXT NOT NULL DEFAULT '[]',
    is_public          INTEGER NOT NULL DEFAULT 0,
    all_day            INTEGER NOT NULL DEFAULT 0,
    start_time         TEXT NOT NULL DEFAULT '',
    end_time           TEXT NOT NULL DEFAULT '',
    occurrence_date    TEXT NOT NULL,
    is_base_template   INTEGER NOT NULL DEFAULT 0,
    recurrence_rule_id TEXT NOT NULL DEFAULT '',
    base_event_id      TEXT NOT NULL DEFAULT '',
    batch_id           TEXT NOT NULL DEFAULT '',
    metadata           TEXT NOT NULL DEFAULT '{}',
    deleted_at         TEXT,
    created_at         TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_recur_events_org_date ON recur_events (organization_id, occurrence_date);
CREATE INDEX IF NOT EXISTS idx_recur_events_rule ON recur_events (recurrence_rule_id);
CREATE INDEX IF NOT EXISTS idx_recur_events_batch ON recur_events (batch_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS recur_events`)
				return err
			},
		},
	)
}
