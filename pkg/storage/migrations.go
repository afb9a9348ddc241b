package storage

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// Migration 1: history tables
	`CREATE TABLE IF NOT EXISTS balance_history (
		id           TEXT PRIMARY KEY,
		project_id   TEXT NOT NULL,
		project_name TEXT NOT NULL,
		provider     TEXT NOT NULL,
		balance      REAL NOT NULL,
		threshold    REAL NOT NULL,
		currency     TEXT NOT NULL DEFAULT '',
		balance_type TEXT NOT NULL DEFAULT 'balance',
		need_alarm   INTEGER NOT NULL DEFAULT 0,
		timestamp    DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_balance_project_time ON balance_history(project_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_balance_provider ON balance_history(provider);
	CREATE INDEX IF NOT EXISTS idx_balance_timestamp ON balance_history(timestamp);

	CREATE TABLE IF NOT EXISTS alert_history (
		id              TEXT PRIMARY KEY,
		project_id      TEXT NOT NULL,
		project_name    TEXT NOT NULL,
		alert_type      TEXT NOT NULL,
		status          TEXT NOT NULL CHECK(status IN ('sent', 'failed', 'skipped')),
		message         TEXT NOT NULL DEFAULT '',
		balance_value   REAL NOT NULL DEFAULT 0,
		threshold_value REAL NOT NULL DEFAULT 0,
		timestamp       DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alert_project_time ON alert_history(project_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_alert_type ON alert_history(alert_type);

	CREATE TABLE IF NOT EXISTS subscription_history (
		id                 TEXT PRIMARY KEY,
		subscription_id    TEXT NOT NULL,
		subscription_name  TEXT NOT NULL,
		cycle_type         TEXT NOT NULL,
		days_until_renewal INTEGER NOT NULL,
		amount             REAL NOT NULL DEFAULT 0,
		currency           TEXT NOT NULL DEFAULT '',
		need_renewal       INTEGER NOT NULL DEFAULT 0,
		timestamp          DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subscription_time ON subscription_history(subscription_id, timestamp);`,

	// Migration 2: mail dedup keys
	`CREATE TABLE IF NOT EXISTS seen_messages (
		message_key TEXT PRIMARY KEY,
		seen_at     DATETIME NOT NULL
	);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
