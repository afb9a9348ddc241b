package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"

	_ "modernc.org/sqlite"
)

const defaultHistoryLimit = 100

// SQLite implements Storage on an SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLite) SaveBalance(ctx context.Context, r *model.BalanceRecord) error {
	s.fill(&r.ID, &r.Timestamp)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO balance_history (id, project_id, project_name, provider, balance, threshold, currency, balance_type, need_alarm, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.ProjectName, r.Provider, r.Balance, r.Threshold,
		r.Currency, string(r.Kind), r.NeedAlarm, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert balance record: %w", err)
	}
	return nil
}

func (s *SQLite) SaveAlert(ctx context.Context, r *model.AlertRecord) error {
	s.fill(&r.ID, &r.Timestamp)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_history (id, project_id, project_name, alert_type, status, message, balance_value, threshold_value, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.ProjectName, r.AlertType, string(r.Status), r.Message,
		r.BalanceValue, r.ThresholdValue, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert alert record: %w", err)
	}
	return nil
}

func (s *SQLite) SaveSubscription(ctx context.Context, r *model.SubscriptionRecord) error {
	s.fill(&r.ID, &r.Timestamp)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscription_history (id, subscription_id, subscription_name, cycle_type, days_until_renewal, amount, currency, need_renewal, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SubscriptionID, r.Name, string(r.CycleType), r.DaysUntilRenewal,
		r.Amount, r.Currency, r.NeedRenewal, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert subscription record: %w", err)
	}
	return nil
}

func (s *SQLite) BalanceHistory(ctx context.Context, filter model.HistoryFilter) ([]model.BalanceRecord, error) {
	query := `SELECT id, project_id, project_name, provider, balance, threshold, currency, balance_type, need_alarm, timestamp
		FROM balance_history`
	where, args := buildWhereClause(filter, false)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limitOf(filter))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query balance history: %w", err)
	}
	defer rows.Close()

	var records []model.BalanceRecord
	for rows.Next() {
		r, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLite) AlertHistory(ctx context.Context, filter model.HistoryFilter) ([]model.AlertRecord, error) {
	query := `SELECT id, project_id, project_name, alert_type, status, message, balance_value, threshold_value, timestamp
		FROM alert_history`
	where, args := buildWhereClause(filter, true)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limitOf(filter))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var records []model.AlertRecord
	for rows.Next() {
		var r model.AlertRecord
		var status string
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.ProjectName, &r.AlertType, &status, &r.Message,
			&r.BalanceValue, &r.ThresholdValue, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		r.Status = model.AlertStatus(status)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLite) BalanceTrend(ctx context.Context, projectID string, days int) (*model.BalanceTrend, error) {
	query := `SELECT id, project_id, project_name, provider, balance, threshold, currency, balance_type, need_alarm, timestamp
		FROM balance_history WHERE project_id = ?`
	args := []any{projectID}
	if since := model.DaysAgo(s.now(), days); !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since)
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query balance trend: %w", err)
	}
	defer rows.Close()

	var records []model.BalanceRecord
	for rows.Next() {
		r, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return Trend(projectID, days, records), nil
}

func (s *SQLite) IsMessageSeen(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_messages WHERE message_key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("look up seen message: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) MarkMessageSeen(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_messages (message_key, seen_at) VALUES (?, ?)`, key, s.now())
	if err != nil {
		return false, fmt.Errorf("mark message seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLite) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, stmt := range []string{
		"DELETE FROM balance_history WHERE timestamp < ?",
		"DELETE FROM alert_history WHERE timestamp < ?",
		"DELETE FROM subscription_history WHERE timestamp < ?",
		"DELETE FROM seen_messages WHERE seen_at < ?",
	} {
		res, err := s.db.ExecContext(ctx, stmt, cutoff.UTC())
		if err != nil {
			return total, fmt.Errorf("cleanup history: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) fill(id *string, ts *time.Time) {
	if *id == "" {
		*id = uuid.New().String()
	}
	if ts.IsZero() {
		*ts = s.now()
	} else {
		*ts = ts.UTC()
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(rows rowScanner) (model.BalanceRecord, error) {
	var r model.BalanceRecord
	var kind string
	if err := rows.Scan(&r.ID, &r.ProjectID, &r.ProjectName, &r.Provider, &r.Balance, &r.Threshold,
		&r.Currency, &kind, &r.NeedAlarm, &r.Timestamp); err != nil {
		return r, fmt.Errorf("scan balance row: %w", err)
	}
	r.Kind = model.BalanceKind(kind)
	return r, nil
}

func limitOf(filter model.HistoryFilter) int {
	if filter.Limit <= 0 {
		return defaultHistoryLimit
	}
	return filter.Limit
}

// buildWhereClause constructs a SQL WHERE clause from a HistoryFilter.
func buildWhereClause(filter model.HistoryFilter, alerts bool) (string, []any) {
	var conditions []string
	var args []any

	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Provider != "" && !alerts {
		conditions = append(conditions, "provider = ?")
		args = append(args, filter.Provider)
	}
	if filter.AlertType != "" && alerts {
		conditions = append(conditions, "alert_type = ?")
		args = append(args, filter.AlertType)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Since.UTC())
	}

	return strings.Join(conditions, " AND "), args
}
