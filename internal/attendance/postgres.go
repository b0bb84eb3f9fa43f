package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresShard persists the date-partitioned log collection in Postgres.
// One table keyed by (date_key, id) stands in for the per-date document
// subcollections of the original layout.
type PostgresShard struct {
	db *sql.DB
}

// NewPostgresShard creates the sharded store.
func NewPostgresShard(db *sql.DB) *PostgresShard {
	return &PostgresShard{db: db}
}

// Append writes a log row under the date partition.
func (p *PostgresShard) Append(ctx context.Context, dateKey, id string, l Log) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO attendance_day_logs (date_key, id, uid, card_id, log_type, memo, ts)
		VALUES ($1,$2,$3,NULLIF($4,''),$5,NULLIF($6,''),$7)
		ON CONFLICT (date_key, id) DO NOTHING
	`, dateKey, id, l.UID, l.CardID, string(l.Type), l.Memo, l.Timestamp)
	return err
}

// DateLogs returns all logs of one partition.
func (p *PostgresShard) DateLogs(ctx context.Context, dateKey string) ([]Log, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, uid, card_id, log_type, memo, ts
		FROM attendance_day_logs WHERE date_key = $1
	`, dateKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogs(rows)
}

// UserLogsOnDate returns one user's logs in the partition, newest first.
func (p *PostgresShard) UserLogsOnDate(ctx context.Context, dateKey, uid string) ([]Log, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, uid, card_id, log_type, memo, ts
		FROM attendance_day_logs WHERE date_key = $1 AND uid = $2
		ORDER BY ts DESC
	`, dateKey, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogs(rows)
}

// PostgresLegacy reads the flat pre-sharding log table. Read-only: the
// migration left it frozen and new logs only land in the sharded layout.
type PostgresLegacy struct {
	db *sql.DB
}

// NewPostgresLegacy creates the legacy store.
func NewPostgresLegacy(db *sql.DB) *PostgresLegacy {
	return &PostgresLegacy{db: db}
}

// UserLogs returns a user's legacy logs in [from, to], newest first.
func (p *PostgresLegacy) UserLogs(ctx context.Context, uid string, from, to time.Time, limit int) ([]Log, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, uid, card_id, log_type, memo, ts
		FROM attendance_logs
		WHERE uid = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts DESC LIMIT $4
	`, uid, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogs(rows)
}

// LatestForUser returns the user's newest legacy log, or nil.
func (p *PostgresLegacy) LatestForUser(ctx context.Context, uid string) (*Log, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, uid, card_id, log_type, memo, ts
		FROM attendance_logs WHERE uid = $1
		ORDER BY ts DESC LIMIT 1
	`, uid)
	l, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// RangeLogs returns all legacy logs in [from, to], newest first.
func (p *PostgresLegacy) RangeLogs(ctx context.Context, from, to time.Time) ([]Log, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, uid, card_id, log_type, memo, ts
		FROM attendance_logs WHERE ts >= $1 AND ts <= $2
		ORDER BY ts DESC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogs(rows)
}

func scanLog(row interface{ Scan(...any) error }) (Log, error) {
	var (
		l            Log
		cardID, memo sql.NullString
		logType      string
	)
	if err := row.Scan(&l.ID, &l.UID, &cardID, &logType, &memo, &l.Timestamp); err != nil {
		return Log{}, err
	}
	l.CardID = cardID.String
	l.Memo = memo.String
	l.Type = Type(logType)
	return l, nil
}

func scanLogs(rows *sql.Rows) ([]Log, error) {
	var logs []Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
