// Package journal records command outcomes in SQLite for later inspection.
//
// It is an audit trail only: commands still waiting in the sender queue are
// never written here and nothing is replayed on restart.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusDropped   Status = "dropped"
	StatusRejected  Status = "rejected"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) valid() bool {
	switch s {
	case StatusDropped, StatusRejected, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

const maxErrorBytes = 4 * 1024

// Entry is one recorded outcome.
type Entry struct {
	Seq        int64         `json:"seq"`
	CommandID  string        `json:"command_id"`
	Name       string        `json:"name"`
	Status     Status        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Journal writes to the command_log table.
type Journal struct {
	db *sql.DB
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Record appends e. RecordedAt defaults to now.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.CommandID == "" {
		return errors.New("command id is empty")
	}
	if !e.Status.valid() {
		return fmt.Errorf("invalid status: %q", e.Status)
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	var errVal any
	if e.Error != "" {
		msg := e.Error
		if len(msg) > maxErrorBytes {
			msg = msg[:maxErrorBytes]
		}
		errVal = msg
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO command_log(command_id, name, status, error, duration_ms, recorded_at)
VALUES(?, ?, ?, ?, ?, ?);
`, e.CommandID, e.Name, e.Status, errVal, e.Duration.Milliseconds(), e.RecordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert command_log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT seq, command_id, name, status, error, duration_ms, recorded_at
FROM command_log
ORDER BY seq DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query command_log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			status     string
			errMsg     sql.NullString
			durationMS int64
			recordedAt string
		)
		if err := rows.Scan(&e.Seq, &e.CommandID, &e.Name, &status, &errMsg, &durationMS, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan command_log: %w", err)
		}
		e.Status = Status(status)
		if errMsg.Valid {
			e.Error = errMsg.String
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			e.RecordedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command_log: %w", err)
	}
	return out, nil
}

// Counts returns the number of entries per status.
func (j *Journal) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM command_log GROUP BY status;`)
	if err != nil {
		return nil, fmt.Errorf("count command_log: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan command_log counts: %w", err)
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

// Prune deletes entries older than retention and returns how many went.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339Nano)
	res, err := j.db.ExecContext(ctx, `DELETE FROM command_log WHERE recorded_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune command_log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
