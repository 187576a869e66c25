// Package history journals task outcomes in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loganrf/OpenGridGen/internal/outcome"
)

// Record is one journaled task outcome.
type Record struct {
	ID        string              `json:"id"`
	Kind      string              `json:"kind"`
	Status    outcome.Status      `json:"status"`
	Reason    outcome.Reason      `json:"reason,omitempty"`
	Message   string              `json:"message,omitempty"`
	Dims      *outcome.Dimensions `json:"dims,omitempty"`
	Duration  time.Duration       `json:"duration"`
	CreatedAt time.Time           `json:"created_at"`
}

// FromOutcome builds the record for a finished task.
func FromOutcome(id, kind string, o outcome.Outcome) Record {
	r := Record{
		ID:        id,
		Kind:      kind,
		Status:    o.Status,
		Reason:    o.Reason,
		Message:   o.Message,
		Duration:  o.Elapsed,
		CreatedAt: time.Now().UTC(),
	}
	if o.Result != nil {
		d := o.Result.Dims
		r.Dims = &d
	}
	return r
}

// Store is the outcome journal.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens the journal at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; the journal is low volume.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS task_outcomes (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		message TEXT,
		dims TEXT,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_task_outcomes_created ON task_outcomes(created_at);
	CREATE INDEX IF NOT EXISTS idx_task_outcomes_status ON task_outcomes(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record journals one outcome. Re-recording an id replaces the row.
func (s *Store) Record(ctx context.Context, r Record) error {
	var dims sql.NullString
	if r.Dims != nil {
		b, err := json.Marshal(r.Dims)
		if err != nil {
			return fmt.Errorf("encode dims: %w", err)
		}
		dims = sql.NullString{String: string(b), Valid: true}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO task_outcomes (id, kind, status, reason, message, dims, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, string(r.Status), string(r.Reason), r.Message, dims,
		r.Duration.Milliseconds(), r.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, status, reason, message, dims, duration_ms, created_at
		FROM task_outcomes ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                Record
			status, reason   string
			message, dims    sql.NullString
			durMs, createdMs int64
		)
		if err := rows.Scan(&r.ID, &r.Kind, &status, &reason, &message, &dims, &durMs, &createdMs); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		r.Status = outcome.Status(status)
		r.Reason = outcome.Reason(reason)
		r.Message = message.String
		r.Duration = time.Duration(durMs) * time.Millisecond
		r.CreatedAt = time.UnixMilli(createdMs).UTC()
		if dims.Valid {
			var d outcome.Dimensions
			if err := json.Unmarshal([]byte(dims.String), &d); err == nil {
				r.Dims = &d
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Counts returns the number of journaled outcomes per status.
func (s *Store) Counts(ctx context.Context) (map[outcome.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM task_outcomes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[outcome.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[outcome.Status(status)] = n
	}
	return counts, rows.Err()
}
