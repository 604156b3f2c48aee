// Package journal keeps a local append-only SQLite record of everything an
// executor reported for its task.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/buildexecutor/internal/errors"
)

// Entry kinds.
const (
	KindStatus   = "status"
	KindProgress = "progress"
)

// Entry is one journaled record.
type Entry struct {
	Seq       int64
	ID        string
	TaskID    string
	Kind      string
	Timestamp time.Time
	Payload   []byte
}

// Store is a SQLite-backed journal.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the journal at path. Use ":memory:" for an
// in-memory journal.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryJournal, errors.SeverityError, "open journal database")
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.CategoryJournal, errors.SeverityError, "initialize journal schema")
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id TEXT NOT NULL UNIQUE,
		task_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_journal_task ON journal(task_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records payload under taskID. Non-byte payloads are JSON encoded.
func (s *Store) Append(ctx context.Context, taskID, kind string, payload any) error {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	default:
		var err error
		if data, err = json.Marshal(p); err != nil {
			return fmt.Errorf("marshal journal payload: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO journal (entry_id, task_id, kind, timestamp, payload) VALUES (?, ?, ?, ?, ?)",
		uuid.NewString(), taskID, kind, time.Now().UnixNano(), data,
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryJournal, errors.SeverityWarning, "append journal entry").
			WithContext("task_id", taskID)
	}
	return nil
}

// ByTask returns the entries for taskID in append order.
func (s *Store) ByTask(ctx context.Context, taskID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, entry_id, task_id, kind, timestamp, payload FROM journal WHERE task_id = ? ORDER BY seq",
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.Seq, &e.ID, &e.TaskID, &e.Kind, &ts, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Timestamp = time.Unix(0, ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
