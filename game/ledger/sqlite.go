package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wricardo/mcp-training/solarfarm/game/service"

	_ "modernc.org/sqlite"
)

// SQLiteLedger stores episode summaries in a SQLite database
type SQLiteLedger struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteLedger creates a ledger backed by the database at path. Call Init
// before use.
func NewSQLiteLedger(path string) *SQLiteLedger {
	return &SQLiteLedger{path: path}
}

// Open creates and initialises a ledger in one call
func Open(ctx context.Context, path string) (*SQLiteLedger, error) {
	l := NewSQLiteLedger(path)
	if err := l.Init(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Init opens the database and creates the episodes table if needed
func (l *SQLiteLedger) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.path == "" {
		return errors.New("sqlite path is required")
	}
	if l.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", l.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	l.db = db
	return nil
}

// RecordEpisode inserts one finished episode
func (l *SQLiteLedger) RecordEpisode(ctx context.Context, summary *service.EpisodeSummary) error {
	db, err := l.getDB()
	if err != nil {
		return err
	}
	if summary == nil || summary.ID == "" {
		return ErrInvalidSummary
	}

	var seed sql.NullInt64
	if summary.Seed != nil {
		seed = sql.NullInt64{Int64: *summary.Seed, Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO episodes (
			id, session_id, scenario, episode, steps, score,
			resources_collected, panels_standing, robots, seed, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, summary.ID, summary.SessionID, summary.Scenario, summary.Episode, summary.Steps, summary.Score,
		summary.ResourcesCollected, summary.PanelsStanding, summary.Robots, seed, summary.FinishedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("record episode %s: %w", summary.ID, err)
	}
	return nil
}

// ListEpisodes returns up to limit summaries, newest first. A non-positive
// limit uses DefaultListLimit.
func (l *SQLiteLedger) ListEpisodes(ctx context.Context, limit int) ([]*service.EpisodeSummary, error) {
	db, err := l.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, scenario, episode, steps, score,
			resources_collected, panels_standing, robots, seed, finished_at
		FROM episodes
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?
	`, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*service.EpisodeSummary{}
	for rows.Next() {
		var (
			s        service.EpisodeSummary
			seed     sql.NullInt64
			finished int64
		)
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Scenario, &s.Episode, &s.Steps, &s.Score,
			&s.ResourcesCollected, &s.PanelsStanding, &s.Robots, &seed, &finished); err != nil {
			return nil, err
		}
		if seed.Valid {
			v := seed.Int64
			s.Seed = &v
		}
		s.FinishedAt = time.Unix(0, finished).UTC()
		out = append(out, &s)
	}
	return out, rows.Err()
}

// Close closes the database; the ledger can be re-initialised afterwards
func (l *SQLiteLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

func (l *SQLiteLedger) getDB() (*sql.DB, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.db == nil {
		return nil, ErrNotInitialized
	}
	return l.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			scenario TEXT NOT NULL,
			episode INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			score REAL NOT NULL,
			resources_collected INTEGER NOT NULL,
			panels_standing INTEGER NOT NULL,
			robots INTEGER NOT NULL,
			seed INTEGER,
			finished_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS episodes_finished_at ON episodes(finished_at);
	`)
	return err
}
