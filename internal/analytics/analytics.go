// Package analytics records page visits and auth events in a local SQLite
// database. Writes are best effort and never block the request path on
// failure.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS visits (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL,
	user_agent TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS auth_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user TEXT NOT NULL,
	event TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_visits_created_at ON visits(created_at);
CREATE INDEX IF NOT EXISTS idx_auth_events_created_at ON auth_events(created_at);
`

// Store is the SQLite-backed analytics sink. The path can be ":memory:" for
// tests.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewStore(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open analytics database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping analytics database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create analytics schema: %w", err)
	}

	db.SetMaxOpenConns(1)

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordVisit logs one request. Failures are logged and swallowed so a broken
// analytics database never affects API traffic.
func (s *Store) RecordVisit(ctx context.Context, path, userAgent string) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO visits (path, user_agent) VALUES (?, ?)",
		path, userAgent)
	if err != nil {
		s.logger.Warn("Failed to record visit",
			zap.String("path", path),
			zap.Error(err))
	}
}

// RecordAuthEvent logs an auth lifecycle event such as "login",
// "token_refresh" or "token_expired".
func (s *Store) RecordAuthEvent(ctx context.Context, user, event string) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO auth_events (user, event) VALUES (?, ?)",
		user, event)
	if err != nil {
		s.logger.Warn("Failed to record auth event",
			zap.String("event", event),
			zap.Error(err))
	}
}

// Visit is one recorded request.
type Visit struct {
	ID        int64
	Path      string
	UserAgent string
	CreatedAt time.Time
}

// AuthEvent is one recorded auth lifecycle event.
type AuthEvent struct {
	ID        int64
	User      string
	Event     string
	CreatedAt time.Time
}

// RecentVisits returns the newest visits, most recent first.
func (s *Store) RecentVisits(ctx context.Context, limit int) ([]Visit, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, path, user_agent, created_at FROM visits ORDER BY created_at DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits: %w", err)
	}
	defer rows.Close()

	var visits []Visit
	for rows.Next() {
		var visit Visit
		if err := rows.Scan(&visit.ID, &visit.Path, &visit.UserAgent, &visit.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		visits = append(visits, visit)
	}
	return visits, rows.Err()
}

// RecentAuthEvents returns the newest auth events, most recent first.
func (s *Store) RecentAuthEvents(ctx context.Context, limit int) ([]AuthEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user, event, created_at FROM auth_events ORDER BY created_at DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query auth events: %w", err)
	}
	defer rows.Close()

	var events []AuthEvent
	for rows.Next() {
		var event AuthEvent
		if err := rows.Scan(&event.ID, &event.User, &event.Event, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan auth event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// VisitCount returns the total number of recorded visits.
func (s *Store) VisitCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM visits").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return count, nil
}
