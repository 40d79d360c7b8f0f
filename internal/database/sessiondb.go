package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/seocrawl/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "seocrawl.db"

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SessionDB stores crawl sessions.
type SessionDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures SessionDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the session database in dbDir.
func Open(dbDir string, opts Options) (*SessionDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		}
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	// The pragma is applied to every pooled connection.
	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
	}
	dsn := dbPath + "?mode=" + mode + "&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &SessionDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return sdb, nil
}

// Path returns the database file path.
func (s *SessionDB) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SessionDB) Close() error {
	return s.db.Close()
}

func (s *SessionDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		start_url TEXT NOT NULL,
		state TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		pages INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		stats_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_start_url ON sessions(start_url);

	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		depth INTEGER NOT NULL,
		title TEXT,
		hash TEXT,
		result_json TEXT NOT NULL,
		UNIQUE(session_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_session ON pages(session_id);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Session is the stored summary of one crawl.
type Session struct {
	// ID is the session UUID.
	ID string

	// StartURL is the normalized start URL.
	StartURL string

	// State is the crawler state the crawl ended in.
	State string

	StartedAt  time.Time
	FinishedAt time.Time

	// Stats are the crawl counters.
	Stats model.CrawlStats
}

// SaveSession stores stats and results as a new session and returns its id.
func (s *SessionDB) SaveSession(ctx context.Context, stats model.CrawlStats, results []*model.CrawlResult) (string, error) {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("failed to serialize stats: %w", err)
	}

	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO sessions (id, start_url, state, started_at, finished_at, pages, errors, stats_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		stats.StartURL,
		stats.State,
		formatTime(stats.StartedAt),
		formatTime(stats.FinishedAt),
		stats.PagesCrawled,
		stats.Errors,
		string(statsJSON),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO pages (session_id, position, url, status_code, depth, title, hash, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id, url) DO NOTHING`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range results {
		resultJSON, err := json.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("failed to serialize result %s: %w", r.URL, err)
		}
		if _, err := stmt.ExecContext(ctx, id, i, r.URL, r.StatusCode, r.Depth, r.Title, r.Hash, string(resultJSON)); err != nil {
			return "", fmt.Errorf("failed to insert page %s: %w", r.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit session: %w", err)
	}
	return id, nil
}

// ListSessions returns sessions newest first. A non-empty startURL limits
// the list to that start URL; limit <= 0 returns all of them.
func (s *SessionDB) ListSessions(ctx context.Context, startURL string, limit int) ([]Session, error) {
	query := `SELECT id, start_url, state, started_at, finished_at, stats_json FROM sessions WHERE 1=1`
	args := make([]any, 0, 2)

	if startURL != "" {
		query += " AND start_url = ?"
		args = append(args, startURL)
	}
	query += " ORDER BY seq DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// GetSession returns the session with id.
func (s *SessionDB) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, start_url, state, started_at, finished_at, stats_json
	FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, err
}

// GetResults returns the stored results of a session in crawl order.
func (s *SessionDB) GetResults(ctx context.Context, sessionID string) ([]*model.CrawlResult, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT result_json FROM pages
	WHERE session_id = ?
	ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	var results []*model.CrawlResult
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		var r model.CrawlResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("failed to parse result: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// DeleteSession removes a session and its pages.
func (s *SessionDB) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// HasRecentSession reports whether startURL was crawled within d.
func (s *SessionDB) HasRecentSession(ctx context.Context, startURL string, d time.Duration) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM sessions
	WHERE start_url = ? AND finished_at > ?`,
		startURL, formatTime(time.Now().Add(-d)),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent session: %w", err)
	}
	return count > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		sess              Session
		started, finished string
		statsJSON         string
	)
	if err := row.Scan(&sess.ID, &sess.StartURL, &sess.State, &started, &finished, &statsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	sess.StartedAt = parseTimestamp(started)
	sess.FinishedAt = parseTimestamp(finished)
	if err := json.Unmarshal([]byte(statsJSON), &sess.Stats); err != nil {
		return nil, fmt.Errorf("failed to parse stats: %w", err)
	}
	return &sess, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// timestampFormats are the layouts parseTimestamp accepts, most specific first.
var timestampFormats = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp returns the zero time for empty or unknown input.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
