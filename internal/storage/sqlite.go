package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding transcripts and chunk vectors.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "ttyv.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for the vector index, which lives
// in the same database file so a snapshot captures both tables at once.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Transcripts ---

// SaveTranscript inserts or replaces the document for a video. Refetching
// a video overwrites its previous transcript and resets its status.
func (s *Store) SaveTranscript(doc TranscriptDoc) error {
	fetchedAt := doc.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	status := doc.Status
	if status == "" {
		status = StatusFetched
	}
	_, err := s.db.Exec(`
		INSERT INTO transcripts (video_id, title, published_at, transcript, language, method, status, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			title = excluded.title,
			published_at = excluded.published_at,
			transcript = excluded.transcript,
			language = excluded.language,
			method = excluded.method,
			status = excluded.status,
			fetched_at = excluded.fetched_at`,
		doc.VideoID, doc.Title, formatTime(doc.PublishedAt), doc.Transcript,
		doc.Language, doc.Method, status, fetchedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetTranscript(videoID string) (TranscriptDoc, error) {
	var d TranscriptDoc
	var publishedAt, fetchedAt string
	err := s.db.QueryRow(`
		SELECT video_id, title, published_at, transcript, language, method, status, fetched_at
		FROM transcripts WHERE video_id = ?`, videoID,
	).Scan(&d.VideoID, &d.Title, &publishedAt, &d.Transcript, &d.Language, &d.Method, &d.Status, &fetchedAt)
	if err == sql.ErrNoRows {
		return TranscriptDoc{}, ErrNotFound
	}
	if err != nil {
		return TranscriptDoc{}, err
	}
	if d.PublishedAt, err = parseTime(publishedAt); err != nil {
		return TranscriptDoc{}, fmt.Errorf("parsing published_at: %w", err)
	}
	if d.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return TranscriptDoc{}, fmt.Errorf("parsing fetched_at: %w", err)
	}
	return d, nil
}

// ListTranscripts returns all documents, newest published first.
func (s *Store) ListTranscripts() ([]TranscriptDoc, error) {
	rows, err := s.db.Query(`
		SELECT video_id, title, published_at, transcript, language, method, status, fetched_at
		FROM transcripts ORDER BY published_at DESC, video_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TranscriptDoc
	for rows.Next() {
		var d TranscriptDoc
		var publishedAt, fetchedAt string
		if err := rows.Scan(&d.VideoID, &d.Title, &publishedAt, &d.Transcript, &d.Language, &d.Method, &d.Status, &fetchedAt); err != nil {
			return nil, err
		}
		if d.PublishedAt, err = parseTime(publishedAt); err != nil {
			return nil, fmt.Errorf("parsing published_at: %w", err)
		}
		if d.FetchedAt, err = parseTime(fetchedAt); err != nil {
			return nil, fmt.Errorf("parsing fetched_at: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// CountTranscripts returns the number of stored documents.
func (s *Store) CountTranscripts() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM transcripts").Scan(&n)
	return n, err
}

// HasTranscript reports whether a document exists for the video.
func (s *Store) HasTranscript(videoID string) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM transcripts WHERE video_id = ?", videoID).Scan(&n)
	return n > 0, err
}

// MarkIndexed flips every fetched document to the indexed status. Called
// after a successful index rebuild.
func (s *Store) MarkIndexed() error {
	_, err := s.db.Exec(`UPDATE transcripts SET status = ? WHERE status = ?`, StatusIndexed, StatusFetched)
	return err
}

// DeleteTranscript removes the document for a video.
func (s *Store) DeleteTranscript(videoID string) error {
	res, err := s.db.Exec(`DELETE FROM transcripts WHERE video_id = ?`, videoID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
