// Package journal keeps a SQLite record of duplicate-removal runs and the
// files each run moved, so that a run can be reviewed and undone later.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run id is not in the journal
var ErrRunNotFound = errors.New("journal: run not found")

// Run describes one scan of a source folder
type Run struct {
	ID            int64
	Source        string
	Destination   string
	Similarity    float64
	ThumbnailSize int
	ImagesPerTask int
	StartedAt     time.Time
	FinishedAt    time.Time // zero while the run is in progress
	Scanned       int
	Moved         int
	Bytes         int64
}

// Finished reports whether FinishRun was called for the run
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Move is one duplicate file moved out of the source folder
type Move struct {
	ID          int64
	RunID       int64
	Original    string
	Current     string
	ContentHash string
	CreatedAt   time.Time
	Size        int64
	MovedAt     time.Time
	RestoredAt  time.Time // zero unless the move was undone
}

// Restored reports whether the file was moved back
func (m Move) Restored() bool {
	return !m.RestoredAt.IsZero()
}

// Journal handles persistence of runs and moves
type Journal struct {
	db   *sql.DB
	path string
	log  logrus.FieldLogger
}

// Option configures a Journal
type Option func(*Journal)

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(j *Journal) {
		if l != nil {
			j.log = l
		}
	}
}

// Open opens or creates the journal at path
func Open(path string, opts ...Option) (*Journal, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, path: path, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(j)
	}
	if err := j.init(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the database file location
func (j *Journal) Path() string {
	return j.path
}

const schemaVersion = 2

var migrations = []struct {
	version     int
	description string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "",
	},
	{
		version:     2,
		description: "Track restored moves",
		up: `
			ALTER TABLE moves ADD COLUMN restored_at TEXT;
			CREATE INDEX IF NOT EXISTS idx_moves_restored ON moves(restored_at);
		`,
	},
}

func (j *Journal) init() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		destination TEXT NOT NULL,
		similarity REAL NOT NULL,
		thumbnail_size INTEGER NOT NULL,
		images_per_task INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		scanned INTEGER DEFAULT 0,
		moved INTEGER DEFAULT 0,
		bytes INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS moves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		original TEXT NOT NULL,
		current TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		created_at TEXT NOT NULL,
		size INTEGER NOT NULL,
		moved_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_moves_run_id ON moves(run_id);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := j.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (j *Journal) migrate() error {
	current := j.schemaVersion()

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if m.up == "" {
			j.setSchemaVersion(m.version)
			continue
		}

		if m.version == 2 && j.columnExists("moves", "restored_at") {
			j.setSchemaVersion(m.version)
			continue
		}

		if _, err := j.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}
		j.setSchemaVersion(m.version)
	}
	return nil
}

// SchemaVersion returns the highest applied migration
func (j *Journal) SchemaVersion() int {
	return j.schemaVersion()
}

func (j *Journal) schemaVersion() int {
	var version int
	err := j.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

func (j *Journal) setSchemaVersion(version int) {
	if _, err := j.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version); err != nil {
		j.log.WithError(err).WithField("version", version).Warn("failed to record schema version")
	}
}

func (j *Journal) columnExists(table, column string) bool {
	var count int
	err := j.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

// BeginRun stores r as a new, unfinished run and returns its id
func (j *Journal) BeginRun(r Run) (int64, error) {
	started := r.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	res, err := j.db.Exec(`
		INSERT INTO runs (source, destination, similarity, thumbnail_size, images_per_task, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.Source, r.Destination, r.Similarity, r.ThumbnailSize, r.ImagesPerTask, formatTime(started))
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return res.LastInsertId()
}

// RecordMove stores m under its RunID
func (j *Journal) RecordMove(m Move) error {
	moved := m.MovedAt
	if moved.IsZero() {
		moved = time.Now()
	}
	_, err := j.db.Exec(`
		INSERT INTO moves (run_id, original, current, content_hash, created_at, size, moved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.RunID, m.Original, m.Current, m.ContentHash, formatTime(m.CreatedAt), m.Size, formatTime(moved))
	if err != nil {
		return fmt.Errorf("failed to insert move %s: %w", m.Original, err)
	}
	return nil
}

// FinishRun stores the totals of a run and marks it finished
func (j *Journal) FinishRun(id int64, scanned, moved int, bytes int64) error {
	res, err := j.db.Exec(`
		UPDATE runs SET finished_at = ?, scanned = ?, moved = ?, bytes = ?
		WHERE id = ?
	`, formatTime(time.Now()), scanned, moved, bytes, id)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	return nil
}

const runColumns = `id, source, destination, similarity, thumbnail_size, images_per_task,
	started_at, finished_at, scanned, moved, bytes`

// Runs returns up to limit runs, newest first. A limit <= 0 returns all.
func (j *Journal) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns the run with the given id
func (j *Journal) Run(id int64) (Run, error) {
	row := j.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	var started string
	var finished sql.NullString
	err := s.Scan(
		&r.ID,
		&r.Source,
		&r.Destination,
		&r.Similarity,
		&r.ThumbnailSize,
		&r.ImagesPerTask,
		&started,
		&finished,
		&r.Scanned,
		&r.Moved,
		&r.Bytes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished.String)
	return r, nil
}

// Moves returns the moves of a run in the order they happened
func (j *Journal) Moves(runID int64) ([]Move, error) {
	rows, err := j.db.Query(`
		SELECT id, run_id, original, current, content_hash, created_at, size, moved_at, restored_at
		FROM moves
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query moves: %w", err)
	}
	defer rows.Close()

	var moves []Move
	for rows.Next() {
		var m Move
		var created, moved string
		var restored sql.NullString
		err := rows.Scan(
			&m.ID,
			&m.RunID,
			&m.Original,
			&m.Current,
			&m.ContentHash,
			&created,
			&m.Size,
			&moved,
			&restored,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan move: %w", err)
		}
		m.CreatedAt = parseTime(created)
		m.MovedAt = parseTime(moved)
		m.RestoredAt = parseTime(restored.String)
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// MarkRestored records that the move with the given id was undone
func (j *Journal) MarkRestored(moveID int64) error {
	_, err := j.db.Exec(`UPDATE moves SET restored_at = ? WHERE id = ?`, formatTime(time.Now()), moveID)
	if err != nil {
		return fmt.Errorf("failed to mark move %d restored: %w", moveID, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
