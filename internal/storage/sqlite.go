package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"

	"github.com/ryubing/robocop-go/internal/logging"
)

// Status values stored for an analysis.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Storage handles database operations
type Storage struct {
	db  *sql.DB
	log *logging.SecureLogger
	now func() time.Time
}

// Analysis is one accepted log upload and what came of it.
type Analysis struct {
	ID              int64
	RunID           string
	Timestamp       time.Time
	GuildID         string
	ChannelID       string
	MessageID       string
	Author          string
	Filename        string
	UploadBytes     int64
	DownloadBytes   int64
	Status          string // StatusOK or StatusFailed
	ErrorKind       string
	Game            string
	EmulatorVersion string
	OS              string
	CriticalNotes   int
	WarningNotes    int
	Fields          map[string]string
	DurationMs      int64
}

// Filter narrows history queries. Zero values match everything.
type Filter struct {
	GuildID string
	Status  string
}

// Database configuration constants
const (
	// busyTimeoutMs is how long SQLite waits when database is locked (5 seconds)
	busyTimeoutMs = 5000
	// maxOpenConns limits concurrent connections (SQLite works best with 1)
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 30 * time.Minute
)

// New creates a new storage instance
func New(dbPath string, log *logging.SecureLogger) (*Storage, error) {
	if log == nil {
		log = logging.Nop()
	}

	// Create directory if it doesn't exist (0700 for security - owner only)
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// The _busy_timeout pragma prevents "database is locked" errors by waiting
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", dbPath, busyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &Storage{db: db, log: log.Component("storage"), now: time.Now}

	if err := storage.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// currentSchemaVersion is the latest schema version.
// Increment this when adding new migrations
const currentSchemaVersion = 2

// initSchema creates the database schema if it doesn't exist
func (s *Storage) initSchema() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	if err := s.migrateSchema(s.getSchemaVersion()); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// getSchemaVersion returns the current schema version (0 if not set)
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

func (s *Storage) setSchemaVersion(version int) error {
	// Delete existing and insert new (simpler than upsert for single row)
	if _, err := s.db.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return err
	}
	return nil
}

// migrateSchema runs migrations from currentVersion to latest
func (s *Storage) migrateSchema(currentVersion int) error {
	if currentVersion >= currentSchemaVersion {
		return nil
	}

	s.log.Info().
		Int("from", currentVersion).
		Int("to", currentSchemaVersion).
		Msg("Migrating history schema")

	// Migration 0 -> 1: analyses table
	if currentVersion < 1 {
		if err := s.migrateV1(); err != nil {
			return fmt.Errorf("migration v1 failed: %w", err)
		}
	}

	// Migration 1 -> 2: extracted fields and failure kinds
	if currentVersion < 2 {
		if err := s.migrateV2(); err != nil {
			return fmt.Errorf("migration v2 failed: %w", err)
		}
	}

	if err := s.setSchemaVersion(currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return nil
}

func (s *Storage) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		guild_id TEXT NOT NULL DEFAULT '',
		channel_id TEXT NOT NULL DEFAULT '',
		message_id TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL,
		upload_bytes INTEGER DEFAULT 0,
		download_bytes INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		game TEXT NOT NULL DEFAULT '',
		emulator_version TEXT NOT NULL DEFAULT '',
		os TEXT NOT NULL DEFAULT '',
		critical_notes INTEGER DEFAULT 0,
		warning_notes INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_timestamp ON analyses(timestamp);
	CREATE INDEX IF NOT EXISTS idx_analyses_status ON analyses(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) migrateV2() error {
	var hasFields bool
	rows, err := s.db.Query("PRAGMA table_info(analyses)")
	if err != nil {
		return fmt.Errorf("failed to get table info: %w", err)
	}
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		if name == "fields" {
			hasFields = true
			break
		}
	}
	_ = rows.Close()

	if !hasFields {
		if _, err := s.db.Exec(`ALTER TABLE analyses ADD COLUMN fields TEXT NOT NULL DEFAULT '{}'`); err != nil {
			return fmt.Errorf("failed to add fields column: %w", err)
		}
		if _, err := s.db.Exec(`ALTER TABLE analyses ADD COLUMN error_kind TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add error_kind column: %w", err)
		}
	}

	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_analyses_guild ON analyses(guild_id, timestamp)`); err != nil {
		return fmt.Errorf("failed to create guild index: %w", err)
	}
	return nil
}

// SaveAnalysis stores a new analysis and sets its ID.
func (s *Storage) SaveAnalysis(ctx context.Context, a *Analysis) error {
	fields := a.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}

	query := `
		INSERT INTO analyses (
			run_id, timestamp, guild_id, channel_id, message_id, author, filename,
			upload_bytes, download_bytes, status, error_kind, game, emulator_version, os,
			critical_notes, warning_notes, fields, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		a.RunID,
		a.Timestamp.UTC().Format(time.RFC3339),
		a.GuildID,
		a.ChannelID,
		a.MessageID,
		a.Author,
		a.Filename,
		a.UploadBytes,
		a.DownloadBytes,
		a.Status,
		a.ErrorKind,
		a.Game,
		a.EmulatorVersion,
		a.OS,
		a.CriticalNotes,
		a.WarningNotes,
		string(fieldsJSON),
		a.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	return nil
}

func (f *Filter) where(args []interface{}) (string, []interface{}) {
	clause := ""
	if f == nil {
		return clause, args
	}
	if f.GuildID != "" {
		clause += ` AND guild_id = ?`
		args = append(args, f.GuildID)
	}
	if f.Status != "" {
		clause += ` AND status = ?`
		args = append(args, f.Status)
	}
	return clause, args
}

// RecentAnalyses returns analyses from the last N days, newest first, at most limit rows.
func (s *Storage) RecentAnalyses(ctx context.Context, days, limit int, filter *Filter) ([]*Analysis, error) {
	cutoff := s.now().AddDate(0, 0, -days).UTC().Format(time.RFC3339)

	query := `
		SELECT id, run_id, timestamp, guild_id, channel_id, message_id, author, filename,
		       upload_bytes, download_bytes, status, error_kind, game, emulator_version, os,
		       critical_notes, warning_notes, fields, duration_ms
		FROM analyses
		WHERE timestamp >= ?
	`
	clause, args := filter.where([]interface{}{cutoff})
	query += clause + ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close database rows")
		}
	}(rows)

	var analyses []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

// CleanupOldAnalyses deletes analyses older than N days
func (s *Storage) CleanupOldAnalyses(ctx context.Context, days int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -days).UTC().Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old analyses: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

// Statistics summarises the stored history.
type Statistics struct {
	Total         int
	ByStatus      map[string]int
	ByErrorKind   map[string]int
	TopGames      []GameCount
	DownloadBytes int64
}

// GameCount is how often a game showed up in analysed logs.
type GameCount struct {
	Game  string
	Count int
}

// DownloadedHuman renders the total downloaded volume, e.g. "12 MB".
func (st *Statistics) DownloadedHuman() string {
	return humanize.Bytes(uint64(st.DownloadBytes))
}

// GetStatistics returns history statistics, optionally filtered
func (s *Storage) GetStatistics(ctx context.Context, filter *Filter) (*Statistics, error) {
	clause, args := filter.where(nil)
	where := ` WHERE 1=1` + clause

	st := &Statistics{ByStatus: map[string]int{}, ByErrorKind: map[string]int{}}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(download_bytes), 0) FROM analyses`+where, args...,
	).Scan(&st.Total, &st.DownloadBytes); err != nil {
		return nil, err
	}

	if err := s.countInto(ctx, `SELECT status, COUNT(*) FROM analyses`+where+` GROUP BY status`, args, st.ByStatus); err != nil {
		return nil, err
	}
	if err := s.countInto(ctx, `SELECT error_kind, COUNT(*) FROM analyses`+where+` AND error_kind != '' GROUP BY error_kind`, args, st.ByErrorKind); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT game, COUNT(*) AS n FROM analyses`+where+` AND game != '' AND game != 'Unknown'
		 GROUP BY game ORDER BY n DESC, game ASC LIMIT 5`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var gc GameCount
		if err := rows.Scan(&gc.Game, &gc.Count); err != nil {
			return nil, err
		}
		st.TopGames = append(st.TopGames, gc)
	}
	return st, rows.Err()
}

func (s *Storage) countInto(ctx context.Context, query string, args []interface{}, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}
	return rows.Err()
}

func scanAnalysis(rows *sql.Rows) (*Analysis, error) {
	var (
		a          Analysis
		timestamp  string
		fieldsJSON string
	)
	err := rows.Scan(
		&a.ID, &a.RunID, &timestamp, &a.GuildID, &a.ChannelID, &a.MessageID, &a.Author, &a.Filename,
		&a.UploadBytes, &a.DownloadBytes, &a.Status, &a.ErrorKind, &a.Game, &a.EmulatorVersion, &a.OS,
		&a.CriticalNotes, &a.WarningNotes, &fieldsJSON, &a.DurationMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	a.Timestamp = ts

	if err := json.Unmarshal([]byte(fieldsJSON), &a.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	return &a, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
