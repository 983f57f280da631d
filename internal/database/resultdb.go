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

	"github.com/nao1215/ghcrawl/internal/model"
	"github.com/nao1215/ghcrawl/internal/state"
	"github.com/nao1215/ghcrawl/internal/task"
	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the name of the database file inside the database directory.
const FileName = "ghcrawl.db"

// ErrDatabaseNotFound is returned by Open when the database must exist and
// does not.
var ErrDatabaseNotFound = errors.New("database not found")

// ErrItemNotFound is returned when a requested node is not stored for a run.
var ErrItemNotFound = errors.New("item not found")

// ResultDB provides SQLite-based storage for exported crawl output.
type ResultDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ResultDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
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

// Open opens or creates a ResultDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// Otherwise a missing database yields ErrDatabaseNotFound.
func Open(dbDir string, opts Options) (*ResultDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc creates it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &ResultDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the database file path.
func (rdb *ResultDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *ResultDB) Close() error {
	return rdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (rdb *ResultDB) createTables() error {
	schema := `
	-- One row per run, refreshed on every export
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		start_date TEXT NOT NULL,
		completion_date TEXT,
		completion_error TEXT,
		config_digest TEXT,
		unresolved INTEGER NOT NULL,
		resolved INTEGER NOT NULL,
		errored INTEGER NOT NULL,
		archived INTEGER NOT NULL,
		records INTEGER NOT NULL,
		exported_at TEXT NOT NULL
	);

	-- Items are the emitted search nodes; node ids are unique within a run
	CREATE TABLE IF NOT EXISTS items (
		run_id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT,
		url TEXT,
		created_at TEXT,
		stars INTEGER,
		forks INTEGER,
		followers INTEGER,
		language TEXT,
		data TEXT NOT NULL,
		PRIMARY KEY (run_id, node_id)
	);

	CREATE INDEX IF NOT EXISTS idx_items_name ON items(name);
	CREATE INDEX IF NOT EXISTS idx_items_stars ON items(stars);
	CREATE INDEX IF NOT EXISTS idx_items_created ON items(created_at);

	-- Task errors mirror the errored set of the run at export time
	CREATE TABLE IF NOT EXISTS task_errors (
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		search_window TEXT NOT NULL,
		start_cursor TEXT,
		message TEXT NOT NULL,
		PRIMARY KEY (run_id, task_id)
	);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// ItemRecord is a stored search node.
type ItemRecord struct {
	RunID     string
	NodeID    string
	TaskID    string
	Kind      string
	Name      string
	URL       string
	CreatedAt time.Time

	// Stars and Forks are set for repositories, Followers for users.
	Stars     int
	Forks     int
	Followers int
	Language  string

	// Data is the node as returned by the API.
	Data json.RawMessage
}

// newItemRecord decodes item according to kind. Nodes of an unknown kind
// are stored with their raw data only.
func newItemRecord(runID string, kind task.Kind, taskID string, item task.Item) (*ItemRecord, error) {
	rec := &ItemRecord{
		RunID:  runID,
		NodeID: item.ID,
		TaskID: taskID,
		Kind:   string(kind),
		Data:   item.Data,
	}

	switch kind {
	case task.KindRepositories:
		var repo model.Repository
		if err := json.Unmarshal(item.Data, &repo); err != nil {
			return nil, fmt.Errorf("failed to decode repository %s: %w", item.ID, err)
		}
		rec.Name = repo.NameWithOwner
		rec.URL = repo.URL
		rec.CreatedAt = repo.CreatedAt
		rec.Stars = repo.StargazerCount
		rec.Forks = repo.ForkCount
		rec.Language = repo.Language()
	case task.KindUsers:
		var user model.User
		if err := json.Unmarshal(item.Data, &user); err != nil {
			return nil, fmt.Errorf("failed to decode user %s: %w", item.ID, err)
		}
		rec.Name = user.Login
		rec.URL = user.URL
		rec.CreatedAt = user.CreatedAt
		rec.Followers = user.Followers.TotalCount
	}

	return rec, nil
}

// InsertRecords stores the items of records in a single transaction and
// returns the number of items written. Items already stored for the run are
// updated in place.
func (rdb *ResultDB) InsertRecords(ctx context.Context, runID string, kind task.Kind, records []state.OutputRecord) (int, error) {
	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO items (run_id, node_id, task_id, kind, name, url, created_at, stars, forks, followers, language, data)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, node_id) DO UPDATE SET
		task_id = excluded.task_id,
		name = excluded.name,
		url = excluded.url,
		created_at = excluded.created_at,
		stars = excluded.stars,
		forks = excluded.forks,
		followers = excluded.followers,
		language = excluded.language,
		data = excluded.data
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, rec := range records {
		if rec.Result == nil {
			continue
		}
		for _, item := range rec.Result.Items {
			row, err := newItemRecord(runID, kind, rec.TaskID, item)
			if err != nil {
				return 0, err
			}

			var createdAt any
			if !row.CreatedAt.IsZero() {
				createdAt = row.CreatedAt.UTC().Format(time.RFC3339)
			}

			_, err = stmt.ExecContext(ctx,
				row.RunID,
				row.NodeID,
				row.TaskID,
				row.Kind,
				row.Name,
				row.URL,
				createdAt,
				row.Stars,
				row.Forks,
				row.Followers,
				row.Language,
				string(row.Data),
			)
			if err != nil {
				return 0, fmt.Errorf("failed to insert item %s: %w", item.ID, err)
			}
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit items: %w", err)
	}
	return written, nil
}

// SaveRun stores the summary row of a run and replaces its task errors.
func (rdb *ResultDB) SaveRun(ctx context.Context, summary *model.RunSummary) error {
	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var completionDate any
	if summary.CompletionDate != nil {
		completionDate = summary.CompletionDate.UTC().Format(time.RFC3339Nano)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (run_id, kind, status, start_date, completion_date, completion_error, config_digest,
		unresolved, resolved, errored, archived, records, exported_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		status = excluded.status,
		completion_date = excluded.completion_date,
		completion_error = excluded.completion_error,
		unresolved = excluded.unresolved,
		resolved = excluded.resolved,
		errored = excluded.errored,
		archived = excluded.archived,
		records = excluded.records,
		exported_at = excluded.exported_at
	`,
		summary.RunID,
		summary.Kind,
		summary.StatusText,
		summary.StartDate.UTC().Format(time.RFC3339Nano),
		completionDate,
		summary.CompletionError,
		summary.ConfigDigest,
		summary.Unresolved,
		summary.Resolved,
		summary.Errored,
		summary.Archived,
		summary.Items,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM task_errors WHERE run_id = ?", summary.RunID); err != nil {
		return fmt.Errorf("failed to clear task errors: %w", err)
	}
	for _, e := range summary.Errors {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO task_errors (run_id, task_id, search_window, start_cursor, message) VALUES (?, ?, ?, ?, ?)",
			summary.RunID, e.TaskID, e.Window, e.Cursor, e.Message,
		)
		if err != nil {
			return fmt.Errorf("failed to insert task error %s: %w", e.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves the stored summary of runID, without its chunk list and
// history. It returns nil when the run was never exported.
func (rdb *ResultDB) GetRun(ctx context.Context, runID string) (*model.RunSummary, error) {
	query := `
	SELECT kind, start_date, completion_date, completion_error, config_digest,
		unresolved, resolved, errored, archived, records
	FROM runs
	WHERE run_id = ?
	`

	var (
		kind, startDate, digest                 string
		completionDate, completionError         sql.NullString
		unresolved, resolved, errored, archived int
		records                                 int
	)
	err := rdb.db.QueryRowContext(ctx, query, runID).Scan(
		&kind, &startDate, &completionDate, &completionError, &digest,
		&unresolved, &resolved, &errored, &archived, &records,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var completion *time.Time
	if completionDate.Valid {
		t := parseTimestamp(completionDate.String)
		completion = &t
	}

	summary := model.NewRunSummary(runID, parseTimestamp(startDate), completion, completionError.String,
		unresolved, resolved, errored, archived)
	summary.Kind = kind
	summary.ConfigDigest = digest
	summary.Items = records

	summary.Errors, err = rdb.TaskErrors(ctx, runID)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// ListRuns returns the ids of all exported runs in ascending order.
func (rdb *ResultDB) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := rdb.db.QueryContext(ctx, "SELECT run_id FROM runs ORDER BY run_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, id)
	}

	return runs, rows.Err()
}

// TaskErrors returns the stored task errors of runID ordered by task id.
func (rdb *ResultDB) TaskErrors(ctx context.Context, runID string) ([]model.TaskErrorEntry, error) {
	rows, err := rdb.db.QueryContext(ctx,
		"SELECT task_id, search_window, start_cursor, message FROM task_errors WHERE run_id = ? ORDER BY task_id", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task errors: %w", err)
	}
	defer rows.Close()

	var entries []model.TaskErrorEntry
	for rows.Next() {
		var e model.TaskErrorEntry
		var cursor sql.NullString
		if err := rows.Scan(&e.TaskID, &e.Window, &cursor, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan task error: %w", err)
		}
		e.Cursor = cursor.String
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// CountItems returns the number of items stored for runID.
func (rdb *ResultDB) CountItems(ctx context.Context, runID string) (int, error) {
	var count int
	err := rdb.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE run_id = ?", runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

const itemColumns = "run_id, node_id, task_id, kind, name, url, created_at, stars, forks, followers, language, data"

// GetItem retrieves one item. It returns nil when the item is not stored.
func (rdb *ResultDB) GetItem(ctx context.Context, runID, nodeID string) (*ItemRecord, error) {
	row := rdb.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM items WHERE run_id = ? AND node_id = ?", runID, nodeID)

	rec, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return rec, nil
}

// TopItems returns up to limit items of runID, most starred first, then
// most followed, then by name.
func (rdb *ResultDB) TopItems(ctx context.Context, runID string, limit int) ([]ItemRecord, error) {
	rows, err := rdb.db.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM items WHERE run_id = ? ORDER BY stars DESC, followers DESC, name LIMIT ?",
		runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		rec, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *rec)
	}

	return items, rows.Err()
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*ItemRecord, error) {
	var (
		rec                     ItemRecord
		name, url, createdAt    sql.NullString
		language                sql.NullString
		stars, forks, followers sql.NullInt64
		data                    string
	)
	err := s.Scan(&rec.RunID, &rec.NodeID, &rec.TaskID, &rec.Kind, &name, &url, &createdAt,
		&stars, &forks, &followers, &language, &data)
	if err != nil {
		return nil, err
	}

	rec.Name = name.String
	rec.URL = url.String
	if createdAt.Valid {
		rec.CreatedAt = parseTimestamp(createdAt.String)
	}
	rec.Stars = int(stars.Int64)
	rec.Forks = int(forks.Int64)
	rec.Followers = int(followers.Int64)
	rec.Language = language.String
	rec.Data = json.RawMessage(data)
	return &rec, nil
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05", // SQLite default datetime format
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
