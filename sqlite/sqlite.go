package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/schema"
)

// SQLiteStorage implements harvest.Store for SQLite
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a SQLiteStorage.
type Option func(*SQLiteStorage)

// WithClock sets the clock used for last_update columns.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStorage) { s.now = now }
}

// New creates a new SQLite storage instance
func New(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &harvest.Error{Op: "open", Err: err}
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, &harvest.Error{Op: "enable_foreign_keys", Err: err}
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, &harvest.Error{Op: "enable_wal", Err: err}
	}

	s := &SQLiteStorage{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunMigrations runs all pending database migrations
func (s *SQLiteStorage) RunMigrations(ctx context.Context) error {
	runner, err := schema.NewMigrationRunner(s.db, schema.SQLite)
	if err != nil {
		return &harvest.Error{Op: "create_migration_runner", Err: err}
	}

	if err := runner.Run(ctx); err != nil {
		return &harvest.Error{Op: "run_migrations", Err: err}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return &harvest.Error{Op: "close", Err: err}
	}
	return nil
}

// SaveSubreddit saves or updates a subreddit
func (s *SQLiteStorage) SaveSubreddit(ctx context.Context, sub *harvest.Subreddit) error {
	query := `
		INSERT INTO subreddits (
			name, title, description, subscribers, created_utc, last_update
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			subscribers = excluded.subscribers,
			created_utc = COALESCE(excluded.created_utc, subreddits.created_utc),
			last_update = excluded.last_update
	`

	_, err := s.db.ExecContext(ctx, query,
		sub.Name, sub.Title, sub.Description, sub.Subscribers,
		nullInt(sub.CreatedUTC), s.now().Unix(),
	)
	if err != nil {
		return &harvest.Error{Op: "save_subreddit", Err: err}
	}
	return nil
}

// GetSubreddit retrieves a subreddit by name
func (s *SQLiteStorage) GetSubreddit(ctx context.Context, name string) (*harvest.Subreddit, error) {
	query := `
		SELECT name, title, description, subscribers, created_utc
		FROM subreddits
		WHERE name = ?
	`

	var sub harvest.Subreddit
	var created sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&sub.Name, &sub.Title, &sub.Description, &sub.Subscribers, &created,
	)
	if err == sql.ErrNoRows {
		return nil, &harvest.Error{Op: "get_subreddit", Err: fmt.Errorf("subreddit not found: %s", name)}
	}
	if err != nil {
		return nil, &harvest.Error{Op: "get_subreddit", Err: err}
	}
	sub.CreatedUTC = created.Int64
	return &sub, nil
}

// Watermark returns the stored watermark for key, zero if none.
func (s *SQLiteStorage) Watermark(ctx context.Context, key string) (harvest.Watermark, error) {
	var mark int64
	err := s.db.QueryRowContext(ctx, "SELECT created_utc FROM watermarks WHERE source_key = ?", key).Scan(&mark)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, &harvest.Error{Op: "get_watermark", Err: err}
	}
	return harvest.Watermark(mark), nil
}

// AdvanceWatermark raises the watermark of key to mark if it is newer.
func (s *SQLiteStorage) AdvanceWatermark(ctx context.Context, key string, mark harvest.Watermark) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &harvest.Error{Op: "begin_transaction", Err: err}
	}
	defer tx.Rollback()

	if err := s.advanceWatermark(ctx, tx, key, mark); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &harvest.Error{Op: "commit_transaction", Err: err}
	}
	return nil
}

func (s *SQLiteStorage) advanceWatermark(ctx context.Context, tx *sql.Tx, key string, mark harvest.Watermark) error {
	if mark <= 0 {
		return nil
	}
	query := `
		INSERT INTO watermarks (source_key, created_utc, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (source_key) DO UPDATE SET
			created_utc = MAX(watermarks.created_utc, excluded.created_utc),
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, key, int64(mark), s.now().Unix()); err != nil {
		return &harvest.Error{Op: "advance_watermark", Err: err}
	}
	return nil
}

// RecordRun appends a run to the journal.
func (s *SQLiteStorage) RecordRun(ctx context.Context, run *harvest.Run) error {
	query := `
		INSERT INTO runs (
			id, source_key, started_at, finished_at, fetched, written, watermark, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Key, run.StartedAt.Unix(), run.FinishedAt.Unix(),
		run.Fetched, run.Written, int64(run.Watermark), nullString(run.Error),
	)
	if err != nil {
		return &harvest.Error{Op: "record_run", Err: err}
	}
	return nil
}

// Runs returns the journal of key, newest first.
func (s *SQLiteStorage) Runs(ctx context.Context, key string, limit int) ([]*harvest.Run, error) {
	if limit <= 0 {
		limit = 25
	}
	query := `
		SELECT id, source_key, started_at, finished_at, fetched, written, watermark, error
		FROM runs
		WHERE source_key = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, key, limit)
	if err != nil {
		return nil, &harvest.Error{Op: "get_runs", Err: err}
	}
	defer rows.Close()

	var runs []*harvest.Run
	for rows.Next() {
		var run harvest.Run
		var started, finished, mark int64
		var runErr sql.NullString
		if err := rows.Scan(&run.ID, &run.Key, &started, &finished, &run.Fetched, &run.Written, &mark, &runErr); err != nil {
			return nil, &harvest.Error{Op: "scan_run", Err: err}
		}
		run.StartedAt = time.Unix(started, 0)
		run.FinishedAt = time.Unix(finished, 0)
		run.Watermark = harvest.Watermark(mark)
		run.Error = runErr.String
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, &harvest.Error{Op: "scan_runs", Err: err}
	}
	return runs, nil
}

// sink adapts one table writer to harvest.Sink. Rows and the watermark share a
// transaction.
type sink[R harvest.Record] struct {
	s     *SQLiteStorage
	op    string
	write func(ctx context.Context, tx *sql.Tx, batch []R, now int64) error
}

func (k *sink[R]) Watermark(ctx context.Context, key string) (harvest.Watermark, error) {
	return k.s.Watermark(ctx, key)
}

func (k *sink[R]) Write(ctx context.Context, key string, batch []R, mark harvest.Watermark) (int, error) {
	if len(batch) == 0 && mark <= 0 {
		return 0, nil
	}

	tx, err := k.s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &harvest.Error{Op: "begin_transaction", Err: err}
	}
	defer tx.Rollback()

	if len(batch) > 0 {
		if err := k.write(ctx, tx, batch, k.s.now().Unix()); err != nil {
			return 0, err
		}
	}
	if err := k.s.advanceWatermark(ctx, tx, key, mark); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, &harvest.Error{Op: "commit_" + k.op, Err: err}
	}
	return len(batch), nil
}

// SubmissionSink upserts submissions and their awards.
func (s *SQLiteStorage) SubmissionSink() harvest.Sink[*harvest.Submission] {
	return &sink[*harvest.Submission]{s: s, op: "submissions", write: s.writeSubmissions}
}

// CommentSink upserts comments and their awards.
func (s *SQLiteStorage) CommentSink() harvest.Sink[*harvest.Comment] {
	return &sink[*harvest.Comment]{s: s, op: "comments", write: s.writeComments}
}

// TrafficSink upserts traffic days.
func (s *SQLiteStorage) TrafficSink() harvest.Sink[*harvest.TrafficDay] {
	return &sink[*harvest.TrafficDay]{s: s, op: "traffic", write: s.writeTraffic}
}

// BanSink inserts ban log entries.
func (s *SQLiteStorage) BanSink() harvest.Sink[*harvest.Ban] {
	return &sink[*harvest.Ban]{s: s, op: "bans", write: s.writeBans}
}

// RemovalSink inserts removal log entries.
func (s *SQLiteStorage) RemovalSink() harvest.Sink[*harvest.Removal] {
	return &sink[*harvest.Removal]{s: s, op: "removals", write: s.writeRemovals}
}
