package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/schema"
)

// PostgresStorage implements harvest.Store for PostgreSQL
type PostgresStorage struct {
	db  *sql.DB
	now func() time.Time
}

// PoolConfig configures the PostgreSQL connection pool
type PoolConfig struct {
	// MaxOpenConns sets the maximum number of open connections to the database
	// Default: 0 (unlimited)
	MaxOpenConns int

	// MaxIdleConns sets the maximum number of connections in the idle connection pool
	// Default: 2
	MaxIdleConns int

	// ConnMaxLifetime sets the maximum amount of time a connection may be reused
	// Default: 0 (connections are reused forever)
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime sets the maximum amount of time a connection may be idle
	// Default: 0 (connections are not closed due to idle time)
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig suits a single batch job: few connections, short lived.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
}

// Option configures a PostgresStorage.
type Option func(*PostgresStorage)

// WithClock sets the clock used for last_update columns.
func WithClock(now func() time.Time) Option {
	return func(s *PostgresStorage) { s.now = now }
}

// New creates a new PostgreSQL storage instance with default pool configuration
func New(connString string, opts ...Option) (*PostgresStorage, error) {
	return NewWithPool(connString, DefaultPoolConfig(), opts...)
}

// NewWithPool creates a new PostgreSQL storage instance with custom pool configuration
func NewWithPool(connString string, config *PoolConfig, opts ...Option) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, &harvest.Error{Op: "open", Err: err}
	}

	if config != nil {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &harvest.Error{Op: "ping", Err: err}
	}

	s := &PostgresStorage{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunMigrations runs all pending database migrations
func (s *PostgresStorage) RunMigrations(ctx context.Context) error {
	runner, err := schema.NewMigrationRunner(s.db, schema.Postgres)
	if err != nil {
		return &harvest.Error{Op: "create_migration_runner", Err: err}
	}

	if err := runner.Run(ctx); err != nil {
		return &harvest.Error{Op: "run_migrations", Err: err}
	}

	return nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return &harvest.Error{Op: "close", Err: err}
	}
	return nil
}

// SaveSubreddit saves or updates a subreddit
func (s *PostgresStorage) SaveSubreddit(ctx context.Context, sub *harvest.Subreddit) error {
	query := `
		INSERT INTO subreddits (
			name, title, description, subscribers, created_utc, last_update
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			subscribers = EXCLUDED.subscribers,
			created_utc = COALESCE(EXCLUDED.created_utc, subreddits.created_utc),
			last_update = EXCLUDED.last_update
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
func (s *PostgresStorage) GetSubreddit(ctx context.Context, name string) (*harvest.Subreddit, error) {
	query := `
		SELECT name, title, description, subscribers, created_utc
		FROM subreddits
		WHERE name = $1
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
func (s *PostgresStorage) Watermark(ctx context.Context, key string) (harvest.Watermark, error) {
	var mark int64
	err := s.db.QueryRowContext(ctx, "SELECT created_utc FROM watermarks WHERE source_key = $1", key).Scan(&mark)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, &harvest.Error{Op: "get_watermark", Err: err}
	}
	return harvest.Watermark(mark), nil
}

// AdvanceWatermark raises the watermark of key to mark if it is newer.
func (s *PostgresStorage) AdvanceWatermark(ctx context.Context, key string, mark harvest.Watermark) error {
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

func (s *PostgresStorage) advanceWatermark(ctx context.Context, tx *sql.Tx, key string, mark harvest.Watermark) error {
	if mark <= 0 {
		return nil
	}
	query := `
		INSERT INTO watermarks (source_key, created_utc, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_key) DO UPDATE SET
			created_utc = GREATEST(watermarks.created_utc, EXCLUDED.created_utc),
			updated_at = EXCLUDED.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, key, int64(mark), s.now().Unix()); err != nil {
		return &harvest.Error{Op: "advance_watermark", Err: err}
	}
	return nil
}

// RecordRun appends a run to the journal.
func (s *PostgresStorage) RecordRun(ctx context.Context, run *harvest.Run) error {
	query := `
		INSERT INTO runs (
			id, source_key, started_at, finished_at, fetched, written, watermark, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Key, run.StartedAt, run.FinishedAt,
		run.Fetched, run.Written, int64(run.Watermark), nullString(run.Error),
	)
	if err != nil {
		return &harvest.Error{Op: "record_run", Err: err}
	}
	return nil
}

// Runs returns the journal of key, newest first.
func (s *PostgresStorage) Runs(ctx context.Context, key string, limit int) ([]*harvest.Run, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_key, started_at, finished_at, fetched, written, watermark, error
		FROM runs
		WHERE source_key = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, key, limit)
	if err != nil {
		return nil, &harvest.Error{Op: "get_runs", Err: err}
	}
	defer rows.Close()

	var runs []*harvest.Run
	for rows.Next() {
		var run harvest.Run
		var mark int64
		var runErr sql.NullString
		if err := rows.Scan(&run.ID, &run.Key, &run.StartedAt, &run.FinishedAt, &run.Fetched, &run.Written, &mark, &runErr); err != nil {
			return nil, &harvest.Error{Op: "scan_run", Err: err}
		}
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
	s     *PostgresStorage
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
func (s *PostgresStorage) SubmissionSink() harvest.Sink[*harvest.Submission] {
	return &sink[*harvest.Submission]{s: s, op: "submissions", write: s.writeSubmissions}
}

// CommentSink upserts comments and their awards.
func (s *PostgresStorage) CommentSink() harvest.Sink[*harvest.Comment] {
	return &sink[*harvest.Comment]{s: s, op: "comments", write: s.writeComments}
}

// TrafficSink upserts traffic days.
func (s *PostgresStorage) TrafficSink() harvest.Sink[*harvest.TrafficDay] {
	return &sink[*harvest.TrafficDay]{s: s, op: "traffic", write: s.writeTraffic}
}

// BanSink inserts ban log entries.
func (s *PostgresStorage) BanSink() harvest.Sink[*harvest.Ban] {
	return &sink[*harvest.Ban]{s: s, op: "bans", write: s.writeBans}
}

// RemovalSink inserts removal log entries.
func (s *PostgresStorage) RemovalSink() harvest.Sink[*harvest.Removal] {
	return &sink[*harvest.Removal]{s: s, op: "removals", write: s.writeRemovals}
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
