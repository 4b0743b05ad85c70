package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnreachable marks a remote item that is gone, forbidden or redirected.
// Callers that can live without the item skip it; everything else is fatal.
var ErrUnreachable = errors.New("item unreachable")

// IsUnreachable reports whether err means "skip this item".
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// Watermark is the created_utc of the newest record persisted for a source key.
// Zero means no watermark has been stored yet.
type Watermark int64

// Time converts the watermark to a time, zero for an absent watermark.
func (w Watermark) Time() time.Time {
	if w == 0 {
		return time.Time{}
	}
	return time.Unix(int64(w), 0).UTC()
}

// Sink persists batches of records and owns the watermark for each source key.
type Sink[R Record] interface {
	// Watermark returns the stored watermark for key, zero if none.
	Watermark(ctx context.Context, key string) (Watermark, error)

	// Write persists batch and reports how many rows were written. When mark is
	// non-zero the key's watermark is advanced to max(stored, mark) in the same
	// commit as the rows.
	Write(ctx context.Context, key string, batch []R, mark Watermark) (int, error)
}

// WatermarkStore keeps watermarks for sinks that have no storage of their own.
type WatermarkStore interface {
	Watermark(ctx context.Context, key string) (Watermark, error)
	AdvanceWatermark(ctx context.Context, key string, mark Watermark) error
}

// Journal records one line per pipeline run.
type Journal interface {
	RecordRun(ctx context.Context, run *Run) error
}

// Store is the relational backend used by the sync, modlog and notify jobs.
type Store interface {
	WatermarkStore
	Journal

	// Sinks
	SubmissionSink() Sink[*Submission]
	CommentSink() Sink[*Comment]
	TrafficSink() Sink[*TrafficDay]
	BanSink() Sink[*Ban]
	RemovalSink() Sink[*Removal]

	// Subreddits
	SaveSubreddit(ctx context.Context, sub *Subreddit) error
	GetSubreddit(ctx context.Context, name string) (*Subreddit, error)

	// Queries
	GetSubmission(ctx context.Context, id string) (*Submission, error)
	GetComment(ctx context.Context, id string) (*Comment, error)
	GetCommentsBySubmission(ctx context.Context, submissionID string) ([]*Comment, error)
	GetSubmissions(ctx context.Context, subreddit string, opts QueryOptions) ([]*Submission, error)
	StaleSubmissions(ctx context.Context, subreddit string, from, to time.Time) ([]string, error)

	// Management
	RunMigrations(ctx context.Context) error
	Close() error
}

// QueryOptions provides filtering and pagination for queries
type QueryOptions struct {
	Limit     int
	Offset    int
	SortBy    string // "created", "score", "comments"
	SortOrder string // "asc", "desc"
	StartDate time.Time
	EndDate   time.Time
}

// Run is one journal entry.
type Run struct {
	ID         string
	Key        string
	StartedAt  time.Time
	FinishedAt time.Time
	Fetched    int
	Written    int
	Watermark  Watermark
	Error      string
}

// Error represents a failed harvest operation
type Error struct {
	Op  string // Operation being performed
	Err error  // Underlying error
}

func (e *Error) Error() string {
	return fmt.Sprintf("harvest error during %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
