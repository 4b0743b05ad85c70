package testutil

import (
	"errors"
	"iter"
	"testing"
	"time"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

// NewTestSubmission creates a test submission created at the given unix time
func NewTestSubmission(id, subreddit, title string, created int64) *harvest.Submission {
	return &harvest.Submission{
		ID:         id,
		Subreddit:  subreddit,
		Title:      title,
		Author:     "testuser",
		Permalink:  "/r/" + subreddit + "/comments/" + id + "/",
		CreatedUTC: created,
		IsSelf:     true,
		Domain:     "self." + subreddit,
	}
}

// NewTestComment creates a top-level test comment
func NewTestComment(id, submissionID, author, body string, created int64) *harvest.Comment {
	return &harvest.Comment{
		ID:           id,
		SubmissionID: submissionID,
		ParentID:     "t3_" + submissionID,
		Author:       author,
		Body:         body,
		CreatedUTC:   created,
	}
}

// Rec is a minimal harvest.Record for pipeline tests.
type Rec struct {
	ID         string
	CreatedUTC int64
}

func (r *Rec) RecordID() string { return r.ID }
func (r *Rec) Created() int64   { return r.CreatedUTC }

// NewRecord creates a Rec.
func NewRecord(id string, created int64) *Rec {
	return &Rec{ID: id, CreatedUTC: created}
}

// ErrOverConsumed is yielded by StrictSource when read past its limit.
var ErrOverConsumed = errors.New("source consumed past limit")

// StrictSource yields records in order and fails the test if more than limit
// records are pulled from it.
func StrictSource[R harvest.Record](t testing.TB, limit int, records ...R) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		for i, r := range records {
			if i >= limit {
				t.Errorf("source over-consumed: pulled record %d (%s), limit %d", i, r.RecordID(), limit)
				var zero R
				yield(zero, ErrOverConsumed)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// FailingSource yields records and then err.
func FailingSource[R harvest.Record](err error, records ...R) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
		var zero R
		yield(zero, err)
	}
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
