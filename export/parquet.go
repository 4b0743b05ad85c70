// Package export writes stored submissions to parquet files.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

// SubmissionRow is the parquet schema of a submission.
type SubmissionRow struct {
	ID            string  `parquet:"id"`
	Subreddit     string  `parquet:"subreddit"`
	Title         string  `parquet:"title"`
	Author        string  `parquet:"author"`
	Permalink     string  `parquet:"permalink"`
	CreatedUTC    int64   `parquet:"created_utc"`
	Score         int64   `parquet:"score"`
	UpvoteRatio   float64 `parquet:"upvote_ratio"`
	NumComments   int64   `parquet:"num_comments"`
	Domain        string  `parquet:"domain"`
	LinkOrText    string  `parquet:"link_or_text"`
	FlairText     string  `parquet:"link_flair_text"`
	Gilded        int64   `parquet:"gilded"`
	Awards        int64   `parquet:"total_awards"`
	Over18        bool    `parquet:"over_18"`
	Removed       bool    `parquet:"removed"`
	Locked        bool    `parquet:"locked"`
	Distinguished string  `parquet:"distinguished"`
}

// NewSubmissionRow flattens s.
func NewSubmissionRow(s *harvest.Submission) SubmissionRow {
	var awards int64
	for _, a := range s.Awards {
		awards += int64(a.Count)
	}
	return SubmissionRow{
		ID:            s.ID,
		Subreddit:     s.Subreddit,
		Title:         s.Title,
		Author:        s.Author,
		Permalink:     s.Permalink,
		CreatedUTC:    s.CreatedUTC,
		Score:         int64(s.Score),
		UpvoteRatio:   s.UpvoteRatio,
		NumComments:   int64(s.NumComments),
		Domain:        s.Domain,
		LinkOrText:    s.LinkOrText(),
		FlairText:     s.FlairText,
		Gilded:        int64(s.Gilded),
		Awards:        awards,
		Over18:        s.Over18,
		Removed:       s.Removed,
		Locked:        s.Locked,
		Distinguished: s.Distinguished,
	}
}

// WriteSubmissions writes subs to path, with bloom filters on the columns
// usually filtered on.
func WriteSubmissions(path string, subs []*harvest.Submission) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create parquet file directory: %w", err)
	}

	rows := make([]SubmissionRow, len(subs))
	for i, s := range subs {
		rows[i] = NewSubmissionRow(s)
	}

	filterBits := uint(10)
	err := parquet.WriteFile(path, rows, parquet.BloomFilters(
		parquet.SplitBlockFilter(filterBits, "id"),
		parquet.SplitBlockFilter(filterBits, "author"),
	))
	if err != nil {
		return &harvest.Error{Op: "write_parquet", Err: err}
	}
	return nil
}

// ReadSubmissions reads a file written by WriteSubmissions.
func ReadSubmissions(path string) ([]SubmissionRow, error) {
	rows, err := parquet.ReadFile[SubmissionRow](path)
	if err != nil {
		return nil, &harvest.Error{Op: "read_parquet", Err: err}
	}
	return rows, nil
}
