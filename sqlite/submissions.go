package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

// Author, title, created_utc and permalink are written once and never updated.
const upsertSubmission = `
	INSERT INTO submissions (
		id, subreddit, title, score, upvote_ratio, author, permalink,
		created_utc, domain, selftext, url, is_self, flair_text, flair_class,
		gilded, num_comments, over_18, distinguished, removed,
		removed_by_category, locked, stickied, last_update
	) VALUES (
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
	)
	ON CONFLICT (id) DO UPDATE SET
		score = excluded.score,
		upvote_ratio = excluded.upvote_ratio,
		selftext = excluded.selftext,
		flair_text = excluded.flair_text,
		flair_class = excluded.flair_class,
		gilded = excluded.gilded,
		num_comments = excluded.num_comments,
		over_18 = excluded.over_18,
		distinguished = excluded.distinguished,
		removed = excluded.removed,
		removed_by_category = excluded.removed_by_category,
		locked = excluded.locked,
		stickied = excluded.stickied,
		last_update = excluded.last_update
`

const upsertSubmissionAward = `
	INSERT INTO submission_awards (submission_id, id, name, count, award_type, coin_price)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (submission_id, id) DO UPDATE SET
		count = excluded.count
`

const submissionColumns = `
	id, subreddit, title, score, upvote_ratio, author, permalink, created_utc,
	domain, selftext, url, is_self, flair_text, flair_class, gilded,
	num_comments, over_18, distinguished, removed, removed_by_category,
	locked, stickied
`

func (s *SQLiteStorage) writeSubmissions(ctx context.Context, tx *sql.Tx, posts []*harvest.Submission, now int64) error {
	stmt, err := tx.PrepareContext(ctx, upsertSubmission)
	if err != nil {
		return &harvest.Error{Op: "prepare_statement", Err: err}
	}
	defer stmt.Close()

	awards, err := tx.PrepareContext(ctx, upsertSubmissionAward)
	if err != nil {
		return &harvest.Error{Op: "prepare_statement", Err: err}
	}
	defer awards.Close()

	for _, post := range posts {
		author := post.Author
		if author == "" {
			author = harvest.DeletedAuthor
		}
		_, err := stmt.ExecContext(ctx,
			post.ID, post.Subreddit, post.Title, post.Score, post.UpvoteRatio,
			author, post.Permalink, post.CreatedUTC, post.Domain, post.SelfText,
			post.URL, boolInt(post.IsSelf), post.FlairText, post.FlairClass,
			post.Gilded, post.NumComments, boolInt(post.Over18),
			nullString(post.Distinguished), boolInt(post.Removed),
			nullString(post.RemovedByCategory), boolInt(post.Locked),
			boolInt(post.Stickied), now,
		)
		if err != nil {
			return &harvest.Error{Op: "insert_submission", Err: err}
		}

		for _, a := range post.Awards {
			if _, err := awards.ExecContext(ctx, post.ID, a.ID, a.Name, a.Count, a.AwardType, a.CoinPrice); err != nil {
				return &harvest.Error{Op: "insert_submission_award", Err: err}
			}
		}
	}
	return nil
}

// GetSubmission retrieves a single submission by ID
func (s *SQLiteStorage) GetSubmission(ctx context.Context, id string) (*harvest.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = ?`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, &harvest.Error{Op: "get_submission", Err: err}
	}
	posts, err := scanSubmissions(rows)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, &harvest.Error{Op: "get_submission", Err: fmt.Errorf("submission not found: %s", id)}
	}

	post := posts[0]
	if post.Awards, err = s.submissionAwards(ctx, id); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *SQLiteStorage) submissionAwards(ctx context.Context, id string) ([]harvest.Award, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, count, COALESCE(award_type, ''), coin_price
		FROM submission_awards
		WHERE submission_id = ?
		ORDER BY id
	`, id)
	if err != nil {
		return nil, &harvest.Error{Op: "get_submission_awards", Err: err}
	}
	return scanAwards(rows)
}

// GetSubmissions retrieves submissions from a subreddit with filtering options
func (s *SQLiteStorage) GetSubmissions(ctx context.Context, subreddit string, opts harvest.QueryOptions) ([]*harvest.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE subreddit = ?`
	args := []interface{}{subreddit}

	if !opts.StartDate.IsZero() {
		query += " AND created_utc >= ?"
		args = append(args, opts.StartDate.Unix())
	}
	if !opts.EndDate.IsZero() {
		query += " AND created_utc <= ?"
		args = append(args, opts.EndDate.Unix())
	}

	query += " ORDER BY " + orderBy(opts)

	limit := opts.Limit
	if limit == 0 {
		limit = 25
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &harvest.Error{Op: "get_submissions", Err: err}
	}
	return scanSubmissions(rows)
}

// StaleSubmissions returns the ids of submissions whose last_update lies in
// [from, to], oldest first.
func (s *SQLiteStorage) StaleSubmissions(ctx context.Context, subreddit string, from, to time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM submissions
		WHERE subreddit = ? AND last_update BETWEEN ? AND ?
		ORDER BY created_utc
	`, subreddit, from.Unix(), to.Unix())
	if err != nil {
		return nil, &harvest.Error{Op: "stale_submissions", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &harvest.Error{Op: "scan_stale_submission", Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &harvest.Error{Op: "stale_submissions", Err: err}
	}
	return ids, nil
}

// orderBy validates the sort column to prevent SQL injection.
func orderBy(opts harvest.QueryOptions) string {
	column := "created_utc"
	switch opts.SortBy {
	case "score":
		column = "score"
	case "comments", "num_comments":
		column = "num_comments"
	}

	order := strings.ToUpper(opts.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	return column + " " + order + ", id"
}

func scanSubmissions(rows *sql.Rows) ([]*harvest.Submission, error) {
	defer rows.Close()

	var posts []*harvest.Submission
	for rows.Next() {
		var post harvest.Submission
		var ratio sql.NullFloat64
		var domain, selftext, url, flairText, flairClass, distinguished, removedBy sql.NullString

		err := rows.Scan(
			&post.ID, &post.Subreddit, &post.Title, &post.Score, &ratio,
			&post.Author, &post.Permalink, &post.CreatedUTC, &domain,
			&selftext, &url, &post.IsSelf, &flairText, &flairClass,
			&post.Gilded, &post.NumComments, &post.Over18, &distinguished,
			&post.Removed, &removedBy, &post.Locked, &post.Stickied,
		)
		if err != nil {
			return nil, &harvest.Error{Op: "scan_submission", Err: err}
		}

		post.UpvoteRatio = ratio.Float64
		post.Domain = domain.String
		post.SelfText = selftext.String
		post.URL = url.String
		post.FlairText = flairText.String
		post.FlairClass = flairClass.String
		post.Distinguished = distinguished.String
		post.RemovedByCategory = removedBy.String
		posts = append(posts, &post)
	}
	if err := rows.Err(); err != nil {
		return nil, &harvest.Error{Op: "scan_submissions", Err: err}
	}
	return posts, nil
}

func scanAwards(rows *sql.Rows) ([]harvest.Award, error) {
	defer rows.Close()

	var awards []harvest.Award
	for rows.Next() {
		var a harvest.Award
		if err := rows.Scan(&a.ID, &a.Name, &a.Count, &a.AwardType, &a.CoinPrice); err != nil {
			return nil, &harvest.Error{Op: "scan_award", Err: err}
		}
		awards = append(awards, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &harvest.Error{Op: "scan_awards", Err: err}
	}
	return awards, nil
}
