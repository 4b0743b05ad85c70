package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

// Author, body and created_utc keep the values of the first insert.
const upsertComment = `
	INSERT INTO comments (
		id, submission_id, submission_title, subreddit, parent_id, depth,
		author, body, body_html, permalink, score, ups, downs, created_utc,
		edited_utc, controversiality, gilded, distinguished, removed,
		collapsed, locked, stickied, last_update
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23
	)
	ON CONFLICT (id) DO UPDATE SET
		parent_id = excluded.parent_id,
		score = excluded.score,
		ups = excluded.ups,
		downs = excluded.downs,
		edited_utc = excluded.edited_utc,
		controversiality = excluded.controversiality,
		gilded = excluded.gilded,
		distinguished = excluded.distinguished,
		removed = excluded.removed,
		collapsed = excluded.collapsed,
		locked = excluded.locked,
		stickied = excluded.stickied,
		last_update = excluded.last_update
`

const upsertCommentAward = `
	INSERT INTO comment_awards (comment_id, id, name, count, award_type, coin_price)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (comment_id, id) DO UPDATE SET
		count = excluded.count
`

const commentColumns = `
	id, submission_id, submission_title, subreddit, parent_id, author, body,
	body_html, permalink, score, ups, downs, created_utc, edited_utc,
	controversiality, gilded, distinguished, removed, collapsed, locked, stickied
`

// parentComment returns the bare id of a comment's parent comment, or "" for
// top-level comments.
func parentComment(c *harvest.Comment) string {
	if c.TopLevel() {
		return ""
	}
	return strings.TrimPrefix(c.ParentID, "t1_")
}

func (s *PostgresStorage) writeComments(ctx context.Context, tx *sql.Tx, comments []*harvest.Comment, now int64) error {
	stmt, err := tx.PrepareContext(ctx, upsertComment)
	if err != nil {
		return &harvest.Error{Op: "prepare_statement", Err: err}
	}
	defer stmt.Close()

	awards, err := tx.PrepareContext(ctx, upsertCommentAward)
	if err != nil {
		return &harvest.Error{Op: "prepare_statement", Err: err}
	}
	defer awards.Close()

	depths := make(map[string]int, len(comments))
	for _, c := range comments {
		parent := parentComment(c)
		depth := 0
		if parent != "" {
			d, ok := depths[parent]
			if !ok {
				d, err = storedDepth(ctx, tx, parent)
				if err != nil {
					return err
				}
			}
			depth = d + 1
		}
		depths[c.ID] = depth

		author := c.Author
		if author == "" {
			author = harvest.DeletedAuthor
		}
		_, err := stmt.ExecContext(ctx,
			c.ID, c.SubmissionID, nullString(c.SubmissionTitle), c.Subreddit,
			nullString(parent), depth, author, c.Body, nullString(c.BodyHTML),
			nullString(c.Permalink), c.Score, c.Ups, c.Downs, c.CreatedUTC,
			nullInt(c.EditedUTC), c.Controversiality, c.Gilded,
			nullString(c.Distinguished), c.Removed, c.Collapsed,
			c.Locked, c.Stickied, now,
		)
		if err != nil {
			return &harvest.Error{Op: "insert_comment", Err: err}
		}

		for _, a := range c.Awards {
			if _, err := awards.ExecContext(ctx, c.ID, a.ID, a.Name, a.Count, a.AwardType, a.CoinPrice); err != nil {
				return &harvest.Error{Op: "insert_comment_award", Err: err}
			}
		}
	}
	return nil
}

// storedDepth looks up the depth of a parent written by an earlier batch. An
// unknown parent counts as top-level.
func storedDepth(ctx context.Context, tx *sql.Tx, id string) (int, error) {
	var depth int
	err := tx.QueryRowContext(ctx, "SELECT depth FROM comments WHERE id = $1", id).Scan(&depth)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, &harvest.Error{Op: "get_comment_depth", Err: err}
	}
	return depth, nil
}

// GetComment retrieves a single comment by ID
func (s *PostgresStorage) GetComment(ctx context.Context, id string) (*harvest.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id)
	if err != nil {
		return nil, &harvest.Error{Op: "get_comment", Err: err}
	}
	comments, err := scanComments(rows)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, &harvest.Error{Op: "get_comment", Err: fmt.Errorf("comment not found: %s", id)}
	}

	c := comments[0]
	awardRows, err := s.db.QueryContext(ctx, `
		SELECT id, name, count, COALESCE(award_type, ''), coin_price
		FROM comment_awards
		WHERE comment_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, &harvest.Error{Op: "get_comment_awards", Err: err}
	}
	if c.Awards, err = scanAwards(awardRows); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCommentsBySubmission retrieves all comments of a submission in thread
// order: every comment follows its parent, siblings oldest first.
func (s *PostgresStorage) GetCommentsBySubmission(ctx context.Context, submissionID string) ([]*harvest.Comment, error) {
	query := `
		WITH RECURSIVE comment_tree AS (
			SELECT id, lpad(created_utc::text, 12, '0') || id AS path
			FROM comments
			WHERE submission_id = $1 AND parent_id IS NULL

			UNION ALL

			SELECT c.id, ct.path || '/' || lpad(c.created_utc::text, 12, '0') || c.id
			FROM comments c
			JOIN comment_tree ct ON c.parent_id = ct.id
		)
		SELECT ` + prefixed("c.", commentColumns) + `
		FROM comment_tree ct
		JOIN comments c ON c.id = ct.id
		ORDER BY ct.path COLLATE "C"
	`

	rows, err := s.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, &harvest.Error{Op: "get_comments_by_submission", Err: err}
	}
	return scanComments(rows)
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanComments(rows *sql.Rows) ([]*harvest.Comment, error) {
	defer rows.Close()

	var comments []*harvest.Comment
	for rows.Next() {
		var c harvest.Comment
		var title, parent, bodyHTML, permalink, distinguished sql.NullString
		var edited sql.NullInt64

		err := rows.Scan(
			&c.ID, &c.SubmissionID, &title, &c.Subreddit, &parent, &c.Author,
			&c.Body, &bodyHTML, &permalink, &c.Score, &c.Ups, &c.Downs,
			&c.CreatedUTC, &edited, &c.Controversiality, &c.Gilded,
			&distinguished, &c.Removed, &c.Collapsed, &c.Locked, &c.Stickied,
		)
		if err != nil {
			return nil, &harvest.Error{Op: "scan_comment", Err: err}
		}

		// Reconstruct fullnames with prefixes
		if parent.Valid {
			c.ParentID = "t1_" + parent.String
		} else {
			c.ParentID = c.LinkID()
		}
		c.SubmissionTitle = title.String
		c.BodyHTML = bodyHTML.String
		c.Permalink = permalink.String
		c.Distinguished = distinguished.String
		c.EditedUTC = edited.Int64
		comments = append(comments, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, &harvest.Error{Op: "scan_comments", Err: err}
	}
	return comments, nil
}
