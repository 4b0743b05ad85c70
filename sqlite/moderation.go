package sqlite

import (
	"context"
	"database/sql"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

func (s *SQLiteStorage) writeTraffic(ctx context.Context, tx *sql.Tx, days []*harvest.TrafficDay, now int64) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO traffics (subreddit, day, pageviews, uniques, new_members, last_update)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (subreddit, day) DO UPDATE SET
			pageviews = excluded.pageviews,
			uniques = excluded.uniques,
			new_members = excluded.new_members,
			last_update = excluded.last_update
	`)
	if err != nil {
		return &harvest.Error{Op: "prepare_statement", Err: err}
	}
	defer stmt.Close()

	for _, d := range days {
		if _, err := stmt.ExecContext(ctx, d.Subreddit, d.Day, d.Pageviews, d.Uniques, d.NewMembers, now); err != nil {
			return &harvest.Error{Op: "insert_traffic", Err: err}
		}
	}
	return nil
}

// Moderation log entries never change, so conflicts are ignored.
func (s *SQLiteStorage) writeBans(ctx context.Context, tx *sql.Tx, bans []*harvest.Ban, now int64) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO banned (id, username, subreddit, duration, created_utc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return &harvest.Error{Op: "prepare_statement", Err: err}
	}
	defer stmt.Close()

	for _, b := range bans {
		if _, err := stmt.ExecContext(ctx, b.ID, b.Username, b.Subreddit, nullString(b.Duration), b.CreatedUTC); err != nil {
			return &harvest.Error{Op: "insert_ban", Err: err}
		}
	}
	return nil
}

func (s *SQLiteStorage) writeRemovals(ctx context.Context, tx *sql.Tx, removals []*harvest.Removal, now int64) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO removed (id, username, subreddit, target, post, target_created_utc, created_utc)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return &harvest.Error{Op: "prepare_statement", Err: err}
	}
	defer stmt.Close()

	for _, r := range removals {
		_, err := stmt.ExecContext(ctx,
			r.ID, r.Username, r.Subreddit, r.Target, nullString(r.Post),
			nullInt(r.TargetCreatedUTC), r.CreatedUTC,
		)
		if err != nil {
			return &harvest.Error{Op: "insert_removal", Err: err}
		}
	}
	return nil
}

// Traffic returns the stored traffic of a subreddit, newest day first.
func (s *SQLiteStorage) Traffic(ctx context.Context, subreddit string) ([]*harvest.TrafficDay, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subreddit, day, pageviews, uniques, new_members
		FROM traffics
		WHERE subreddit = ?
		ORDER BY day DESC
	`, subreddit)
	if err != nil {
		return nil, &harvest.Error{Op: "get_traffic", Err: err}
	}
	defer rows.Close()

	var days []*harvest.TrafficDay
	for rows.Next() {
		var d harvest.TrafficDay
		if err := rows.Scan(&d.Subreddit, &d.Day, &d.Pageviews, &d.Uniques, &d.NewMembers); err != nil {
			return nil, &harvest.Error{Op: "scan_traffic", Err: err}
		}
		days = append(days, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, &harvest.Error{Op: "scan_traffic", Err: err}
	}
	return days, nil
}

// Bans returns the ban log of a subreddit, newest first.
func (s *SQLiteStorage) Bans(ctx context.Context, subreddit string) ([]*harvest.Ban, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, subreddit, COALESCE(duration, ''), created_utc
		FROM banned
		WHERE subreddit = ?
		ORDER BY created_utc DESC
	`, subreddit)
	if err != nil {
		return nil, &harvest.Error{Op: "get_bans", Err: err}
	}
	defer rows.Close()

	var bans []*harvest.Ban
	for rows.Next() {
		var b harvest.Ban
		if err := rows.Scan(&b.ID, &b.Username, &b.Subreddit, &b.Duration, &b.CreatedUTC); err != nil {
			return nil, &harvest.Error{Op: "scan_ban", Err: err}
		}
		bans = append(bans, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, &harvest.Error{Op: "scan_bans", Err: err}
	}
	return bans, nil
}
