package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"sort"
	"strings"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

// Moderation log actions read by the harvester.
const (
	ActionBan           = "banuser"
	ActionRemovalReason = "addremovalreason"
)

type modActionJSON struct {
	ID             string    `json:"id"`
	Action         string    `json:"action"`
	TargetAuthor   string    `json:"target_author"`
	TargetFullname string    `json:"target_fullname"`
	Subreddit      string    `json:"subreddit"`
	Details        string    `json:"details"`
	CreatedUTC     timestamp `json:"created_utc"`
}

func decodeModAction(t thing) (*modActionJSON, error) {
	var a modActionJSON
	if err := json.Unmarshal(t.Data, &a); err != nil {
		return nil, fmt.Errorf("reddit: decode modaction: %w", err)
	}
	return &a, nil
}

func (c *Client) modLog(ctx context.Context, subreddit, action string) iter.Seq2[*modActionJSON, error] {
	return paginate(ctx, c, "/r/"+subreddit+"/about/log", url.Values{"type": {action}}, "modaction", decodeModAction)
}

// Bans lists the ban entries of the moderation log, newest first.
func (c *Client) Bans(ctx context.Context, subreddit string) iter.Seq2[*harvest.Ban, error] {
	return func(yield func(*harvest.Ban, error) bool) {
		for a, err := range c.modLog(ctx, subreddit, ActionBan) {
			if err != nil {
				yield(nil, err)
				return
			}
			ban := &harvest.Ban{
				ID:         a.ID,
				Username:   a.TargetAuthor,
				Subreddit:  a.Subreddit,
				Duration:   a.Details,
				CreatedUTC: int64(a.CreatedUTC),
			}
			if !yield(ban, nil) {
				return
			}
		}
	}
}

// Removals lists the removal-reason entries of the moderation log, newest
// first. Each entry costs one extra request to resolve its target, including
// the first entry past a window's lower bound since it is resolved before the
// window sees it. A target that can no longer be resolved keeps Post set to
// the target fullname and a zero TargetCreatedUTC.
func (c *Client) Removals(ctx context.Context, subreddit string) iter.Seq2[*harvest.Removal, error] {
	return func(yield func(*harvest.Removal, error) bool) {
		for a, err := range c.modLog(ctx, subreddit, ActionRemovalReason) {
			if err != nil {
				yield(nil, err)
				return
			}
			r := &harvest.Removal{
				ID:         a.ID,
				Username:   a.TargetAuthor,
				Subreddit:  a.Subreddit,
				Target:     a.TargetFullname,
				Post:       a.TargetFullname,
				CreatedUTC: int64(a.CreatedUTC),
			}
			target, err := c.Info(ctx, a.TargetFullname)
			switch {
			case harvest.IsUnreachable(err):
				c.log.WithError(err).WithField("target", a.TargetFullname).Debug("Removal target not found")
			case err != nil:
				yield(nil, err)
				return
			default:
				if target.LinkID != "" {
					r.Post = target.LinkID
				}
				r.TargetCreatedUTC = target.CreatedUTC
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Target is the part of a thing that Info resolves.
type Target struct {
	Fullname   string
	LinkID     string // empty for submissions
	CreatedUTC int64
}

// Info resolves a fullname ("t1_..." or "t3_...").
func (c *Client) Info(ctx context.Context, fullname string) (*Target, error) {
	var page listing
	if err := c.get(ctx, "/api/info", url.Values{"id": {fullname}}, &page); err != nil {
		return nil, err
	}
	for _, child := range page.Data.Children {
		var data struct {
			Name       string    `json:"name"`
			LinkID     string    `json:"link_id"`
			CreatedUTC timestamp `json:"created_utc"`
		}
		if err := json.Unmarshal(child.Data, &data); err != nil {
			return nil, fmt.Errorf("reddit: decode info: %w", err)
		}
		if data.Name == "" {
			data.Name = fullname
		}
		return &Target{Fullname: data.Name, LinkID: data.LinkID, CreatedUTC: int64(data.CreatedUTC)}, nil
	}
	return nil, &APIError{StatusCode: 404, Path: "/api/info?id=" + fullname}
}

// Traffic reads the daily traffic report, newest day first. Moderator access
// is required; without it the error is unreachable.
func (c *Client) Traffic(ctx context.Context, subreddit string) iter.Seq2[*harvest.TrafficDay, error] {
	return func(yield func(*harvest.TrafficDay, error) bool) {
		var report struct {
			Day [][]int64 `json:"day"`
		}
		if err := c.get(ctx, "/r/"+subreddit+"/about/traffic", nil, &report); err != nil {
			yield(nil, err)
			return
		}
		// rows are [day, uniques, pageviews, subscriptions]
		days := make([]*harvest.TrafficDay, 0, len(report.Day))
		for _, row := range report.Day {
			if len(row) < 4 {
				continue
			}
			days = append(days, &harvest.TrafficDay{
				Subreddit:  subreddit,
				Day:        row[0],
				Uniques:    int(row[1]),
				Pageviews:  int(row[2]),
				NewMembers: int(row[3]),
			})
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Day > days[j].Day })
		for _, d := range days {
			if !yield(d, nil) {
				return
			}
		}
	}
}

// Contributors lists the approved submitters of a subreddit.
func (c *Client) Contributors(ctx context.Context, subreddit string) iter.Seq2[*harvest.Contributor, error] {
	return paginate(ctx, c, "/r/"+subreddit+"/about/contributors", nil, "", func(t thing) (*harvest.Contributor, error) {
		var data struct {
			Name string    `json:"name"`
			ID   string    `json:"id"`
			Date timestamp `json:"date"`
		}
		if err := json.Unmarshal(t.Data, &data); err != nil {
			return nil, fmt.Errorf("reddit: decode contributor: %w", err)
		}
		return &harvest.Contributor{Name: data.Name, ID: strings.TrimPrefix(data.ID, "t2_"), Added: int64(data.Date)}, nil
	})
}
