package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strings"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

type awardJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
	AwardType string `json:"award_type"`
	CoinPrice int    `json:"coin_price"`
}

type submissionJSON struct {
	ID                string      `json:"id"`
	Subreddit         string      `json:"subreddit"`
	Title             string      `json:"title"`
	Score             int         `json:"score"`
	UpvoteRatio       float64     `json:"upvote_ratio"`
	Author            string      `json:"author"`
	Permalink         string      `json:"permalink"`
	CreatedUTC        timestamp   `json:"created_utc"`
	Domain            string      `json:"domain"`
	SelfText          string      `json:"selftext"`
	URL               string      `json:"url"`
	IsSelf            bool        `json:"is_self"`
	FlairText         string      `json:"link_flair_text"`
	FlairClass        string      `json:"link_flair_css_class"`
	Gilded            int         `json:"gilded"`
	NumComments       int         `json:"num_comments"`
	Over18            bool        `json:"over_18"`
	Distinguished     string      `json:"distinguished"`
	Removed           bool        `json:"removed"`
	RemovedByCategory string      `json:"removed_by_category"`
	Locked            bool        `json:"locked"`
	Stickied          bool        `json:"stickied"`
	Awardings         []awardJSON `json:"all_awardings"`
}

func convertAwards(in []awardJSON) []harvest.Award {
	if len(in) == 0 {
		return nil
	}
	out := make([]harvest.Award, len(in))
	for i, a := range in {
		out[i] = harvest.Award(a)
	}
	return out
}

func (s *submissionJSON) toSubmission() *harvest.Submission {
	author := s.Author
	if author == "" {
		author = harvest.DeletedAuthor
	}
	return &harvest.Submission{
		ID:                s.ID,
		Subreddit:         s.Subreddit,
		Title:             s.Title,
		Score:             s.Score,
		UpvoteRatio:       s.UpvoteRatio,
		Author:            author,
		Permalink:         s.Permalink,
		CreatedUTC:        int64(s.CreatedUTC),
		Domain:            s.Domain,
		SelfText:          s.SelfText,
		URL:               s.URL,
		IsSelf:            s.IsSelf,
		FlairText:         s.FlairText,
		FlairClass:        s.FlairClass,
		Gilded:            s.Gilded,
		NumComments:       s.NumComments,
		Over18:            s.Over18,
		Distinguished:     s.Distinguished,
		Removed:           s.Removed || s.RemovedByCategory != "",
		RemovedByCategory: s.RemovedByCategory,
		Locked:            s.Locked,
		Stickied:          s.Stickied,
		Awards:            convertAwards(s.Awardings),
	}
}

func decodeSubmission(t thing) (*harvest.Submission, error) {
	var s submissionJSON
	if err := json.Unmarshal(t.Data, &s); err != nil {
		return nil, fmt.Errorf("reddit: decode submission: %w", err)
	}
	return s.toSubmission(), nil
}

// New lists a subreddit's submissions newest first.
func (c *Client) New(ctx context.Context, subreddit string) iter.Seq2[*harvest.Submission, error] {
	return paginate(ctx, c, "/r/"+subreddit+"/new", nil, "t3", decodeSubmission)
}

// NewMulti lists a user's multireddit newest first. name is "user/m/multi".
func (c *Client) NewMulti(ctx context.Context, name string) iter.Seq2[*harvest.Submission, error] {
	return paginate(ctx, c, "/"+strings.Trim(name, "/")+"/new", nil, "t3", decodeSubmission)
}

// Listing picks New or NewMulti from the shape of name.
func (c *Client) Listing(ctx context.Context, name string) iter.Seq2[*harvest.Submission, error] {
	if IsMulti(name) {
		return c.NewMulti(ctx, name)
	}
	return c.New(ctx, name)
}

// IsMulti reports whether name is a "user/<name>/m/<multi>" path.
func IsMulti(name string) bool {
	parts := strings.Split(strings.Trim(name, "/"), "/")
	return len(parts) == 4 && (parts[0] == "user" || parts[0] == "u") && parts[2] == "m"
}

// Periods accepted by Top.
var Periods = []string{"all", "day", "hour", "month", "week", "year"}

// Top lists the best submissions of period, highest score first. The result
// is not ordered by created_utc.
func (c *Client) Top(ctx context.Context, subreddit, period string) iter.Seq2[*harvest.Submission, error] {
	return paginate(ctx, c, "/r/"+subreddit+"/top", url.Values{"t": {period}}, "t3", decodeSubmission)
}

// Submission fetches one submission by id.
func (c *Client) Submission(ctx context.Context, subreddit, id string) (*harvest.Submission, error) {
	var page listing
	if err := c.get(ctx, "/by_id/t3_"+id, nil, &page); err != nil {
		return nil, err
	}
	for _, child := range page.Data.Children {
		if child.Kind == "t3" {
			return decodeSubmission(child)
		}
	}
	return nil, &APIError{StatusCode: 404, Path: "/by_id/t3_" + id}
}

type gildedJSON struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Author        string    `json:"author"`
	Score         int       `json:"score"`
	Permalink     string    `json:"permalink"`
	LinkID        string    `json:"link_id"`
	CreatedUTC    timestamp `json:"created_utc"`
	Distinguished string    `json:"distinguished"`
	Gilded        int       `json:"gilded"`
}

// Gilded lists recently gilded submissions and comments.
func (c *Client) Gilded(ctx context.Context, subreddit string) iter.Seq2[*harvest.Gilded, error] {
	return func(yield func(*harvest.Gilded, error) bool) {
		for raw, err := range paginate(ctx, c, "/r/"+subreddit+"/gilded", nil, "", decodeThing) {
			if err != nil {
				yield(nil, err)
				return
			}
			var g gildedJSON
			if err := json.Unmarshal(raw.Data, &g); err != nil {
				yield(nil, fmt.Errorf("reddit: decode gilded: %w", err))
				return
			}
			item := &harvest.Gilded{
				Kind:          raw.Kind,
				ID:            g.ID,
				Author:        g.Author,
				Score:         g.Score,
				Permalink:     g.Permalink,
				LinkID:        g.LinkID,
				CreatedUTC:    int64(g.CreatedUTC),
				Distinguished: g.Distinguished,
				Gilded:        g.Gilded,
			}
			// submissions are their own link
			if raw.Kind == "t3" {
				item.LinkID = g.ID
			}
			if item.Author == "" {
				item.Author = harvest.DeletedAuthor
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

func decodeThing(t thing) (thing, error) {
	return t, nil
}
