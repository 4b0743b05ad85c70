package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

type commentJSON struct {
	ID               string      `json:"id"`
	LinkID           string      `json:"link_id"`
	LinkTitle        string      `json:"link_title"`
	Subreddit        string      `json:"subreddit"`
	ParentID         string      `json:"parent_id"`
	Author           string      `json:"author"`
	Body             string      `json:"body"`
	BodyHTML         string      `json:"body_html"`
	Permalink        string      `json:"permalink"`
	Score            int         `json:"score"`
	Ups              int         `json:"ups"`
	Downs            int         `json:"downs"`
	CreatedUTC       timestamp   `json:"created_utc"`
	Edited           edited      `json:"edited"`
	Controversiality int         `json:"controversiality"`
	Gilded           int         `json:"gilded"`
	Distinguished    string      `json:"distinguished"`
	Removed          bool        `json:"removed"`
	Collapsed        bool        `json:"collapsed"`
	Locked           bool        `json:"locked"`
	Stickied         bool        `json:"stickied"`
	Awardings        []awardJSON `json:"all_awardings"`
	Replies          replies     `json:"replies"`
}

type moreJSON struct {
	Count    int      `json:"count"`
	Children []string `json:"children"`
}

func (c *commentJSON) toComment() *harvest.Comment {
	author := c.Author
	if author == "" {
		author = harvest.DeletedAuthor
	}
	return &harvest.Comment{
		ID:               c.ID,
		SubmissionID:     strings.TrimPrefix(c.LinkID, "t3_"),
		SubmissionTitle:  c.LinkTitle,
		Subreddit:        c.Subreddit,
		ParentID:         c.ParentID,
		Author:           author,
		Body:             c.Body,
		BodyHTML:         c.BodyHTML,
		Permalink:        c.Permalink,
		Score:            c.Score,
		Ups:              c.Ups,
		Downs:            c.Downs,
		CreatedUTC:       int64(c.CreatedUTC),
		EditedUTC:        int64(c.Edited),
		Controversiality: c.Controversiality,
		Gilded:           c.Gilded,
		Distinguished:    c.Distinguished,
		Removed:          c.Removed,
		Collapsed:        c.Collapsed,
		Locked:           c.Locked,
		Stickied:         c.Stickied,
		Awards:           convertAwards(c.Awardings),
	}
}

// Comments fetches the whole loaded comment tree of a submission, flattened
// breadth first. "load more" stubs are counted and logged but not expanded.
func (c *Client) Comments(ctx context.Context, subreddit, id string) ([]*harvest.Comment, error) {
	path := "/comments/" + id
	if subreddit != "" {
		path = "/r/" + subreddit + path
	}
	var pages []listing
	if err := c.get(ctx, path, url.Values{"sort": {"top"}, "limit": {"500"}}, &pages); err != nil {
		return nil, err
	}
	if len(pages) < 2 {
		return nil, fmt.Errorf("reddit: %s: expected submission and comment listings, got %d", path, len(pages))
	}

	var title string
	for _, child := range pages[0].Data.Children {
		if child.Kind != "t3" {
			continue
		}
		post, err := decodeSubmission(child)
		if err != nil {
			return nil, err
		}
		title = post.Title
		if subreddit == "" {
			subreddit = post.Subreddit
		}
	}

	comments, stubs, hidden, err := flatten(pages[1].Data.Children)
	if err != nil {
		return nil, err
	}
	for _, cm := range comments {
		if cm.SubmissionID == "" {
			cm.SubmissionID = id
		}
		if cm.SubmissionTitle == "" {
			cm.SubmissionTitle = title
		}
		if cm.Subreddit == "" {
			cm.Subreddit = subreddit
		}
	}
	if stubs > 0 {
		c.log.WithField("submission", id).Debugf("skipped %d more stubs (%d comments)", stubs, hidden)
	}
	return comments, nil
}

// flatten walks the reply tree level by level.
func flatten(level []thing) (comments []*harvest.Comment, stubs, hidden int, err error) {
	for len(level) > 0 {
		var next []thing
		for _, child := range level {
			switch child.Kind {
			case "t1":
				var cj commentJSON
				if err := json.Unmarshal(child.Data, &cj); err != nil {
					return nil, 0, 0, fmt.Errorf("reddit: decode comment: %w", err)
				}
				comments = append(comments, cj.toComment())
				if cj.Replies.listing != nil {
					next = append(next, cj.Replies.listing.Data.Children...)
				}
			case "more":
				var m moreJSON
				if err := json.Unmarshal(child.Data, &m); err != nil {
					return nil, 0, 0, fmt.Errorf("reddit: decode more: %w", err)
				}
				stubs++
				hidden += m.Count
			}
		}
		level = next
	}
	return comments, stubs, hidden, nil
}
