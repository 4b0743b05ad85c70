package reddit

import (
	"context"
	"encoding/json"
	"fmt"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

// User fetches a redditor's public profile. Suspended and deleted accounts
// are unreachable.
func (c *Client) User(ctx context.Context, name string) (*harvest.User, error) {
	var t thing
	if err := c.get(ctx, "/user/"+name+"/about", nil, &t); err != nil {
		return nil, err
	}
	var data struct {
		Name             string    `json:"name"`
		CreatedUTC       timestamp `json:"created_utc"`
		CommentKarma     int       `json:"comment_karma"`
		LinkKarma        int       `json:"link_karma"`
		HasVerifiedEmail bool      `json:"has_verified_email"`
		IsSuspended      bool      `json:"is_suspended"`
	}
	if err := json.Unmarshal(t.Data, &data); err != nil {
		return nil, fmt.Errorf("reddit: decode user: %w", err)
	}
	if data.IsSuspended || data.CreatedUTC == 0 {
		return nil, &harvest.Error{Op: "user", Err: fmt.Errorf("%s: %w", name, harvest.ErrUnreachable)}
	}
	return &harvest.User{
		Name:             data.Name,
		CreatedUTC:       int64(data.CreatedUTC),
		CommentKarma:     data.CommentKarma,
		LinkKarma:        data.LinkKarma,
		HasVerifiedEmail: data.HasVerifiedEmail,
	}, nil
}

// About fetches subreddit metadata.
func (c *Client) About(ctx context.Context, subreddit string) (*harvest.Subreddit, error) {
	var t thing
	if err := c.get(ctx, "/r/"+subreddit+"/about", nil, &t); err != nil {
		return nil, err
	}
	if t.Kind != "t5" {
		// unknown names come back as an empty listing rather than a 404
		return nil, &APIError{StatusCode: 404, Path: "/r/" + subreddit + "/about"}
	}
	var data struct {
		DisplayName       string    `json:"display_name"`
		Title             string    `json:"title"`
		PublicDescription string    `json:"public_description"`
		Subscribers       int       `json:"subscribers"`
		CreatedUTC        timestamp `json:"created_utc"`
	}
	if err := json.Unmarshal(t.Data, &data); err != nil {
		return nil, fmt.Errorf("reddit: decode subreddit: %w", err)
	}
	return &harvest.Subreddit{
		Name:        data.DisplayName,
		Title:       data.Title,
		Description: data.PublicDescription,
		Subscribers: data.Subscribers,
		CreatedUTC:  int64(data.CreatedUTC),
	}, nil
}
