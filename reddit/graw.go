package reddit

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	graw "github.com/jamesprial/go-reddit-api-wrapper"
	"github.com/jamesprial/go-reddit-api-wrapper/pkg/types"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

// grawAPI is the subset of the go-reddit-api-wrapper client used by Graw.
type grawAPI interface {
	GetSubreddit(ctx context.Context, name string) (*types.SubredditData, error)
	GetNew(ctx context.Context, req *types.PostsRequest) (*types.PostsResponse, error)
	GetComments(ctx context.Context, req *types.CommentsRequest) (*types.CommentsResponse, error)
}

// Graw adapts the go-reddit-api-wrapper client to harvest.SubmissionSource.
// The wrapper exposes fewer fields than the JSON API; the rest stay zero.
type Graw struct {
	api grawAPI
}

// NewGraw creates an application-only wrapper client.
func NewGraw(clientID, clientSecret, userAgent string) (*Graw, error) {
	client, err := graw.NewClient(&graw.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		UserAgent:    userAgent,
	})
	if err != nil {
		return nil, &harvest.Error{Op: "create_client", Err: err}
	}
	return &Graw{api: client}, nil
}

// New lists submissions newest first, following the after cursor.
func (g *Graw) New(ctx context.Context, subreddit string) iter.Seq2[*harvest.Submission, error] {
	return func(yield func(*harvest.Submission, error) bool) {
		after := ""
		for {
			resp, err := g.api.GetNew(ctx, &types.PostsRequest{
				Subreddit: subreddit,
				Pagination: types.Pagination{
					Limit: PageSize,
					After: after,
				},
			})
			if err != nil {
				yield(nil, grawError("fetch_posts", err))
				return
			}
			for _, post := range resp.Posts {
				if !yield(fromGrawPost(post), nil) {
					return
				}
			}
			after = resp.AfterFullname
			if after == "" || len(resp.Posts) == 0 {
				return
			}
		}
	}
}

// Submission fetches one submission through its comments page.
func (g *Graw) Submission(ctx context.Context, subreddit, id string) (*harvest.Submission, error) {
	resp, err := g.api.GetComments(ctx, &types.CommentsRequest{Subreddit: subreddit, PostID: id})
	if err != nil {
		return nil, grawError("fetch_post", err)
	}
	if resp.Post == nil {
		return nil, &harvest.Error{Op: "fetch_post", Err: harvest.ErrUnreachable}
	}
	return fromGrawPost(resp.Post), nil
}

// Comments fetches the loaded comments of a submission.
func (g *Graw) Comments(ctx context.Context, subreddit, id string) ([]*harvest.Comment, error) {
	resp, err := g.api.GetComments(ctx, &types.CommentsRequest{Subreddit: subreddit, PostID: id})
	if err != nil {
		return nil, grawError("fetch_comments", err)
	}
	title := ""
	if resp.Post != nil {
		title = resp.Post.Title
	}
	out := make([]*harvest.Comment, 0, len(resp.Comments))
	for _, c := range resp.Comments {
		cm := fromGrawComment(c)
		cm.SubmissionTitle = title
		cm.Subreddit = subreddit
		if cm.SubmissionID == "" {
			cm.SubmissionID = id
		}
		out = append(out, cm)
	}
	return out, nil
}

// About fetches subreddit metadata.
func (g *Graw) About(ctx context.Context, subreddit string) (*harvest.Subreddit, error) {
	data, err := g.api.GetSubreddit(ctx, subreddit)
	if err != nil {
		return nil, grawError("fetch_subreddit", err)
	}
	return &harvest.Subreddit{
		Name:        data.DisplayName,
		Title:       data.Title,
		Description: data.Description,
		Subscribers: int(data.Subscribers),
	}, nil
}

// grawError wraps a wrapper error for op. The wrapper reports the HTTP status
// only in its message, so it is recovered from there and classified the same
// way as APIError.
func grawError(op string, err error) error {
	var rerr *graw.RequestError
	if errors.As(err, &rerr) && rerr.Err != nil {
		if status, ok := grawStatus(rerr.Err.Error()); ok {
			err = fmt.Errorf("%w: %w", &APIError{StatusCode: status, Path: rerr.URL}, err)
		}
	}
	return &harvest.Error{Op: op, Err: err}
}

const grawStatusPrefix = "API request failed with status "

func grawStatus(msg string) (int, bool) {
	_, rest, ok := strings.Cut(msg, grawStatusPrefix)
	if !ok {
		return 0, false
	}
	var status int
	if _, err := fmt.Sscanf(rest, "%d", &status); err != nil {
		return 0, false
	}
	return status, true
}

func fromGrawPost(p *types.Post) *harvest.Submission {
	author := p.Author
	if author == "" {
		author = harvest.DeletedAuthor
	}
	return &harvest.Submission{
		ID:          p.ID,
		Subreddit:   p.Subreddit,
		Title:       p.Title,
		Score:       int(p.Score),
		Author:      author,
		CreatedUTC:  int64(p.CreatedUTC),
		SelfText:    p.SelfText,
		URL:         p.URL,
		IsSelf:      p.IsSelf,
		NumComments: int(p.NumComments),
	}
}

func fromGrawComment(c *types.Comment) *harvest.Comment {
	author := c.Author
	if author == "" {
		author = harvest.DeletedAuthor
	}
	cm := &harvest.Comment{
		ID:           c.ID,
		SubmissionID: strings.TrimPrefix(c.LinkID, "t3_"),
		ParentID:     c.ParentID,
		Author:       author,
		Body:         c.Body,
		Score:        int(c.Score),
		CreatedUTC:   int64(c.CreatedUTC),
	}
	if c.Edited.IsEdited {
		cm.EditedUTC = int64(c.Edited.Timestamp)
	}
	return cm
}
