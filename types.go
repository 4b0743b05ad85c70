package harvest

import (
	"sort"
	"strconv"
)

// Record is anything fetched from Reddit that can be persisted.
type Record interface {
	RecordID() string
	Created() int64
}

// DeletedAuthor is stored when Reddit no longer reports an author.
const DeletedAuthor = "[deleted]"

// Subreddit holds the metadata saved alongside a subreddit's content.
type Subreddit struct {
	Name        string
	Title       string
	Description string
	Subscribers int
	CreatedUTC  int64
}

// Submission is a link or self post.
type Submission struct {
	ID                string
	Subreddit         string
	Title             string
	Score             int
	UpvoteRatio       float64
	Author            string
	Permalink         string
	CreatedUTC        int64
	Domain            string
	SelfText          string
	URL               string
	IsSelf            bool
	FlairText         string
	FlairClass        string
	Gilded            int
	NumComments       int
	Over18            bool
	Distinguished     string
	Removed           bool
	RemovedByCategory string
	Locked            bool
	Stickied          bool
	Awards            []Award
}

func (s *Submission) RecordID() string { return s.ID }
func (s *Submission) Created() int64   { return s.CreatedUTC }

// LinkOrText is the self text for self posts and the URL otherwise.
func (s *Submission) LinkOrText() string {
	if s.IsSelf {
		return s.SelfText
	}
	return s.URL
}

// Comment belongs to a submission; SubmissionID carries no "t3_" prefix.
type Comment struct {
	ID               string
	SubmissionID     string
	SubmissionTitle  string
	Subreddit        string
	ParentID         string // fullname, "t3_..." for top-level comments
	Author           string
	Body             string
	BodyHTML         string
	Permalink        string
	Score            int
	Ups              int
	Downs            int
	CreatedUTC       int64
	EditedUTC        int64
	Controversiality int
	Gilded           int
	Distinguished    string
	Removed          bool
	Collapsed        bool
	Locked           bool
	Stickied         bool
	Awards           []Award
}

func (c *Comment) RecordID() string { return c.ID }
func (c *Comment) Created() int64   { return c.CreatedUTC }

// LinkID is the fullname of the parent submission.
func (c *Comment) LinkID() string { return "t3_" + c.SubmissionID }

// TopLevel reports whether the comment replies directly to the submission.
func (c *Comment) TopLevel() bool { return c.ParentID == "" || c.ParentID == c.LinkID() }

// Award is one awarding on a submission or comment.
type Award struct {
	ID        string
	Name      string
	Count     int
	AwardType string
	CoinPrice int
}

// TrafficDay is one row of the subreddit traffic report.
type TrafficDay struct {
	Subreddit  string
	Day        int64
	Pageviews  int
	Uniques    int
	NewMembers int
}

func (t *TrafficDay) RecordID() string { return strconv.FormatInt(t.Day, 10) }
func (t *TrafficDay) Created() int64   { return t.Day }

// Ban is a "banuser" moderation log entry.
type Ban struct {
	ID         string
	Username   string
	Subreddit  string
	Duration   string
	CreatedUTC int64
}

func (b *Ban) RecordID() string { return b.ID }
func (b *Ban) Created() int64   { return b.CreatedUTC }

// Removal is an "addremovalreason" moderation log entry. Target is the removed
// thing's fullname and Post the submission it belongs to.
type Removal struct {
	ID               string
	Username         string
	Subreddit        string
	Target           string
	Post             string
	TargetCreatedUTC int64
	CreatedUTC       int64
}

func (r *Removal) RecordID() string { return r.ID }
func (r *Removal) Created() int64   { return r.CreatedUTC }

// Gilded is an item from the gilded listing, either a submission or a comment.
type Gilded struct {
	Kind          string // "t3" or "t1"
	ID            string
	Author        string
	Score         int
	Permalink     string
	LinkID        string
	CreatedUTC    int64
	Distinguished string
	Gilded        int
}

func (g *Gilded) RecordID() string { return g.ID }
func (g *Gilded) Created() int64   { return g.CreatedUTC }

// User is a redditor's public profile.
type User struct {
	Name             string
	CreatedUTC       int64
	CommentKarma     int
	LinkKarma        int
	HasVerifiedEmail bool
}

func (u *User) RecordID() string { return u.Name }
func (u *User) Created() int64   { return u.CreatedUTC }

// Contributor is an approved submitter of a subreddit.
type Contributor struct {
	Name  string
	ID    string
	Added int64
}

func (c *Contributor) RecordID() string { return c.Name }
func (c *Contributor) Created() int64   { return c.Added }

// MaxCreated returns the newest created_utc in batch as a watermark.
func MaxCreated[R Record](batch []R) Watermark {
	var max int64
	for _, r := range batch {
		if c := r.Created(); c > max {
			max = c
		}
	}
	return Watermark(max)
}

// SortByCreated sorts records oldest first.
func SortByCreated[R Record](records []R) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Created() < records[j].Created()
	})
}

// SortByScore sorts comments by descending score.
func SortByScore(comments []*Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].Score > comments[j].Score
	})
}
