package csvsink

import (
	"strconv"
	"time"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

func itoa(v int) string     { return strconv.Itoa(v) }
func i64(v int64) string    { return strconv.FormatInt(v, 10) }
func btoa(v bool) string    { return strconv.FormatBool(v) }
func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// utc formats a unix time like the thread export expects, empty for zero.
func utc(v int64) string {
	if v == 0 {
		return ""
	}
	return time.Unix(v, 0).UTC().Format(time.DateTime)
}

// DumpSubmissions is the layout of the dump command.
var DumpSubmissions = Codec[*harvest.Submission]{
	Header: []string{
		"id", "title", "score", "upvote_ratio", "author", "permalink", "created_utc",
		"domain", "link or text", "link_flair_text", "link_flair_css_class",
		"gilded", "num_comments", "over_18",
	},
	Encode: func(s *harvest.Submission) []string {
		return []string{
			s.ID, s.Title, itoa(s.Score), ftoa(s.UpvoteRatio), s.Author, s.Permalink, i64(s.CreatedUTC),
			s.Domain, s.LinkOrText(), s.FlairText, s.FlairClass,
			itoa(s.Gilded), itoa(s.NumComments), btoa(s.Over18),
		}
	},
}

// StatsSubmissions is the submissions file of the stats command.
var StatsSubmissions = Codec[*harvest.Submission]{
	Header: []string{
		"id", "title", "score", "author", "permalink", "created_utc", "domain",
		"link_flair_css_class", "gilded", "num_comments", "over_18",
	},
	Encode: func(s *harvest.Submission) []string {
		return []string{
			s.ID, s.Title, itoa(s.Score), s.Author, s.Permalink, i64(s.CreatedUTC), s.Domain,
			s.FlairClass, itoa(s.Gilded), itoa(s.NumComments), btoa(s.Over18),
		}
	},
}

// StatsComments is the comments file of the stats command.
var StatsComments = Codec[*harvest.Comment]{
	Header: []string{
		"id", "score", "ups", "downs", "author", "link_id", "created_utc",
		"distinguished", "gilded", "body",
	},
	Encode: func(c *harvest.Comment) []string {
		return []string{
			c.ID, itoa(c.Score), itoa(c.Ups), itoa(c.Downs), c.Author, c.LinkID(), i64(c.CreatedUTC),
			c.Distinguished, itoa(c.Gilded), c.Body,
		}
	},
}

// GildedItems is the layout of the gilded command.
var GildedItems = Codec[*harvest.Gilded]{
	Header: []string{"id", "author", "score", "permalink", "link_id", "created_utc", "distinguished", "gilded"},
	Encode: func(g *harvest.Gilded) []string {
		return []string{
			g.ID, g.Author, itoa(g.Score), g.Permalink, g.LinkID, i64(g.CreatedUTC), g.Distinguished, itoa(g.Gilded),
		}
	},
}

// BestComments is the layout of the best command.
var BestComments = Codec[*harvest.Comment]{
	Header: []string{"id", "score", "author", "link", "created_utc", "distinguished", "gilded", "body"},
	Encode: func(c *harvest.Comment) []string {
		return []string{
			c.ID, itoa(c.Score), c.Author, c.Permalink, i64(c.CreatedUTC), c.Distinguished, itoa(c.Gilded), c.Body,
		}
	},
}

// YearSubmissions is the append-only yearly archive.
var YearSubmissions = Codec[*harvest.Submission]{
	Header: []string{
		"id", "score", "author", "permalink", "created_utc", "gilded", "total_awards_received",
		"num_comments", "domain", "url", "upvote_ratio", "removed", "locked", "over_18", "title",
	},
	Encode: func(s *harvest.Submission) []string {
		awards := 0
		for _, a := range s.Awards {
			awards += a.Count
		}
		return []string{
			s.ID, itoa(s.Score), s.Author, s.Permalink, i64(s.CreatedUTC), itoa(s.Gilded), itoa(awards),
			itoa(s.NumComments), s.Domain, s.URL, ftoa(s.UpvoteRatio), btoa(s.Removed), btoa(s.Locked), btoa(s.Over18), s.Title,
		}
	},
}

// Contributors writes one username per line.
var Contributors = Codec[*harvest.Contributor]{
	Encode: func(c *harvest.Contributor) []string { return []string{c.Name} },
}

// ThreadComments is the csv mode of the thread command.
var ThreadComments = Codec[*harvest.Comment]{
	Header: []string{
		"id", "score", "author", "link_id", "created_utc", "controversiality",
		"edited", "top_level", "stickied", "distinguished", "gilded", "parent", "body",
	},
	Encode: func(c *harvest.Comment) []string {
		parent := ""
		if !c.TopLevel() && len(c.ParentID) > 3 {
			parent = c.ParentID[3:]
		}
		edited := "false"
		if c.EditedUTC != 0 {
			edited = utc(c.EditedUTC)
		}
		return []string{
			c.ID, itoa(c.Score), c.Author, c.LinkID(), utc(c.CreatedUTC), itoa(c.Controversiality),
			edited, btoa(c.TopLevel()), btoa(c.Stickied), c.Distinguished, itoa(c.Gilded), parent, c.Body,
		}
	},
}

// UserHeader is the header the users command writes over the input file.
var UserHeader = []string{"Username", "Created UTC", "Comment karma", "Link karma", "Has verified email"}

// UserColumns are appended to a username row. A nil user gives "n/a" columns.
func UserColumns(u *harvest.User) []string {
	if u == nil {
		return []string{"n/a", "n/a", "n/a", "n/a"}
	}
	return []string{i64(u.CreatedUTC), itoa(u.CommentKarma), itoa(u.LinkKarma), btoa(u.HasVerifiedEmail)}
}
