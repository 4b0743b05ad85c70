package harvest

import (
	"context"
	"iter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jamesprial/go-reddit-harvest/metrics"
)

// SubmissionSource is the part of a Reddit client the sync job needs.
type SubmissionSource interface {
	// New lists a subreddit's submissions newest first.
	New(ctx context.Context, subreddit string) iter.Seq2[*Submission, error]
	Submission(ctx context.Context, subreddit, id string) (*Submission, error)
	Comments(ctx context.Context, subreddit, id string) ([]*Comment, error)
	About(ctx context.Context, subreddit string) (*Subreddit, error)
}

// TrafficSource is implemented by clients that can read moderator traffic stats.
type TrafficSource interface {
	Traffic(ctx context.Context, subreddit string) iter.Seq2[*TrafficDay, error]
}

// Harvester combines a Reddit source with a Store.
type Harvester struct {
	source  SubmissionSource
	store   Store
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Harvester) { h.log = l }
}

// WithMetrics records run metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Harvester) { h.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Harvester) { h.now = now }
}

// NewHarvester creates a new harvester instance
func NewHarvester(source SubmissionSource, store Store, opts ...Option) *Harvester {
	h := &Harvester{
		source: source,
		store:  store,
		log:    logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SyncOptions configures SyncSubreddit.
type SyncOptions struct {
	// DaysOld bounds the submissions fetched from the new listing, and the
	// width of the refresh window.
	DaysOld int
	// RefreshOld is how many days ago the refresh window starts. Zero disables
	// the refresh pass.
	RefreshOld int
	// Incremental raises the lower bound to the stored watermark.
	Incremental    bool
	RefreshPolicy  ErrorPolicy
	IncludeTraffic bool
}

// SyncReport summarises a SyncSubreddit call.
type SyncReport struct {
	Subreddit          string
	Submissions        int
	Comments           int
	Traffic            int
	Refreshed          int
	RefreshedComments  int
	SkippedRefresh     []string
	SubmissionMark     Watermark
	CommentsWithErrors []string
}

// Key returns the watermark key of a subreddit table.
func Key(subreddit, table string) string {
	return subreddit + "/" + table
}

// SyncSubreddit stores the subreddit metadata, its recent submissions with
// their comments and traffic, then refreshes submissions stored
// RefreshOld days ago.
func (h *Harvester) SyncSubreddit(ctx context.Context, subreddit string, opts SyncOptions) (*SyncReport, error) {
	log := h.log.WithField("subreddit", subreddit)
	report := &SyncReport{Subreddit: subreddit}

	about, err := h.source.About(ctx, subreddit)
	if err != nil {
		return report, &Error{Op: "fetch_subreddit", Err: err}
	}
	if err := h.store.SaveSubreddit(ctx, about); err != nil {
		return report, err
	}

	posts := &Pipeline[*Submission]{
		Key:     Key(subreddit, "submissions"),
		Source:  h.source.New(ctx, subreddit),
		Sink:    h.store.SubmissionSink(),
		Logger:  log,
		Metrics: h.metrics,
		Journal: h.store,
		Now:     h.now,
	}
	res, err := posts.Run(ctx, RunOptions{DaysBack: opts.DaysOld, UseWatermark: opts.Incremental})
	if err != nil {
		return report, err
	}
	report.Submissions = res.Written
	report.SubmissionMark = res.Watermark

	n, failed, err := h.syncComments(ctx, log, subreddit, res.Records, opts.RefreshPolicy)
	report.Comments = n
	report.CommentsWithErrors = failed
	if err != nil {
		return report, err
	}

	if ts, ok := h.source.(TrafficSource); ok && opts.IncludeTraffic {
		traffic := &Pipeline[*TrafficDay]{
			Key:     Key(subreddit, "traffic"),
			Source:  ts.Traffic(ctx, subreddit),
			Sink:    h.store.TrafficSink(),
			Logger:  log,
			Metrics: h.metrics,
			Journal: h.store,
			Now:     h.now,
		}
		tr, err := traffic.Run(ctx, RunOptions{DaysBack: opts.DaysOld})
		if err != nil {
			if !IsUnreachable(err) {
				return report, err
			}
			log.WithError(err).Warn("traffic not available")
		} else {
			report.Traffic = tr.Written
		}
	}

	if opts.RefreshOld <= 0 {
		return report, nil
	}
	now := h.now()
	from := now.AddDate(0, 0, -opts.RefreshOld)
	to := from.AddDate(0, 0, opts.DaysOld)
	ids, err := h.store.StaleSubmissions(ctx, subreddit, from, to)
	if err != nil {
		return report, err
	}
	log.WithField("stale", len(ids)).Info("refreshing submissions")

	refresher := &Refresher[*Submission]{
		Key: Key(subreddit, "submissions"),
		Lookup: func(ctx context.Context, id string) (*Submission, error) {
			return h.source.Submission(ctx, subreddit, id)
		},
		Sink:    h.store.SubmissionSink(),
		Policy:  opts.RefreshPolicy,
		Logger:  log,
		Metrics: h.metrics,
	}
	rr, err := refresher.Refresh(ctx, ids)
	report.Refreshed = rr.Written
	report.SkippedRefresh = rr.Skipped
	if err != nil {
		return report, err
	}

	n, failed, err = h.syncComments(ctx, log, subreddit, rr.Records, opts.RefreshPolicy)
	report.RefreshedComments = n
	report.CommentsWithErrors = append(report.CommentsWithErrors, failed...)
	return report, err
}

// syncComments upserts the comments of every submission that has any. Failed
// threads are handled by policy the same way as refreshed submissions.
func (h *Harvester) syncComments(ctx context.Context, log logrus.FieldLogger, subreddit string, posts []*Submission, policy ErrorPolicy) (int, []string, error) {
	sink := h.store.CommentSink()
	key := Key(subreddit, "comments")

	var written int
	var failed []string
	for _, post := range posts {
		if post.NumComments == 0 {
			continue
		}
		comments, err := h.source.Comments(ctx, subreddit, post.ID)
		if err != nil {
			if policy.Skips(err) {
				log.WithError(err).WithField("submission", post.ID).Warn("skipping comments")
				h.metrics.Skip(key, skipReason(err))
				failed = append(failed, post.ID)
				continue
			}
			return written, failed, &Error{Op: "fetch_comments", Err: err}
		}
		if len(comments) == 0 {
			continue
		}
		n, err := sink.Write(ctx, key, comments, MaxCreated(comments))
		written += n
		if err != nil {
			return written, failed, err
		}
		log.WithFields(logrus.Fields{"submission": post.ID, "comments": n}).Debug("saved comments")
	}
	return written, failed, nil
}

// Watch runs fn once immediately and then on every tick until ctx ends. Errors
// from fn are logged and do not stop the loop.
func (h *Harvester) Watch(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	return Watch(ctx, h.log, interval, fn)
}

// Watch is the ticker loop behind Harvester.Watch.
func Watch(ctx context.Context, log logrus.FieldLogger, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := fn(ctx); err != nil {
		log.WithError(err).Error("initial run failed")
	}

	for {
		select {
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.WithError(err).Error("run failed")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
