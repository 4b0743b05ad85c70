package harvest

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jamesprial/go-reddit-harvest/metrics"
)

// Pipeline drives one fetch-and-persist run for a single source key:
// read watermark, build window, fetch, filter, write.
type Pipeline[R Record] struct {
	// Key identifies the watermark, usually "<subreddit>/<table>".
	Key    string
	Source iter.Seq2[R, error]
	Sink   Sink[R]

	// Filter drops records after the window check. Nil keeps everything.
	Filter func(R) bool

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
	Journal Journal
	Now     func() time.Time
}

// RunOptions configures the window of a single run.
type RunOptions struct {
	// DaysBack bounds the window to the last N days. Zero leaves it open.
	DaysBack int

	// Until is the upper bound; zero means now.
	Until time.Time

	// Since is an absolute lower bound, combined with DaysBack by taking the
	// later of the two.
	Since time.Time

	// UseWatermark raises the lower bound to the stored watermark.
	UseWatermark bool

	// FlushOnInterrupt writes the records collected before ctx was cancelled.
	// The watermark is not advanced for such a partial run.
	FlushOnInterrupt bool
}

// Result describes a finished run.
type Result[R Record] struct {
	RunID       string
	Key         string
	Window      Window
	Fetched     int
	Written     int
	Previous    Watermark
	Watermark   Watermark
	Records     []R
	Interrupted bool
}

func (p *Pipeline[R]) logger() logrus.FieldLogger {
	if p.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		return l
	}
	return p.Logger
}

func (p *Pipeline[R]) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Window computes the bounds a run with opts would use given the stored
// watermark.
func (p *Pipeline[R]) Window(opts RunOptions, stored Watermark) Window {
	now := p.now()
	until := now
	if !opts.Until.IsZero() {
		until = opts.Until
	}
	w := Window{Max: until.Unix()}
	if opts.DaysBack > 0 {
		w.Min = now.Unix() - int64(opts.DaysBack)*SecondsInDay
	}
	if !opts.Since.IsZero() && opts.Since.Unix() > w.Min {
		w.Min = opts.Since.Unix()
	}
	if opts.UseWatermark && int64(stored) > w.Min {
		w.Min = int64(stored)
	}
	return w
}

// Run executes the pipeline once.
func (p *Pipeline[R]) Run(ctx context.Context, opts RunOptions) (*Result[R], error) {
	started := p.now()
	res := &Result[R]{RunID: uuid.NewString(), Key: p.Key}
	log := p.logger().WithFields(logrus.Fields{"key": p.Key, "run_id": res.RunID})

	prev, err := p.Sink.Watermark(ctx, p.Key)
	if err != nil {
		return nil, &Error{Op: "read_watermark", Err: err}
	}
	res.Previous = prev
	res.Watermark = prev
	res.Window = p.Window(opts, prev)
	log.WithFields(logrus.Fields{"min": res.Window.Min, "max": res.Window.Max}).Debug("fetching")

	var records []R
	var fetchErr error
	for r, err := range Fetch(p.Source, res.Window) {
		if err != nil {
			fetchErr = err
			break
		}
		if p.Filter != nil && !p.Filter(r) {
			continue
		}
		records = append(records, r)
		if ctx.Err() != nil {
			break
		}
	}
	res.Fetched = len(records)

	if ctxErr := ctx.Err(); ctxErr != nil && (fetchErr == nil || errors.Is(fetchErr, ctxErr)) {
		if !opts.FlushOnInterrupt {
			p.finish(ctx, res, started, ctxErr)
			return res, ctxErr
		}
		res.Interrupted = true
		fetchErr = nil
		log.Warn("interrupted, flushing collected records")
	}
	if fetchErr != nil {
		err := &Error{Op: "fetch", Err: fetchErr}
		p.finish(ctx, res, started, err)
		return res, err
	}

	if len(records) == 0 {
		log.Warn("no new records")
		p.finish(ctx, res, started, nil)
		return res, nil
	}

	mark := MaxCreated(records)
	if res.Interrupted {
		mark = 0
	}
	// A cancelled run must still be able to flush.
	wctx := context.WithoutCancel(ctx)
	n, err := p.Sink.Write(wctx, p.Key, records, mark)
	res.Written = n
	res.Records = records
	if err != nil {
		err = &Error{Op: "write", Err: err}
		p.finish(wctx, res, started, err)
		return res, err
	}
	if mark > res.Watermark {
		res.Watermark = mark
	}
	log.WithFields(logrus.Fields{"fetched": res.Fetched, "written": n}).Info("run complete")
	p.finish(wctx, res, started, nil)
	return res, nil
}

func (p *Pipeline[R]) finish(ctx context.Context, res *Result[R], started time.Time, runErr error) {
	finished := p.now()
	p.Metrics.ObserveRun(p.Key, res.Fetched, res.Written, int64(res.Watermark), finished.Sub(started))
	if p.Journal == nil {
		return
	}
	run := &Run{
		ID:         res.RunID,
		Key:        p.Key,
		StartedAt:  started,
		FinishedAt: finished,
		Fetched:    res.Fetched,
		Written:    res.Written,
		Watermark:  res.Watermark,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := p.Journal.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		p.logger().WithError(err).Warn("failed to record run")
	}
}
