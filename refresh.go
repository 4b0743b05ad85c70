package harvest

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jamesprial/go-reddit-harvest/metrics"
)

// ErrorPolicy decides what a refresh pass does when re-fetching one id fails.
type ErrorPolicy int

const (
	// SkipUnreachable skips ids that are gone or forbidden and fails on anything
	// else.
	SkipUnreachable ErrorPolicy = iota
	// FailFast aborts the pass on the first error.
	FailFast
	// SkipAll logs every failure and continues.
	SkipAll
)

func (p ErrorPolicy) String() string {
	switch p {
	case FailFast:
		return "fail"
	case SkipAll:
		return "skip-all"
	default:
		return "skip-unreachable"
	}
}

// ParseErrorPolicy maps a flag value to a policy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(s) {
	case "", "skip-unreachable", "skip_unreachable":
		return SkipUnreachable, nil
	case "fail", "fail-fast":
		return FailFast, nil
	case "skip-all", "skip_all", "skip":
		return SkipAll, nil
	}
	return SkipUnreachable, fmt.Errorf("unknown refresh error policy %q", s)
}

// Refresher re-fetches stored records by id and upserts them again. It visits
// every id and never moves the watermark.
type Refresher[R Record] struct {
	Key     string
	Lookup  func(ctx context.Context, id string) (R, error)
	Sink    Sink[R]
	Policy  ErrorPolicy
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// RefreshResult reports the outcome of a refresh pass.
type RefreshResult[R Record] struct {
	Records []R
	Written int
	Skipped []string
}

// Refresh looks up every id and writes the records that came back.
func (f *Refresher[R]) Refresh(ctx context.Context, ids []string) (*RefreshResult[R], error) {
	log := f.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("key", f.Key)

	res := &RefreshResult[R]{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r, err := f.Lookup(ctx, id)
		if err != nil {
			if f.Policy.Skips(err) {
				log.WithError(err).WithField("id", id).Warn("skipping refresh")
				res.Skipped = append(res.Skipped, id)
				f.Metrics.Skip(f.Key, skipReason(err))
				continue
			}
			return res, &Error{Op: "refresh " + id, Err: err}
		}
		res.Records = append(res.Records, r)
	}

	if len(res.Records) == 0 {
		log.Info("nothing to refresh")
		return res, nil
	}
	n, err := f.Sink.Write(ctx, f.Key, res.Records, 0)
	res.Written = n
	if err != nil {
		return res, &Error{Op: "refresh_write", Err: err}
	}
	log.WithFields(logrus.Fields{"refreshed": n, "skipped": len(res.Skipped)}).Info("refresh complete")
	return res, nil
}

// Skips reports whether err should be logged and skipped under p.
func (p ErrorPolicy) Skips(err error) bool {
	switch p {
	case FailFast:
		return false
	case SkipAll:
		return true
	default:
		return IsUnreachable(err)
	}
}

func skipReason(err error) string {
	if IsUnreachable(err) {
		return "unreachable"
	}
	return "error"
}
