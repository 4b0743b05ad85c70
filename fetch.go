package harvest

import (
	"context"
	"iter"
	"time"
)

// SecondsInDay is the length of the day windows used by every job.
const SecondsInDay = 60 * 60 * 24

// Window bounds the records a run may persist. A record is eligible when
// Min < created_utc <= Max. A zero bound is unbounded.
type Window struct {
	Min int64
	Max int64
}

// Contains reports whether created falls inside the window.
func (w Window) Contains(created int64) bool {
	if w.Min != 0 && created <= w.Min {
		return false
	}
	if w.Max != 0 && created > w.Max {
		return false
	}
	return true
}

// DaysBack returns the window (now - days, now]. Days <= 0 leaves Min open.
func DaysBack(now time.Time, days int) Window {
	w := Window{Max: now.Unix()}
	if days > 0 {
		w.Min = now.Unix() - int64(days)*SecondsInDay
	}
	return w
}

// Fetch filters a newest-first source down to the records inside w.
//
// It stops pulling from src at the first record at or below w.Min. Records
// above w.Max are skipped, not treated as the end: stickied or edited items can
// sit at the head of a live feed. A source error is yielded once and ends the
// sequence.
func Fetch[R Record](src iter.Seq2[R, error], w Window) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		for r, err := range src {
			if err != nil {
				var zero R
				yield(zero, err)
				return
			}
			created := r.Created()
			if w.Min != 0 && created <= w.Min {
				return
			}
			if !w.Contains(created) {
				continue
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Collect drains seq. On error it returns the records gathered so far together
// with the error.
func Collect[R Record](ctx context.Context, seq iter.Seq2[R, error]) ([]R, error) {
	var out []R
	for r, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, r)
		if err := ctx.Err(); err != nil {
			return out, err
		}
	}
	return out, nil
}

// FromSlice adapts a slice to a source, mostly for records already in memory.
func FromSlice[R Record](records []R) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
	}
}
