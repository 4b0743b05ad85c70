package harvest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/internal/testutil"
)

func ids[R harvest.Record](records []R) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.RecordID()
	}
	return out
}

func equalIDs(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected ids %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected ids %v, got %v", want, got)
		}
	}
}

func TestFetch_StopsAtLowerBound(t *testing.T) {
	ctx := context.Background()

	// Only the first four records may be pulled: 100, 95, 90 and the 85 that
	// ends the window.
	src := testutil.StrictSource(t, 4,
		testutil.NewRecord("a", 100),
		testutil.NewRecord("b", 95),
		testutil.NewRecord("c", 90),
		testutil.NewRecord("d", 85),
		testutil.NewRecord("e", 80),
		testutil.NewRecord("f", 70),
	)

	got, err := harvest.Collect(ctx, harvest.Fetch(src, harvest.Window{Min: 85}))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	equalIDs(t, ids(got), "a", "b", "c")
}

func TestFetch_WindowBounds(t *testing.T) {
	ctx := context.Background()
	const T = 1000

	tests := []struct {
		name   string
		window harvest.Window
		want   []string
	}{
		{"strict lower bound", harvest.Window{Min: T}, []string{"after"}},
		{"inclusive upper bound", harvest.Window{Max: T}, []string{"at", "before"}},
		{"both bounds", harvest.Window{Min: T - 1, Max: T}, []string{"at"}},
		{"unbounded", harvest.Window{}, []string{"after", "at", "before"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := harvest.FromSlice([]*testutil.Rec{
				testutil.NewRecord("after", T+1),
				testutil.NewRecord("at", T),
				testutil.NewRecord("before", T-1),
			})
			got, err := harvest.Collect(ctx, harvest.Fetch(src, tt.window))
			if err != nil {
				t.Fatalf("Fetch failed: %v", err)
			}
			equalIDs(t, ids(got), tt.want...)
		})
	}
}

func TestFetch_SkipsAboveUpperBound(t *testing.T) {
	ctx := context.Background()

	// A stickied post at the head of the feed must not end the run.
	src := harvest.FromSlice([]*testutil.Rec{
		testutil.NewRecord("sticky", 500),
		testutil.NewRecord("a", 100),
		testutil.NewRecord("b", 90),
	})

	got, err := harvest.Collect(ctx, harvest.Fetch(src, harvest.Window{Min: 50, Max: 200}))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	equalIDs(t, ids(got), "a", "b")
}

func TestFetch_PropagatesSourceError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	src := testutil.FailingSource(boom, testutil.NewRecord("a", 100))
	got, err := harvest.Collect(ctx, harvest.Fetch(src, harvest.Window{}))
	if !errors.Is(err, boom) {
		t.Fatalf("Expected source error, got %v", err)
	}
	// records seen before the failure are returned to the caller
	equalIDs(t, ids(got), "a")
}

func TestFetch_ConsumerStopsEarly(t *testing.T) {
	src := testutil.StrictSource(t, 1,
		testutil.NewRecord("a", 100),
		testutil.NewRecord("b", 90),
	)
	for r, err := range harvest.Fetch(src, harvest.Window{}) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.RecordID() == "a" {
			break
		}
	}
}

func TestDaysBack(t *testing.T) {
	now := time.Unix(10*harvest.SecondsInDay, 0)

	w := harvest.DaysBack(now, 3)
	if w.Min != 7*harvest.SecondsInDay || w.Max != 10*harvest.SecondsInDay {
		t.Errorf("Unexpected window %+v", w)
	}

	w = harvest.DaysBack(now, 0)
	if w.Min != 0 {
		t.Errorf("Expected open lower bound, got %d", w.Min)
	}
	if !w.Contains(1) || w.Contains(now.Unix()+1) {
		t.Errorf("Contains disagrees with window %+v", w)
	}
}
