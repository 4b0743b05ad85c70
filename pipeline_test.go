package harvest_test

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/internal/testutil"
	"github.com/jamesprial/go-reddit-harvest/metrics"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func newPipeline(src iter.Seq2[*testutil.Rec, error], sink *testutil.MemorySink[*testutil.Rec]) *harvest.Pipeline[*testutil.Rec] {
	return &harvest.Pipeline[*testutil.Rec]{
		Key:     "golang/submissions",
		Source:  src,
		Sink:    sink,
		Journal: sink,
		Now:     testutil.FixedClock(time.Unix(1000, 0)),
	}
}

func TestPipeline_Scenario(t *testing.T) {
	ctx := context.Background()
	sink := testutil.NewMemorySink[*testutil.Rec]()
	sink.Marks["golang/submissions"] = 85

	src := testutil.StrictSource(t, 3,
		testutil.NewRecord("a", 100),
		testutil.NewRecord("b", 90),
		testutil.NewRecord("c", 80),
		testutil.NewRecord("d", 70),
	)

	res, err := newPipeline(src, sink).Run(ctx, harvest.RunOptions{UseWatermark: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	equalIDs(t, ids(res.Records), "a", "b")
	if res.Written != 2 {
		t.Errorf("Expected 2 written, got %d", res.Written)
	}
	if len(sink.Batches) != 1 || len(sink.Batches[0]) != 2 {
		t.Errorf("Expected one batch of 2 records, got %v", sink.Batches)
	}
	if got := sink.Marks["golang/submissions"]; got != 100 {
		t.Errorf("Expected watermark 100, got %d", got)
	}
	if res.Previous != 85 || res.Watermark != 100 {
		t.Errorf("Unexpected watermarks previous=%d new=%d", res.Previous, res.Watermark)
	}
	if res.Window.Min != 85 || res.Window.Max != 1000 {
		t.Errorf("Unexpected window %+v", res.Window)
	}
}

func TestPipeline_WatermarkMonotonic(t *testing.T) {
	ctx := context.Background()
	sink := testutil.NewMemorySink[*testutil.Rec]()

	runs := [][]*testutil.Rec{
		{testutil.NewRecord("a", 300), testutil.NewRecord("b", 200)},
		{testutil.NewRecord("c", 500), testutil.NewRecord("a", 300)},
		{},
		{testutil.NewRecord("c", 500)},
	}
	for i, batch := range runs {
		if _, err := newPipeline(harvest.FromSlice(batch), sink).Run(ctx, harvest.RunOptions{UseWatermark: true}); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
		if i > 0 && sink.Marks["golang/submissions"] < 300 {
			t.Fatalf("watermark regressed after run %d: %d", i, sink.Marks["golang/submissions"])
		}
	}

	if got := sink.Marks["golang/submissions"]; got != 500 {
		t.Errorf("Expected watermark 500, got %d", got)
	}
	if len(sink.Rows) != 3 {
		t.Errorf("Expected 3 distinct rows, got %d", len(sink.Rows))
	}
	// empty runs never reach the sink
	if sink.WriteCalls() != 2 {
		t.Errorf("Expected 2 writes, got %d", sink.WriteCalls())
	}
	if len(sink.Journaled) != len(runs) {
		t.Errorf("Expected %d journal entries, got %d", len(runs), len(sink.Journaled))
	}
}

func TestPipeline_DaysBackAndWatermark(t *testing.T) {
	now := time.Unix(10*harvest.SecondsInDay, 0)
	p := &harvest.Pipeline[*testutil.Rec]{Now: testutil.FixedClock(now)}

	// the newer of the two lower bounds wins
	w := p.Window(harvest.RunOptions{DaysBack: 2, UseWatermark: true}, harvest.Watermark(9*harvest.SecondsInDay))
	if w.Min != 9*harvest.SecondsInDay {
		t.Errorf("Expected watermark lower bound, got %d", w.Min)
	}
	w = p.Window(harvest.RunOptions{DaysBack: 2, UseWatermark: true}, harvest.Watermark(1))
	if w.Min != 8*harvest.SecondsInDay {
		t.Errorf("Expected days-back lower bound, got %d", w.Min)
	}
	w = p.Window(harvest.RunOptions{DaysBack: 2}, harvest.Watermark(9*harvest.SecondsInDay))
	if w.Min != 8*harvest.SecondsInDay {
		t.Errorf("Watermark must be ignored without UseWatermark, got %d", w.Min)
	}
	until := time.Unix(5*harvest.SecondsInDay, 0)
	w = p.Window(harvest.RunOptions{Until: until}, 0)
	if w.Max != until.Unix() || w.Min != 0 {
		t.Errorf("Unexpected window %+v", w)
	}

	since := time.Unix(3*harvest.SecondsInDay, 0)
	w = p.Window(harvest.RunOptions{Since: since, Until: until}, 0)
	if w.Min != since.Unix() || w.Max != until.Unix() {
		t.Errorf("Expected fixed range, got %+v", w)
	}
	w = p.Window(harvest.RunOptions{Since: since, UseWatermark: true}, harvest.Watermark(4*harvest.SecondsInDay))
	if w.Min != 4*harvest.SecondsInDay {
		t.Errorf("Expected watermark to override since, got %d", w.Min)
	}
}

func TestPipeline_Filter(t *testing.T) {
	ctx := context.Background()
	sink := testutil.NewMemorySink[*testutil.Rec]()
	p := newPipeline(harvest.FromSlice([]*testutil.Rec{
		testutil.NewRecord("keep", 300),
		testutil.NewRecord("drop", 200),
	}), sink)
	p.Filter = func(r *testutil.Rec) bool { return r.ID != "drop" }

	res, err := p.Run(ctx, harvest.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	equalIDs(t, ids(res.Records), "keep")
	if sink.Marks["golang/submissions"] != 300 {
		t.Errorf("Expected watermark 300, got %d", sink.Marks["golang/submissions"])
	}
}

func TestPipeline_SourceErrorIsFatal(t *testing.T) {
	ctx := context.Background()
	sink := testutil.NewMemorySink[*testutil.Rec]()
	boom := errors.New("connection reset")

	res, err := newPipeline(testutil.FailingSource(boom, testutil.NewRecord("a", 100)), sink).Run(ctx, harvest.RunOptions{})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected source error, got %v", err)
	}
	var herr *harvest.Error
	if !errors.As(err, &herr) || herr.Op != "fetch" {
		t.Errorf("Expected *harvest.Error with op fetch, got %v", err)
	}
	if sink.WriteCalls() != 0 {
		t.Error("Nothing must be written after a source error")
	}
	if res.Watermark != 0 {
		t.Errorf("Watermark must not move, got %d", res.Watermark)
	}
	if len(sink.Journaled) != 1 || sink.Journaled[0].Error == "" {
		t.Error("Expected failed run in journal")
	}
}

func TestPipeline_WriteError(t *testing.T) {
	ctx := context.Background()
	sink := testutil.NewMemorySink[*testutil.Rec]()
	sink.WriteErr = errors.New("disk full")

	_, err := newPipeline(harvest.FromSlice([]*testutil.Rec{testutil.NewRecord("a", 100)}), sink).Run(ctx, harvest.RunOptions{})
	if !errors.Is(err, sink.WriteErr) {
		t.Fatalf("Expected write error, got %v", err)
	}
	if sink.Marks["golang/submissions"] != 0 {
		t.Error("Watermark must not move when the write fails")
	}
}

// cancelAfter yields records and cancels ctx once n have been consumed.
func cancelAfter(cancel context.CancelFunc, n int, records ...*testutil.Rec) iter.Seq2[*testutil.Rec, error] {
	return func(yield func(*testutil.Rec, error) bool) {
		for i, r := range records {
			if i == n {
				cancel()
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

func TestPipeline_FlushOnInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := testutil.NewMemorySink[*testutil.Rec]()

	src := cancelAfter(cancel, 1,
		testutil.NewRecord("a", 300),
		testutil.NewRecord("b", 200),
		testutil.NewRecord("c", 100),
	)
	res, err := newPipeline(src, sink).Run(ctx, harvest.RunOptions{FlushOnInterrupt: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Interrupted {
		t.Error("Expected interrupted result")
	}
	equalIDs(t, ids(res.Records), "a", "b")
	if len(sink.Rows) != 2 {
		t.Errorf("Expected 2 flushed rows, got %d", len(sink.Rows))
	}
	if sink.Marks["golang/submissions"] != 0 {
		t.Errorf("Partial run must not advance the watermark, got %d", sink.Marks["golang/submissions"])
	}
}

func TestPipeline_InterruptWithoutFlush(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := testutil.NewMemorySink[*testutil.Rec]()

	src := cancelAfter(cancel, 1, testutil.NewRecord("a", 300), testutil.NewRecord("b", 200))
	_, err := newPipeline(src, sink).Run(ctx, harvest.RunOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if sink.WriteCalls() != 0 {
		t.Error("Nothing must be written")
	}
}

func TestPipeline_Metrics(t *testing.T) {
	ctx := context.Background()
	sink := testutil.NewMemorySink[*testutil.Rec]()
	m := metrics.New()

	p := newPipeline(harvest.FromSlice([]*testutil.Rec{
		testutil.NewRecord("a", 300),
		testutil.NewRecord("b", 200),
	}), sink)
	p.Metrics = m
	if _, err := p.Run(ctx, harvest.RunOptions{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := promtest.ToFloat64(m.Written.WithLabelValues("golang/submissions")); got != 2 {
		t.Errorf("Expected 2 written, got %v", got)
	}
	if got := promtest.ToFloat64(m.Watermark.WithLabelValues("golang/submissions")); got != 300 {
		t.Errorf("Expected watermark gauge 300, got %v", got)
	}
}
