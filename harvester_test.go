package harvest_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"testing"
	"time"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/internal/testutil"
	"github.com/jamesprial/go-reddit-harvest/sqlite"
)

// fakeSource serves fixed listings and counts lookups.
type fakeSource struct {
	posts    []*harvest.Submission
	byID     map[string]*harvest.Submission
	comments map[string][]*harvest.Comment
	traffic  error
	lookups  []string
}

func (f *fakeSource) New(ctx context.Context, subreddit string) iter.Seq2[*harvest.Submission, error] {
	return harvest.FromSlice(f.posts)
}

func (f *fakeSource) Submission(ctx context.Context, subreddit, id string) (*harvest.Submission, error) {
	f.lookups = append(f.lookups, id)
	s, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("t3_%s: %w", id, harvest.ErrUnreachable)
	}
	return s, nil
}

func (f *fakeSource) Comments(ctx context.Context, subreddit, id string) ([]*harvest.Comment, error) {
	return f.comments[id], nil
}

func (f *fakeSource) About(ctx context.Context, subreddit string) (*harvest.Subreddit, error) {
	return &harvest.Subreddit{Name: subreddit, Title: "Test", Subscribers: 10}, nil
}

func (f *fakeSource) Traffic(ctx context.Context, subreddit string) iter.Seq2[*harvest.TrafficDay, error] {
	return func(yield func(*harvest.TrafficDay, error) bool) {
		yield(nil, f.traffic)
	}
}

var syncNow = time.Unix(1700000000, 0)

func openStore(t *testing.T, path string, now time.Time) *sqlite.SQLiteStorage {
	t.Helper()
	store, err := sqlite.New(path, sqlite.WithClock(testutil.FixedClock(now)))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err := store.RunMigrations(context.Background()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return store
}

func TestHarvester_SyncSubreddit(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "golang.db"), syncNow)
	defer store.Close()

	recent := testutil.NewTestSubmission("a", "golang", "Recent", syncNow.Unix()-3600)
	recent.NumComments = 2
	quiet := testutil.NewTestSubmission("b", "golang", "Quiet", syncNow.Unix()-7200)
	old := testutil.NewTestSubmission("c", "golang", "Old", syncNow.Unix()-3*harvest.SecondsInDay)

	reply := testutil.NewTestComment("c2", "a", "bob", "reply", syncNow.Unix()-1000)
	reply.ParentID = "t1_c1"
	src := &fakeSource{
		posts: []*harvest.Submission{recent, quiet, old},
		comments: map[string][]*harvest.Comment{
			"a": {testutil.NewTestComment("c1", "a", "alice", "top", syncNow.Unix()-2000), reply},
		},
		traffic: &harvest.Error{Op: "traffic", Err: harvest.ErrUnreachable},
	}

	h := harvest.NewHarvester(src, store, harvest.WithClock(testutil.FixedClock(syncNow)))
	report, err := h.SyncSubreddit(ctx, "golang", harvest.SyncOptions{DaysOld: 2, IncludeTraffic: true})
	if err != nil {
		t.Fatalf("SyncSubreddit failed: %v", err)
	}

	if report.Submissions != 2 {
		t.Errorf("Expected 2 submissions, got %d", report.Submissions)
	}
	if report.Comments != 2 {
		t.Errorf("Expected 2 comments, got %d", report.Comments)
	}
	if report.Traffic != 0 {
		t.Errorf("Expected traffic to be skipped, got %d", report.Traffic)
	}
	if report.SubmissionMark != harvest.Watermark(recent.CreatedUTC) {
		t.Errorf("Expected watermark %d, got %d", recent.CreatedUTC, report.SubmissionMark)
	}

	if _, err := store.GetSubmission(ctx, "c"); err == nil {
		t.Error("Submission outside the window was stored")
	}
	thread, err := store.GetCommentsBySubmission(ctx, "a")
	if err != nil {
		t.Fatalf("Failed to get comments: %v", err)
	}
	if len(thread) != 2 || thread[0].ID != "c1" || thread[1].ID != "c2" {
		t.Errorf("Unexpected thread %+v", thread)
	}
	sub, err := store.GetSubreddit(ctx, "golang")
	if err != nil || sub.Subscribers != 10 {
		t.Errorf("Subreddit not saved: %+v, %v", sub, err)
	}

	mark, err := store.Watermark(ctx, harvest.Key("golang", "comments"))
	if err != nil {
		t.Fatalf("Failed to read watermark: %v", err)
	}
	if mark != harvest.Watermark(reply.CreatedUTC) {
		t.Errorf("Expected comments watermark %d, got %d", reply.CreatedUTC, mark)
	}
}

func TestHarvester_TrafficErrorIsFatalUnlessUnreachable(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "golang.db"), syncNow)
	defer store.Close()

	boom := errors.New("boom")
	src := &fakeSource{traffic: boom}
	h := harvest.NewHarvester(src, store, harvest.WithClock(testutil.FixedClock(syncNow)))

	_, err := h.SyncSubreddit(context.Background(), "golang", harvest.SyncOptions{DaysOld: 1, IncludeTraffic: true})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected traffic error, got %v", err)
	}
}

func TestHarvester_RefreshPass(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "golang.db")

	// rows last updated five days ago
	earlier := openStore(t, path, syncNow.AddDate(0, 0, -5))
	stale := []*harvest.Submission{
		testutil.NewTestSubmission("keep", "golang", "Keep", syncNow.Unix()-6*harvest.SecondsInDay),
		testutil.NewTestSubmission("gone", "golang", "Gone", syncNow.Unix()-6*harvest.SecondsInDay+10),
	}
	if _, err := earlier.SubmissionSink().Write(ctx, "golang/submissions", stale, 0); err != nil {
		t.Fatalf("Failed to seed submissions: %v", err)
	}
	earlier.Close()

	store := openStore(t, path, syncNow)
	defer store.Close()

	updated := testutil.NewTestSubmission("keep", "golang", "Keep", stale[0].CreatedUTC)
	updated.Score = 42
	updated.NumComments = 1
	src := &fakeSource{
		byID:     map[string]*harvest.Submission{"keep": updated},
		comments: map[string][]*harvest.Comment{"keep": {testutil.NewTestComment("k1", "keep", "carol", "late", syncNow.Unix()-100)}},
	}
	h := harvest.NewHarvester(src, store, harvest.WithClock(testutil.FixedClock(syncNow)))

	report, err := h.SyncSubreddit(ctx, "golang", harvest.SyncOptions{DaysOld: 2, RefreshOld: 6})
	if err != nil {
		t.Fatalf("SyncSubreddit failed: %v", err)
	}
	if len(src.lookups) != 2 {
		t.Errorf("Expected every stale id to be visited, got %v", src.lookups)
	}
	if report.Refreshed != 1 || len(report.SkippedRefresh) != 1 || report.SkippedRefresh[0] != "gone" {
		t.Errorf("Unexpected refresh report %+v", report)
	}
	if report.RefreshedComments != 1 {
		t.Errorf("Expected 1 refreshed comment, got %d", report.RefreshedComments)
	}

	got, err := store.GetSubmission(ctx, "keep")
	if err != nil {
		t.Fatalf("Failed to get submission: %v", err)
	}
	if got.Score != 42 {
		t.Errorf("Expected refreshed score 42, got %d", got.Score)
	}

	mark, err := store.Watermark(ctx, "golang/submissions")
	if err != nil {
		t.Fatalf("Failed to read watermark: %v", err)
	}
	if mark != 0 {
		t.Errorf("Refresh advanced the watermark to %d", mark)
	}
}

func TestHarvester_RefreshFailFast(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "golang.db")

	earlier := openStore(t, path, syncNow.AddDate(0, 0, -5))
	seed := []*harvest.Submission{testutil.NewTestSubmission("gone", "golang", "Gone", 100)}
	if _, err := earlier.SubmissionSink().Write(ctx, "golang/submissions", seed, 0); err != nil {
		t.Fatalf("Failed to seed submissions: %v", err)
	}
	earlier.Close()

	store := openStore(t, path, syncNow)
	defer store.Close()

	h := harvest.NewHarvester(&fakeSource{}, store, harvest.WithClock(testutil.FixedClock(syncNow)))
	_, err := h.SyncSubreddit(ctx, "golang", harvest.SyncOptions{DaysOld: 2, RefreshOld: 6, RefreshPolicy: harvest.FailFast})
	if !harvest.IsUnreachable(err) {
		t.Fatalf("Expected unreachable error with FailFast, got %v", err)
	}
}
