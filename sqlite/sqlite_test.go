package sqlite

import (
	"context"
	"testing"
	"time"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/internal/testutil"
)

// getTestDB returns a test database connection
func getTestDB(t *testing.T, opts ...Option) *SQLiteStorage {
	// Use temporary file for testing
	tmpFile := t.TempDir() + "/test.db"

	store, err := New(tmpFile, opts...)
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	// Run migrations
	ctx := context.Background()
	if err := store.RunMigrations(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return store
}

var _ harvest.Store = (*SQLiteStorage)(nil)

func TestSQLiteStorage_MigrationsAreIdempotent(t *testing.T) {
	store := getTestDB(t)
	if err := store.RunMigrations(context.Background()); err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
}

func TestSQLiteStorage_SaveAndGetSubreddit(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()

	sub := &harvest.Subreddit{
		Name:        "golang",
		Title:       "The Go Programming Language",
		Description: "Ask questions and post articles about the Go programming language and related tools, events etc.",
		Subscribers: 250000,
		CreatedUTC:  1258000000,
	}

	if err := store.SaveSubreddit(ctx, sub); err != nil {
		t.Fatalf("Failed to save subreddit: %v", err)
	}

	// a later save without created_utc keeps the stored one
	if err := store.SaveSubreddit(ctx, &harvest.Subreddit{Name: "golang", Title: sub.Title, Subscribers: 260000}); err != nil {
		t.Fatalf("Failed to update subreddit: %v", err)
	}

	retrieved, err := store.GetSubreddit(ctx, "golang")
	if err != nil {
		t.Fatalf("Failed to get subreddit: %v", err)
	}
	if retrieved.Title != sub.Title {
		t.Errorf("Expected title %s, got %s", sub.Title, retrieved.Title)
	}
	if retrieved.Subscribers != 260000 {
		t.Errorf("Expected 260000 subscribers, got %d", retrieved.Subscribers)
	}
	if retrieved.CreatedUTC != sub.CreatedUTC {
		t.Errorf("Expected created_utc %d, got %d", sub.CreatedUTC, retrieved.CreatedUTC)
	}

	if _, err := store.GetSubreddit(ctx, "missing"); err == nil {
		t.Error("Expected error for missing subreddit")
	}
}

func TestSQLiteStorage_SaveAndGetSubmission(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()

	post := testutil.NewTestSubmission("test123", "golang", "Test Post Title", 1700000000)
	post.SelfText = "This is a test post"
	post.Score = 42
	post.UpvoteRatio = 0.97
	post.NumComments = 10
	post.Awards = []harvest.Award{{ID: "gid_1", Name: "Silver", Count: 1, CoinPrice: 100}}

	n, err := store.SubmissionSink().Write(ctx, "golang/submissions", []*harvest.Submission{post}, 0)
	if err != nil {
		t.Fatalf("Failed to save submission: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 written, got %d", n)
	}

	retrieved, err := store.GetSubmission(ctx, "test123")
	if err != nil {
		t.Fatalf("Failed to get submission: %v", err)
	}
	if retrieved.Title != post.Title {
		t.Errorf("Expected title %s, got %s", post.Title, retrieved.Title)
	}
	if retrieved.Score != 42 || retrieved.UpvoteRatio != 0.97 {
		t.Errorf("Unexpected score/ratio %d/%v", retrieved.Score, retrieved.UpvoteRatio)
	}
	if !retrieved.IsSelf {
		t.Error("Expected IsSelf")
	}
	if len(retrieved.Awards) != 1 || retrieved.Awards[0].Name != "Silver" {
		t.Errorf("Unexpected awards %+v", retrieved.Awards)
	}

	if _, err := store.GetSubmission(ctx, "missing"); err == nil {
		t.Error("Expected error for missing submission")
	}
}

func TestSQLiteStorage_UpsertPreservesImmutableFields(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	store := getTestDB(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	sink := store.SubmissionSink()

	post := testutil.NewTestSubmission("keep1", "golang", "Original title", 1699990000)
	post.Author = "original_author"
	post.Score = 10
	if _, err := sink.Write(ctx, "golang/submissions", []*harvest.Submission{post}, 0); err != nil {
		t.Fatalf("Failed to save submission: %v", err)
	}

	clock = clock.Add(time.Hour)
	refetched := testutil.NewTestSubmission("keep1", "golang", "Edited title", 1699990000)
	refetched.Author = harvest.DeletedAuthor
	refetched.Score = 99
	refetched.Removed = true
	refetched.Locked = true
	if _, err := sink.Write(ctx, "golang/submissions", []*harvest.Submission{refetched}, 0); err != nil {
		t.Fatalf("Failed to upsert submission: %v", err)
	}

	got, err := store.GetSubmission(ctx, "keep1")
	if err != nil {
		t.Fatalf("Failed to get submission: %v", err)
	}
	if got.Score != 99 || !got.Removed || !got.Locked {
		t.Errorf("Mutable fields not updated: %+v", got)
	}
	if got.Author != "original_author" {
		t.Errorf("Expected author to be preserved, got %s", got.Author)
	}
	if got.Title != "Original title" {
		t.Errorf("Expected title to be preserved, got %s", got.Title)
	}

	// last_update follows the clock
	ids, err := store.StaleSubmissions(ctx, "golang", clock, clock)
	if err != nil {
		t.Fatalf("StaleSubmissions failed: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("Expected last_update at the second write, got %v", ids)
	}
}

func TestSQLiteStorage_AwardsKeyedByParent(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()

	silver := harvest.Award{ID: "gid_1", Name: "Silver", Count: 1}
	a := testutil.NewTestSubmission("a", "golang", "A", 100)
	a.Awards = []harvest.Award{silver}
	b := testutil.NewTestSubmission("b", "golang", "B", 90)
	b.Awards = []harvest.Award{silver}

	if _, err := store.SubmissionSink().Write(ctx, "golang/submissions", []*harvest.Submission{a, b}, 0); err != nil {
		t.Fatalf("Failed to save submissions: %v", err)
	}

	a.Awards[0].Count = 3
	if _, err := store.SubmissionSink().Write(ctx, "golang/submissions", []*harvest.Submission{a}, 0); err != nil {
		t.Fatalf("Failed to update awards: %v", err)
	}

	gotA, _ := store.GetSubmission(ctx, "a")
	gotB, _ := store.GetSubmission(ctx, "b")
	if len(gotA.Awards) != 1 || gotA.Awards[0].Count != 3 {
		t.Errorf("Unexpected awards on a: %+v", gotA.Awards)
	}
	if len(gotB.Awards) != 1 || gotB.Awards[0].Count != 1 {
		t.Errorf("Unexpected awards on b: %+v", gotB.Awards)
	}
}

func TestSQLiteStorage_WatermarkMonotonic(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()
	sink := store.SubmissionSink()
	key := "golang/submissions"

	mark, err := sink.Watermark(ctx, key)
	if err != nil {
		t.Fatalf("Failed to read watermark: %v", err)
	}
	if mark != 0 {
		t.Errorf("Expected absent watermark, got %d", mark)
	}

	batches := []struct {
		posts []*harvest.Submission
		want  harvest.Watermark
	}{
		{[]*harvest.Submission{testutil.NewTestSubmission("a", "golang", "A", 300)}, 300},
		{[]*harvest.Submission{testutil.NewTestSubmission("b", "golang", "B", 200)}, 300},
		{[]*harvest.Submission{testutil.NewTestSubmission("c", "golang", "C", 500)}, 500},
	}
	for i, b := range batches {
		if _, err := sink.Write(ctx, key, b.posts, harvest.MaxCreated(b.posts)); err != nil {
			t.Fatalf("batch %d failed: %v", i, err)
		}
		got, err := sink.Watermark(ctx, key)
		if err != nil {
			t.Fatalf("Failed to read watermark: %v", err)
		}
		if got != b.want {
			t.Errorf("batch %d: expected watermark %d, got %d", i, b.want, got)
		}
	}

	if err := store.AdvanceWatermark(ctx, key, 100); err != nil {
		t.Fatalf("AdvanceWatermark failed: %v", err)
	}
	if got, _ := store.Watermark(ctx, key); got != 500 {
		t.Errorf("Watermark regressed to %d", got)
	}

	// keys are independent
	if got, _ := store.Watermark(ctx, "golang/comments"); got != 0 {
		t.Errorf("Expected no comments watermark, got %d", got)
	}
}

func TestSQLiteStorage_GetSubmissions(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()

	now := time.Now()
	posts := []*harvest.Submission{
		testutil.NewTestSubmission("post1", "testsubreddit", "Post 1", now.Add(-2*time.Hour).Unix()),
		testutil.NewTestSubmission("post2", "testsubreddit", "Post 2", now.Add(-1*time.Hour).Unix()),
		testutil.NewTestSubmission("post3", "testsubreddit", "Post 3", now.Add(-48*time.Hour).Unix()),
		testutil.NewTestSubmission("other", "othersub", "Other", now.Unix()),
	}
	posts[0].Score = 100
	posts[1].Score = 50
	posts[2].Score = 75

	if _, err := store.SubmissionSink().Write(ctx, "testsubreddit/submissions", posts, 0); err != nil {
		t.Fatalf("Failed to save submissions: %v", err)
	}

	got, err := store.GetSubmissions(ctx, "testsubreddit", harvest.QueryOptions{Limit: 10, SortBy: "score", SortOrder: "desc"})
	if err != nil {
		t.Fatalf("Failed to get submissions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 submissions, got %d", len(got))
	}
	if got[0].ID != "post1" || got[1].ID != "post3" || got[2].ID != "post2" {
		t.Errorf("Unexpected order %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}

	got, err = store.GetSubmissions(ctx, "testsubreddit", harvest.QueryOptions{StartDate: now.Add(-24 * time.Hour)})
	if err != nil {
		t.Fatalf("Failed to get submissions: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 recent submissions, got %d", len(got))
	}

	// pagination
	got, err = store.GetSubmissions(ctx, "testsubreddit", harvest.QueryOptions{Limit: 2, Offset: 2, SortOrder: "asc"})
	if err != nil {
		t.Fatalf("Failed to get submissions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "post2" {
		t.Errorf("Expected last page [post2], got %d items", len(got))
	}
}

func TestSQLiteStorage_StaleSubmissions(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	store := getTestDB(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	sink := store.SubmissionSink()

	write := func(id string) {
		t.Helper()
		if _, err := sink.Write(ctx, "golang/submissions", []*harvest.Submission{testutil.NewTestSubmission(id, "golang", id, 100)}, 0); err != nil {
			t.Fatalf("Failed to save %s: %v", id, err)
		}
	}

	write("old")
	clock = clock.AddDate(0, 0, 5)
	write("recent")

	ids, err := store.StaleSubmissions(ctx, "golang", time.Unix(1700000000, 0).Add(-time.Hour), time.Unix(1700000000, 0).AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("StaleSubmissions failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "old" {
		t.Errorf("Expected [old], got %v", ids)
	}
}

func TestSQLiteStorage_CommentThread(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()

	post := testutil.NewTestSubmission("depthtest", "golang", "Depth Test Post", 100)
	if _, err := store.SubmissionSink().Write(ctx, "golang/submissions", []*harvest.Submission{post}, 0); err != nil {
		t.Fatalf("Failed to save submission: %v", err)
	}

	c1 := testutil.NewTestComment("c1", "depthtest", "user1", "Top level", 200)
	c2 := testutil.NewTestComment("c2", "depthtest", "user2", "Reply to c1", 210)
	c2.ParentID = "t1_c1"
	c3 := testutil.NewTestComment("c3", "depthtest", "user3", "Reply to c2", 220)
	c3.ParentID = "t1_c2"
	c4 := testutil.NewTestComment("c4", "depthtest", "user4", "Another top level", 205)
	for _, c := range []*harvest.Comment{c1, c2, c3, c4} {
		c.Subreddit = "golang"
	}

	if _, err := store.CommentSink().Write(ctx, "golang/comments", []*harvest.Comment{c1, c4, c2}, 210); err != nil {
		t.Fatalf("Failed to save comments: %v", err)
	}
	// c3's parent comes from the earlier batch
	if _, err := store.CommentSink().Write(ctx, "golang/comments", []*harvest.Comment{c3}, 220); err != nil {
		t.Fatalf("Failed to save reply: %v", err)
	}

	var depth int
	if err := store.db.QueryRowContext(ctx, "SELECT depth FROM comments WHERE id = 'c3'").Scan(&depth); err != nil {
		t.Fatalf("Failed to read depth: %v", err)
	}
	if depth != 2 {
		t.Errorf("Expected c3 depth 2, got %d", depth)
	}

	thread, err := store.GetCommentsBySubmission(ctx, "depthtest")
	if err != nil {
		t.Fatalf("Failed to get comments: %v", err)
	}
	var order []string
	for _, c := range thread {
		order = append(order, c.ID)
	}
	want := []string{"c1", "c2", "c3", "c4"}
	if len(order) != len(want) {
		t.Fatalf("Expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, order)
		}
	}

	// Verify parent relationships
	if thread[1].ParentID != "t1_c1" {
		t.Errorf("Expected c2 parent to be t1_c1, got %s", thread[1].ParentID)
	}
	if thread[0].ParentID != "t3_depthtest" {
		t.Errorf("Expected c1 parent to be t3_depthtest, got %s", thread[0].ParentID)
	}

	if mark, _ := store.Watermark(ctx, "golang/comments"); mark != 220 {
		t.Errorf("Expected comments watermark 220, got %d", mark)
	}
}

func TestSQLiteStorage_CommentUpsertPreservesBody(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()

	c := testutil.NewTestComment("c1", "p1", "alice", "first words", 100)
	c.Subreddit = "golang"
	if _, err := store.CommentSink().Write(ctx, "golang/comments", []*harvest.Comment{c}, 0); err != nil {
		t.Fatalf("Failed to save comment: %v", err)
	}

	edited := testutil.NewTestComment("c1", "p1", harvest.DeletedAuthor, "[removed]", 100)
	edited.Subreddit = "golang"
	edited.Score = 7
	edited.Removed = true
	if _, err := store.CommentSink().Write(ctx, "golang/comments", []*harvest.Comment{edited}, 0); err != nil {
		t.Fatalf("Failed to upsert comment: %v", err)
	}

	got, err := store.GetComment(ctx, "c1")
	if err != nil {
		t.Fatalf("Failed to get comment: %v", err)
	}
	if got.Body != "first words" || got.Author != "alice" {
		t.Errorf("Immutable fields changed: %q by %q", got.Body, got.Author)
	}
	if got.Score != 7 || !got.Removed {
		t.Errorf("Mutable fields not updated: score=%d removed=%v", got.Score, got.Removed)
	}
}

func TestSQLiteStorage_ModerationLog(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()

	bans := []*harvest.Ban{
		{ID: "ModAction_1", Username: "spammer", Subreddit: "golang", Duration: "permanent", CreatedUTC: 300},
		{ID: "ModAction_2", Username: "troll", Subreddit: "golang", Duration: "3 days", CreatedUTC: 200},
	}
	if _, err := store.BanSink().Write(ctx, "golang/banned", bans, 300); err != nil {
		t.Fatalf("Failed to save bans: %v", err)
	}
	// overlap is ignored
	if _, err := store.BanSink().Write(ctx, "golang/banned", bans[:1], 300); err != nil {
		t.Fatalf("Failed to save bans again: %v", err)
	}

	got, err := store.Bans(ctx, "golang")
	if err != nil {
		t.Fatalf("Failed to get bans: %v", err)
	}
	if len(got) != 2 || got[0].Username != "spammer" {
		t.Errorf("Unexpected bans %+v", got)
	}

	removals := []*harvest.Removal{
		{ID: "ModAction_3", Username: "alice", Subreddit: "golang", Target: "t1_abc", Post: "t3_xyz", TargetCreatedUTC: 150, CreatedUTC: 250},
	}
	if _, err := store.RemovalSink().Write(ctx, "golang/removed", removals, 250); err != nil {
		t.Fatalf("Failed to save removals: %v", err)
	}
	if mark, _ := store.Watermark(ctx, "golang/removed"); mark != 250 {
		t.Errorf("Expected removed watermark 250, got %d", mark)
	}
}

func TestSQLiteStorage_Traffic(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()

	days := []*harvest.TrafficDay{
		{Subreddit: "golang", Day: 1700006400, Pageviews: 10, Uniques: 5},
		{Subreddit: "golang", Day: 1699920000, Pageviews: 8, Uniques: 4},
	}
	if _, err := store.TrafficSink().Write(ctx, "golang/traffic", days, 0); err != nil {
		t.Fatalf("Failed to save traffic: %v", err)
	}
	days[0].Pageviews = 20
	if _, err := store.TrafficSink().Write(ctx, "golang/traffic", days[:1], 0); err != nil {
		t.Fatalf("Failed to update traffic: %v", err)
	}

	got, err := store.Traffic(ctx, "golang")
	if err != nil {
		t.Fatalf("Failed to get traffic: %v", err)
	}
	if len(got) != 2 || got[0].Pageviews != 20 {
		t.Errorf("Unexpected traffic %+v", got)
	}
}

func TestSQLiteStorage_RecordRun(t *testing.T) {
	store := getTestDB(t)
	ctx := context.Background()

	run := &harvest.Run{
		ID:         "5b0f7c1e-4a53-4c5b-9d43-2a7b9c1d2e3f",
		Key:        "golang/submissions",
		StartedAt:  time.Unix(1700000000, 0),
		FinishedAt: time.Unix(1700000005, 0),
		Fetched:    3,
		Written:    3,
		Watermark:  1699999999,
	}
	if err := store.RecordRun(ctx, run); err != nil {
		t.Fatalf("Failed to record run: %v", err)
	}

	runs, err := store.Runs(ctx, "golang/submissions", 10)
	if err != nil {
		t.Fatalf("Failed to read runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Watermark != 1699999999 || runs[0].Error != "" {
		t.Errorf("Unexpected runs %+v", runs)
	}
}
