package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/internal/testutil"
)

type hook struct {
	mu       sync.Mutex
	texts    []string
	failFrom int
}

func (h *hook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failFrom > 0 && len(h.texts)+1 >= h.failFrom {
		http.Error(w, "invalid_token", http.StatusForbidden)
		return
	}
	var payload struct{ Text string }
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.texts = append(h.texts, payload.Text)
}

func newSink(t *testing.T, h *hook) (*SlackSink, *testutil.MemorySink[*harvest.Submission]) {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	marks := testutil.NewMemorySink[*harvest.Submission]()
	return &SlackSink{Slack: NewSlack(srv.URL), Marks: marks}, marks
}

func TestSlackSink_PostsOldestFirst(t *testing.T) {
	h := &hook{}
	sink, marks := newSink(t, h)

	newest := testutil.NewTestSubmission("c", "golang", "Newest", 300)
	removed := testutil.NewTestSubmission("b", "golang", "Removed", 200)
	removed.Removed = true
	oldest := testutil.NewTestSubmission("a", "golang", "Oldest", 100)
	deleted := testutil.NewTestSubmission("d", "golang", "Deleted", 150)
	deleted.Author = harvest.DeletedAuthor

	batch := []*harvest.Submission{newest, removed, deleted, oldest}
	n, err := sink.Write(context.Background(), "golang/notify", batch, harvest.MaxCreated(batch))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{
		"New post: <https://redd.it/a|Oldest> by testuser",
		"New post: <https://redd.it/c|Newest> by testuser",
	}, h.texts)

	mark, err := marks.Watermark(context.Background(), "golang/notify")
	require.NoError(t, err)
	assert.Equal(t, harvest.Watermark(300), mark)
}

func TestSlackSink_FailureKeepsWatermarkAtLastPost(t *testing.T) {
	h := &hook{failFrom: 2}
	sink, marks := newSink(t, h)

	batch := []*harvest.Submission{
		testutil.NewTestSubmission("b", "golang", "Second", 200),
		testutil.NewTestSubmission("a", "golang", "First", 100),
	}
	n, err := sink.Write(context.Background(), "golang/notify", batch, 200)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	mark, err := marks.Watermark(context.Background(), "golang/notify")
	require.NoError(t, err)
	assert.Equal(t, harvest.Watermark(100), mark)
}

func TestSlackSink_PipelineSkipsAnnounced(t *testing.T) {
	h := &hook{}
	sink, _ := newSink(t, h)
	p := &harvest.Pipeline[*harvest.Submission]{
		Key:    "golang/notify",
		Source: harvest.FromSlice([]*harvest.Submission{testutil.NewTestSubmission("a", "golang", "Only", 100)}),
		Sink:   sink,
	}

	for range 2 {
		_, err := p.Run(context.Background(), harvest.RunOptions{UseWatermark: true})
		require.NoError(t, err)
	}
	assert.Len(t, h.texts, 1)
}
