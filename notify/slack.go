// Package notify announces new submissions on a Slack incoming webhook.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

// Slack posts messages to an incoming webhook.
type Slack struct {
	URL    string
	Client *http.Client
}

// NewSlack creates a webhook poster with a 10 second timeout.
func NewSlack(hookURL string) *Slack {
	return &Slack{URL: hookURL, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Post sends text as a form encoded "payload" field.
func (s *Slack) Post(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	form := url.Values{"payload": {string(payload)}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return &harvest.Error{Op: "slack_post", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return &harvest.Error{Op: "slack_post", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &harvest.Error{Op: "slack_post", Err: fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	return nil
}

// Message is the announcement of one submission.
func Message(s *harvest.Submission) string {
	return fmt.Sprintf("New post: <https://redd.it/%s|%s> by %s", s.ID, s.Title, s.Author)
}

// Postable reports whether a submission should be announced.
func Postable(s *harvest.Submission) bool {
	return s.Author != "" && s.Author != harvest.DeletedAuthor && !s.Removed
}

// SlackSink is a harvest.Sink that announces submissions instead of storing
// them. Its watermark lives in a WatermarkStore.
type SlackSink struct {
	Slack  *Slack
	Marks  harvest.WatermarkStore
	Logger logrus.FieldLogger
}

// Watermark reads the stored watermark of key.
func (k *SlackSink) Watermark(ctx context.Context, key string) (harvest.Watermark, error) {
	return k.Marks.Watermark(ctx, key)
}

// Write posts batch oldest first, skipping deleted and removed submissions.
// If a post fails the watermark is advanced to the last announced submission
// only, so the rest is retried on the next run.
func (k *SlackSink) Write(ctx context.Context, key string, batch []*harvest.Submission, mark harvest.Watermark) (int, error) {
	log := k.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("key", key)

	ordered := append([]*harvest.Submission(nil), batch...)
	harvest.SortByCreated(ordered)

	posted := 0
	var last harvest.Watermark
	for _, s := range ordered {
		if !Postable(s) {
			log.WithField("id", s.ID).Debug("Skipped: deleted or removed")
			continue
		}
		if err := k.Slack.Post(ctx, Message(s)); err != nil {
			if last > 0 {
				if aerr := k.Marks.AdvanceWatermark(ctx, key, last); aerr != nil {
					log.WithError(aerr).Warn("failed to advance watermark")
				}
			}
			return posted, err
		}
		posted++
		last = harvest.Watermark(s.CreatedUTC)
		log.WithField("id", s.ID).Debug("Posted")
	}

	if mark > 0 {
		if err := k.Marks.AdvanceWatermark(ctx, key, mark); err != nil {
			return posted, err
		}
	}
	return posted, nil
}
