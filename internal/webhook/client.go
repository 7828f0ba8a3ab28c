// Package webhook triggers the external script- and idea-generation
// jobs. Both calls are fire-and-forget: an HTTP success status means
// the job was accepted, and the finished work arrives later through
// the record store.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ScriptRequest is the body sent to the script-generation webhook.
type ScriptRequest struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	TargetDuration  string `json:"target_duration"`
	Status          string `json:"status"`
	Account         string `json:"account"`
	TargetAudiences string `json:"target_audiences"`
}

// IdeaRequest is the body sent to the idea-generation webhook. The
// caller supplies channel and audience context; title and description
// are produced by the job itself.
type IdeaRequest struct {
	Timestamp         string `json:"timestamp"`
	Duration          string `json:"duration"`
	Account           string `json:"account"`
	ChannelURL        string `json:"channel_url"`
	TargetAudience    string `json:"target_audience"`
	AgeGroup          string `json:"age_group"`
	Gender            string `json:"gender"`
	GeographicRegion  string `json:"geographic_region"`
	Interests         string `json:"interests"`
	PrimaryMotivation string `json:"primary_motivation"`
}

// Trigger posts generation requests to the configured webhook
// endpoints.
type Trigger interface {
	SendScript(ctx context.Context, req ScriptRequest) error
	SendIdea(ctx context.Context, req IdeaRequest) error
}

// Client posts generation requests over HTTP with retry and a client
// side rate cap so a stuck UI cannot hammer the generation service.
type Client struct {
	scriptURL string
	ideaURL   string
	http      *retryClient
	limiter   *rate.Limiter
}

func NewClient(scriptURL, ideaURL string, timeout time.Duration, backoff Backoff) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		scriptURL: scriptURL,
		ideaURL:   ideaURL,
		http:      newRetryClient(&http.Client{Timeout: timeout}, backoff),
		limiter:   rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

func (c *Client) SendScript(ctx context.Context, req ScriptRequest) error {
	if err := c.post(ctx, c.scriptURL, req); err != nil {
		return fmt.Errorf("script generation webhook: %w", err)
	}
	return nil
}

func (c *Client) SendIdea(ctx context.Context, req IdeaRequest) error {
	if req.Timestamp == "" {
		req.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if err := c.post(ctx, c.ideaURL, req); err != nil {
		return fmt.Errorf("idea generation webhook: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, payload any) error {
	if url == "" {
		return fmt.Errorf("no webhook endpoint configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
