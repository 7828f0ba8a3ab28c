package webhook

import (
	"math/rand"
	"net"
	"net/http"
	"time"
)

// Backoff controls retry behavior for webhook POSTs. Zero values fall
// back to the defaults in newRetryClient.
type Backoff struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

type retryClient struct {
	client  *http.Client
	backoff Backoff
}

func newRetryClient(client *http.Client, backoff Backoff) *retryClient {
	if client == nil {
		client = http.DefaultClient
	}
	if backoff.MaxRetries == 0 {
		backoff.MaxRetries = 2
	}
	if backoff.InitialDelay == 0 {
		backoff.InitialDelay = 500 * time.Millisecond
	}
	if backoff.MaxDelay == 0 {
		backoff.MaxDelay = 5 * time.Second
	}
	if backoff.Multiplier == 0 {
		backoff.Multiplier = 2.0
	}
	return &retryClient{client: client, backoff: backoff}
}

// Do issues req, retrying on timeouts, connection errors and 429/5xx
// responses with jittered exponential backoff.
func (c *retryClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error
	delay := c.backoff.InitialDelay

	for attempt := 0; attempt <= c.backoff.MaxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, bodyErr := req.GetBody()
				if bodyErr != nil {
					return nil, bodyErr
				}
				req.Body = body
			}
			time.Sleep(jitter(delay))
			delay = min(time.Duration(float64(delay)*c.backoff.Multiplier), c.backoff.MaxDelay)
		}

		resp, err = c.client.Do(req)
		if !retryable(resp, err) {
			return resp, err
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
	}
	return resp, err
}

func retryable(resp *http.Response, err error) bool {
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return true
		}
		if _, ok := err.(*net.OpError); ok {
			return true
		}
		if _, ok := err.(*net.DNSError); ok {
			return true
		}
		return false
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode >= 500 && resp.StatusCode < 600
}

func jitter(delay time.Duration) time.Duration {
	factor := 0.9 + rand.Float64()*0.2
	return time.Duration(float64(delay) * factor)
}
