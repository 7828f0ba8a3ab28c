package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testBackoff() Backoff {
	return Backoff{MaxRetries: 2, InitialDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 2.0}
}

func TestSendScriptPostsPayload(t *testing.T) {
	var got ScriptRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 0, testBackoff())
	req := ScriptRequest{
		ID:              "idea-1",
		Title:           "Launch teaser",
		Description:     "Short hook for the launch",
		TargetDuration:  "10 mins",
		Status:          "Idea Submitted",
		Account:         "chan1",
		TargetAudiences: "Developers",
	}
	if err := client.SendScript(context.Background(), req); err != nil {
		t.Fatalf("send script: %v", err)
	}
	if got != req {
		t.Fatalf("server received %+v, want %+v", got, req)
	}
}

func TestSendIdeaFillsTimestamp(t *testing.T) {
	var got IdeaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient("", server.URL, 0, testBackoff())
	err := client.SendIdea(context.Background(), IdeaRequest{
		Duration:       "10",
		Account:        "chan1",
		ChannelURL:     "https://youtube.com/@chan1",
		TargetAudience: "Developers",
	})
	if err != nil {
		t.Fatalf("send idea: %v", err)
	}
	if got.Timestamp == "" {
		t.Fatal("timestamp not filled")
	}
	if _, err := time.Parse(time.RFC3339, got.Timestamp); err != nil {
		t.Fatalf("timestamp %q not RFC3339: %v", got.Timestamp, err)
	}
}

func TestSendScriptNonSuccessStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 0, testBackoff())
	if err := client.SendScript(context.Background(), ScriptRequest{ID: "idea-1"}); err == nil {
		t.Fatal("expected error on 400 response")
	}
}

func TestSendScriptRetriesServerErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 0, testBackoff())
	if err := client.SendScript(context.Background(), ScriptRequest{ID: "idea-1"}); err != nil {
		t.Fatalf("send script: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestSendScriptRequiresEndpoint(t *testing.T) {
	client := NewClient("", "", 0, testBackoff())
	if err := client.SendScript(context.Background(), ScriptRequest{ID: "idea-1"}); err == nil {
		t.Fatal("expected error without a configured endpoint")
	}
}
