package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"scriptflow/api/internal/pipeline"
	"scriptflow/api/internal/store"
)

// fakeStoreForHealth extends fakeStore with ping behavior
type fakeStoreForHealth struct {
	fakeStore
	pingFn func(context.Context) error
}

func (f *fakeStoreForHealth) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func newTestServer(t *testing.T, fs *fakeStore) (*HTTPServer, *Service, *testDeps) {
	t.Helper()
	svc, deps := newTestService(fs)
	return NewHTTPServer(svc, "*"), svc, deps
}

func signedInRequest(t *testing.T, svc *Service, method, path string, body any) *http.Request {
	t.Helper()
	session, err := svc.issueSession(context.Background(), store.User{ID: "user-1", Email: "a@b.c", DisplayName: "Avery"})
	if err != nil {
		t.Fatalf("issueSession() error = %v", err)
	}
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	return req
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpointReportsDatabaseFailure(t *testing.T) {
	fs := &fakeStoreForHealth{
		pingFn: func(context.Context) error { return errors.New("connection refused") },
	}
	svc, _ := newTestService(&fakeStore{})
	svc.store = fs
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if status := response["status"]; status != "not_ready" {
		t.Errorf("expected status=not_ready, got %v", status)
	}
}

func TestCORSHeadersOnEveryResponse(t *testing.T) {
	server, _, _ := newTestServer(t, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin=*, got %v", origin)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestIdeasRequireAuthentication(t *testing.T) {
	server, _, _ := newTestServer(t, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/ideas", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if code := response["code"]; code != "UNAUTHORIZED" {
		t.Errorf("expected code UNAUTHORIZED, got %v", code)
	}
}

func TestListIdeasReturnsWireShape(t *testing.T) {
	fs := &fakeStore{
		listScriptIdeasFn: func(context.Context, string) ([]store.ScriptIdea, error) {
			return []store.ScriptIdea{
				{ID: "idea-1", UserID: "user-1", Title: "Why Go?", Status: pipeline.StatusIdeaSubmitted},
			}, nil
		},
	}
	server, svc, _ := newTestServer(t, fs)

	req := signedInRequest(t, svc, http.MethodGet, "/api/ideas", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var response struct {
		Ideas []map[string]any `json:"ideas"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(response.Ideas) != 1 {
		t.Fatalf("expected one idea, got %d", len(response.Ideas))
	}
	if response.Ideas[0]["title"] != "Why Go?" || response.Ideas[0]["status"] != pipeline.StatusIdeaSubmitted {
		t.Fatalf("expected snake_case row fields, got %v", response.Ideas[0])
	}
}

func TestCreateIdeaEndpoint(t *testing.T) {
	var inserted store.ScriptIdea
	fs := &fakeStore{
		insertScriptIdeaFn: func(_ context.Context, item store.ScriptIdea) error {
			inserted = item
			return nil
		},
	}
	server, svc, _ := newTestServer(t, fs)

	req := signedInRequest(t, svc, http.MethodPost, "/api/ideas", map[string]any{
		"title":           "Why Go?",
		"target_duration": "12",
	})
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if inserted.UserID != "user-1" || inserted.Status != pipeline.StatusIdeaSubmitted {
		t.Fatalf("unexpected persisted idea %+v", inserted)
	}
	if inserted.TargetDuration != "12 mins" {
		t.Fatalf("expected formatted duration, got %q", inserted.TargetDuration)
	}
}

func TestCreateIdeaEndpointValidation(t *testing.T) {
	server, svc, _ := newTestServer(t, &fakeStore{})

	req := signedInRequest(t, svc, http.MethodPost, "/api/ideas", map[string]any{"title": ""})
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if code := response["code"]; code != "VALIDATION_ERROR" {
		t.Errorf("expected code VALIDATION_ERROR, got %v", code)
	}
}

func TestSignInAndSessionRoundTrip(t *testing.T) {
	server, svc, _ := newTestServer(t, &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, Email: "a@b.c", DisplayName: "Avery"}, nil
		},
	})

	session, err := svc.issueSession(context.Background(), store.User{ID: "user-1", Email: "a@b.c", DisplayName: "Avery"})
	if err != nil {
		t.Fatalf("issueSession() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["authenticated"] != true || response["email"] != "a@b.c" {
		t.Fatalf("unexpected session payload %v", response)
	}
}

func TestSessionWithoutTokenIsAnonymous(t *testing.T) {
	server, _, _ := newTestServer(t, &fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["authenticated"] != false {
		t.Fatalf("expected authenticated=false, got %v", response)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	server, svc, _ := newTestServer(t, &fakeStore{})

	req := signedInRequest(t, svc, http.MethodGet, "/api/nope", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
