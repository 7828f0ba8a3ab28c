package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"scriptflow/api/internal/auth"
	"scriptflow/api/internal/authpw"
	"scriptflow/api/internal/feed"
	"scriptflow/api/internal/search"
	"scriptflow/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "email": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "email": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"email":         session.Email,
			"displayName":   session.DisplayName,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && (r.URL.Path == "/api/search" || r.URL.Path == "/api/ideas/search") {
		filterType := strings.TrimSpace(r.URL.Query().Get("type"))
		if r.URL.Path == "/api/ideas/search" {
			filterType = "idea"
		}
		q := search.Query{
			Text:       strings.TrimSpace(r.URL.Query().Get("q")),
			FilterType: search.ResultType(filterType),
			UserID:     session.UserID,
			Limit:      20,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			q.Limit = parsed
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
				return
			}
			q.Offset = parsed
		}
		writeJSON(w, http.StatusOK, s.service.Search(q))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/dashboard" {
		counts, err := s.service.PipelineCounts(r.Context(), session.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not load dashboard", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/ideas" {
		ideas, err := s.service.ListIdeas(r.Context(), session.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list ideas", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ideas": ideaRecords(ideas)})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/ideas" {
		var body IdeaInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		idea, err := s.service.CreateIdea(r.Context(), session.UserID, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"idea": feed.RecordFromIdea(idea)})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/ideas/generate" {
		var body GenerateIdeaInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.GenerateIdea(r.Context(), session.UserID, body); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/profile" {
		user, err := s.service.Profile(r.Context(), session.UserID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"userId":      user.ID,
			"email":       user.Email,
			"displayName": user.DisplayName,
			"avatarUrl":   user.AvatarURL,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/profile/avatar" {
		s.handleAvatarUpload(w, r, session)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "ideas" {
		s.handleIdea(w, r, session, parts[2])
		return
	}

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "ideas" && parts[3] == "generate-script" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		idea, err := s.service.GenerateScript(r.Context(), session.UserID, parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"idea": feed.RecordFromIdea(idea)})
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "accounts" {
		s.handleAccounts(w, r, session, parts[2:])
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "audiences" {
		s.handleAudiences(w, r, session, parts[2:])
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "urls" {
		s.handleURLs(w, r, session, parts[2:])
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "channels" {
		s.handleChannels(w, r, parts[2:])
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "videos" {
		s.handleVideos(w, r, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleIdea(w http.ResponseWriter, r *http.Request, session Session, id string) {
	switch r.Method {
	case http.MethodGet:
		idea, err := s.service.GetIdea(r.Context(), session.UserID, id)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"idea": feed.RecordFromIdea(idea)})
	case http.MethodPut:
		var body IdeaInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		idea, err := s.service.UpdateIdea(r.Context(), session.UserID, id, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"idea": feed.RecordFromIdea(idea)})
	case http.MethodDelete:
		if err := s.service.DeleteIdea(r.Context(), session.UserID, id); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleAccounts(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			accounts, err := s.service.ListAccounts(r.Context(), session.UserID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list accounts", nil)
				return
			}
			payload := make([]map[string]any, 0, len(accounts))
			for _, account := range accounts {
				payload = append(payload, accountPayload(account))
			}
			writeJSON(w, http.StatusOK, map[string]any{"accounts": payload})
		case http.MethodPost:
			var body AccountInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			account, err := s.service.CreateAccount(r.Context(), session.UserID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"account": accountPayload(account)})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	id := rest[0]
	switch r.Method {
	case http.MethodPut:
		var body AccountInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		account, err := s.service.UpdateAccount(r.Context(), session.UserID, id, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"account": accountPayload(account)})
	case http.MethodDelete:
		if err := s.service.DeleteAccount(r.Context(), session.UserID, id); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleAudiences(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 2 && rest[0] == "by-name" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		profile, err := s.service.GetAudienceByName(r.Context(), session.UserID, rest[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"audience": audiencePayload(profile)})
		return
	}

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			profiles, err := s.service.ListAudiences(r.Context(), session.UserID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list audience profiles", nil)
				return
			}
			payload := make([]map[string]any, 0, len(profiles))
			for _, profile := range profiles {
				payload = append(payload, audiencePayload(profile))
			}
			writeJSON(w, http.StatusOK, map[string]any{"audiences": payload})
		case http.MethodPost:
			var body AudienceInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			profile, err := s.service.CreateAudience(r.Context(), session.UserID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"audience": audiencePayload(profile)})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	id := rest[0]
	switch r.Method {
	case http.MethodPut:
		var body AudienceInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		profile, err := s.service.UpdateAudience(r.Context(), session.UserID, id, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"audience": audiencePayload(profile)})
	case http.MethodDelete:
		if err := s.service.DeleteAudience(r.Context(), session.UserID, id); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleURLs(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			urls, err := s.service.ListURLs(r.Context(), session.UserID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list tracked URLs", nil)
				return
			}
			payload := make([]map[string]any, 0, len(urls))
			for _, u := range urls {
				payload = append(payload, urlPayload(u))
			}
			writeJSON(w, http.StatusOK, map[string]any{"urls": payload})
		case http.MethodPost:
			var body TrackedURLInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			tracked, err := s.service.CreateURL(r.Context(), session.UserID, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"url": urlPayload(tracked)})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	id := rest[0]
	switch r.Method {
	case http.MethodPut:
		var body TrackedURLInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		tracked, err := s.service.UpdateURL(r.Context(), session.UserID, id, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"url": urlPayload(tracked)})
	case http.MethodDelete:
		if err := s.service.DeleteURL(r.Context(), session.UserID, id); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleChannels(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		sortBy, descending, limit, offset, err := listParams(r)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		channels, total, err := s.service.ListChannels(r.Context(), sortBy, descending, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list channels", nil)
			return
		}
		payload := make([]map[string]any, 0, len(channels))
		for _, channel := range channels {
			payload = append(payload, channelPayload(channel))
		}
		writeJSON(w, http.StatusOK, map[string]any{"channels": payload, "total": total})
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.service.DeleteChannel(r.Context(), rest[0]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleVideos(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		sortBy, descending, limit, offset, err := listParams(r)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		videos, total, err := s.service.ListVideos(r.Context(), sortBy, descending, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list videos", nil)
			return
		}
		payload := make([]map[string]any, 0, len(videos))
		for _, video := range videos {
			payload = append(payload, videoPayload(video))
		}
		writeJSON(w, http.StatusOK, map[string]any{"videos": payload, "total": total})
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.service.DeleteVideo(r.Context(), rest[0]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

const maxAvatarBytes = 2 << 20

func (s *HTTPServer) handleAvatarUpload(w http.ResponseWriter, r *http.Request, session Session) {
	if err := r.ParseMultipartForm(maxAvatarBytes + 4096); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "avatar file is required", nil)
		return
	}
	defer file.Close()

	if header.Size > maxAvatarBytes {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "avatar must be 2MB or smaller", nil)
		return
	}
	avatarURL, err := s.service.UploadAvatar(r.Context(), session.UserID, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"avatarUrl": avatarURL})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func listParams(r *http.Request) (sortBy string, descending bool, limit, offset int, err error) {
	sortBy = strings.TrimSpace(r.URL.Query().Get("sort_by"))
	descending = r.URL.Query().Get("order") != "asc"
	limit = 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return "", false, 0, 0, fmt.Errorf("limit must be an integer")
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil {
			return "", false, 0, 0, fmt.Errorf("offset must be an integer")
		}
	}
	return sortBy, descending, limit, offset, nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) || store.IsNotFound(err) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		if err.Error() == "email already registered" {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"email":        session.Email,
		"displayName":  session.DisplayName,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

func ideaRecords(ideas []store.ScriptIdea) []feed.Record {
	records := make([]feed.Record, 0, len(ideas))
	for _, idea := range ideas {
		records = append(records, feed.RecordFromIdea(idea))
	}
	return records
}

func accountPayload(account store.ChannelAccount) map[string]any {
	return map[string]any{
		"id":               account.ID,
		"channel_id":       account.ChannelID,
		"channel_url":      account.ChannelURL,
		"status":           account.Status,
		"target_audiences": account.TargetAudiences,
		"created_at":       account.CreatedAt,
	}
}

func audiencePayload(profile store.AudienceProfile) map[string]any {
	return map[string]any{
		"id":                    profile.ID,
		"audience_profile_name": profile.AudienceProfileName,
		"age_group":             profile.AgeGroup,
		"geographic_region":     profile.GeographicRegion,
		"gender":                profile.Gender,
		"interests":             profile.Interests,
		"primary_motivation":    profile.PrimaryMotivation,
		"created_at":            profile.CreatedAt,
		"updated_at":            profile.UpdatedAt,
	}
}

func urlPayload(u store.TrackedURL) map[string]any {
	return map[string]any{
		"id":                u.ID,
		"video_channel_url": u.VideoChannelURL,
		"url_type":          u.URLType,
		"is_tracked":        u.IsTracked,
		"reference_for":     u.ReferenceFor,
		"created_at":        u.CreatedAt,
		"updated_at":        u.UpdatedAt,
	}
}

func channelPayload(channel store.Channel) map[string]any {
	return map[string]any{
		"id":                  channel.ID,
		"channel_id":          channel.ChannelID,
		"channel_title":       channel.ChannelTitle,
		"channel_description": channel.ChannelDescription,
		"channel_avatar_url":  channel.ChannelAvatarURL,
		"subscriber_count":    channel.SubscriberCount,
		"view_count":          channel.ViewCount,
		"video_count":         channel.VideoCount,
		"channel_published":   channel.ChannelPublishedAt,
		"channel_country":     channel.ChannelCountry,
	}
}

func videoPayload(video store.Video) map[string]any {
	return map[string]any{
		"id":                  video.ID,
		"video_id":            video.VideoID,
		"channel_id":          video.ChannelID,
		"video_title":         video.VideoTitle,
		"video_description":   video.VideoDescription,
		"video_thumbnail_url": video.VideoThumbnailURL,
		"video_url":           video.VideoURL,
		"video_published":     video.VideoPublishedAt,
		"view_count":          video.ViewCount,
		"like_count":          video.LikeCount,
		"comment_count":       video.CommentCount,
		"duration":            video.Duration,
		"tags":                video.Tags,
	}
}
