package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"blocknote/api/internal/accounts"
	"blocknote/api/internal/auth"
	"blocknote/api/internal/store"
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
		w.WriteHeader(http.StatusNoContent)
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

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	// Account routes that need no session
	if r.Method == http.MethodPost && pathEquals(parts, "accounts", "register") {
		s.handleRegister(w, r)
		return
	}
	if r.Method == http.MethodPost && pathEquals(parts, "accounts", "login") {
		s.handleLogin(w, r)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodPost && pathEquals(parts, "accounts", "logout") {
		_ = s.service.Logout(r.Context(), session)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if pathEquals(parts, "accounts", "profile") {
		switch r.Method {
		case http.MethodGet:
			view, err := s.service.Profile(r.Context(), session)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, view)
		case http.MethodPatch:
			var input UpdateProfileInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view, err := s.service.UpdateProfile(r.Context(), session, input)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, view)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodGet && pathEquals(parts, "search") {
		query := r.URL.Query()
		limit := 20
		if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			limit = parsed
		}
		offset := 0
		if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
				return
			}
			offset = parsed
		}
		payload := s.service.Search(session, strings.TrimSpace(query.Get("q")), strings.TrimSpace(query.Get("type")), limit, offset)
		writeJSON(w, http.StatusOK, payload)
		return
	}

	switch parts[1] {
	case "blocks":
		s.handleBlocks(w, r, session, parts)
	case "lists":
		s.handleLists(w, r, session, parts)
	case "folders":
		s.handleFolders(w, r, session, parts)
	case "tags":
		s.handleTags(w, r, session, parts)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Register(r.Context(), body.Email, body.Password)
	if errors.Is(err, accounts.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":   session.Token,
		"user_id": session.UserID,
		"email":   session.Email,
	}
}

func (s *HTTPServer) handleBlocks(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			query := r.URL.Query()
			filter := store.BlockFilter{
				Type:   strings.TrimSpace(query.Get("type")),
				ListID: strings.TrimSpace(query.Get("list_id")),
			}
			// Presence matters: parent_block= selects top-level blocks,
			// an absent parameter applies no parent constraint.
			if values, ok := query["parent_block"]; ok && len(values) > 0 {
				parent := strings.TrimSpace(values[0])
				filter.Parent = &parent
			}
			views, err := s.service.ListBlocks(r.Context(), session, filter)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, views)
		case http.MethodPost:
			var input BlockInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view, err := s.service.CreateBlock(r.Context(), session, input)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, view)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	blockID, ok := parseID(w, parts[2])
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		view, err := s.service.GetBlock(r.Context(), session, blockID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPatch, http.MethodPut:
		var input BlockInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.UpdateBlock(r.Context(), session, blockID, input)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		if err := s.service.DeleteBlock(r.Context(), session, blockID); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleLists(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			views, err := s.service.ListLists(r.Context(), session, strings.TrimSpace(r.URL.Query().Get("search")))
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, views)
		case http.MethodPost:
			var input ListInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view, err := s.service.CreateList(r.Context(), session, input)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, view)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	listID, ok := parseID(w, parts[2])
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		view, err := s.service.GetList(r.Context(), session, listID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPatch, http.MethodPut:
		var input ListInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.UpdateList(r.Context(), session, listID, input)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		if err := s.service.DeleteList(r.Context(), session, listID); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleFolders(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			views, err := s.service.ListFolders(r.Context(), session)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, views)
		case http.MethodPost:
			var input FolderInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view, err := s.service.CreateFolder(r.Context(), session, input)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, view)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	folderID, ok := parseID(w, parts[2])
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		view, err := s.service.GetFolder(r.Context(), session, folderID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPatch, http.MethodPut:
		var input FolderInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.UpdateFolder(r.Context(), session, folderID, input)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		if err := s.service.DeleteFolder(r.Context(), session, folderID); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleTags(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			views, err := s.service.ListTags(r.Context(), session, strings.TrimSpace(r.URL.Query().Get("search")))
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, views)
		case http.MethodPost:
			var input TagInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view, err := s.service.CreateTag(r.Context(), session, input)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, view)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	tagID, ok := parseID(w, parts[2])
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		view, err := s.service.GetTag(r.Context(), session, tagID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPatch, http.MethodPut:
		var input TagInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.UpdateTag(r.Context(), session, tagID, input)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		if err := s.service.DeleteTag(r.Context(), session, tagID); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
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

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
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
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
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

func respondError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
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

func pathEquals(parts []string, want ...string) bool {
	if len(parts) != len(want)+1 {
		return false
	}
	for i, segment := range want {
		if parts[i+1] != segment {
			return false
		}
	}
	return true
}

func parseID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return 0, false
	}
	return id, true
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	}
	if errors.Is(err, accounts.ErrEmailTaken) {
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	}
	if errors.Is(err, store.ErrDuplicate) {
		return http.StatusConflict, "DUPLICATE", "Duplicate value", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
