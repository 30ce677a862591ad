package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"blocknote/api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

func authedRequest(t *testing.T, svc *Service, method, path, body string) *http.Request {
	t.Helper()
	session, err := svc.issueSession(store.User{ID: 1, Email: "avery@example.com"})
	if err != nil {
		t.Fatalf("issueSession failed: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+session.Token)
	return req
}

func TestRegisterReturnsToken(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/accounts/register/", bytes.NewBufferString(`{"email":"avery@example.com","password":"password123"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if token, _ := payload["token"].(string); token == "" {
		t.Fatal("expected token in response")
	}
	if email, _ := payload["email"].(string); email != "avery@example.com" {
		t.Fatalf("email = %q", email)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	fs := &fakeStore{
		createUserFn: func(context.Context, string, string) (store.User, error) {
			return store.User{}, store.ErrDuplicate
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	req := httptest.NewRequest(http.MethodPost, "/api/accounts/register/", bytes.NewBufferString(`{"email":"avery@example.com","password":"password123"}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestLoginWrongPasswordIs401(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) {
			return store.User{ID: 1, Email: "avery@example.com", PasswordHash: string(hash)}, nil
		},
	}
	server := NewHTTPServer(newTestService(fs), "*")

	req := httptest.NewRequest(http.MethodPost, "/api/accounts/login/", bytes.NewBufferString(`{"email":"avery@example.com","password":"wrong"}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestBlocksRequireSession(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	req := httptest.NewRequest(http.MethodGet, "/api/blocks/", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestBlocksFilterPassthrough(t *testing.T) {
	var got store.BlockFilter
	calls := 0
	fs := &fakeStore{
		listBlocksFn: func(_ context.Context, _ int64, filter store.BlockFilter) ([]store.Block, error) {
			// First call carries the request filter, the second loads the
			// arena with no filter.
			if calls == 0 {
				got = filter
			}
			calls++
			return nil, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, svc, http.MethodGet, "/api/blocks/?type=task&parent_block=&list_id=none", "")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if got.Type != "task" {
		t.Fatalf("type filter = %q", got.Type)
	}
	if got.Parent == nil || *got.Parent != "" {
		t.Fatalf("parent filter = %v, want empty string pointer", got.Parent)
	}
	if got.ListID != "none" {
		t.Fatalf("list filter = %q", got.ListID)
	}
}

func TestBlocksAbsentParentFilter(t *testing.T) {
	var got store.BlockFilter
	calls := 0
	fs := &fakeStore{
		listBlocksFn: func(_ context.Context, _ int64, filter store.BlockFilter) ([]store.Block, error) {
			if calls == 0 {
				got = filter
			}
			calls++
			return nil, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, svc, http.MethodGet, "/api/blocks/", "")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if got.Parent != nil {
		t.Fatalf("parent filter = %v, want nil", got.Parent)
	}
}

func TestCreateBlockEndpoint(t *testing.T) {
	fs := &fakeStore{
		maxBlockOrderFn: func(context.Context, int64) (float64, error) { return 4, nil },
		insertBlockFn: func(_ context.Context, item store.Block) (store.Block, error) {
			item.ID = 11
			return item, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, svc, http.MethodPost, "/api/blocks/", `{"html":"<p>note</p>","type":"task"}`)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var view BlockView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if view.ID != 11 || view.Type != "task" || view.Order != 5 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Tags == nil || view.ChildBlocks == nil {
		t.Fatal("tags and child_blocks must serialize as arrays")
	}
}

func TestDeleteBlockOfOtherUserIs404(t *testing.T) {
	fs := &fakeStore{
		deleteBlockFn: func(context.Context, int64, int64) error {
			// Owner-scoped delete matches no rows for foreign blocks.
			return sql.ErrNoRows
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, svc, http.MethodDelete, "/api/blocks/42/", "")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestDeleteListIsBodilessNoContent(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, svc, http.MethodDelete, "/api/lists/5/", "")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("204 response carries a body: %q", rr.Body.String())
	}
}

func TestTagDuplicateIs409(t *testing.T) {
	fs := &fakeStore{
		insertTagFn: func(context.Context, int64, string) (store.Tag, error) {
			return store.Tag{}, store.ErrDuplicate
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, svc, http.MethodPost, "/api/tags/", `{"name":"urgent"}`)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestProfileRoundTrip(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	req := authedRequest(t, svc, http.MethodGet, "/api/accounts/profile/", "")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var view UserView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if view.ID != 1 || view.Email != "avery@example.com" {
		t.Fatalf("unexpected profile: %+v", view)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}
