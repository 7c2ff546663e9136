package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tipkoro/internal/types"
)

func captureActor(t *testing.T, srv *Server) (http.Handler, *types.Actor, *bool) {
	t.Helper()
	var captured types.Actor
	called := false
	h := srv.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		captured, _ = types.GetActor(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h, &captured, &called
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Error.Code
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	srv := newTestServer(t)
	mock := &MockAuthenticator{Actor: &types.Actor{ID: "user_2abc", Type: types.ActorTypeUser}}
	srv.Authenticator = mock

	h, actor, _ := captureActor(t, srv)
	req := httptest.NewRequest(http.MethodGet, "/v1/me/profile", nil)
	req.Header.Set("Authorization", "Bearer sess_token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if actor.ID != "user_2abc" {
		t.Errorf("expected actor user_2abc, got %q", actor.ID)
	}
	if len(mock.Calls) != 1 || mock.Calls[0] != "sess_token" {
		t.Errorf("expected token sess_token to be resolved, got %v", mock.Calls)
	}
}

func TestAuthMiddleware_NoTokenIsAnonymous(t *testing.T) {
	srv := newTestServer(t)
	mock := &MockAuthenticator{}
	srv.Authenticator = mock

	h, actor, called := captureActor(t, srv)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/creators/rafi", nil))

	if !*called {
		t.Fatal("anonymous request should reach the handler")
	}
	if actor.ID != "" {
		t.Errorf("expected no actor, got %q", actor.ID)
	}
	if len(mock.Calls) != 0 {
		t.Error("authenticator should not be called without a token")
	}
}

func TestAuthMiddleware_Failures(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		err      error
		wantCode string
	}{
		{
			name:     "malformed scheme",
			header:   "Basic dXNlcjpwYXNz",
			wantCode: string(types.ErrCodeAuthTokenMissing),
		},
		{
			name:     "empty bearer",
			header:   "Bearer   ",
			wantCode: string(types.ErrCodeAuthTokenMissing),
		},
		{
			name:     "expired",
			header:   "Bearer old",
			err:      types.NewAppError(types.ErrCodeAuthTokenExpired, "expired", nil),
			wantCode: string(types.ErrCodeAuthTokenExpired),
		},
		{
			name:     "invalid",
			header:   "Bearer forged",
			err:      types.NewAppError(types.ErrCodeAuthTokenInvalid, "bad signature", nil),
			wantCode: string(types.ErrCodeAuthTokenInvalid),
		},
		{
			name:     "unexpected error",
			header:   "Bearer x",
			err:      errors.New("jwks fetch failed"),
			wantCode: string(types.ErrCodeAuthTokenInvalid),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			srv.Authenticator = &MockAuthenticator{Err: tt.err}

			h, _, called := captureActor(t, srv)
			req := httptest.NewRequest(http.MethodGet, "/v1/me/profile", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if *called {
				t.Error("handler should not be called")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
			if got := decodeErrorCode(t, rec); got != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, got)
			}
		})
	}
}

func TestAuthMiddleware_NilActor(t *testing.T) {
	srv := newTestServer(t)
	srv.Authenticator = &MockAuthenticator{}

	h, _, _ := captureActor(t, srv)
	req := httptest.NewRequest(http.MethodGet, "/v1/me/profile", nil)
	req.Header.Set("Authorization", "Bearer sess")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_WebsocketQueryToken(t *testing.T) {
	srv := newTestServer(t)
	mock := &MockAuthenticator{Actor: &types.Actor{ID: "user_2abc", Type: types.ActorTypeUser}}
	srv.Authenticator = mock

	h, actor, _ := captureActor(t, srv)
	req := httptest.NewRequest(http.MethodGet, "/v1/me/feed?token=ws_token", nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if actor.ID != "user_2abc" {
		t.Errorf("expected actor from query token, got %q", actor.ID)
	}
	if len(mock.Calls) != 1 || mock.Calls[0] != "ws_token" {
		t.Errorf("expected ws_token to be resolved, got %v", mock.Calls)
	}
}

func TestAuthMiddleware_QueryTokenIgnoredWithoutUpgrade(t *testing.T) {
	srv := newTestServer(t)
	mock := &MockAuthenticator{}
	srv.Authenticator = mock

	h, _, called := captureActor(t, srv)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me/profile?token=leaked", nil))

	if !*called {
		t.Error("request should pass through anonymously")
	}
	if len(mock.Calls) != 0 {
		t.Error("query token must only be honoured on websocket upgrades")
	}
}

func TestRequireActor(t *testing.T) {
	srv := newTestServer(t)
	h := srv.RequireActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me/profile", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 without actor, got %d", rec.Code)
	}
	if got := decodeErrorCode(t, rec); got != string(types.ErrCodeAuthTokenMissing) {
		t.Errorf("expected auth_token_missing, got %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/me/profile", nil)
	req = req.WithContext(types.WithActor(req.Context(), types.Actor{ID: "user_2abc", Type: types.ActorTypeUser}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204 with actor, got %d", rec.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":    "abc",
		"bearer abc":    "abc",
		"BEARER  abc  ": "abc",
		"Bearer":        "",
		"Token abc":     "",
		"":              "",
	}
	for in, want := range tests {
		if got := extractBearerToken(in); got != want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}
