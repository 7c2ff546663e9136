package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"tipkoro/internal/core"
	"tipkoro/internal/types"
)

var testUser = &types.Actor{ID: "user_2abc", Type: types.ActorTypeUser, Email: "rafi@example.com"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(discardLogger())
}

// newRouter mounts routes under /v1 behind a stand-in for the auth
// middleware that injects actor when non-nil.
func newRouter(actor *types.Actor, mount ...func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := types.WithRequestID(r.Context(), "req-test")
			if actor != nil {
				ctx = types.WithActor(ctx, *actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Route("/v1", func(r chi.Router) {
		for _, m := range mount {
			m(r)
		}
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) core.ErrorDetail {
	t.Helper()
	var resp core.APIErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

// decodeData unmarshals the data field of a success envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

// validationFields returns the fields listed under details.validation_errors.
func validationFields(t *testing.T, detail core.ErrorDetail) []string {
	t.Helper()
	raw, ok := detail.Details["validation_errors"].([]any)
	require.True(t, ok, "expected validation_errors in %v", detail.Details)
	fields := make([]string, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		require.True(t, ok)
		fields = append(fields, m["field"].(string))
	}
	return fields
}
