package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity(t *testing.T) {
	var gotUserID int64
	var gotOK bool
	handler := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, gotOK = UserIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sync/transactions", nil)
	req.Header.Set("X-User-Id", "42")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, gotOK)
	assert.Equal(t, int64(42), gotUserID)
}

func TestIdentityMissingHeader(t *testing.T) {
	called := false
	handler := Identity(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestIdentityRejectsGarbage(t *testing.T) {
	handler := Identity(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for _, raw := range []string{"abc", "-1", "0", "9999999999999999999999"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User-Id", raw)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", raw)
	}
}
