// Package middleware holds the HTTP middleware stack: identity propagation,
// request logging, and OpenTelemetry instrumentation.
package middleware

import (
	"context"
	"net/http"
	"strconv"
)

type contextKey string

// UserIDKey carries the authenticated user id through the request context.
const UserIDKey contextKey = "userID"

// userIDHeader is set by the API gateway after it validates the session.
// This service never sees end-user credentials.
const userIDHeader = "X-User-Id"

// Identity extracts the authenticated user id from the gateway header and
// rejects requests without one.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(userIDHeader)
		if raw == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFrom returns the authenticated user id stored by Identity.
func UserIDFrom(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}
