package interceptors

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const (
	// IdentityContextKey is the key used to store/retrieve the caller's user id from context
	IdentityContextKey contextKey = "identity_user_id"

	HeaderUserID = "X-User-ID"
	QueryUserID  = "user_id"
)

// UserIDFromRequest extracts the caller identity from the header, falling back to the query string.
func UserIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderUserID)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get(QueryUserID))
}

// NewIdentityInterceptor creates a middleware for REST routes that require a caller.
func NewIdentityInterceptor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// [PRE_AUTH] Reject anonymous calls before they reach a handler
			userID := UserIDFromRequest(r)
			if userID == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "identity required"})
				return
			}

			// [ENRICHMENT] Inject the identity into the context for downstream handlers
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, IdentityContextKey, userID)
}

// GetUserID is a helper to extract the identity from context safely.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(IdentityContextKey).(string)
	return id, ok && id != ""
}
