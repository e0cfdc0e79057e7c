package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ghaggin/courier/internal/remote"
)

type ctxKey struct{}

// Authenticator resolves an access token to the id of its user.
type Authenticator interface {
	Authenticate(accessToken string) (string, error)
}

// Bearer returns the token of an "Authorization: Bearer <token>" header,
// or "" when there is none.
func Bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// RequireBearer rejects requests without a valid bearer token with 401 and
// stores the authenticated user id in the request context otherwise.
func RequireBearer(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := Bearer(r)
			if tok == "" {
				unauthorized(w, "missing_token", "token not provided")
				return
			}
			uid, err := auth.Authenticate(tok)
			if err != nil || uid == "" {
				unauthorized(w, "invalid_token", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
		})
	}
}

func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ctxKey{}, uid)
}

func UserID(ctx context.Context) string {
	uid, _ := ctx.Value(ctxKey{}).(string)
	return uid
}

func unauthorized(w http.ResponseWriter, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(remote.Error{Code: code, Message: msg})
}
