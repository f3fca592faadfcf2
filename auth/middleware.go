package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type ctxKey struct{}

// Verifier checks a bearer token. *Service satisfies it.
type Verifier interface {
	Verify(token string) (string, error)
}

// RequireBearer rejects requests without a valid Authorization bearer token
// and stores the reviewer name in the request context.
func RequireBearer(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			reviewer, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				unauthorized(w, "invalid bearer token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKey{}, reviewer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ReviewerFromContext returns the authenticated reviewer, if any.
func ReviewerFromContext(ctx context.Context) (string, bool) {
	reviewer, ok := ctx.Value(ctxKey{}).(string)
	return reviewer, ok && reviewer != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="specimenreview"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
