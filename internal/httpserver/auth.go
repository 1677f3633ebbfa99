package httpserver

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyAuth authenticates requests against a set of bcrypt-hashed API
// keys, one per customer. Keys arrive as "Authorization: Bearer <key>";
// the matching customer is attached to the request context.
type APIKeyAuth struct {
	// Hashes maps customer name -> bcrypt hash of that customer's API key.
	Hashes map[string]string
}

type customerCtxKey struct{}

// CustomerFromContext returns the authenticated customer name, or "" if
// auth is disabled or the context carries none.
func CustomerFromContext(ctx context.Context) string {
	c, _ := ctx.Value(customerCtxKey{}).(string)
	return c
}

func (a *APIKeyAuth) authenticate(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	key := strings.TrimPrefix(authHeader, "Bearer ")
	if key == "" {
		return "", false
	}
	for customer, hash := range a.Hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil {
			return customer, true
		}
	}
	return "", false
}

func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customer, ok := a.authenticate(r.Header.Get("Authorization"))
		if !ok {
			http.Error(w, `{"error":"missing or invalid API key"}`, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), customerCtxKey{}, customer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// HashAPIKey bcrypt-hashes a plaintext API key; serve uses it at startup
// to hash the configured per-customer keys (see cmd/serve.go).
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
