// Package httpapi wires the realms façade onto its HTTP surface, reusing a
// chi/cors/security-headers stack (router.go's NewRouter assembly,
// internal/middleware/security.go).
package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/jermoo/realms-core/internal/token"
)

type callerContextKey struct{}

// BearerAuth resolves the Authorization header into a Caller via v and
// stores it in the request context. Missing credentials produce an
// anonymous caller; a malformed or unverifiable token produces HTTP 401
// with the specific rejection.
func BearerAuth(v *token.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				ctx := context.WithValue(r.Context(), callerContextKey{}, token.AnonymousCaller())
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			scheme, bearer, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				writeError(w, http.StatusUnauthorized, token.ErrInvalidFormat)
				return
			}

			caller, err := v.Verify(r.Context(), bearer)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			ctx := context.WithValue(r.Context(), callerContextKey{}, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func callerFrom(r *http.Request) token.Caller {
	if c, ok := r.Context().Value(callerContextKey{}).(token.Caller); ok {
		return c
	}
	return token.AnonymousCaller()
}
