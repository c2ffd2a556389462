package middleware

import (
	"net/http"
	"strings"

	"github.com/markdave123-py/prescodata/internal/api/respond"
	"github.com/markdave123-py/prescodata/internal/apperr"
	"github.com/markdave123-py/prescodata/internal/auth"
)

// JWTMiddleware validates the Authorization header and attaches the token claims to the request context.
func JWTMiddleware(tokens *auth.TokenManager, rs *respond.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				rs.Error(w, r, apperr.Unauthorized("Not authorized to access this route"))
				return
			}

			claims, err := tokens.Parse(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
			if err != nil {
				rs.Error(w, r, apperr.Wrap(apperr.KindUnauthorized, "Not authorized to access this route", err))
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}
