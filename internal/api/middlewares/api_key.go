package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/markdave123-py/prescodata/internal/api/respond"
	"github.com/markdave123-py/prescodata/internal/apperr"
)

const APIKeyHeader = "x-api-key"

// APIKey rejects requests whose x-api-key header does not equal key.
// An empty key rejects everything.
func APIKey(key string, rs *respond.Responder) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(APIKeyHeader))
			if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				rs.Error(w, r, apperr.Forbidden("Invalid or missing API key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
