package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	errNoCredentials = errors.New("missing Authorization header")
	errNotBearer     = errors.New("authorization scheme must be Bearer")
	errEmptyKey      = errors.New("missing API key")
	errWrongKey      = errors.New("invalid API key")
)

// bearerKey returns the credential of an "Authorization: Bearer <key>"
// header. The scheme is matched case-insensitively.
func bearerKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoCredentials
	}
	scheme, key, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	if key = strings.TrimSpace(key); key == "" {
		return "", errEmptyKey
	}
	return key, nil
}

// keyMatches compares in constant time. An unset want matches nothing.
func keyMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// requireKey guards next with the configured API key.
func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := bearerKey(r)
		if err == nil && !keyMatches(key, s.config.APIKey) {
			err = errWrongKey
		}
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tgsender"`)
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
