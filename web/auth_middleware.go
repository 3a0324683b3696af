package web

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// Credentials guard the inspection routes. PasswordHash is a bcrypt hash.
type Credentials struct {
	User         string
	PasswordHash string
}

func basicAuth(creds Credentials) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, password, ok := r.BasicAuth()
			if !ok || !creds.valid(user, password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="gomq"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (c Credentials) valid(user, password string) bool {
	if subtle.ConstantTimeCompare([]byte(user), []byte(c.User)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil
}
