package api

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// Admin Authentication
// =============================================================================

// Auth implements HTTP basic authentication for the admin API. The
// password is never stored; only its bcrypt hash is held in config.
type Auth struct {
	username     string
	passwordHash []byte
}

// NewAuth creates an Auth from a username and a bcrypt password hash.
func NewAuth(username, passwordHash string) *Auth {
	return &Auth{
		username:     username,
		passwordHash: []byte(passwordHash),
	}
}

// HashPassword produces a bcrypt hash suitable for the config file.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Middleware rejects requests that do not carry valid basic-auth
// credentials.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !a.check(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="stackhost"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized","code":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) check(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(pass)) == nil
	return userOK && passOK
}
