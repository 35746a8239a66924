// Package session binds each HTTP client to a session id so the table cache
// can serve repeated reads of the same client.
package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	ledgersession "ledger/internal/session"
)

const (
	CookieName = "ledger_session"
	// HeaderName lets non-browser clients such as ledgerctl pin a session.
	HeaderName = "X-Ledger-Session"
)

type Middleware struct {
	ttl    time.Duration
	secure bool
}

// NewMiddleware issues cookies that live for ttl. Secure marks the cookie
// HTTPS-only.
func NewMiddleware(ttl time.Duration, secure bool) *Middleware {
	return &Middleware{ttl: ttl, secure: secure}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := fromRequest(r)
		if !ok {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   int(m.ttl.Seconds()),
				HttpOnly: true,
				Secure:   m.secure,
				SameSite: http.SameSiteStrictMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(ledgersession.WithID(r.Context(), id)))
	})
}

// fromRequest accepts only well-formed UUIDs so clients cannot pick keys
// that collide with other sessions' cache entries.
func fromRequest(r *http.Request) (string, bool) {
	if v := r.Header.Get(HeaderName); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			return id.String(), true
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String(), true
		}
	}
	return "", false
}
