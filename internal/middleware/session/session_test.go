package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	ledgersession "ledger/internal/session"
)

func serve(m *Middleware, r *http.Request) (*httptest.ResponseRecorder, string) {
	var id string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ = ledgersession.IDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec, id
}

func TestNewSessionIssuesCookie(t *testing.T) {
	m := NewMiddleware(30*time.Minute, false)
	rec, id := serve(m, httptest.NewRequest("GET", "/", nil))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].Value != id {
		t.Fatalf("cookies = %v, id = %q", cookies, id)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("id %q is not a uuid", id)
	}
	if cookies[0].MaxAge != 1800 || !cookies[0].HttpOnly {
		t.Errorf("cookie = %+v", cookies[0])
	}
}

func TestExistingSessionIsReused(t *testing.T) {
	m := NewMiddleware(time.Minute, false)
	want := uuid.NewString()

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: want})
	rec, id := serve(m, r)
	if id != want || len(rec.Result().Cookies()) != 0 {
		t.Fatalf("cookie session: id %q, cookies %v", id, rec.Result().Cookies())
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set(HeaderName, want)
	if _, id = serve(m, r); id != want {
		t.Fatalf("header session: id %q", id)
	}
}

func TestMalformedSessionIsReplaced(t *testing.T) {
	m := NewMiddleware(time.Minute, false)
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "clients|0"})
	rec, id := serve(m, r)
	if id == "clients|0" || len(rec.Result().Cookies()) != 1 {
		t.Fatalf("malformed id kept: %q", id)
	}
}
