package web

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

func openSessions(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE sessions (token TEXT PRIMARY KEY, data BLOB NOT NULL, expiry REAL NOT NULL)`)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return db
}

func TestSessionStore(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSessionStore(openSessions(t), 0)
	s.now = func() time.Time { return now }

	if _, found, err := s.Find("missing"); err != nil || found {
		t.Fatalf("expected no session, got found=%v err=%v", found, err)
	}

	if err := s.Save("a", []byte("first"), now.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := s.Save("a", []byte("second"), now.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	b, found, err := s.Find("a")
	if err != nil || !found || string(b) != "second" {
		t.Errorf("expected the overwritten session, got %q found=%v err=%v", b, found, err)
	}

	if err = s.Save("old", []byte("x"), now.Add(-time.Second)); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, found, _ = s.Find("old"); found {
		t.Errorf("an expired session must not be found")
	}
	n, err := s.DeleteExpired()
	if err != nil || n != 1 {
		t.Errorf("expected one expired session swept, got %d (%v)", n, err)
	}

	if err = s.Delete("a"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err = s.Delete("a"); err != nil {
		t.Errorf("deleting a missing session must be a no-op, got %s", err)
	}
	if _, found, _ = s.Find("a"); found {
		t.Errorf("deleted session still found")
	}
}

func TestSessionManagerRoundTrip(t *testing.T) {
	m := NewSessionManager(&config.Configuration{BaseDomain: "example.io"}, openSessions(t), "test_session")
	account := domain.Account{UserID: 7, Username: "ada", Role: domain.RoleUser}

	rec := httptest.NewRecorder()
	if err := Login(m, rec, httptest.NewRequest(http.MethodPost, "/login", nil), account); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie set")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[len(cookies)-1])
	var got domain.Account
	SessionMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetAccount(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), req)
	if got.UserID != account.UserID || got.Username != account.Username {
		t.Errorf("expected %+v from the stored session, got %+v", account, got)
	}
}
