package web

import (
	"context"
	"database/sql"
	"encoding/gob"
	"net/http"
	"time"

	"github.com/alexedwards/scs"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

const SessionKey = "account"

const (
	SessionLifetime    = 7 * 24 * time.Hour
	SessionIdleTimeout = 24 * time.Hour
)

func init() {
	gob.Register(domain.Account{})
}

type accountKey struct{}

// NewSessionManager keeps sessions in the sessions table. Cookies are host-only, so every sub-application that
// mounts its own manager gets its own login.
func NewSessionManager(cfg *config.Configuration, db *sql.DB, name string) *scs.Manager {
	m := scs.NewManager(NewSessionStore(db, 10*time.Minute))
	m.Name(name)
	m.Lifetime(SessionLifetime)
	m.IdleTimeout(SessionIdleTimeout)
	m.Persist(true)
	m.HttpOnly(true)
	m.Secure(cfg.Https)
	return m
}

// NewSharedSessionManager scopes the cookie to the base domain, so a login on one instance application holds
// on every site.
func NewSharedSessionManager(cfg *config.Configuration, db *sql.DB, name string) *scs.Manager {
	m := NewSessionManager(cfg, db, name)
	m.Domain(cfg.BaseDomain)
	return m
}

func GetAccount(ctx context.Context) (domain.Account, bool) {
	a, ok := ctx.Value(accountKey{}).(domain.Account)
	return a, ok
}

func WithAccount(ctx context.Context, a domain.Account) context.Context {
	return context.WithValue(ctx, accountKey{}, a)
}

// SessionMiddleware loads the account of a logged in session into the request context.
func SessionMiddleware(m *scs.Manager) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var a domain.Account
			err := m.Load(r).GetObject(SessionKey, &a)
			if err != nil {
				log.Warn().Err(err).Msg("failed to load session")
			} else if a.UserID != 0 {
				r = r.WithContext(WithAccount(r.Context(), a))
			}
			h.ServeHTTP(w, r)
		})
	}
}

// Login renews the session token, to prevent fixation, and stores the account in it.
func Login(m *scs.Manager, w http.ResponseWriter, r *http.Request, a domain.Account) error {
	s := m.Load(r)
	if err := s.RenewToken(w); err != nil {
		return err
	}
	return s.PutObject(w, SessionKey, a)
}

func Logout(m *scs.Manager, w http.ResponseWriter, r *http.Request) error {
	return m.Load(r).Destroy(w)
}

// RequireAccount answers 401 to requests without a logged in session.
func RequireAccount(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetAccount(r.Context()); !ok {
			WriteStatus(w, http.StatusUnauthorized, "login required")
			return
		}
		h.ServeHTTP(w, r)
	})
}

func RequireAdmin(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := GetAccount(r.Context())
		if !ok {
			WriteStatus(w, http.StatusUnauthorized, "login required")
			return
		}
		if !a.IsAdmin() {
			WriteStatus(w, http.StatusForbidden, "admin role required")
			return
		}
		h.ServeHTTP(w, r)
	})
}
