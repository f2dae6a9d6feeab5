// Package authserver is the OAuth 2.0 and OpenID Connect provider served on the auth subdomain.
package authserver

import (
	"encoding/gob"
	"net/http"
	"time"

	"github.com/alexedwards/scs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/oauth"
	"github.com/sidereusnuntius/fedhost/internal/ratelimit"
	"github.com/sidereusnuntius/fedhost/internal/service"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

// Session keys of the pending authorization requests. Each is removed as soon as it is resumed.
const (
	pendingLogin   = "authorize.login"
	pendingConsent = "authorize.consent"
)

var (
	LoginPolicy = ratelimit.Policy{Window: 15 * time.Minute, Max: 10, Strict: true}
	TokenPolicy = ratelimit.Policy{Window: time.Minute, Max: 60}
)

func init() {
	gob.Register(oauth.AuthorizeRequest{})
}

type Server struct {
	cfg      *config.Configuration
	tokens   *oauth.Service
	accounts service.AccountService
	sessions *scs.Manager
	limits   *ratelimit.Set
}

func New(cfg *config.Configuration, tokens *oauth.Service, accounts service.AccountService, sessions *scs.Manager, limits *ratelimit.Set) *Server {
	return &Server{
		cfg:      cfg,
		tokens:   tokens,
		accounts: accounts,
		sessions: sessions,
		limits:   limits,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(web.AccessLog(config.AuthSubdomain))
	r.Use(web.SessionMiddleware(s.sessions))

	login := ratelimit.Middleware(s.limits.Memory, "/login", LoginPolicy)
	token := ratelimit.Middleware(s.limits.Memory, "/token", TokenPolicy)

	r.Get("/.well-known/openid-configuration", s.Discovery)
	r.Get("/.well-known/jwks.json", s.JWKS)

	r.Get("/authorize", s.Authorize)
	r.Get("/login", s.LoginPage)
	r.With(login).Post("/login", s.Login)
	r.Get("/logout", s.Logout)
	r.Post("/logout", s.Logout)

	r.Group(func(r chi.Router) {
		r.Use(web.RequireAccount)
		r.Get("/consent", s.ConsentPage)
		r.Post("/consent", s.Consent)

		r.Get("/clients", s.ListClients)
		r.Post("/clients", s.CreateClient)
		r.Delete("/clients/{id}", s.DeleteClient)
	})

	r.With(token).Post("/token", s.Token)
	r.With(token).Post("/revoke", s.Revoke)
	r.Get("/userinfo", s.UserInfo)
	r.Post("/userinfo", s.UserInfo)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		web.WriteStatus(w, http.StatusNotFound, "no such endpoint")
	})
	return r
}

func (s *Server) endpoint(path string) string {
	return s.cfg.OAuthIssuer + path
}

// Discovery serves the OpenID provider metadata.
func (s *Server) Discovery(w http.ResponseWriter, r *http.Request) {
	web.WriteJSON(w, http.StatusOK, map[string]any{
		"issuer":                                s.cfg.OAuthIssuer,
		"authorization_endpoint":                s.endpoint("/authorize"),
		"token_endpoint":                        s.endpoint("/token"),
		"userinfo_endpoint":                     s.endpoint("/userinfo"),
		"jwks_uri":                              s.endpoint("/.well-known/jwks.json"),
		"revocation_endpoint":                   s.endpoint("/revoke"),
		"end_session_endpoint":                  s.endpoint("/logout"),
		"scopes_supported":                      domain.SupportedScopes,
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []domain.GrantType{domain.GrantAuthorizationCode, domain.GrantRefreshToken, domain.GrantClientCredentials},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post"},
		"claims_supported": []string{
			"sub", "iss", "aud", "exp", "iat", "nonce", "name", "preferred_username",
			"profile", "picture", "website", "updated_at", "email", "email_verified",
		},
	})
}

func (s *Server) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(s.tokens.Keys().JWKS())
}
