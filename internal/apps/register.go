package apps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/alexedwards/scs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/oauth"
	"github.com/sidereusnuntius/fedhost/internal/ratelimit"
	"github.com/sidereusnuntius/fedhost/internal/service"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

var (
	RegisterPolicy = ratelimit.Policy{Window: time.Hour, Max: 10, Strict: true}
	TokenPolicy    = ratelimit.Policy{Window: 15 * time.Minute, Max: 20, Strict: true}
)

// Tokens resolves bearer tokens and issues the HS256 tokens of the jwt auth mode.
type Tokens interface {
	Validate(ctx context.Context, token string) (domain.Principal, error)
	ParseJWT(token string) (domain.Principal, error)
	IssueJWT(u domain.User) (token string, expiresIn int64, err error)
}

// Register is the application of the register subdomain: sign up, subdomain requests and their verification.
type Register struct {
	cfg      *config.Configuration
	accounts service.AccountService
	tokens   Tokens
	sessions *scs.Manager
	limits   *ratelimit.Set
}

func NewRegister(cfg *config.Configuration, accounts service.AccountService, tokens Tokens, sessions *scs.Manager, limits *ratelimit.Set) *Register {
	return &Register{cfg: cfg, accounts: accounts, tokens: tokens, sessions: sessions, limits: limits}
}

func (g *Register) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(web.AccessLog(config.RegisterSubdomain))
	r.Use(web.SessionMiddleware(g.sessions))

	r.With(ratelimit.Middleware(g.limits.Memory, "/api/register", RegisterPolicy)).Post("/api/register", g.SignUp)
	r.With(ratelimit.Middleware(g.limits.Memory, "/api/token", TokenPolicy)).Post("/api/token", g.Token)
	r.With(g.requester).Post("/api/subdomains", g.RequestSubdomain)
	r.Get("/verify", g.Verify)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		web.WriteStatus(w, http.StatusNotFound, "no such endpoint")
	})
	return r
}

// verifyURL is where the owner of a pending registration confirms it.
func (g *Register) verifyURL(token string) string {
	u := g.cfg.SiteURL(config.RegisterSubdomain).JoinPath("verify")
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}

// handOut delivers a verification link. Outside production it is also returned to the caller, since no mail is
// sent.
func (g *Register) handOut(body map[string]any, subdomain, token string) {
	link := g.verifyURL(token)
	log.Info().Str("subdomain", subdomain).Str("link", link).Msg("subdomain verification pending")
	if !g.cfg.IsProduction() {
		body["verifyUrl"] = link
	}
}

func (g *Register) SignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		Subdomain string `json:"subdomain"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}

	reg, err := g.accounts.CreateUser(r.Context(), service.SignUp{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Subdomain: req.Subdomain,
	})
	if err != nil {
		web.WriteError(w, err)
		return
	}

	u := reg.User
	body := map[string]any{
		"id":           u.ID,
		"username":     u.Username,
		"federationId": u.FederationID.String(),
		"site":         (&url.URL{Scheme: u.FederationID.Scheme, Host: u.FederationID.Host, Path: "/"}).String(),
	}
	if reg.VerificationToken != "" {
		g.handOut(body, req.Subdomain, reg.VerificationToken)
	}
	web.NoStore(w)
	web.WriteJSON(w, http.StatusCreated, body)
}

// requester resolves the user behind a session or a bearer token. OAuth tokens need the write scope.
func (g *Register) requester(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a, ok := web.GetAccount(r.Context()); ok {
			p := domain.Principal{UserID: a.UserID, Username: a.Username, Role: a.Role}
			next.ServeHTTP(w, r.WithContext(web.WithPrincipal(r.Context(), p)))
			return
		}

		token, ok := web.BearerToken(r)
		if !ok {
			web.WriteError(w, fmt.Errorf("%w: login or a bearer token is required", service.ErrUnauthenticated))
			return
		}
		p, err := g.tokens.ParseJWT(token)
		if err != nil {
			p, err = g.tokens.Validate(r.Context(), token)
		}
		if err != nil {
			if !errors.Is(err, oauth.ErrInvalidToken) {
				err = fmt.Errorf("%w: %s", oauth.ErrInvalidToken, err)
			}
			web.WriteError(w, err)
			return
		}
		if p.ClientID != "" && !p.Scope.Has(domain.ScopeWrite) {
			web.WriteError(w, fmt.Errorf("%w: the write scope is required", service.ErrForbidden))
			return
		}
		next.ServeHTTP(w, r.WithContext(web.WithPrincipal(r.Context(), p)))
	})
}

func (g *Register) RequestSubdomain(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Subdomain string `json:"subdomain"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}

	token, err := g.accounts.RequestSubdomain(r.Context(), p.UserID, req.Subdomain)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	body := map[string]any{"subdomain": req.Subdomain, "status": domain.RegistrationPending}
	g.handOut(body, req.Subdomain, token)
	web.NoStore(w)
	web.WriteJSON(w, http.StatusCreated, body)
}

// Verify consumes a verification token. The site manager materializes the site when it sees the event the
// account service publishes.
func (g *Register) Verify(w http.ResponseWriter, r *http.Request) {
	reg, err := g.accounts.VerifySubdomain(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]any{
		"subdomain": reg.Subdomain,
		"status":    reg.Status,
		"site":      g.cfg.SiteURL(reg.Subdomain).String(),
	})
}

// Token trades credentials for an HS256 token accepted by the jwt routes.
func (g *Register) Token(w http.ResponseWriter, r *http.Request) {
	c, err := readCredentials(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	account, ok, err := g.accounts.AuthenticateUser(r.Context(), c.User, c.Password)
	if err != nil && web.GetCode(err) == http.StatusInternalServerError {
		web.WriteError(w, err)
		return
	}
	if err != nil || !ok {
		web.WriteStatus(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	u, err := g.accounts.GetUser(r.Context(), account.UserID)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	token, expiresIn, err := g.tokens.IssueJWT(u)
	if errors.Is(err, oauth.ErrJWTDisabled) {
		web.WriteStatus(w, http.StatusNotFound, "jwt tokens are disabled on this instance")
		return
	} else if err != nil {
		web.WriteError(w, err)
		return
	}

	web.NoStore(w)
	web.WriteJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": expiresIn,
	})
}
