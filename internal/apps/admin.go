// Package apps holds the sub-applications the host process serves itself: the administrative application on the
// bare domain, registration, status and the web-app client, and the handlers route descriptors may refer to.
package apps

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/scs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/metrics"
	"github.com/sidereusnuntius/fedhost/internal/ratelimit"
	"github.com/sidereusnuntius/fedhost/internal/realtime"
	"github.com/sidereusnuntius/fedhost/internal/service"
	"github.com/sidereusnuntius/fedhost/internal/sites"
	"github.com/sidereusnuntius/fedhost/internal/storage"
	"github.com/sidereusnuntius/fedhost/internal/vhost"
	"github.com/sidereusnuntius/fedhost/internal/web"
	"github.com/sidereusnuntius/fedhost/internal/wellknown"
)

const (
	AdminApp = "admin"
	// MaxQueueListing bounds GET /api/federation/queue.
	MaxQueueListing = 200
)

var LoginPolicy = ratelimit.Policy{Window: 15 * time.Minute, Max: 10, Strict: true}

type Sites interface {
	List() []sites.Info
	Get(name string) (sites.Info, error)
	Create(ctx context.Context, name string) error
	Update(ctx context.Context, name string, p sites.Patch) (domain.SiteConfig, error)
	Demolish(ctx context.Context, name string) error
	Reload(ctx context.Context, name string) error
}

type Routing interface {
	Summary() vhost.Summary
}

type QueueLister interface {
	ListQueue(ctx context.Context, status domain.QueueStatus, limit int) ([]domain.FederationQueueItem, error)
}

type AdminDeps struct {
	Accounts  service.AccountService
	Sessions  *scs.Manager
	Files     storage.Storage
	Queue     QueueLister
	Hub       *realtime.Hub
	Discovery *wellknown.Handler
	Limits    *ratelimit.Set
}

// Admin is the application served on the bare domain and on every host nothing else claims.
type Admin struct {
	cfg  *config.Configuration
	deps AdminDeps

	// sites and routing are bound once the dispatcher and the site manager exist, which both need the admin
	// handler first.
	sites   Sites
	routing Routing
}

func NewAdmin(cfg *config.Configuration, deps AdminDeps) *Admin {
	return &Admin{cfg: cfg, deps: deps}
}

// Bind must be called before the application serves requests.
func (a *Admin) Bind(s Sites, r Routing) {
	a.sites = s
	a.routing = r
}

func (a *Admin) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(web.AccessLog(AdminApp))
	r.Use(web.SessionMiddleware(a.deps.Sessions))

	if a.deps.Discovery != nil {
		a.deps.Discovery.Mount(r)
	}
	r.Get("/status", a.Status)
	r.Handle("/metrics", metrics.Handler())

	r.With(ratelimit.Middleware(a.deps.Limits.Memory, "/login", LoginPolicy)).Post("/login", a.Login)
	r.Post("/logout", a.Logout)

	r.Group(func(r chi.Router) {
		r.Use(web.RequireAdmin)
		r.Route("/api/sites", func(r chi.Router) {
			r.Get("/", a.ListSites)
			r.Post("/", a.CreateSite)
			r.Route("/{site}", func(r chi.Router) {
				r.Get("/", a.GetSite)
				r.Patch("/", a.UpdateSite)
				r.Delete("/", a.DemolishSite)
				r.Post("/reload", a.ReloadSite)

				r.Get("/files", a.ListFiles)
				r.Get("/files/*", a.GetFile)
				r.Put("/files/*", a.PutFile)
				r.Delete("/files/*", a.DeleteFile)
			})
		})
		r.Get("/api/federation/queue", a.Queue)
		if a.deps.Hub != nil {
			r.Handle("/events", a.deps.Hub.Handler(realtime.Admin))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		web.WriteStatus(w, http.StatusNotFound, "no site is served at "+r.Host)
	})
	return r
}

// Status summarizes what the dispatcher routes.
func (a *Admin) Status(w http.ResponseWriter, r *http.Request) {
	web.WriteJSON(w, http.StatusOK, map[string]any{
		"routing": a.routing.Summary(),
		"sites":   len(a.sites.List()),
	})
}

type credentials struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// readCredentials accepts a JSON body or a form.
func readCredentials(r *http.Request) (credentials, error) {
	var c credentials
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		err := web.DecodeJSON(r, &c)
		return c, err
	}
	if err := r.ParseForm(); err != nil {
		return c, errors.Join(service.ErrInvalidInput, err)
	}
	c.User = r.PostForm.Get("user")
	c.Password = r.PostForm.Get("password")
	return c, nil
}

func (a *Admin) Login(w http.ResponseWriter, r *http.Request) {
	c, err := readCredentials(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	account, ok, err := a.deps.Accounts.AuthenticateUser(r.Context(), c.User, c.Password)
	if err != nil && web.GetCode(err) == http.StatusInternalServerError {
		log.Error().Err(err).Msg("admin login failed")
		web.WriteError(w, err)
		return
	}
	if err != nil || !ok {
		web.WriteStatus(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	if err = web.Login(a.deps.Sessions, w, r, account); err != nil {
		log.Error().Err(err).Msg("failed to start session")
		web.WriteError(w, err)
		return
	}
	log.Info().Str("user", account.Username).Str("role", string(account.Role)).Msg("logged in on the admin application")
	web.WriteJSON(w, http.StatusOK, map[string]any{"username": account.Username, "role": account.Role})
}

func (a *Admin) Logout(w http.ResponseWriter, r *http.Request) {
	if err := web.Logout(a.deps.Sessions, w, r); err != nil {
		log.Warn().Err(err).Msg("failed to destroy session")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Admin) ListSites(w http.ResponseWriter, r *http.Request) {
	web.WriteJSON(w, http.StatusOK, a.sites.List())
}

func (a *Admin) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}
	name := strings.ToLower(strings.TrimSpace(req.Name))
	if _, err := a.sites.Get(name); err == nil {
		web.WriteError(w, fmt.Errorf("%w: site %s already exists", service.ErrConflict, name))
		return
	}

	if err := a.sites.Create(r.Context(), name); err != nil {
		web.WriteError(w, err)
		return
	}
	info, err := a.sites.Get(name)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	log.Info().Str("site", name).Msg("site created by admin")
	web.WriteJSON(w, http.StatusCreated, info)
}

func (a *Admin) GetSite(w http.ResponseWriter, r *http.Request) {
	info, err := a.sites.Get(chi.URLParam(r, "site"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, info)
}

func (a *Admin) UpdateSite(w http.ResponseWriter, r *http.Request) {
	var p sites.Patch
	if err := web.DecodeJSON(r, &p); err != nil {
		web.WriteError(w, err)
		return
	}
	c, err := a.sites.Update(r.Context(), chi.URLParam(r, "site"), p)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, c)
}

func (a *Admin) DemolishSite(w http.ResponseWriter, r *http.Request) {
	if err := a.sites.Demolish(r.Context(), chi.URLParam(r, "site")); err != nil {
		web.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Admin) ReloadSite(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "site")
	if err := a.sites.Reload(r.Context(), name); err != nil {
		web.WriteError(w, err)
		return
	}
	info, err := a.sites.Get(name)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, info)
}

// sitePath checks that the site of the request exists and returns the store path of the file it names.
func (a *Admin) sitePath(r *http.Request) (string, error) {
	name := chi.URLParam(r, "site")
	if _, err := a.sites.Get(name); err != nil {
		return "", err
	}
	return path.Join(name, chi.URLParam(r, "*")), nil
}

func (a *Admin) ListFiles(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "site")
	if _, err := a.sites.Get(name); err != nil {
		web.WriteError(w, err)
		return
	}
	entries, err := a.deps.Files.List(name)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, entries)
}

func (a *Admin) GetFile(w http.ResponseWriter, r *http.Request) {
	p, err := a.sitePath(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	content, err := a.deps.Files.Open(p)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.Write(content)
}

// PutFile deploys one file. The watcher picks the change up, so writing server.js or site.toml rebuilds the site.
func (a *Admin) PutFile(w http.ResponseWriter, r *http.Request) {
	p, err := a.sitePath(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	body := http.MaxBytesReader(w, r.Body, sites.MaxBodySize)
	if err = a.deps.Files.Put(body, p); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			web.WriteStatus(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		web.WriteError(w, err)
		return
	}
	log.Info().Str("file", p).Msg("site file deployed")
	w.WriteHeader(http.StatusNoContent)
}

func (a *Admin) DeleteFile(w http.ResponseWriter, r *http.Request) {
	p, err := a.sitePath(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	if err = a.deps.Files.Delete(p); err != nil {
		web.WriteError(w, err)
		return
	}
	log.Info().Str("file", p).Msg("site file deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (a *Admin) Queue(w http.ResponseWriter, r *http.Request) {
	listQueue(a.deps.Queue, w, r)
}
