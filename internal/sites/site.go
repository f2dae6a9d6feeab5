package sites

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

// MaxBodySize bounds request bodies on sites.
const MaxBodySize = 10 << 20

// Site is a materialized site.
type Site struct {
	Name     string
	Dir      string
	Config   domain.SiteConfig
	Manifest Manifest
	Owner    domain.User
	HasOwner bool

	proc    *process
	handler http.Handler
}

func (s *Site) context() web.Site {
	return web.Site{Name: s.Name, Owner: s.Owner, HasOwner: s.HasOwner}
}

// command is what runs the site's child process, if it has one.
func (s *Site) command(nodeBin string) (argv []string, watched string) {
	if len(s.Manifest.Command) > 0 {
		return s.Manifest.Command, filepath.Join(s.Dir, s.Manifest.Command[0])
	}
	server := filepath.Join(s.Dir, ServerFile)
	if _, err := os.Stat(server); err == nil {
		return []string{nodeBin, ServerFile}, server
	}
	return nil, ""
}

func harden(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
		next.ServeHTTP(w, r)
	})
}

// maintenance answers 503 to everything but the status endpoint.
func maintenance(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", "300")
		web.WriteStatus(w, http.StatusServiceUnavailable, "the site is under maintenance")
	})
}

func withSite(s web.Site) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(web.WithSite(r.Context(), s)))
		})
	}
}

// siteFS hides what a site directory holds besides its content.
type siteFS struct {
	fs.FS
	root bool
}

func (s siteFS) Open(name string) (fs.File, error) {
	for _, part := range strings.Split(name, "/") {
		if part != "." && strings.HasPrefix(part, ".") || part == "node_modules" {
			return nil, fs.ErrNotExist
		}
	}
	if s.root && (name == ServerFile || name == ManifestFile) {
		return nil, fs.ErrNotExist
	}
	return s.FS.Open(name)
}

// static serves the files under root that exist and hands everything else to next.
func static(root fs.FS, next http.Handler) http.Handler {
	files := http.FileServerFS(root)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "."
		}
		info, err := fs.Stat(root, name)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if info.IsDir() {
			if _, err = fs.Stat(root, path.Join(name, "index.html")); err != nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}

func pageNotFound(w http.ResponseWriter, r *http.Request) {
	web.WriteStatus(w, http.StatusNotFound, "nothing is served at "+r.URL.Path)
}

// build assembles the handler of s, outermost first: hardening, compression, body limits, the site's own
// endpoints and user features, then static files in front of the proxy, the local handler or nothing.
func (m *Manager) build(s *Site) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(web.AccessLog(s.Name))
	r.Use(harden)
	r.Use(middleware.Compress(5))
	r.Use(limitBody)
	if m.deps.Sessions != nil {
		r.Use(web.SessionMiddleware(m.deps.Sessions))
	}
	r.Use(withSite(s.context()))
	if s.Config.Maintenance {
		r.Use(maintenance)
	}

	r.Get("/status", m.statusHandler(s.Name))
	if m.deps.Hub != nil {
		r.Handle("/socket", m.deps.Hub.Handler(s.Name))
	}
	if m.deps.Routes != nil {
		r.Handle("/api", m.deps.Routes)
		r.Handle("/api/*", m.deps.Routes)
	}
	if s.HasOwner && m.deps.UserRoutes != nil {
		m.deps.UserRoutes(r, s.Owner)
	}

	fallback := m.fallback(s)
	r.NotFound(fallback.ServeHTTP)
	r.MethodNotAllowed(fallback.ServeHTTP)
	return r
}

func (m *Manager) fallback(s *Site) http.Handler {
	var next http.Handler = http.HandlerFunc(pageNotFound)
	switch {
	case s.Config.ProxyTarget != "":
		next = newProxy(s.Name, mustParse(s.Config.ProxyTarget), m.deps.SessionCookie)
	case s.proc != nil:
		next = newProxy(s.Name, processURL(s.proc), m.deps.SessionCookie)
	case s.Manifest.Handler != "":
		next = m.deps.Handlers[s.Manifest.Handler](s.context())
	}

	root, isRoot := s.Dir, true
	if s.Manifest.Static != "" {
		root, isRoot = filepath.Join(s.Dir, s.Manifest.Static), false
	}
	return static(siteFS{FS: os.DirFS(root), root: isRoot}, next)
}

func (m *Manager) statusHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			st domain.ServiceStatus
			ok bool
		)
		if m.deps.Poller != nil {
			st, ok = m.deps.Poller.Status(name)
		}
		if !ok {
			st = domain.ServiceStatus{Site: name, Status: domain.HealthUnknown, History: []domain.StatusEntry{}}
		}
		w.Header().Set("Cache-Control", "no-cache")
		web.WriteJSON(w, http.StatusOK, st)
	}
}
