package apps

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

type Statuses interface {
	All() []domain.ServiceStatus
	Status(name string) (domain.ServiceStatus, bool)
}

// StatusRouter serves the status subdomain: every tracked site on /, one site with its history on /{site}.
func StatusRouter(statuses Statuses) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(web.AccessLog(config.StatusSubdomain))
	r.Use(middleware.NoCache)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		all := statuses.All()
		counts := map[domain.Health]int{}
		for _, s := range all {
			counts[s.Status]++
		}
		web.WriteJSON(w, http.StatusOK, map[string]any{"sites": all, "counts": counts})
	})
	r.Get("/{site}", func(w http.ResponseWriter, r *http.Request) {
		name := strings.ToLower(chi.URLParam(r, "site"))
		s, ok := statuses.Status(name)
		if !ok {
			web.WriteStatus(w, http.StatusNotFound, "no site named "+name+" is tracked")
			return
		}
		web.WriteJSON(w, http.StatusOK, s)
	})
	return r
}

// AppRouter serves the web-app client from dir. Paths that name no file get index.html, so the client can route
// on its own.
func AppRouter(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(web.AccessLog(config.AppSubdomain))
	r.Use(middleware.GetHead)
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		clean := path.Clean("/" + r.URL.Path)
		for _, part := range strings.Split(clean, "/") {
			if strings.HasPrefix(part, ".") {
				web.WriteStatus(w, http.StatusNotFound, "")
				return
			}
		}
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(clean)))
		if clean == "/" || err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	})
	return r
}
