// Package registry maps path prefixes to handlers according to route descriptor files, which may be added,
// changed and removed while the process runs.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/ratelimit"
)

const Extension = ".toml"

var registered = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "fedhost_registered_routes",
	Help: "Routes currently in the registry.",
})

// Catalog holds the handlers descriptors may refer to, by name.
type Catalog map[string]http.Handler

// Tokens verifies the credentials of jwt and oauth routes.
type Tokens interface {
	Validate(ctx context.Context, token string) (domain.Principal, error)
	ParseJWT(token string) (domain.Principal, error)
}

// Limits picks the limiter that keeps the counters of a policy.
type Limits interface {
	For(p ratelimit.Policy) ratelimit.Limiter
}

// Route describes a registered route.
type Route struct {
	Descriptor
	File string `json:"file"`
}

type entry struct {
	route   Route
	handler http.Handler
}

// table is never modified once published. Entries are sorted by decreasing path length, so the first match is the
// longest prefix.
type table struct {
	entries []*entry
}

func (t *table) match(path string) *entry {
	for _, e := range t.entries {
		if matches(e.route.Path, path) {
			return e
		}
	}
	return nil
}

func matches(prefix, path string) bool {
	if prefix == "/" {
		return true
	}
	rest, ok := strings.CutPrefix(path, prefix)
	return ok && (rest == "" || rest[0] == '/')
}

type Registry struct {
	catalog  Catalog
	tokens   Tokens
	limits   Limits
	notFound http.Handler

	// mu serializes writers.
	mu    sync.Mutex
	table atomic.Pointer[table]
}

func New(catalog Catalog, tokens Tokens, limits Limits) *Registry {
	r := &Registry{
		catalog:  catalog,
		tokens:   tokens,
		limits:   limits,
		notFound: http.HandlerFunc(notFound),
	}
	r.table.Store(&table{})
	return r
}

// NotFound replaces the handler of requests no route matches.
func (reg *Registry) NotFound(h http.Handler) {
	reg.notFound = h
}

// Register validates d and publishes it for file, replacing the routes file registered before and any route of
// another file with the same path.
func (reg *Registry) Register(file string, d Descriptor) error {
	d.normalize()
	if err := d.Validate(reg.catalog); err != nil {
		return err
	}

	e := &entry{
		route:   Route{Descriptor: d, File: file},
		handler: reg.compose(d),
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	cur := reg.table.Load()
	next := &table{entries: make([]*entry, 0, len(cur.entries)+1)}
	for _, old := range cur.entries {
		if old.route.File == file || old.route.Path == d.Path {
			if old.route.File != file {
				log.Warn().Str("path", d.Path).Str("file", file).Str("previous", old.route.File).
					Msg("route path taken over by another file")
			}
			continue
		}
		next.entries = append(next.entries, old)
	}
	next.entries = append(next.entries, e)
	sort.SliceStable(next.entries, func(i, j int) bool {
		return len(next.entries[i].route.Path) > len(next.entries[j].route.Path)
	})
	reg.table.Store(next)
	registered.Set(float64(len(next.entries)))
	return nil
}

// Unregister drops the routes of file and reports whether there were any.
func (reg *Registry) Unregister(file string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	cur := reg.table.Load()
	next := &table{entries: make([]*entry, 0, len(cur.entries))}
	for _, e := range cur.entries {
		if e.route.File != file {
			next.entries = append(next.entries, e)
		}
	}
	if len(next.entries) == len(cur.entries) {
		return false
	}
	reg.table.Store(next)
	registered.Set(float64(len(next.entries)))
	return true
}

// LoadFile reads a descriptor file and registers it. On any error the previous registration of the file stays in
// place.
func (reg *Registry) LoadFile(file string) error {
	content, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	d, err := ParseDescriptor(content)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	if !d.IsEnabled() {
		if reg.Unregister(file) {
			log.Info().Str("file", file).Str("path", d.Path).Msg("route disabled")
		}
		return nil
	}

	if err = reg.Register(file, d); err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	log.Info().Str("file", file).Str("path", d.Path).Str("auth", string(d.Auth)).Msg("route registered")
	return nil
}

// LoadDir loads every descriptor file in dir. Files that fail to load are skipped; their errors are joined.
func (reg *Registry) LoadDir(dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+Extension))
	if err != nil {
		return 0, err
	}
	slices.Sort(files)

	var (
		n    int
		errs []error
	)
	for _, f := range files {
		if err = reg.LoadFile(f); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Changed is called by the file watcher when a file of the routes directory is written.
func (reg *Registry) Changed(file string) {
	if filepath.Ext(file) != Extension {
		return
	}
	if err := reg.LoadFile(file); err != nil {
		log.Error().Err(err).Str("file", file).Msg("failed to load route, keeping the previous registration")
	}
}

// Removed is called by the file watcher when a file of the routes directory disappears.
func (reg *Registry) Removed(file string) {
	if filepath.Ext(file) != Extension {
		return
	}
	if reg.Unregister(file) {
		log.Info().Str("file", file).Msg("route unregistered")
	}
}

// Routes lists the registered routes, longest path first.
func (reg *Registry) Routes() []Route {
	t := reg.table.Load()
	routes := make([]Route, len(t.entries))
	for i, e := range t.entries {
		routes[i] = e.route
	}
	return routes
}

// Lookup returns the route that serves path, if any.
func (reg *Registry) Lookup(path string) (Route, bool) {
	e := reg.table.Load().match(path)
	if e == nil {
		return Route{}, false
	}
	return e.route, true
}

func (reg *Registry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e := reg.table.Load().match(r.URL.Path)
	if e == nil {
		reg.notFound.ServeHTTP(w, r)
		return
	}
	if !e.route.allows(r.Method) {
		w.Header().Set("Allow", strings.Join(e.route.Methods, ", "))
		methodNotAllowed(w, r)
		return
	}
	e.handler.ServeHTTP(w, r)
}
