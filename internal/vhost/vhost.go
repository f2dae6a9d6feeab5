// Package vhost routes every request to one sub-application according to its Host header.
package vhost

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/metrics"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

var ErrDomainClaimed = errors.New("domain already claimed")

type Kind string

const (
	KindReserved Kind = "reserved"
	KindCustom   Kind = "custom"
	KindSite     Kind = "site"
	KindAdmin    Kind = "admin"
	KindUnknown  Kind = "unknown"
)

// state is never modified once published; every mutation publishes a copy.
type state struct {
	sites   map[string]http.Handler
	domains map[string]string
}

func (s *state) clone() *state {
	c := &state{
		sites:   make(map[string]http.Handler, len(s.sites)+1),
		domains: make(map[string]string, len(s.domains)),
	}
	for k, v := range s.sites {
		c.sites[k] = v
	}
	for k, v := range s.domains {
		c.domains[k] = v
	}
	return c
}

type Dispatcher struct {
	base     string
	admin    http.Handler
	notFound http.Handler
	reserved map[string]http.Handler

	// mu serializes writers. Readers only load the current state.
	mu    sync.Mutex
	state atomic.Pointer[state]
}

// New builds a dispatcher for hosts under base. admin serves the bare domain and every host nothing else claims.
func New(base string, admin http.Handler) *Dispatcher {
	d := &Dispatcher{
		base:     strings.ToLower(base),
		admin:    Recover(string(KindAdmin), metrics.Middleware(string(KindAdmin))(admin)),
		reserved: map[string]http.Handler{},
		notFound: Recover(string(KindUnknown), metrics.Middleware(string(KindUnknown))(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				web.WriteStatus(w, http.StatusNotFound, "no site is served at "+r.Host)
			}))),
	}
	d.state.Store(&state{sites: map[string]http.Handler{}, domains: map[string]string{}})
	return d
}

// Reserve binds a reserved subdomain. It must be called before the dispatcher serves requests.
func (d *Dispatcher) Reserve(label string, h http.Handler) {
	d.reserved[label] = Recover(label, metrics.Middleware(label)(h))
}

// Activate publishes the site, replacing a previous handler for it, and claims its custom domains. Nothing changes
// if any of the domains belongs to another site.
func (d *Dispatcher) Activate(site string, h http.Handler, domains []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.state.Load()
	for _, dom := range domains {
		dom = normalizeHost(dom)
		if owner, ok := cur.domains[dom]; ok && owner != site {
			return fmt.Errorf("%w: %s is used by %s", ErrDomainClaimed, dom, owner)
		}
		if dom == d.base || strings.HasSuffix(dom, "."+d.base) {
			return fmt.Errorf("%w: %s is under the base domain", ErrDomainClaimed, dom)
		}
	}

	next := cur.clone()
	for dom, owner := range next.domains {
		if owner == site {
			delete(next.domains, dom)
		}
	}
	for _, dom := range domains {
		next.domains[normalizeHost(dom)] = site
	}
	next.sites[site] = Recover(site, metrics.Middleware(string(KindSite))(h))
	d.state.Store(next)

	metrics.ActiveSites.Set(float64(len(next.sites)))
	return nil
}

// Deactivate stops routing to the site and releases its domains. Requests already dispatched complete.
func (d *Dispatcher) Deactivate(site string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.state.Load()
	if _, ok := cur.sites[site]; !ok {
		return
	}
	next := cur.clone()
	delete(next.sites, site)
	for dom, owner := range next.domains {
		if owner == site {
			delete(next.domains, dom)
		}
	}
	d.state.Store(next)

	metrics.ActiveSites.Set(float64(len(next.sites)))
}

func (d *Dispatcher) Active(site string) bool {
	_, ok := d.state.Load().sites[site]
	return ok
}

// Summary describes what is being routed.
type Summary struct {
	BaseDomain    string            `json:"baseDomain"`
	Reserved      []string          `json:"reserved"`
	Sites         []string          `json:"sites"`
	CustomDomains map[string]string `json:"customDomains"`
}

func (d *Dispatcher) Summary() Summary {
	s := d.state.Load()
	sum := Summary{
		BaseDomain:    d.base,
		Sites:         make([]string, 0, len(s.sites)),
		CustomDomains: make(map[string]string, len(s.domains)),
	}
	for label := range d.reserved {
		sum.Reserved = append(sum.Reserved, label)
	}
	for site := range s.sites {
		sum.Sites = append(sum.Sites, site)
	}
	for dom, site := range s.domains {
		sum.CustomDomains[dom] = site
	}
	slices.Sort(sum.Reserved)
	slices.Sort(sum.Sites)
	return sum
}

// label returns the subdomain of host under base, or "" when host is not a single label under it.
func (d *Dispatcher) label(host string) string {
	label, ok := strings.CutSuffix(host, "."+d.base)
	if !ok || label == "" || strings.Contains(label, ".") {
		return ""
	}
	return label
}

// Resolve picks the handler for host: a reserved subdomain, then a custom domain, then a site, and the admin
// application for anything else. Hosts of sites that are not active resolve to a 404.
func (d *Dispatcher) Resolve(host string) (Kind, string, http.Handler) {
	host = normalizeHost(host)
	label := d.label(host)

	if h, ok := d.reserved[label]; ok {
		return KindReserved, label, h
	}

	s := d.state.Load()
	if site, ok := s.domains[host]; ok {
		if h, ok := s.sites[site]; ok {
			return KindCustom, site, h
		}
	}

	if label != "" {
		if h, ok := s.sites[label]; ok {
			return KindSite, label, h
		}
		return KindUnknown, label, d.notFound
	}
	return KindAdmin, "", d.admin
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _, h := d.Resolve(r.Host)
	h.ServeHTTP(w, r)
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

// Recover keeps a panicking sub-application from taking the process down. The panic is logged and answered with
// a 500.
func Recover(app string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Error().
				Str("app", app).
				Str("host", r.Host).
				Str("path", r.URL.Path).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("recovered from panic")
			web.WriteStatus(w, http.StatusInternalServerError, "")
		}()
		h.ServeHTTP(w, r)
	})
}
