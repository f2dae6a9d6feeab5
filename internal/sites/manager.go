// Package sites turns the directories under the sites root into running sub-applications: it reads their
// configuration, starts their child process when they have one, and publishes them to the dispatcher.
package sites

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/gruf/go-mutexes"
	"github.com/alexedwards/scs"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/events"
	"github.com/sidereusnuntius/fedhost/internal/realtime"
	"github.com/sidereusnuntius/fedhost/internal/service"
	"github.com/sidereusnuntius/fedhost/internal/status"
	"github.com/sidereusnuntius/fedhost/internal/validate"
	"github.com/sidereusnuntius/fedhost/internal/vhost"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

// The errors wrap the service kinds, so web.WriteError answers them with the matching status.
var (
	ErrDuplicateDomain   = fmt.Errorf("%w: custom domain is used by another site", service.ErrConflict)
	ErrReservedSubdomain = fmt.Errorf("%w: subdomain is reserved", service.ErrInvalidInput)
	ErrInvalidSite       = fmt.Errorf("%w: invalid site", service.ErrInvalidInput)
	ErrNotFound          = fmt.Errorf("%w: site not found", service.ErrNotFound)
)

const (
	DefaultHealthCheckPath = "/status"
	// DrainPeriod is how long a replaced child process keeps serving the requests it already accepted.
	DrainPeriod = 2 * time.Second
)

type Dispatcher interface {
	Activate(site string, h http.Handler, domains []string) error
	Deactivate(site string)
}

type Accounts interface {
	GetUserBySubdomain(ctx context.Context, subdomain string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
}

// LocalHandler builds a built-in handler named by a manifest.
type LocalHandler func(web.Site) http.Handler

type Deps struct {
	Store      db.Sites
	Accounts   Accounts
	Dispatcher Dispatcher
	Poller     *status.Poller
	Hub        *realtime.Hub
	Bus        *events.Bus
	// Routes serves /api on every site.
	Routes        http.Handler
	Sessions      *scs.Manager
	SessionCookie string
	// UserRoutes mounts the features of the site's owner.
	UserRoutes func(r chi.Router, owner domain.User)
	Handlers   map[string]LocalHandler
	// ProbeBase is where health checks are sent, with the site's host in the Host header.
	ProbeBase *url.URL
}

type Manager struct {
	cfg    *config.Configuration
	deps   Deps
	mirror *Mirror
	locks  *mutexes.MutexMap

	mu    sync.RWMutex
	sites map[string]*Site

	now func() time.Time
	wg  sync.WaitGroup
}

func New(cfg *config.Configuration, deps Deps) *Manager {
	if deps.Handlers == nil {
		deps.Handlers = map[string]LocalHandler{}
	}
	return &Manager{
		cfg:    cfg,
		deps:   deps,
		mirror: NewMirror(cfg.SitesFile()),
		locks:  &mutexes.MutexMap{},
		sites:  map[string]*Site{},
		now:    time.Now,
	}
}

// Info is the public view of a site.
type Info struct {
	Name     string            `json:"name"`
	URL      string            `json:"url"`
	Owner    string            `json:"owner,omitempty"`
	Config   domain.SiteConfig `json:"config"`
	Handler  string            `json:"handler,omitempty"`
	Process  *ProcessInfo      `json:"process,omitempty"`
	Proxying string            `json:"proxying,omitempty"`
}

type ProcessInfo struct {
	PID     int  `json:"pid"`
	Port    int  `json:"port"`
	Running bool `json:"running"`
}

func (m *Manager) info(s *Site) Info {
	i := Info{
		Name:     s.Name,
		URL:      m.cfg.SiteURL(s.Name).String(),
		Config:   s.Config,
		Handler:  s.Manifest.Handler,
		Proxying: s.Config.ProxyTarget,
	}
	if s.HasOwner {
		i.Owner = s.Owner.Username
	}
	if s.proc != nil {
		i.Process = &ProcessInfo{PID: s.proc.cmd.Process.Pid, Port: s.proc.port, Running: s.proc.running()}
	}
	return i
}

func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.sites))
	for _, s := range m.sites {
		infos = append(infos, m.info(s))
	}
	slices.SortFunc(infos, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	return infos
}

func (m *Manager) Get(name string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[name]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return m.info(s), nil
}

func (m *Manager) current(name string) *Site {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sites[name]
}

func (m *Manager) dir(name string) string {
	return filepath.Join(m.cfg.SitesDir, name)
}

func checkName(name string) error {
	if err := validate.Label(name); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSite, err)
	}
	if config.IsReserved(name) {
		return fmt.Errorf("%w: %s", ErrReservedSubdomain, name)
	}
	return nil
}

// Materialize brings the site in SitesDir/name online, or refreshes it if it already is.
func (m *Manager) Materialize(ctx context.Context, name string) error {
	return m.materialize(ctx, name, false)
}

// Reload materializes the site again, restarting its child process.
func (m *Manager) Reload(ctx context.Context, name string) error {
	if m.current(name) == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return m.materialize(ctx, name, true)
}

func (m *Manager) materialize(ctx context.Context, name string, restart bool) error {
	if err := checkName(name); err != nil {
		return err
	}
	unlock := m.locks.Lock(name)
	defer unlock()
	return m.materializeLocked(ctx, name, restart)
}

func (m *Manager) materializeLocked(ctx context.Context, name string, restart bool) error {
	dir := m.dir(name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s has no directory", ErrNotFound, name)
	}

	cfg, err := m.loadConfig(ctx, name)
	if err != nil {
		return err
	}
	manifest, err := readManifest(dir)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSite, err)
	}
	if manifest.Handler != "" {
		if _, ok := m.deps.Handlers[manifest.Handler]; !ok {
			return fmt.Errorf("%w: unknown handler %q", ErrInvalidSite, manifest.Handler)
		}
	}

	s := &Site{Name: name, Dir: dir, Config: cfg, Manifest: manifest}
	if s.Owner, s.HasOwner, err = m.owner(ctx, name); err != nil {
		return err
	}

	prev := m.current(name)
	started, err := m.ensureProcess(s, prev, restart)
	if err != nil {
		return err
	}

	s.handler = m.build(s)
	if err = m.deps.Dispatcher.Activate(name, s.handler, cfg.CustomDomains); err != nil {
		if started {
			s.proc.stop()
		}
		if errors.Is(err, vhost.ErrDomainClaimed) {
			return fmt.Errorf("%w: %s", ErrDuplicateDomain, err)
		}
		return err
	}
	if prev != nil && prev.proc != nil && prev.proc != s.proc {
		m.retire(prev.proc)
	}

	m.mu.Lock()
	m.sites[name] = s
	m.mu.Unlock()

	m.track(s)
	m.saveMirror(ctx)
	m.publish(events.SiteMaterialized, name, m.info(s))

	log.Info().Str("site", name).Bool("owner", s.HasOwner).Bool("maintenance", cfg.Maintenance).
		Bool("process", s.proc != nil).Msg("site materialized")
	return nil
}

// loadConfig returns the stored configuration of the site, creating the default one on first sight.
func (m *Manager) loadConfig(ctx context.Context, name string) (domain.SiteConfig, error) {
	cfg, err := m.deps.Store.GetSiteConfig(ctx, name)
	if errors.Is(err, db.ErrNotFound) {
		now := m.now().UTC()
		cfg = domain.SiteConfig{
			Subdomain:       name,
			CustomDomains:   []string{},
			HealthCheckPath: DefaultHealthCheckPath,
			Created:         now,
			Updated:         now,
		}
		if err = m.deps.Store.UpsertSiteConfig(ctx, cfg); err != nil {
			return cfg, fmt.Errorf("storing default configuration of %s: %w", name, err)
		}
		return cfg, nil
	} else if err != nil {
		return cfg, err
	}
	if cfg.HealthCheckPath == "" {
		cfg.HealthCheckPath = DefaultHealthCheckPath
	}
	if cfg.CustomDomains == nil {
		cfg.CustomDomains = []string{}
	}
	return cfg, nil
}

// owner resolves the user the site belongs to: the one who verified it as their subdomain, or the user of the
// same name who has no other subdomain.
func (m *Manager) owner(ctx context.Context, name string) (domain.User, bool, error) {
	if m.deps.Accounts == nil {
		return domain.User{}, false, nil
	}
	u, err := m.deps.Accounts.GetUserBySubdomain(ctx, name)
	if err == nil {
		return u, true, nil
	}
	if !notFound(err) {
		return u, false, err
	}

	u, err = m.deps.Accounts.GetUserByUsername(ctx, name)
	switch {
	case notFound(err):
		return domain.User{}, false, nil
	case err != nil:
		return u, false, err
	case u.Subdomain != "" || !u.Active:
		return domain.User{}, false, nil
	}
	return u, true, nil
}

func notFound(err error) bool {
	return errors.Is(err, service.ErrNotFound) || errors.Is(err, db.ErrNotFound)
}

// ensureProcess gives s the child process it needs, reusing the one of prev unless its inputs changed or a
// restart is asked. It reports whether a new process was started.
func (m *Manager) ensureProcess(s *Site, prev *Site, restart bool) (bool, error) {
	if s.Config.ProxyTarget != "" {
		return false, nil
	}
	argv, watched := s.command(m.cfg.NodeBin)
	if argv == nil {
		return false, nil
	}

	fp := fingerprint(argv, s.Config.Env, watched)
	if !restart && prev != nil && prev.proc != nil && prev.proc.running() && prev.proc.fingerprint == fp {
		s.proc = prev.proc
		return false, nil
	}

	p, err := startProcess(s.Name, s.Dir, argv, s.Config.Env, fp)
	if err != nil {
		return false, fmt.Errorf("%w: starting %s: %s", ErrInvalidSite, strings.Join(argv, " "), err)
	}
	s.proc = p
	return true, nil
}

// retire stops p once the requests it already accepted had time to complete.
func (m *Manager) retire(p *process) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		time.Sleep(DrainPeriod)
		p.stop()
	}()
}

func (m *Manager) track(s *Site) {
	if m.deps.Poller == nil {
		return
	}
	target := *m.deps.ProbeBase
	target.Path = s.Config.HealthCheckPath
	m.deps.Poller.Track(s.Name, status.Target{
		URL:         &target,
		Host:        s.Name + "." + m.cfg.BaseDomain,
		Maintenance: s.Config.Maintenance,
	})
}

func (m *Manager) publish(t events.Type, site string, payload any) {
	if m.deps.Bus != nil {
		m.deps.Bus.Publish(events.Event{Type: t, Site: site, Payload: payload})
	}
}

func (m *Manager) saveMirror(ctx context.Context) {
	configs, err := m.deps.Store.ListSiteConfigs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list site configurations")
		return
	}
	if err = m.mirror.Save(configs); err != nil {
		log.Error().Err(err).Str("path", m.cfg.SitesFile()).Msg("failed to save the site mirror")
	}
}

// Demolish takes the site offline. Its configuration is kept, so it comes back as it was when its directory does.
func (m *Manager) Demolish(ctx context.Context, name string) error {
	unlock := m.locks.Lock(name)
	defer unlock()
	return m.demolishLocked(ctx, name)
}

func (m *Manager) demolishLocked(ctx context.Context, name string) error {
	m.mu.Lock()
	s, ok := m.sites[name]
	delete(m.sites, name)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	m.deps.Dispatcher.Deactivate(name)
	if m.deps.Poller != nil {
		m.deps.Poller.Untrack(name)
	}
	if s.proc != nil {
		m.retire(s.proc)
	}
	m.publish(events.SiteDemolished, name, nil)
	m.saveMirror(ctx)

	log.Info().Str("site", name).Msg("site demolished")
	return nil
}

// Patch changes a site's configuration. Nil fields are left as they are.
type Patch struct {
	Maintenance     *bool             `json:"maintenance"`
	CustomDomains   *[]string         `json:"customDomains"`
	HealthCheckPath *string           `json:"healthCheckPath"`
	ProxyTarget     *string           `json:"proxyTarget"`
	Env             map[string]string `json:"env"`
}

func (m *Manager) checkPatch(ctx context.Context, name string, p Patch) error {
	if p.CustomDomains != nil {
		others, err := m.deps.Store.ListSiteConfigs(ctx)
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, d := range *p.CustomDomains {
			d = strings.ToLower(d)
			if err = validate.Domain(d); err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidSite, err)
			}
			if d == m.cfg.BaseDomain || strings.HasSuffix(d, "."+m.cfg.BaseDomain) {
				return fmt.Errorf("%w: %s is under %s", ErrInvalidSite, d, m.cfg.BaseDomain)
			}
			if seen[d] {
				return fmt.Errorf("%w: %s is listed twice", ErrInvalidSite, d)
			}
			seen[d] = true
			for _, o := range others {
				if o.Subdomain != name && slices.Contains(o.CustomDomains, d) {
					return fmt.Errorf("%w: %s is used by %s", ErrDuplicateDomain, d, o.Subdomain)
				}
			}
		}
	}
	if p.HealthCheckPath != nil && !strings.HasPrefix(*p.HealthCheckPath, "/") {
		return fmt.Errorf("%w: the health check path must start with /", ErrInvalidSite)
	}
	if p.ProxyTarget != nil && *p.ProxyTarget != "" {
		u, err := url.Parse(*p.ProxyTarget)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: the proxy target must be an http url", ErrInvalidSite)
		}
	}
	for k := range p.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") || k == "PORT" || k == "SITE" {
			return fmt.Errorf("%w: invalid environment variable %q", ErrInvalidSite, k)
		}
	}
	return nil
}

func (p Patch) apply(c domain.SiteConfig) domain.SiteConfig {
	if p.Maintenance != nil {
		c.Maintenance = *p.Maintenance
	}
	if p.CustomDomains != nil {
		c.CustomDomains = make([]string, len(*p.CustomDomains))
		for i, d := range *p.CustomDomains {
			c.CustomDomains[i] = strings.ToLower(d)
		}
	}
	if p.HealthCheckPath != nil {
		c.HealthCheckPath = *p.HealthCheckPath
	}
	if p.ProxyTarget != nil {
		c.ProxyTarget = *p.ProxyTarget
	}
	if p.Env != nil {
		c.Env = p.Env
	}
	return c
}

// Update stores the patched configuration and, if the site is online, materializes it again. The previous
// configuration is restored if that fails.
func (m *Manager) Update(ctx context.Context, name string, p Patch) (domain.SiteConfig, error) {
	if err := checkName(name); err != nil {
		return domain.SiteConfig{}, err
	}
	if err := m.checkPatch(ctx, name, p); err != nil {
		return domain.SiteConfig{}, err
	}

	unlock := m.locks.Lock(name)
	defer unlock()

	old, err := m.loadConfig(ctx, name)
	if err != nil {
		return old, err
	}
	cfg := p.apply(old)
	cfg.Updated = m.now().UTC()
	if err = m.deps.Store.UpsertSiteConfig(ctx, cfg); err != nil {
		return old, err
	}

	if m.current(name) == nil {
		m.saveMirror(ctx)
		return cfg, nil
	}
	if err = m.materializeLocked(ctx, name, false); err != nil {
		if rerr := m.deps.Store.UpsertSiteConfig(ctx, old); rerr != nil {
			log.Error().Err(rerr).Str("site", name).Msg("failed to restore the site configuration")
		}
		return old, err
	}
	return cfg, nil
}

// siteOf returns the site a path under SitesDir belongs to, and whether the path is the site directory itself.
func (m *Manager) siteOf(path string) (name string, top bool, ok bool) {
	rel, err := filepath.Rel(m.cfg.SitesDir, path)
	if err != nil || !filepath.IsLocal(rel) {
		return "", false, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	name = parts[0]
	if strings.HasPrefix(name, ".") || checkName(name) != nil {
		return "", false, false
	}
	return name, len(parts) == 1, true
}

// Changed is called by the watcher. Only the site directory, its server and its manifest cause a refresh; other
// files are served from disk as they are.
func (m *Manager) Changed(path string) {
	name, top, ok := m.siteOf(path)
	if !ok {
		return
	}
	base := filepath.Base(path)
	if !top && filepath.Dir(path) != m.dir(name) {
		return
	}
	if !top && base != ServerFile && base != ManifestFile {
		return
	}
	if err := m.Materialize(context.Background(), name); err != nil {
		log.Error().Err(err).Str("site", name).Str("path", path).Msg("failed to materialize site")
	}
}

func (m *Manager) Removed(path string) {
	name, top, ok := m.siteOf(path)
	if !ok {
		return
	}
	if top {
		if err := m.Demolish(context.Background(), name); err != nil && !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Str("site", name).Msg("failed to demolish site")
		}
		return
	}
	if m.current(name) != nil {
		m.Changed(m.dir(name))
	}
}

// Run creates the directory of every subdomain verified from now on, which the watcher then materializes.
func (m *Manager) Run(ctx context.Context) {
	ch, unsubscribe := m.deps.Bus.Subscribe(16, events.SubdomainVerified)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			reg, ok := e.Payload.(domain.SubdomainRegistration)
			if !ok {
				continue
			}
			if err := m.Create(ctx, reg.Subdomain); err != nil {
				log.Error().Err(err).Str("site", reg.Subdomain).Msg("failed to provision verified subdomain")
			}
		}
	}
}

// Create makes the directory of a site if it is missing and materializes it.
func (m *Manager) Create(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(m.dir(name), 0o750); err != nil {
		return err
	}
	return m.Materialize(ctx, name)
}

// LoadAll restores the configurations found in the mirror but not in the database, then materializes every site
// directory. Sites that fail are logged and skipped.
func (m *Manager) LoadAll(ctx context.Context) (int, error) {
	if err := os.MkdirAll(m.cfg.SitesDir, 0o750); err != nil {
		return 0, err
	}

	mirrored, err := m.mirror.Load()
	if err != nil {
		log.Warn().Err(err).Str("path", m.cfg.SitesFile()).Msg("failed to read the site mirror")
	}
	for _, c := range mirrored {
		if _, err = m.deps.Store.GetSiteConfig(ctx, c.Subdomain); errors.Is(err, db.ErrNotFound) {
			if err = m.deps.Store.UpsertSiteConfig(ctx, c); err != nil {
				return 0, err
			}
			log.Info().Str("site", c.Subdomain).Msg("restored site configuration from the mirror")
		}
	}

	entries, err := os.ReadDir(m.cfg.SitesDir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err = m.Materialize(ctx, e.Name()); err != nil {
			log.Error().Err(err).Str("site", e.Name()).Msg("failed to materialize site")
			continue
		}
		n++
	}
	return n, nil
}

// Close stops every child process.
func (m *Manager) Close() {
	m.mu.Lock()
	procs := make([]*process, 0, len(m.sites))
	for _, s := range m.sites {
		if s.proc != nil {
			procs = append(procs, s.proc)
		}
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.stop()
		}()
	}
	wg.Wait()
	m.wg.Wait()
}

func processURL(p *process) *url.URL {
	return &url.URL{Scheme: "http", Host: "127.0.0.1:" + strconv.Itoa(p.port)}
}

func mustParse(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		// targets are checked when stored
		panic(err)
	}
	return u
}
