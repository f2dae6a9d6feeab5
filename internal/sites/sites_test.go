package sites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/events"
	"github.com/sidereusnuntius/fedhost/internal/service"
	"github.com/sidereusnuntius/fedhost/internal/status"
	"github.com/sidereusnuntius/fedhost/internal/vhost"
	"github.com/sidereusnuntius/fedhost/internal/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	configs map[string]domain.SiteConfig
}

func (f *fakeStore) GetSiteConfig(_ context.Context, name string) (domain.SiteConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.configs[name]
	if !ok {
		return c, db.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) UpsertSiteConfig(_ context.Context, c domain.SiteConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[c.Subdomain] = c
	return nil
}

func (f *fakeStore) ListSiteConfigs(context.Context) ([]domain.SiteConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cs []domain.SiteConfig
	for _, c := range f.configs {
		cs = append(cs, c)
	}
	return cs, nil
}

type fakeAccounts map[string]domain.User

func (f fakeAccounts) GetUserBySubdomain(_ context.Context, s string) (domain.User, error) {
	for _, u := range f {
		if u.Subdomain == s {
			return u, nil
		}
	}
	return domain.User{}, service.ErrNotFound
}

func (f fakeAccounts) GetUserByUsername(_ context.Context, name string) (domain.User, error) {
	u, ok := f[name]
	if !ok {
		return u, service.ErrNotFound
	}
	return u, nil
}

type env struct {
	cfg        *config.Configuration
	store      *fakeStore
	dispatcher *vhost.Dispatcher
	bus        *events.Bus
	poller     *status.Poller
	manager    *Manager
}

func newEnv(t *testing.T) *env {
	root := t.TempDir()
	cfg := &config.Configuration{
		BaseDomain: "example.io",
		Https:      true,
		SitesDir:   filepath.Join(root, "sites"),
		ConfigDir:  filepath.Join(root, "config"),
		NodeBin:    "node",
	}
	require.NoError(t, os.MkdirAll(cfg.SitesDir, 0o750))

	e := &env{
		cfg:        cfg,
		store:      &fakeStore{configs: map[string]domain.SiteConfig{}},
		dispatcher: vhost.New(cfg.BaseDomain, http.NotFoundHandler()),
		bus:        events.New(),
	}
	srv := httptest.NewServer(e.dispatcher)
	t.Cleanup(srv.Close)
	base, _ := url.Parse(srv.URL)

	e.poller = status.New(time.Hour, nil, e.bus)
	t.Cleanup(e.poller.Stop)

	e.manager = New(cfg, Deps{
		Store: e.store,
		Accounts: fakeAccounts{
			"alice": {ID: 1, Username: "alice", Subdomain: "alice", Active: true},
			"bob":   {ID: 2, Username: "bob", Active: true},
		},
		Dispatcher: e.dispatcher,
		Poller:     e.poller,
		Bus:        e.bus,
		Routes: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("api " + r.URL.Path))
		}),
		UserRoutes: func(r chi.Router, owner domain.User) {
			r.Get("/@{name}", func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("profile of " + owner.Username))
			})
		},
		Handlers: map[string]LocalHandler{
			"hello": func(s web.Site) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Write([]byte("hello from " + s.Name))
				})
			},
		},
		ProbeBase: base,
	})
	t.Cleanup(e.manager.Close)
	return e
}

func (e *env) site(t *testing.T, name string, files map[string]string) {
	dir := filepath.Join(e.cfg.SitesDir, name)
	for file, content := range files {
		path := filepath.Join(dir, file)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	}
	require.NoError(t, os.MkdirAll(dir, 0o750))
}

func (e *env) get(host, path string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.Host = host
	rec := httptest.NewRecorder()
	e.dispatcher.ServeHTTP(rec, r)
	return rec
}

func TestMaterializeServesStaticFiles(t *testing.T) {
	e := newEnv(t)
	e.site(t, "alice", map[string]string{
		"index.html":      "<h1>alice</h1>",
		"css/site.css":    "body{}",
		".env":            "SECRET=1",
		"site.toml":       "",
		"node_modules/x":  "x",
		"docs/readme.txt": "readme",
	})
	require.NoError(t, e.manager.Materialize(context.Background(), "alice"))

	rec := e.get("alice.example.io", "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>alice</h1>")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	assert.Equal(t, http.StatusOK, e.get("alice.example.io", "/css/site.css").Code)
	assert.Equal(t, http.StatusOK, e.get("alice.example.io", "/docs/readme.txt").Code)

	for _, hidden := range []string{"/.env", "/site.toml", "/node_modules/x", "/docs/"} {
		assert.Equal(t, http.StatusNotFound, e.get("alice.example.io", hidden).Code, hidden)
	}

	assert.Equal(t, "api /api/posts", e.get("alice.example.io", "/api/posts").Body.String())
	assert.Equal(t, "profile of alice", e.get("alice.example.io", "/@alice").Body.String())
}

func TestMissingPage(t *testing.T) {
	e := newEnv(t)
	e.site(t, "alice", map[string]string{"index.html": "hi"})
	require.NoError(t, e.manager.Materialize(context.Background(), "alice"))

	rec := e.get("alice.example.io", "/missing.html")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "nothing is served at /missing.html")

	assert.True(t, notFound(fmt.Errorf("loading owner: %w", db.ErrNotFound)))
	assert.False(t, notFound(errors.New("disk on fire")))
}

func TestStatusBecomesActive(t *testing.T) {
	e := newEnv(t)
	e.site(t, "alice", map[string]string{"index.html": "hi"})
	require.NoError(t, e.manager.Materialize(context.Background(), "alice"))

	require.Eventually(t, func() bool {
		st, ok := e.poller.Status("alice")
		return ok && st.Status == domain.HealthActive
	}, 5*time.Second, 20*time.Millisecond)

	rec := e.get("alice.example.io", "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st domain.ServiceStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "alice", st.Site)
	assert.Equal(t, domain.HealthActive, st.Status)
	assert.NotEmpty(t, st.History)
}

func TestDefaultConfigIsStored(t *testing.T) {
	e := newEnv(t)
	e.site(t, "carol", nil)
	require.NoError(t, e.manager.Materialize(context.Background(), "carol"))

	c, err := e.store.GetSiteConfig(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, DefaultHealthCheckPath, c.HealthCheckPath)
	assert.False(t, c.Maintenance)
	assert.Empty(t, c.CustomDomains)

	info, err := e.manager.Get("carol")
	require.NoError(t, err)
	assert.Empty(t, info.Owner)
	assert.Equal(t, "https://carol.example.io/", info.URL)
}

func TestOwner(t *testing.T) {
	e := newEnv(t)
	e.site(t, "alice", nil)
	e.site(t, "bob", nil)
	require.NoError(t, e.manager.Materialize(context.Background(), "alice"))
	require.NoError(t, e.manager.Materialize(context.Background(), "bob"))

	alice, _ := e.manager.Get("alice")
	bob, _ := e.manager.Get("bob")
	assert.Equal(t, "alice", alice.Owner)
	assert.Equal(t, "bob", bob.Owner)
}

func TestRejectedNames(t *testing.T) {
	e := newEnv(t)
	err := e.manager.Materialize(context.Background(), "status")
	assert.ErrorIs(t, err, ErrReservedSubdomain)
	assert.Equal(t, http.StatusBadRequest, web.GetCode(err))

	assert.ErrorIs(t, e.manager.Materialize(context.Background(), "Not_A_Label"), ErrInvalidSite)
	assert.ErrorIs(t, e.manager.Materialize(context.Background(), "ghost"), ErrNotFound)
}

func TestMaintenance(t *testing.T) {
	e := newEnv(t)
	e.site(t, "alice", map[string]string{"index.html": "hi"})
	require.NoError(t, e.manager.Materialize(context.Background(), "alice"))

	on := true
	c, err := e.manager.Update(context.Background(), "alice", Patch{Maintenance: &on})
	require.NoError(t, err)
	assert.True(t, c.Maintenance)

	rec := e.get("alice.example.io", "/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
	assert.Equal(t, http.StatusOK, e.get("alice.example.io", "/status").Code)

	require.Eventually(t, func() bool {
		st, _ := e.poller.Status("alice")
		return st.Status == domain.HealthMaintenance
	}, 5*time.Second, 20*time.Millisecond)

	off := false
	_, err = e.manager.Update(context.Background(), "alice", Patch{Maintenance: &off})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, e.get("alice.example.io", "/").Code)
}

func TestCustomDomains(t *testing.T) {
	e := newEnv(t)
	e.site(t, "alice", map[string]string{"index.html": "alice"})
	e.site(t, "bob", map[string]string{"index.html": "bob"})
	ctx := context.Background()
	require.NoError(t, e.manager.Materialize(ctx, "alice"))
	require.NoError(t, e.manager.Materialize(ctx, "bob"))

	domains := []string{"Alice.dev"}
	_, err := e.manager.Update(ctx, "alice", Patch{CustomDomains: &domains})
	require.NoError(t, err)
	assert.Equal(t, "alice", e.get("alice.dev", "/").Body.String())

	_, err = e.manager.Update(ctx, "bob", Patch{CustomDomains: &domains})
	assert.ErrorIs(t, err, ErrDuplicateDomain)
	assert.Equal(t, http.StatusConflict, web.GetCode(err))

	under := []string{"www.example.io"}
	_, err = e.manager.Update(ctx, "bob", Patch{CustomDomains: &under})
	assert.ErrorIs(t, err, ErrInvalidSite)

	twice := []string{"bob.dev", "bob.dev"}
	_, err = e.manager.Update(ctx, "bob", Patch{CustomDomains: &twice})
	assert.ErrorIs(t, err, ErrInvalidSite)
}

func TestDemolishKeepsConfiguration(t *testing.T) {
	e := newEnv(t)
	e.site(t, "alice", map[string]string{"index.html": "alice"})
	ctx := context.Background()
	require.NoError(t, e.manager.Materialize(ctx, "alice"))
	domains := []string{"alice.dev"}
	_, err := e.manager.Update(ctx, "alice", Patch{CustomDomains: &domains})
	require.NoError(t, err)

	ch, unsubscribe := e.bus.Subscribe(4, events.SiteDemolished)
	defer unsubscribe()

	require.NoError(t, e.manager.Demolish(ctx, "alice"))
	assert.Equal(t, http.StatusNotFound, e.get("alice.example.io", "/").Code)
	assert.Equal(t, http.StatusNotFound, e.get("alice.dev", "/").Code)
	_, ok := e.poller.Status("alice")
	assert.False(t, ok)
	assert.ErrorIs(t, e.manager.Demolish(ctx, "alice"), ErrNotFound)

	select {
	case ev := <-ch:
		assert.Equal(t, "alice", ev.Site)
	case <-time.After(time.Second):
		t.Fatal("no demolition event")
	}

	require.NoError(t, e.manager.Materialize(ctx, "alice"))
	assert.Equal(t, "alice", e.get("alice.dev", "/").Body.String())
}

func TestMirror(t *testing.T) {
	e := newEnv(t)
	e.site(t, "alice", nil)
	ctx := context.Background()
	require.NoError(t, e.manager.Materialize(ctx, "alice"))
	domains := []string{"alice.dev"}
	_, err := e.manager.Update(ctx, "alice", Patch{CustomDomains: &domains})
	require.NoError(t, err)

	content, err := os.ReadFile(e.cfg.SitesFile())
	require.NoError(t, err)
	var f mirrorFile
	require.NoError(t, json.Unmarshal(content, &f))
	assert.Equal(t, "alice", f.CustomDomains["alice.dev"])
	assert.Contains(t, f.Sites, "alice")

	// a fresh database is restored from the mirror
	fresh := newEnv(t)
	fresh.cfg.ConfigDir = e.cfg.ConfigDir
	fresh.manager.mirror = NewMirror(e.cfg.SitesFile())
	fresh.site(t, "alice", map[string]string{"index.html": "alice"})
	n, err := fresh.manager.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "alice", fresh.get("alice.dev", "/").Body.String())
}

func TestLocalHandler(t *testing.T) {
	e := newEnv(t)
	e.site(t, "alice", map[string]string{
		"site.toml":       "handler = \"hello\"\nstatic = \"public\"\n",
		"public/a.txt":    "static",
		"private/key.txt": "nope",
	})
	require.NoError(t, e.manager.Materialize(context.Background(), "alice"))

	assert.Equal(t, "static", e.get("alice.example.io", "/a.txt").Body.String())
	assert.Equal(t, "hello from alice", e.get("alice.example.io", "/private/key.txt").Body.String())
	assert.Equal(t, "hello from alice", e.get("alice.example.io", "/anything").Body.String())

	e.site(t, "bob", map[string]string{"site.toml": "handler = \"missing\"\n"})
	assert.ErrorIs(t, e.manager.Materialize(context.Background(), "bob"), ErrInvalidSite)
}

func TestProxyTarget(t *testing.T) {
	e := newEnv(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Host + " " + r.URL.Path + " " + r.Header.Get("Cookie")))
	}))
	defer upstream.Close()

	e.manager.deps.SessionCookie = "fedhost_session"
	e.site(t, "alice", map[string]string{"index.html": "static"})
	ctx := context.Background()
	require.NoError(t, e.manager.Materialize(ctx, "alice"))
	target := upstream.URL
	_, err := e.manager.Update(ctx, "alice", Patch{ProxyTarget: &target})
	require.NoError(t, err)

	assert.Equal(t, "static", e.get("alice.example.io", "/").Body.String())

	r := httptest.NewRequest(http.MethodGet, "/dynamic", nil)
	r.Host = "alice.example.io"
	r.AddCookie(&http.Cookie{Name: "fedhost_session", Value: "secret"})
	r.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})
	rec := httptest.NewRecorder()
	e.dispatcher.ServeHTTP(rec, r)
	assert.Equal(t, "alice.example.io /dynamic theme=dark", rec.Body.String())

	upstream.Close()
	assert.Equal(t, http.StatusBadGateway, e.get("alice.example.io", "/dynamic").Code)

	bad := "ftp://somewhere"
	_, err = e.manager.Update(ctx, "alice", Patch{ProxyTarget: &bad})
	assert.ErrorIs(t, err, ErrInvalidSite)
}

func TestUpdateRevertsOnFailure(t *testing.T) {
	e := newEnv(t)
	e.site(t, "alice", nil)
	e.site(t, "bob", nil)
	ctx := context.Background()
	require.NoError(t, e.manager.Materialize(ctx, "alice"))
	require.NoError(t, e.manager.Materialize(ctx, "bob"))

	// claimed behind the store's back, so only the dispatcher notices
	require.NoError(t, e.dispatcher.Activate("alice", http.NotFoundHandler(), []string{"shared.dev"}))

	domains := []string{"shared.dev"}
	_, err := e.manager.Update(ctx, "bob", Patch{CustomDomains: &domains})
	assert.ErrorIs(t, err, ErrDuplicateDomain)

	c, err := e.store.GetSiteConfig(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, c.CustomDomains)
}

func TestWatcherCallbacks(t *testing.T) {
	e := newEnv(t)
	e.site(t, "alice", map[string]string{"index.html": "v1"})

	e.manager.Changed(filepath.Join(e.cfg.SitesDir, "alice", "index.html"))
	_, err := e.manager.Get("alice")
	assert.ErrorIs(t, err, ErrNotFound, "content changes do not materialize")

	e.manager.Changed(filepath.Join(e.cfg.SitesDir, "alice"))
	_, err = e.manager.Get("alice")
	require.NoError(t, err)

	e.manager.Changed(filepath.Join(e.cfg.SitesDir, ".trash"))
	e.manager.Changed(filepath.Join(e.cfg.SitesDir, "status"))
	assert.Len(t, e.manager.List(), 1)

	require.NoError(t, os.RemoveAll(filepath.Join(e.cfg.SitesDir, "alice")))
	e.manager.Removed(filepath.Join(e.cfg.SitesDir, "alice"))
	assert.Empty(t, e.manager.List())
}

func TestVerifiedSubdomainIsProvisioned(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		e.manager.Run(ctx)
		close(done)
	}()

	// the subscription is taken when Run starts
	require.Eventually(t, func() bool {
		e.bus.Publish(events.Event{
			Type:    events.SubdomainVerified,
			Payload: domain.SubdomainRegistration{UserID: 1, Subdomain: "alice"},
		})
		_, err := e.manager.Get("alice")
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	info, err := os.Stat(filepath.Join(e.cfg.SitesDir, "alice"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	cancel()
	<-done
}

func TestChildProcess(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep is not available")
	}
	e := newEnv(t)
	e.site(t, "alice", map[string]string{"site.toml": "command = [\"sleep\", \"60\"]\n"})
	ctx := context.Background()
	require.NoError(t, e.manager.Materialize(ctx, "alice"))

	first, err := e.manager.Get("alice")
	require.NoError(t, err)
	require.NotNil(t, first.Process)
	assert.True(t, first.Process.Running)

	require.NoError(t, e.manager.Materialize(ctx, "alice"))
	same, _ := e.manager.Get("alice")
	assert.Equal(t, first.Process.PID, same.Process.PID, "unchanged inputs keep the process")

	require.NoError(t, e.manager.Reload(ctx, "alice"))
	reloaded, _ := e.manager.Get("alice")
	assert.NotEqual(t, first.Process.PID, reloaded.Process.PID)

	assert.ErrorIs(t, e.manager.Reload(ctx, "ghost"), ErrNotFound)
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "server.js")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0o640))

	a := fingerprint([]string{"node", "server.js"}, map[string]string{"A": "1"}, file)
	assert.Equal(t, a, fingerprint([]string{"node", "server.js"}, map[string]string{"A": "1"}, file))
	assert.NotEqual(t, a, fingerprint([]string{"node", "server.js"}, map[string]string{"A": "2"}, file))
	assert.NotEqual(t, a, fingerprint([]string{"node", "other.js"}, map[string]string{"A": "1"}, file))

	require.NoError(t, os.WriteFile(file, []byte("version 2"), 0o640))
	assert.NotEqual(t, a, fingerprint([]string{"node", "server.js"}, map[string]string{"A": "1"}, file))
}

func TestReadManifest(t *testing.T) {
	dir := t.TempDir()
	m, err := readManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, Manifest{}, m)

	write := func(content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(content), 0o640))
	}
	write("handler = \"a\"\ncommand = [\"b\"]\n")
	_, err = readManifest(dir)
	assert.Error(t, err)

	write("static = \"../outside\"\n")
	_, err = readManifest(dir)
	assert.Error(t, err)

	write("static = \"public\"\n")
	m, err = readManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "public", m.Static)
}

func TestStripCookies(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "s", Value: "1"})
	r.AddCookie(&http.Cookie{Name: "t", Value: "2"})
	stripCookies(r, []string{"s"})
	assert.Equal(t, "t=2", r.Header.Get("Cookie"))

	stripCookies(r, []string{"t"})
	assert.Empty(t, r.Header.Get("Cookie"))
}

func TestProxyTimeoutClassification(t *testing.T) {
	assert.True(t, isTimeout(context.DeadlineExceeded))
	assert.False(t, isTimeout(errors.New("connection refused")))
	assert.False(t, isTimeout(io.EOF))
}
