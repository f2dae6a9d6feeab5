package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/oauth"
	"github.com/sidereusnuntius/fedhost/internal/ratelimit"
	"github.com/sidereusnuntius/fedhost/internal/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	oauth map[string]domain.Principal
	jwt   map[string]domain.Principal
}

func (f fakeTokens) Validate(_ context.Context, token string) (domain.Principal, error) {
	if p, ok := f.oauth[token]; ok {
		return p, nil
	}
	return domain.Principal{}, oauth.ErrInvalidToken
}

func (f fakeTokens) ParseJWT(token string) (domain.Principal, error) {
	if p, ok := f.jwt[token]; ok {
		return p, nil
	}
	return domain.Principal{}, oauth.ErrInvalidToken
}

var tokens = fakeTokens{
	oauth: map[string]domain.Principal{
		"read":  {UserID: 1, Username: "alice", Role: domain.RoleUser, ClientID: "c1", Scope: domain.Scope{"read"}},
		"write": {UserID: 1, Username: "alice", Role: domain.RoleUser, ClientID: "c1", Scope: domain.Scope{"read", "write"}},
	},
	jwt: map[string]domain.Principal{
		"user":  {UserID: 1, Username: "alice", Role: domain.RoleUser},
		"admin": {UserID: 2, Username: "root", Role: domain.RoleAdmin},
	},
}

// echo answers with the name of the handler and the user it sees.
func echo(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := web.GetPrincipal(r.Context())
		web.WriteJSON(w, http.StatusOK, map[string]any{"handler": name, "user": p.Username})
	})
}

func newRegistry() *Registry {
	catalog := Catalog{
		"posts":   echo("posts"),
		"profile": echo("profile"),
		"health":  echo("health"),
		"queue":   echo("queue"),
	}
	return New(catalog, tokens, &ratelimit.Set{Memory: ratelimit.NewMemory()})
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func do(reg *Registry, method, path, token string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	reg.ServeHTTP(rec, r)
	return rec
}

const postsRoute = `
path = "/api/auth/posts"
handler = "posts"
methods = ["GET", "POST"]
auth = "oauth"
method_scope = { GET = "read", POST = "write" }
`

func TestParseDescriptor(t *testing.T) {
	d, err := ParseDescriptor([]byte(postsRoute + `
[rate_limit]
window_ms = 60000
max = 5
db = true
`))
	require.NoError(t, err)

	assert.Equal(t, "/api/auth/posts", d.Path)
	assert.Equal(t, AuthOAuth, d.Auth)
	assert.Equal(t, domain.Scope{"write"}, d.requiredScope(http.MethodPost))
	assert.Equal(t, domain.Scope{"read"}, d.requiredScope(http.MethodHead))
	assert.True(t, d.IsEnabled())

	p := d.RateLimit.Policy()
	assert.Equal(t, int64(60000), p.Window.Milliseconds())
	assert.Equal(t, 5, p.Max)
	assert.True(t, p.DB)
}

func TestValidate(t *testing.T) {
	catalog := Catalog{"posts": echo("posts")}
	cases := []struct {
		name    string
		content string
	}{
		{"missing path", `handler = "posts"`},
		{"relative path", `path = "api"
handler = "posts"`},
		{"missing handler", `path = "/api"`},
		{"unknown handler", `path = "/api"
handler = "nope"`},
		{"unknown auth", `path = "/api"
handler = "posts"
auth = "magic"`},
		{"scope without oauth", `path = "/api"
handler = "posts"
auth = "jwt"
scope = "read"`},
		{"unknown scope", `path = "/api"
handler = "posts"
auth = "oauth"
scope = "everything"`},
		{"role without auth", `path = "/api"
handler = "posts"
role = "admin"`},
		{"unknown method", `path = "/api"
handler = "posts"
methods = ["FETCH"]`},
		{"empty rate limit", `path = "/api"
handler = "posts"
[rate_limit]
max = 3`},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d, err := ParseDescriptor([]byte(c.content))
			if err == nil {
				err = d.Validate(catalog)
			}
			assert.ErrorIs(t, err, ErrInvalidDescriptor)
		})
	}

	_, err := ParseDescriptor([]byte(`path = "/api"
handler = "posts"
methdos = ["GET"]`))
	assert.ErrorIs(t, err, ErrInvalidDescriptor, "unknown keys must be rejected")
}

func TestScopeEnforcement(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.LoadFile(writeFile(t, t.TempDir(), "posts.toml", postsRoute)))

	cases := []struct {
		method string
		token  string
		code   int
	}{
		{http.MethodGet, "", http.StatusUnauthorized},
		{http.MethodGet, "bogus", http.StatusUnauthorized},
		{http.MethodGet, "read", http.StatusOK},
		{http.MethodPost, "read", http.StatusForbidden},
		{http.MethodPost, "write", http.StatusOK},
		{http.MethodDelete, "write", http.StatusMethodNotAllowed},
	}
	for _, c := range cases {
		t.Run(c.method+" "+c.token, func(t *testing.T) {
			rec := do(reg, c.method, "/api/auth/posts", c.token)
			assert.Equal(t, c.code, rec.Code)
		})
	}

	rec := do(reg, http.MethodPost, "/api/auth/posts", "read")
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")
}

func TestAuthModes(t *testing.T) {
	reg := newRegistry()
	dir := t.TempDir()
	require.NoError(t, reg.LoadFile(writeFile(t, dir, "session.toml", `
path = "/api/session/me"
handler = "profile"
auth = "session"`)))
	require.NoError(t, reg.LoadFile(writeFile(t, dir, "admin.toml", `
path = "/api/admin/queue"
handler = "queue"
auth = "jwt"
role = "admin"`)))

	assert.Equal(t, http.StatusUnauthorized, do(reg, http.MethodGet, "/api/session/me", "").Code)

	r := httptest.NewRequest(http.MethodGet, "/api/session/me", nil)
	r = r.WithContext(web.WithAccount(r.Context(), domain.Account{UserID: 1, Username: "alice", Role: domain.RoleUser}))
	rec := httptest.NewRecorder()
	reg.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user":"alice"`)

	assert.Equal(t, http.StatusUnauthorized, do(reg, http.MethodGet, "/api/admin/queue", "").Code)
	assert.Equal(t, http.StatusForbidden, do(reg, http.MethodGet, "/api/admin/queue", "user").Code)
	assert.Equal(t, http.StatusOK, do(reg, http.MethodGet, "/api/admin/queue", "admin").Code)
}

func TestLongestPrefix(t *testing.T) {
	reg := newRegistry()
	dir := t.TempDir()
	require.NoError(t, reg.LoadFile(writeFile(t, dir, "health.toml", `
path = "/api"
handler = "health"`)))
	require.NoError(t, reg.LoadFile(writeFile(t, dir, "profile.toml", `
path = "/api/profile"
handler = "profile"`)))

	assert.Contains(t, do(reg, http.MethodGet, "/api/profile/alice", "").Body.String(), `"handler":"profile"`)
	assert.Contains(t, do(reg, http.MethodGet, "/api/profiles", "").Body.String(), `"handler":"health"`)
	assert.Contains(t, do(reg, http.MethodGet, "/api", "").Body.String(), `"handler":"health"`)
	assert.Equal(t, http.StatusNotFound, do(reg, http.MethodGet, "/other", "").Code)
}

func TestReloadAndRemove(t *testing.T) {
	reg := newRegistry()
	dir := t.TempDir()
	file := writeFile(t, dir, "health.toml", `
path = "/api/health"
handler = "health"`)
	require.NoError(t, reg.LoadFile(file))

	// a broken edit keeps the previous registration
	writeFile(t, dir, "health.toml", `path = "/api/health"`)
	assert.ErrorIs(t, reg.LoadFile(file), ErrInvalidDescriptor)
	assert.Equal(t, http.StatusOK, do(reg, http.MethodGet, "/api/health", "").Code)

	// a valid edit replaces it
	writeFile(t, dir, "health.toml", `
path = "/api/healthz"
handler = "health"`)
	reg.Changed(file)
	assert.Equal(t, http.StatusNotFound, do(reg, http.MethodGet, "/api/health", "").Code)
	assert.Equal(t, http.StatusOK, do(reg, http.MethodGet, "/api/healthz", "").Code)
	assert.Len(t, reg.Routes(), 1)

	writeFile(t, dir, "health.toml", `
path = "/api/healthz"
handler = "health"
enabled = false`)
	reg.Changed(file)
	assert.Equal(t, http.StatusNotFound, do(reg, http.MethodGet, "/api/healthz", "").Code)

	writeFile(t, dir, "health.toml", `
path = "/api/healthz"
handler = "health"`)
	reg.Changed(file)
	reg.Removed(file)
	assert.Empty(t, reg.Routes())
	assert.Equal(t, http.StatusNotFound, do(reg, http.MethodGet, "/api/healthz", "").Code)
}

func TestSamePathReplaces(t *testing.T) {
	reg := newRegistry()
	dir := t.TempDir()
	require.NoError(t, reg.LoadFile(writeFile(t, dir, "a.toml", `
path = "/api/x"
handler = "health"`)))
	require.NoError(t, reg.LoadFile(writeFile(t, dir, "b.toml", `
path = "/api/x"
handler = "profile"`)))

	routes := reg.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, filepath.Join(dir, "b.toml"), routes[0].File)
	assert.Contains(t, do(reg, http.MethodGet, "/api/x", "").Body.String(), `"handler":"profile"`)
}

func TestRateLimitBeforeAuth(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.LoadFile(writeFile(t, t.TempDir(), "posts.toml", postsRoute+`
[rate_limit]
window_ms = 60000
max = 2
`)))

	assert.Equal(t, http.StatusUnauthorized, do(reg, http.MethodGet, "/api/auth/posts", "bogus").Code)
	assert.Equal(t, http.StatusUnauthorized, do(reg, http.MethodGet, "/api/auth/posts", "bogus").Code)

	rec := do(reg, http.MethodGet, "/api/auth/posts", "bogus")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// counters are per credential
	assert.Equal(t, http.StatusOK, do(reg, http.MethodGet, "/api/auth/posts", "read").Code)
}

func TestLoadDir(t *testing.T) {
	reg := newRegistry()
	dir := t.TempDir()
	writeFile(t, dir, "a.toml", `
path = "/api/a"
handler = "health"`)
	writeFile(t, dir, "b.toml", `path = "/api/b"`)
	writeFile(t, dir, "notes.txt", `not a route`)

	n, err := reg.LoadDir(dir)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, ok := reg.Lookup("/api/a/deeper")
	assert.True(t, ok)
}

func TestConcurrentReads(t *testing.T) {
	reg := newRegistry()
	dir := t.TempDir()
	file := writeFile(t, dir, "health.toml", `
path = "/api/health"
handler = "health"`)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.Changed(file)
			reg.Removed(file)
		}()
		go func() {
			defer wg.Done()
			code := do(reg, http.MethodGet, "/api/health", "").Code
			assert.Contains(t, []int{http.StatusOK, http.StatusNotFound}, code)
		}()
	}
	wg.Wait()
}
