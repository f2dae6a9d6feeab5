package registry

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/ratelimit"
)

var ErrInvalidDescriptor = errors.New("invalid route descriptor")

type AuthMode string

const (
	AuthNone    AuthMode = "none"
	AuthSession AuthMode = "session"
	AuthJWT     AuthMode = "jwt"
	AuthOAuth   AuthMode = "oauth"
)

var knownMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// RateLimit is the quota section of a descriptor.
type RateLimit struct {
	WindowMs int64 `toml:"window_ms" json:"windowMs"`
	Max      int   `toml:"max" json:"max"`
	Strict   bool  `toml:"strict" json:"strict"`
	DB       bool  `toml:"db" json:"db"`
}

func (r *RateLimit) Policy() ratelimit.Policy {
	if r == nil {
		return ratelimit.Policy{}
	}
	return ratelimit.Policy{
		Window: time.Duration(r.WindowMs) * time.Millisecond,
		Max:    r.Max,
		Strict: r.Strict,
		DB:     r.DB,
	}
}

// Descriptor is the content of a route file, for example:
//
//	path = "/api/auth/posts"
//	handler = "posts"
//	methods = ["GET", "POST"]
//	auth = "oauth"
//	method_scope = { GET = "read", POST = "write" }
//
//	[rate_limit]
//	window_ms = 60000
//	max = 30
type Descriptor struct {
	// Path is a prefix: it matches itself and everything below it.
	Path    string   `toml:"path" json:"path"`
	Handler string   `toml:"handler" json:"handler"`
	Methods []string `toml:"methods" json:"methods,omitempty"`
	Auth    AuthMode `toml:"auth" json:"auth"`
	// Scope is required from OAuth tokens on every method without an entry in MethodScope.
	Scope       string            `toml:"scope" json:"scope,omitempty"`
	MethodScope map[string]string `toml:"method_scope" json:"methodScope,omitempty"`
	Role        domain.Role       `toml:"role" json:"role,omitempty"`
	// Enabled defaults to true. A disabled descriptor unregisters whatever its file registered before.
	Enabled   *bool      `toml:"enabled" json:"-"`
	RateLimit *RateLimit `toml:"rate_limit" json:"rateLimit,omitempty"`
}

func (d Descriptor) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// ParseDescriptor decodes a route file. Unknown keys are rejected so that typos do not silently drop a check.
func ParseDescriptor(content []byte) (Descriptor, error) {
	var d Descriptor
	dec := toml.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return d, fmt.Errorf("%w: %s", ErrInvalidDescriptor, err)
	}
	d.normalize()
	return d, nil
}

func (d *Descriptor) normalize() {
	d.Path = strings.TrimSpace(d.Path)
	if len(d.Path) > 1 {
		d.Path = strings.TrimSuffix(d.Path, "/")
	}
	if d.Auth == "" {
		d.Auth = AuthNone
	}
	for i, m := range d.Methods {
		d.Methods[i] = strings.ToUpper(strings.TrimSpace(m))
	}
	if len(d.MethodScope) > 0 {
		scopes := make(map[string]string, len(d.MethodScope))
		for m, s := range d.MethodScope {
			scopes[strings.ToUpper(m)] = s
		}
		d.MethodScope = scopes
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDescriptor, fmt.Sprintf(format, args...))
}

// Validate checks a normalized descriptor against the handlers that exist.
func (d Descriptor) Validate(catalog Catalog) error {
	if d.Path == "" {
		return invalid("path is required")
	}
	if !strings.HasPrefix(d.Path, "/") {
		return invalid("path %q must start with /", d.Path)
	}
	if d.Handler == "" {
		return invalid("handler is required")
	}
	if _, ok := catalog[d.Handler]; !ok {
		return invalid("unknown handler %q", d.Handler)
	}

	for _, m := range d.Methods {
		if !slices.Contains(knownMethods, m) {
			return invalid("unknown method %q", m)
		}
	}

	switch d.Auth {
	case AuthNone:
		if d.Scope != "" || len(d.MethodScope) > 0 || d.Role != "" {
			return invalid("scope and role need an auth mode")
		}
	case AuthSession, AuthJWT, AuthOAuth:
	default:
		return invalid("unknown auth mode %q", d.Auth)
	}

	if d.Auth != AuthOAuth && (d.Scope != "" || len(d.MethodScope) > 0) {
		return invalid("scopes only apply to oauth routes")
	}
	if unknown := domain.ParseScope(d.Scope).Unknown(); len(unknown) > 0 {
		return invalid("unknown scope %v", unknown)
	}
	for m, s := range d.MethodScope {
		if !slices.Contains(knownMethods, m) {
			return invalid("unknown method %q in method_scope", m)
		}
		if unknown := domain.ParseScope(s).Unknown(); len(unknown) > 0 {
			return invalid("unknown scope %v", unknown)
		}
	}

	switch d.Role {
	case "", domain.RoleAdmin, domain.RoleUser:
	default:
		return invalid("unknown role %q", d.Role)
	}

	if d.RateLimit != nil && !d.RateLimit.Policy().Enabled() {
		return invalid("rate_limit needs a positive window_ms and max")
	}
	return nil
}

// requiredScope is the scope a request with method must carry.
func (d Descriptor) requiredScope(method string) domain.Scope {
	if s, ok := d.MethodScope[method]; ok {
		return domain.ParseScope(s)
	}
	if method == http.MethodHead {
		if s, ok := d.MethodScope[http.MethodGet]; ok {
			return domain.ParseScope(s)
		}
	}
	return domain.ParseScope(d.Scope)
}

func (d Descriptor) allows(method string) bool {
	if len(d.Methods) == 0 {
		return true
	}
	if slices.Contains(d.Methods, method) {
		return true
	}
	return method == http.MethodHead && slices.Contains(d.Methods, http.MethodGet)
}
