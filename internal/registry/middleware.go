package registry

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/oauth"
	"github.com/sidereusnuntius/fedhost/internal/ratelimit"
	"github.com/sidereusnuntius/fedhost/internal/service"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

func notFound(w http.ResponseWriter, r *http.Request) {
	web.WriteStatus(w, http.StatusNotFound, "no route for "+r.URL.Path)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	web.WriteJSON(w, http.StatusMethodNotAllowed, web.ErrorBody{
		Error:       "method_not_allowed",
		Description: r.Method + " is not allowed on " + r.URL.Path,
	})
}

// compose wraps the handler of d, from the outside in: rate limit, authentication, scope and role checks.
func (reg *Registry) compose(d Descriptor) http.Handler {
	h := reg.catalog[d.Handler]
	h = reg.authorize(d, h)
	h = reg.authenticate(d.Auth, h)
	if d.RateLimit != nil && reg.limits != nil {
		p := d.RateLimit.Policy()
		h = ratelimit.Middleware(reg.limits.For(p), d.Path, p)(h)
	}
	return h
}

func unauthenticated(w http.ResponseWriter, err error) {
	if errors.Is(err, oauth.ErrInvalidToken) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="fedhost", error="invalid_token"`)
	}
	web.WriteError(w, err)
}

// authenticate resolves the request's principal according to mode and stores it in the request context.
func (reg *Registry) authenticate(mode AuthMode, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			p   domain.Principal
			err error
		)
		switch mode {
		case AuthNone:
			next.ServeHTTP(w, r)
			return
		case AuthSession:
			a, ok := web.GetAccount(r.Context())
			if !ok {
				web.WriteStatus(w, http.StatusUnauthorized, "login required")
				return
			}
			p = domain.Principal{UserID: a.UserID, Username: a.Username, Role: a.Role}
		case AuthJWT, AuthOAuth:
			token, ok := web.BearerToken(r)
			if !ok {
				unauthenticated(w, fmt.Errorf("%w: bearer token required", service.ErrUnauthenticated))
				return
			}
			if mode == AuthJWT {
				p, err = reg.tokens.ParseJWT(token)
			} else {
				p, err = reg.tokens.Validate(r.Context(), token)
			}
			if errors.Is(err, oauth.ErrJWTDisabled) {
				err = fmt.Errorf("%w: %s", oauth.ErrInvalidToken, err)
			}
			if err != nil {
				unauthenticated(w, err)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(web.WithPrincipal(r.Context(), p)))
	})
}

// authorize checks the scope of OAuth tokens and the role of the principal.
func (reg *Registry) authorize(d Descriptor, next http.Handler) http.Handler {
	if d.Auth == AuthNone {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := web.GetPrincipal(r.Context())

		if p.ClientID != "" {
			if required := d.requiredScope(r.Method); !required.SubsetOf(p.Scope) {
				w.Header().Set("WWW-Authenticate",
					fmt.Sprintf(`Bearer realm="fedhost", error="insufficient_scope", scope="%s"`, required))
				web.WriteJSON(w, http.StatusForbidden, web.ErrorBody{
					Error:       oauth.CodeInsufficientScope,
					Description: "this route requires the scope " + required.String(),
				})
				return
			}
		}

		if d.Role != "" && p.Role != d.Role && p.Role != domain.RoleAdmin {
			web.WriteError(w, fmt.Errorf("%w: the %s role is required", service.ErrForbidden, d.Role))
			return
		}
		next.ServeHTTP(w, r)
	})
}
