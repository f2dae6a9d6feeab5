package authserver

import (
	"errors"
	"net/http"

	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/oauth"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

var errMissingCredentials = &oauth.Error{
	Code:        oauth.CodeInvalidClient,
	Description: "client authentication failed",
	Status:      http.StatusUnauthorized,
}

// clientCredentials reads client_secret_basic, falling back to client_secret_post.
func clientCredentials(r *http.Request) (id, secret string, basic bool) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret, true
	}
	return r.PostForm.Get("client_id"), r.PostForm.Get("client_secret"), false
}

func writeTokenError(w http.ResponseWriter, err error, basic bool) {
	if e, ok := oauth.AsError(err); ok && e.Code == oauth.CodeInvalidClient && basic {
		w.Header().Set("WWW-Authenticate", `Basic realm="fedhost"`)
	}
	web.WriteError(w, err)
}

// Token is the token endpoint. Every answer, errors included, is marked not cacheable.
func (s *Server) Token(w http.ResponseWriter, r *http.Request) {
	web.NoStore(w)
	if err := r.ParseForm(); err != nil {
		web.WriteError(w, &oauth.Error{Code: oauth.CodeInvalidRequest, Description: "malformed form body", Status: http.StatusBadRequest})
		return
	}

	id, secret, basic := clientCredentials(r)
	if id == "" {
		writeTokenError(w, errMissingCredentials, basic)
		return
	}

	var (
		res oauth.TokenResponse
		err error
	)
	switch domain.GrantType(r.PostForm.Get("grant_type")) {
	case domain.GrantAuthorizationCode:
		res, err = s.tokens.Exchange(r.Context(), oauth.ExchangeRequest{
			Code:         r.PostForm.Get("code"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
			ClientID:     id,
			ClientSecret: secret,
		})
	case domain.GrantRefreshToken:
		res, err = s.tokens.Refresh(r.Context(), oauth.RefreshRequest{
			RefreshToken: r.PostForm.Get("refresh_token"),
			Scope:        r.PostForm.Get("scope"),
			ClientID:     id,
			ClientSecret: secret,
		})
	case domain.GrantClientCredentials:
		res, err = s.tokens.ClientCredentials(r.Context(), id, secret, r.PostForm.Get("scope"))
	case "":
		err = &oauth.Error{Code: oauth.CodeInvalidRequest, Description: "grant_type is required", Status: http.StatusBadRequest}
	default:
		err = &oauth.Error{Code: oauth.CodeUnsupportedGrantType, Status: http.StatusBadRequest}
	}
	if err != nil {
		writeTokenError(w, err, basic)
		return
	}

	web.WriteJSON(w, http.StatusOK, res)
}

// Revoke implements token revocation. Unknown tokens are not an error.
func (s *Server) Revoke(w http.ResponseWriter, r *http.Request) {
	web.NoStore(w)
	if err := r.ParseForm(); err != nil {
		web.WriteError(w, &oauth.Error{Code: oauth.CodeInvalidRequest, Description: "malformed form body", Status: http.StatusBadRequest})
		return
	}

	id, secret, basic := clientCredentials(r)
	client, err := s.tokens.AuthenticateClient(r.Context(), id, secret)
	if err != nil {
		writeTokenError(w, err, basic)
		return
	}

	token := r.PostForm.Get("token")
	if token == "" {
		web.WriteError(w, &oauth.Error{Code: oauth.CodeInvalidRequest, Description: "token is required", Status: http.StatusBadRequest})
		return
	}
	if err = s.tokens.Revoke(r.Context(), token, client.ID); err != nil {
		web.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) UserInfo(w http.ResponseWriter, r *http.Request) {
	web.NoStore(w)
	token, ok := web.BearerToken(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="fedhost"`)
		web.WriteStatus(w, http.StatusUnauthorized, "bearer token required")
		return
	}

	p, err := s.tokens.Validate(r.Context(), token)
	if err == nil {
		var claims map[string]any
		if claims, err = s.tokens.UserInfo(r.Context(), p); err == nil {
			web.WriteJSON(w, http.StatusOK, claims)
			return
		}
	}

	switch {
	case errors.Is(err, oauth.ErrInvalidToken):
		w.Header().Set("WWW-Authenticate", `Bearer realm="fedhost", error="invalid_token"`)
		web.WriteJSON(w, http.StatusUnauthorized, web.ErrorBody{Error: oauth.CodeInvalidToken})
	case errors.Is(err, oauth.ErrInsufficientScope):
		w.Header().Set("WWW-Authenticate", `Bearer realm="fedhost", error="insufficient_scope", scope="openid profile read"`)
		web.WriteJSON(w, http.StatusForbidden, web.ErrorBody{Error: oauth.CodeInsufficientScope})
	default:
		web.WriteError(w, err)
	}
}
