package authserver

import (
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/oauth"
	"github.com/sidereusnuntius/fedhost/internal/render"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

func authorizeRequest(q url.Values) oauth.AuthorizeRequest {
	return oauth.AuthorizeRequest{
		ResponseType: q.Get("response_type"),
		ClientID:     q.Get("client_id"),
		RedirectURI:  q.Get("redirect_uri"),
		Scope:        q.Get("scope"),
		State:        q.Get("state"),
		Nonce:        q.Get("nonce"),
	}
}

func authorizeQuery(req oauth.AuthorizeRequest) url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("response_type", req.ResponseType)
	set("client_id", req.ClientID)
	set("redirect_uri", req.RedirectURI)
	set("scope", req.Scope)
	set("state", req.State)
	set("nonce", req.Nonce)
	return q
}

// redirectTo sends the user agent back to the client with params added to its redirect uri.
func redirectTo(w http.ResponseWriter, r *http.Request, redirectURI string, params url.Values) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		web.WriteStatus(w, http.StatusBadRequest, "malformed redirect_uri")
		return
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, req oauth.AuthorizeRequest, err error) {
	e, ok := oauth.AsError(err)
	if !ok {
		log.Error().Err(err).Str("client", req.ClientID).Msg("authorization request failed")
		render.HTML(w, r, http.StatusInternalServerError, render.MessagePage(render.Message{
			Title: "Something went wrong",
			Text:  "The authorization request could not be processed.",
			State: req.State,
		}))
		return
	}
	if !oauth.Redirectable(err) {
		render.HTML(w, r, e.Status, render.MessagePage(render.Message{Title: "Invalid request", Text: e.Description, State: req.State}))
		return
	}

	params := url.Values{"error": {e.Code}}
	if e.Description != "" {
		params.Set("error_description", e.Description)
	}
	if req.State != "" {
		params.Set("state", req.State)
	}
	redirectTo(w, r, req.RedirectURI, params)
}

// Authorize validates the request, then sends the user to log in or to approve the client when needed, and finally
// back to the client with a code.
func (s *Server) Authorize(w http.ResponseWriter, r *http.Request) {
	req := authorizeRequest(r.URL.Query())
	s.authorize(w, r, req)
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, req oauth.AuthorizeRequest) {
	ctx := r.Context()

	a, err := s.tokens.Authorize(ctx, req)
	if err != nil {
		s.fail(w, r, req, err)
		return
	}

	account, ok := web.GetAccount(ctx)
	if !ok {
		if err = s.sessions.Load(r).PutObject(w, pendingLogin, req); err != nil {
			s.fail(w, r, req, err)
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	needs, err := s.tokens.NeedsConsent(ctx, account.UserID, a)
	if err != nil {
		s.fail(w, r, req, err)
		return
	}
	if needs {
		if err = s.sessions.Load(r).PutObject(w, pendingConsent, req); err != nil {
			s.fail(w, r, req, err)
			return
		}
		http.Redirect(w, r, "/consent", http.StatusFound)
		return
	}

	s.issue(w, r, account, a)
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, account domain.Account, a oauth.Authorization) {
	code, err := s.tokens.IssueCode(r.Context(), account.UserID, a)
	if err != nil {
		s.fail(w, r, a.Request, err)
		return
	}

	params := url.Values{"code": {code}}
	if a.Request.State != "" {
		params.Set("state", a.Request.State)
	}
	redirectTo(w, r, a.Request.RedirectURI, params)
}

// pending returns the stashed request under key and removes it, so it is resumed at most once.
func (s *Server) pending(w http.ResponseWriter, r *http.Request, key string) (oauth.AuthorizeRequest, bool) {
	session := s.sessions.Load(r)
	var req oauth.AuthorizeRequest
	if err := session.GetObject(key, &req); err != nil {
		log.Warn().Err(err).Msg("failed to read pending authorization")
		return req, false
	}
	if req.ClientID == "" {
		return req, false
	}
	if err := session.Remove(w, key); err != nil {
		log.Warn().Err(err).Msg("failed to clear pending authorization")
	}
	return req, true
}

func (s *Server) LoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := web.GetAccount(r.Context()); ok {
		if req, ok := s.pending(w, r, pendingLogin); ok {
			s.authorize(w, r, req)
			return
		}
		render.HTML(w, r, http.StatusOK, render.MessagePage(render.Message{Title: "Signed in", Text: "You are already signed in."}))
		return
	}
	render.HTML(w, r, http.StatusOK, render.LoginPage(render.Login{}))
}

// Login verifies the credentials and resumes the authorization request that sent the user here, if any.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		render.HTML(w, r, http.StatusBadRequest, render.LoginPage(render.Login{Error: "Malformed form."}))
		return
	}
	user := r.PostForm.Get("user")

	account, ok, err := s.accounts.AuthenticateUser(r.Context(), user, r.PostForm.Get("password"))
	if err != nil {
		code := web.GetCode(err)
		if code == http.StatusInternalServerError {
			log.Error().Err(err).Msg("login failed")
		}
		render.HTML(w, r, code, render.LoginPage(render.Login{User: user, Error: "Invalid username or password."}))
		return
	}
	if !ok {
		render.HTML(w, r, http.StatusUnauthorized, render.LoginPage(render.Login{User: user, Error: "Invalid username or password."}))
		return
	}

	// taken before the token is renewed, while the session is still under its old token
	req, resume := s.pending(w, r, pendingLogin)

	if err = web.Login(s.sessions, w, r, account); err != nil {
		log.Error().Err(err).Msg("failed to start session")
		render.HTML(w, r, http.StatusInternalServerError, render.LoginPage(render.Login{User: user, Error: "Please try again."}))
		return
	}
	log.Info().Str("user", account.Username).Msg("user logged in")

	if resume {
		http.Redirect(w, r, "/authorize?"+authorizeQuery(req).Encode(), http.StatusFound)
		return
	}
	render.HTML(w, r, http.StatusOK, render.MessagePage(render.Message{Title: "Signed in", Text: "Welcome back, " + account.Username + "."}))
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if err := web.Logout(s.sessions, w, r); err != nil {
		log.Warn().Err(err).Msg("failed to destroy session")
	}
	render.HTML(w, r, http.StatusOK, render.MessagePage(render.Message{Title: "Signed out", Text: "You have been signed out."}))
}

func (s *Server) ConsentPage(w http.ResponseWriter, r *http.Request) {
	account, _ := web.GetAccount(r.Context())

	var req oauth.AuthorizeRequest
	if err := s.sessions.Load(r).GetObject(pendingConsent, &req); err != nil || req.ClientID == "" {
		render.HTML(w, r, http.StatusBadRequest, render.MessagePage(render.Message{Title: "Nothing to approve", Text: "There is no pending authorization request."}))
		return
	}

	a, err := s.tokens.Authorize(r.Context(), req)
	if err != nil {
		s.fail(w, r, req, err)
		return
	}

	render.HTML(w, r, http.StatusOK, render.ConsentPage(render.Consent{
		ClientName: a.Client.Name,
		Username:   account.Username,
		Scope:      oauth.DescribeScope(a.Scope),
	}))
}

// Consent records the user's decision on the pending request and answers the client.
func (s *Server) Consent(w http.ResponseWriter, r *http.Request) {
	account, _ := web.GetAccount(r.Context())

	req, ok := s.pending(w, r, pendingConsent)
	if !ok {
		render.HTML(w, r, http.StatusBadRequest, render.MessagePage(render.Message{Title: "Nothing to approve", Text: "There is no pending authorization request."}))
		return
	}

	a, err := s.tokens.Authorize(r.Context(), req)
	if err != nil {
		s.fail(w, r, req, err)
		return
	}

	if r.PostFormValue("decision") != "allow" {
		params := url.Values{"error": {oauth.CodeAccessDenied}}
		if req.State != "" {
			params.Set("state", req.State)
		}
		redirectTo(w, r, req.RedirectURI, params)
		return
	}

	if err = s.tokens.GrantConsent(r.Context(), account.UserID, a); err != nil {
		s.fail(w, r, req, err)
		return
	}
	s.issue(w, r, account, a)
}
