package authserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/oauth"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

type clientRequest struct {
	Name         string             `json:"client_name"`
	RedirectURIs []string           `json:"redirect_uris"`
	GrantTypes   []domain.GrantType `json:"grant_types"`
	Scope        string             `json:"scope"`
}

// clientView never carries the secret hash. Secret is only set in the response to the creation.
type clientView struct {
	ID           string             `json:"client_id"`
	Secret       string             `json:"client_secret,omitempty"`
	Name         string             `json:"client_name"`
	RedirectURIs []string           `json:"redirect_uris"`
	GrantTypes   []domain.GrantType `json:"grant_types"`
	Scope        string             `json:"scope"`
	Active       bool               `json:"active"`
	Created      int64              `json:"client_id_issued_at"`
}

func viewClient(c domain.OAuthClient) clientView {
	return clientView{
		ID:           c.ID,
		Name:         c.Name,
		RedirectURIs: c.RedirectURIs,
		GrantTypes:   c.GrantTypes,
		Scope:        c.Scope.String(),
		Active:       c.Active,
		Created:      c.Created.Unix(),
	}
}

func (s *Server) ListClients(w http.ResponseWriter, r *http.Request) {
	account, _ := web.GetAccount(r.Context())
	clients, err := s.tokens.ListClients(r.Context(), account.UserID)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	views := make([]clientView, 0, len(clients))
	for _, c := range clients {
		views = append(views, viewClient(c))
	}
	web.WriteJSON(w, http.StatusOK, views)
}

// CreateClient registers a client owned by the logged in user. The secret is shown in this response only.
func (s *Server) CreateClient(w http.ResponseWriter, r *http.Request) {
	account, _ := web.GetAccount(r.Context())

	var req clientRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}

	c, secret, err := s.tokens.RegisterClient(r.Context(), oauth.ClientRequest{
		Name:         req.Name,
		RedirectURIs: req.RedirectURIs,
		GrantTypes:   req.GrantTypes,
		Scope:        domain.ParseScope(req.Scope),
		OwnerID:      account.UserID,
	})
	if err != nil {
		web.WriteError(w, err)
		return
	}

	web.NoStore(w)
	v := viewClient(c)
	v.Secret = secret
	web.WriteJSON(w, http.StatusCreated, v)
}

func (s *Server) DeleteClient(w http.ResponseWriter, r *http.Request) {
	account, _ := web.GetAccount(r.Context())
	if err := s.tokens.DeactivateClient(r.Context(), chi.URLParam(r, "id"), account.UserID); err != nil {
		web.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
