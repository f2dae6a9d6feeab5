// Package wellknown serves the discovery documents: webfinger on every user site, host-meta and nodeinfo at the
// root of the instance.
package wellknown

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/service"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

const (
	JRDType      = "application/jrd+json"
	ActivityType = "application/activity+json"
	ProfileRel   = "http://webfinger.net/rel/profile-page"
)

type Accounts interface {
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
}

type WebfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href"`
}

type WebfingerResponse struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases,omitempty"`
	Links   []WebfingerLink `json:"links"`
}

type Handler struct {
	cfg      *config.Configuration
	accounts Accounts
	stats    Stats
}

func New(cfg *config.Configuration, accounts Accounts, stats Stats) *Handler {
	return &Handler{cfg: cfg, accounts: accounts, stats: stats}
}

// MountWebfinger mounts the endpoint every user site answers.
func (h *Handler) MountWebfinger(r chi.Router) {
	r.Get("/.well-known/webfinger", h.Webfinger)
}

// Mount mounts every discovery endpoint of the instance root.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/.well-known/webfinger", h.Webfinger)
	r.Get("/.well-known/host-meta", h.HostMeta)
	r.Get("/.well-known/nodeinfo", h.NodeInfoLinks)
	r.Get("/nodeinfo/2.0", h.NodeInfo)
}

// parseResource splits acct:user@host. A leading @ is tolerated.
func parseResource(resource string) (user, host string, err error) {
	acct, ok := strings.CutPrefix(resource, "acct:")
	if !ok {
		return "", "", fmt.Errorf("%w: resource must be an acct: uri", service.ErrInvalidInput)
	}
	acct = strings.TrimPrefix(acct, "@")
	user, host, ok = strings.Cut(acct, "@")
	if !ok || user == "" || host == "" {
		return "", "", fmt.Errorf("%w: resource must be acct:user@host", service.ErrInvalidInput)
	}
	return user, strings.ToLower(host), nil
}

// hostServes reports whether an account of u can be named with host: the instance domain or the user's own site.
func (h *Handler) hostServes(host string, u domain.User) bool {
	return host == h.cfg.BaseDomain || host == h.cfg.UserSiteURL(u.Subdomain, u.Username).Host
}

func (h *Handler) Webfinger(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	username, host, err := parseResource(resource)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	u, err := h.accounts.GetUserByUsername(r.Context(), username)
	if err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			log.Error().Err(err).Str("resource", resource).Msg("webfinger lookup failed")
		}
		web.WriteError(w, err)
		return
	}
	if !u.Active || !h.hostServes(host, u) {
		web.WriteStatus(w, http.StatusNotFound, "no such account")
		return
	}

	profile := h.cfg.ProfileURL(u.Subdomain, u.Username)
	res := WebfingerResponse{
		Subject: "acct:" + u.Username + "@" + host,
		Aliases: []string{u.FederationID.String(), profile.String()},
		Links: []WebfingerLink{
			{Rel: "self", Type: ActivityType, Href: u.FederationID.String()},
			{Rel: ProfileRel, Type: "text/html", Href: profile.String()},
		},
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeAs(w, JRDType, res)
}

func writeAs(w http.ResponseWriter, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("unable to marshal discovery document")
	}
}
