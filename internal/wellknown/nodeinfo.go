package wellknown

import (
	"context"
	"encoding/xml"
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	NodeInfoSchema = "http://nodeinfo.diaspora.software/ns/schema/2.0"
	NodeInfoType   = `application/json; profile="http://nodeinfo.diaspora.software/ns/schema/2.0#"`
	Software       = "fedhost"
	Version        = "0.1.0"
)

type Stats interface {
	CountUsers(ctx context.Context) (int64, error)
	CountPosts(ctx context.Context) (int64, error)
}

type NodeInfo struct {
	Version           string         `json:"version"`
	Software          NodeSoftware   `json:"software"`
	Protocols         []string       `json:"protocols"`
	Services          NodeServices   `json:"services"`
	OpenRegistrations bool           `json:"openRegistrations"`
	Usage             NodeUsage      `json:"usage"`
	Metadata          map[string]any `json:"metadata"`
}

type NodeSoftware struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type NodeServices struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

type NodeUsage struct {
	Users      NodeUsers `json:"users"`
	LocalPosts int64     `json:"localPosts"`
}

type NodeUsers struct {
	Total int64 `json:"total"`
}

func (h *Handler) root() string {
	return h.cfg.Scheme() + "://" + h.cfg.BaseDomain
}

func (h *Handler) NodeInfoLinks(w http.ResponseWriter, r *http.Request) {
	writeAs(w, "application/json", map[string]any{
		"links": []WebfingerLink{{Rel: NodeInfoSchema, Href: h.root() + "/nodeinfo/2.0"}},
	})
}

// NodeInfo counts are best effort: a failing count is reported as zero.
func (h *Handler) NodeInfo(w http.ResponseWriter, r *http.Request) {
	users, err := h.stats.CountUsers(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("failed to count users")
	}
	posts, err := h.stats.CountPosts(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("failed to count posts")
	}

	protocols := []string{}
	if h.cfg.FederationEnabled {
		protocols = append(protocols, "activitypub")
	}
	writeAs(w, NodeInfoType, NodeInfo{
		Version:           "2.0",
		Software:          NodeSoftware{Name: Software, Version: Version},
		Protocols:         protocols,
		Services:          NodeServices{Inbound: []string{}, Outbound: []string{}},
		OpenRegistrations: true,
		Usage:             NodeUsage{Users: NodeUsers{Total: users}, LocalPosts: posts},
		Metadata:          map[string]any{"baseDomain": h.cfg.BaseDomain},
	})
}

type xrdLink struct {
	Rel      string `xml:"rel,attr"`
	Type     string `xml:"type,attr,omitempty"`
	Template string `xml:"template,attr"`
}

type xrd struct {
	XMLName xml.Name  `xml:"http://docs.oasis-open.org/ns/xri/xrd-1.0 XRD"`
	Links   []xrdLink `xml:"Link"`
}

// HostMeta points clients that do not know webfinger's location to it.
func (h *Handler) HostMeta(w http.ResponseWriter, r *http.Request) {
	doc := xrd{Links: []xrdLink{{
		Rel:      "lrdd",
		Type:     "application/xrd+xml",
		Template: h.root() + "/.well-known/webfinger?resource={uri}",
	}}}
	w.Header().Set("Content-Type", "application/xrd+xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(doc); err != nil {
		log.Error().Err(err).Msg("unable to marshal host-meta")
	}
}
