package apps

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/registry"
	"github.com/sidereusnuntius/fedhost/internal/service"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

// Handler names route descriptors may refer to.
const (
	HandlerPosts      = "posts"
	HandlerProfile    = "profile"
	HandlerFollow     = "follow"
	HandlerLike       = "like"
	HandlerRepost     = "repost"
	HandlerMe         = "me"
	HandlerAdminQueue = "admin_queue"
	HandlerHealth     = "health"
)

// API serves the handlers of the global routes. Each expects the principal the registry resolved for the route.
type API struct {
	cfg      *config.Configuration
	accounts service.AccountService
	social   service.SocialService
	queue    QueueLister
	started  time.Time
}

func NewAPI(cfg *config.Configuration, accounts service.AccountService, social service.SocialService, queue QueueLister) *API {
	return &API{cfg: cfg, accounts: accounts, social: social, queue: queue, started: time.Now()}
}

// Catalog lists the handlers by name.
func (a *API) Catalog() registry.Catalog {
	return registry.Catalog{
		HandlerPosts:      http.HandlerFunc(a.Posts),
		HandlerProfile:    http.HandlerFunc(a.Profile),
		HandlerFollow:     a.interaction(a.social.Follow),
		HandlerLike:       a.interaction(a.social.Like),
		HandlerRepost:     a.interaction(a.social.Repost),
		HandlerMe:         http.HandlerFunc(a.Me),
		HandlerAdminQueue: http.HandlerFunc(a.AdminQueue),
		HandlerHealth:     http.HandlerFunc(a.Health),
	}
}

// caller answers 401 when the route let an anonymous request through.
func caller(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p := web.GetPrincipal(r.Context())
	if p.UserID == 0 {
		web.WriteStatus(w, http.StatusUnauthorized, "a user is required")
		return p, false
	}
	return p, true
}

type postView struct {
	ID         string    `json:"id"`
	URI        string    `json:"uri"`
	Content    string    `json:"content"`
	Visibility string    `json:"visibility"`
	Created    time.Time `json:"created"`
}

func viewPost(p domain.Post) postView {
	v := postView{ID: p.ID, Content: p.Content, Visibility: p.Visibility, Created: p.Created}
	if p.FederationID != nil {
		v.URI = p.FederationID.String()
	}
	return v
}

// Posts lists the caller's posts on GET and creates one on POST. Creating a post twice with the same id answers
// 200 with the stored post.
func (a *API) Posts(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		posts, err := a.social.ListPosts(r.Context(), p.UserID, limit)
		if err != nil {
			web.WriteError(w, err)
			return
		}
		views := make([]postView, 0, len(posts))
		for _, post := range posts {
			views = append(views, viewPost(post))
		}
		web.WriteJSON(w, http.StatusOK, views)

	case http.MethodPost:
		var req struct {
			ID         string `json:"id"`
			Content    string `json:"content"`
			Visibility string `json:"visibility"`
		}
		if err := web.DecodeJSON(r, &req); err != nil {
			web.WriteError(w, err)
			return
		}
		post, created, err := a.social.CreatePost(r.Context(), domain.Post{
			ID:         req.ID,
			UserID:     p.UserID,
			Content:    req.Content,
			Visibility: req.Visibility,
		})
		if err != nil {
			web.WriteError(w, err)
			return
		}
		code := http.StatusOK
		if created {
			code = http.StatusCreated
		}
		web.WriteJSON(w, code, viewPost(post))

	default:
		web.WriteStatus(w, http.StatusMethodNotAllowed, r.Method+" is not supported")
	}
}

type profileView struct {
	ID           int64           `json:"id"`
	Username     string          `json:"username"`
	DisplayName  string          `json:"displayName"`
	Summary      string          `json:"summary"`
	Subdomain    string          `json:"subdomain,omitempty"`
	Site         string          `json:"site"`
	FederationID string          `json:"federationId"`
	Role         domain.Role     `json:"role"`
	Settings     domain.Settings `json:"settings"`
}

func (a *API) Profile(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	u, err := a.accounts.GetUser(r.Context(), p.UserID)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, profileView{
		ID:           u.ID,
		Username:     u.Username,
		DisplayName:  u.DisplayName,
		Summary:      u.Summary,
		Subdomain:    u.Subdomain,
		Site:         a.cfg.UserSiteURL(u.Subdomain, u.Username).String(),
		FederationID: u.FederationID.String(),
		Role:         u.Role,
		Settings:     u.Settings,
	})
}

// interaction serves the follow, like and repost routes, which all take the IRI of their object.
func (a *API) interaction(act func(ctx context.Context, userID int64, object *url.URL) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := caller(w, r)
		if !ok {
			return
		}
		var req struct {
			Object string `json:"object"`
		}
		if err := web.DecodeJSON(r, &req); err != nil {
			web.WriteError(w, err)
			return
		}
		object, err := url.Parse(req.Object)
		if err != nil || req.Object == "" {
			web.WriteError(w, fmt.Errorf("%w: object must be a url", service.ErrInvalidInput))
			return
		}
		if err = act(r.Context(), p.UserID, object); err != nil {
			web.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
}

// Me describes the principal the route resolved.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	p := web.GetPrincipal(r.Context())
	web.WriteJSON(w, http.StatusOK, map[string]any{
		"userId":   p.UserID,
		"username": p.Username,
		"role":     p.Role,
		"clientId": p.ClientID,
		"scope":    p.Scope.String(),
	})
}

func (a *API) AdminQueue(w http.ResponseWriter, r *http.Request) {
	listQueue(a.queue, w, r)
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	web.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(a.started).Round(time.Second).String(),
	})
}

type queueView struct {
	ID          int64              `json:"id"`
	Actor       string             `json:"actor"`
	Action      domain.Action      `json:"action"`
	Target      string             `json:"target"`
	Priority    int                `json:"priority"`
	Attempts    int                `json:"attempts"`
	LastAttempt *time.Time         `json:"lastAttempt,omitempty"`
	LastError   string             `json:"lastError,omitempty"`
	Status      domain.QueueStatus `json:"status"`
	Created     time.Time          `json:"created"`
}

func viewQueueItem(i domain.FederationQueueItem) queueView {
	v := queueView{
		ID:        i.ID,
		Action:    i.Action,
		Priority:  i.Priority,
		Attempts:  i.Attempts,
		LastError: i.LastError,
		Status:    i.Status,
		Created:   i.Created,
	}
	if i.Actor != nil {
		v.Actor = i.Actor.String()
	}
	if i.Target != nil {
		v.Target = i.Target.String()
	}
	if !i.LastAttempt.IsZero() {
		v.LastAttempt = &i.LastAttempt
	}
	return v
}

// listQueue answers with the most recent queue rows, optionally filtered by ?status=.
func listQueue(q QueueLister, w http.ResponseWriter, r *http.Request) {
	status := domain.QueueStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.QueuePending, domain.QueueCompleted, domain.QueueFailed:
	default:
		web.WriteError(w, fmt.Errorf("%w: unknown status %q", service.ErrInvalidInput, status))
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > MaxQueueListing {
		limit = 50
	}

	items, err := q.ListQueue(r.Context(), status, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list the federation queue")
		web.WriteError(w, err)
		return
	}
	views := make([]queueView, 0, len(items))
	for _, i := range items {
		views = append(views, viewQueueItem(i))
	}
	web.WriteJSON(w, http.StatusOK, views)
}
