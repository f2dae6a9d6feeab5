// Package actors serves the federation endpoints of a user site: the actor document, its collections and the
// inboxes.
package actors

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"code.superseriousbusiness.org/activity/streams"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/conversions"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/render"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

const (
	ActivityType = "application/activity+json"
	// MaxActivitySize bounds inbox bodies.
	MaxActivitySize = 1 << 20
	ProfilePosts    = 20
)

// Verifier checks the HTTP signature of an inbound request and returns the id of the key that signed it.
type Verifier interface {
	Verify(ctx context.Context, r *http.Request) (*url.URL, error)
}

type Posts interface {
	ListPosts(ctx context.Context, userID int64, limit int) ([]domain.Post, error)
}

type Handler struct {
	cfg      *config.Configuration
	verifier Verifier
	posts    Posts
}

func New(cfg *config.Configuration, verifier Verifier, posts Posts) *Handler {
	return &Handler{cfg: cfg, verifier: verifier, posts: posts}
}

// Mount adds the endpoints of owner to the router of their site.
func (h *Handler) Mount(r chi.Router, owner domain.User) {
	r.Route("/user/{username}", func(r chi.Router) {
		r.Use(h.only(owner))
		r.Get("/", h.actor(owner))
		for _, c := range []string{"inbox", "outbox", "followers", "following"} {
			r.Get("/"+c, h.collection(owner, c))
		}
		r.Post("/inbox", h.inbox(owner.Username))
	})
	r.Post("/inbox", h.inbox(""))
	r.Get("/@{username}", h.profile(owner))
}

// only answers 404 for users other than the owner of the site.
func (h *Handler) only(owner domain.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.EqualFold(chi.URLParam(r, "username"), owner.Username) {
				web.WriteStatus(w, http.StatusNotFound, "no such actor")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) links(u domain.User) conversions.ActorLinks {
	return conversions.LinksFor(u.FederationID, h.cfg.ProfileURL(u.Subdomain, u.Username))
}

func writeActivity(w http.ResponseWriter, v map[string]any) {
	w.Header().Set("Content-Type", ActivityType)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode activity document")
	}
}

func (h *Handler) actor(u domain.User) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := conversions.SerializeActor(u, h.links(u))
		if err != nil {
			web.WriteError(w, fmt.Errorf("serializing actor %s: %w", u.Username, err))
			return
		}
		writeActivity(w, doc)
	}
}

// collection answers with an empty ordered collection. Collections are not backed by any data yet.
func (h *Handler) collection(u domain.User, name string) http.HandlerFunc {
	id := u.FederationID.JoinPath(name)
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := streams.Serialize(conversions.EmptyCollection(id))
		if err != nil {
			web.WriteError(w, fmt.Errorf("serializing %s: %w", id, err))
			return
		}
		writeActivity(w, doc)
	}
}

// checkDigest compares the Digest header, when present, with the body.
func checkDigest(r *http.Request, body []byte) bool {
	header := r.Header.Get("Digest")
	if header == "" {
		return true
	}
	sum := sha256.Sum256(body)
	want := base64.StdEncoding.EncodeToString(sum[:])
	for _, d := range strings.Split(header, ",") {
		alg, value, ok := strings.Cut(strings.TrimSpace(d), "=")
		if ok && strings.EqualFold(alg, "SHA-256") {
			return value == want
		}
	}
	return false
}

// inbox accepts signed activities. They are verified and acknowledged but not processed.
func (h *Handler) inbox(recipient string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.cfg.FederationEnabled {
			web.WriteStatus(w, http.StatusNotFound, "federation is disabled")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, MaxActivitySize+1))
		if err != nil {
			web.WriteStatus(w, http.StatusBadRequest, "unreadable body")
			return
		}
		if len(body) > MaxActivitySize {
			web.WriteStatus(w, http.StatusRequestEntityTooLarge, "activity too large")
			return
		}
		if !checkDigest(r, body) {
			web.WriteStatus(w, http.StatusUnauthorized, "digest does not match the body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		keyID, err := h.verifier.Verify(r.Context(), r)
		if err != nil {
			log.Debug().Err(err).Str("recipient", recipient).Msg("rejected unsigned or forged activity")
			web.WriteStatus(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		var activity struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		}
		if err = json.Unmarshal(body, &activity); err != nil {
			web.WriteStatus(w, http.StatusBadRequest, "malformed activity")
			return
		}
		log.Info().Str("recipient", recipient).Str("key", keyID.String()).Str("type", activity.Type).
			Str("id", activity.ID).Msg("activity received")
		w.WriteHeader(http.StatusAccepted)
	}
}

func (h *Handler) profile(u domain.User) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(chi.URLParam(r, "username"), u.Username) {
			web.WriteStatus(w, http.StatusNotFound, "no such profile")
			return
		}
		if strings.Contains(r.Header.Get("Accept"), ActivityType) {
			http.Redirect(w, r, u.FederationID.String(), http.StatusSeeOther)
			return
		}

		posts, err := h.posts.ListPosts(r.Context(), u.ID, ProfilePosts)
		if err != nil {
			log.Warn().Err(err).Str("user", u.Username).Msg("failed to list posts for profile")
		}
		name := u.DisplayName
		if name == "" {
			name = u.Username
		}
		render.HTML(w, r, http.StatusOK, render.ProfilePage(render.Profile{
			Name:     name,
			Username: u.Username,
			Host:     h.cfg.BaseDomain,
			Summary:  u.Summary,
			Website:  u.Settings.Website,
			Posts:    posts,
		}))
	}
}
