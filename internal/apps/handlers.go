package apps

import (
	"net/http"

	"github.com/sidereusnuntius/fedhost/internal/service"
	"github.com/sidereusnuntius/fedhost/internal/sites"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

const FeedSize = 20

// SiteHandlers are the built-in handlers a site manifest may name instead of shipping a server.
func SiteHandlers(social service.SocialService) map[string]sites.LocalHandler {
	return map[string]sites.LocalHandler{
		"hello": func(s web.Site) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				web.WriteJSON(w, http.StatusOK, map[string]any{"site": s.Name, "path": r.URL.Path})
			})
		},
		"feed": func(s web.Site) http.Handler {
			return feed(social, s)
		},
	}
}

// feed lists the public posts of the owner of s.
func feed(social service.SocialService, s web.Site) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.HasOwner || r.URL.Path != "/" {
			web.WriteStatus(w, http.StatusNotFound, "")
			return
		}
		posts, err := social.ListPosts(r.Context(), s.Owner.ID, FeedSize)
		if err != nil {
			web.WriteError(w, err)
			return
		}
		views := make([]postView, 0, len(posts))
		for _, p := range posts {
			if p.Visibility == "public" {
				views = append(views, viewPost(p))
			}
		}
		web.WriteJSON(w, http.StatusOK, map[string]any{"owner": s.Owner.Username, "posts": views})
	})
}
