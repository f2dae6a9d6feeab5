package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/events"
	"github.com/sidereusnuntius/fedhost/internal/federation"
	"github.com/sidereusnuntius/fedhost/internal/service"
	"github.com/sidereusnuntius/fedhost/internal/utils"
)

const (
	MaxPostLength = 5000

	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

func (s *AppService) CreatePost(ctx context.Context, p domain.Post) (domain.Post, bool, error) {
	p.Content = strings.TrimSpace(p.Content)
	switch n := utf8.RuneCountInString(p.Content); {
	case n == 0:
		return p, false, fmt.Errorf("%w: empty post", service.ErrInvalidInput)
	case n > MaxPostLength:
		return p, false, fmt.Errorf("%w: post longer than %d characters", service.ErrInvalidInput, MaxPostLength)
	}
	if p.Visibility == "" {
		p.Visibility = VisibilityPublic
	}
	if p.Visibility != VisibilityPublic && p.Visibility != VisibilityPrivate {
		return p, false, fmt.Errorf("%w: unknown visibility %q", service.ErrInvalidInput, p.Visibility)
	}

	u, err := s.activeUser(ctx, p.UserID)
	if err != nil {
		return p, false, err
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.FederationID = u.FederationID.JoinPath("posts", p.ID)
	p.Created = s.now()

	created, err := s.DB.InsertPost(ctx, p)
	if err != nil {
		return p, false, err
	}
	if !created {
		existing, err := s.DB.GetPost(ctx, p.ID)
		if err != nil {
			return p, false, err
		}
		if existing.UserID != p.UserID {
			return p, false, fmt.Errorf("%w: post %s belongs to another user", service.ErrConflict, p.ID)
		}
		return existing, false, nil
	}

	if p.Visibility == VisibilityPublic {
		s.deliverToFollowers(ctx, u, p)
	}
	return p, true, nil
}

func (s *AppService) deliverToFollowers(ctx context.Context, u domain.User, p domain.Post) {
	followers, err := s.DB.ListFollowers(ctx, u.ID)
	if err != nil {
		log.Error().Err(err).Int64("user", u.ID).Msg("failed to list followers")
		return
	}
	if len(followers) == 0 {
		return
	}

	object, err := federation.NoteObject(p, u.FederationID)
	if err != nil {
		log.Error().Err(err).Str("post", p.ID).Msg("failed to serialize post")
		return
	}

	inboxes := map[string]bool{}
	for _, f := range followers {
		if inboxes[f.Inbox.String()] {
			continue
		}
		inboxes[f.Inbox.String()] = true
		s.enqueue(ctx, domain.FederationQueueItem{
			Actor:    u.FederationID,
			Action:   domain.ActionCreate,
			Object:   object,
			Target:   f.Inbox,
			Priority: federation.PriorityNormal,
		})
	}
}

func (s *AppService) ListPosts(ctx context.Context, userID int64, limit int) ([]domain.Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.DB.ListPosts(ctx, userID, limit)
}

func (s *AppService) Follow(ctx context.Context, userID int64, target *url.URL) error {
	return s.act(ctx, userID, domain.ActionFollow, target, federation.PriorityHigh)
}

func (s *AppService) Like(ctx context.Context, userID int64, object *url.URL) error {
	return s.act(ctx, userID, domain.ActionLike, object, federation.PriorityLow)
}

func (s *AppService) Repost(ctx context.Context, userID int64, object *url.URL) error {
	return s.act(ctx, userID, domain.ActionAnnounce, object, federation.PriorityLow)
}

// act records an outgoing follow, like or announce. Repeating it is a no-op. Local targets are notified directly;
// remote ones get a federation delivery to their inbox.
func (s *AppService) act(ctx context.Context, userID int64, action domain.Action, object *url.URL, priority int) error {
	if object == nil || !object.IsAbs() || (object.Scheme != "http" && object.Scheme != "https") {
		return fmt.Errorf("%w: %s needs an absolute http(s) IRI", service.ErrInvalidInput, action)
	}

	u, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	if object.String() == u.FederationID.String() {
		return fmt.Errorf("%w: cannot %s yourself", service.ErrInvalidInput, action)
	}

	a := domain.Activity{
		ID:      activityID(u.FederationID, action, object),
		UserID:  u.ID,
		Action:  action,
		Object:  object,
		Created: s.now(),
	}
	created, err := s.DB.RecordActivity(ctx, a)
	if err != nil || !created {
		return err
	}

	owner, local, err := s.localOwner(ctx, object)
	if err != nil {
		return err
	}
	if local {
		return s.actLocally(ctx, u, owner, a)
	}

	payload, err := federation.IRIObject(a.ID, object)
	if err != nil {
		return err
	}
	err = s.Resolver.EnqueueFor(ctx, object, domain.FederationQueueItem{
		Actor:    u.FederationID,
		Action:   action,
		Object:   payload,
		Priority: priority,
	})
	if err != nil {
		log.Warn().Err(err).Str("action", string(action)).Str("object", object.String()).Msg("activity not federated")
	}
	return nil
}

func (s *AppService) actLocally(ctx context.Context, actor, owner domain.User, a domain.Activity) error {
	if a.Action == domain.ActionFollow {
		_, err := s.DB.AddFollower(ctx, domain.Follower{
			UserID:  owner.ID,
			Actor:   actor.FederationID,
			Inbox:   actor.FederationID.JoinPath("inbox"),
			Created: a.Created,
		})
		if err != nil {
			return err
		}
	}

	return s.Notify(ctx, owner.ID, string(a.Action), map[string]string{
		"actor":  actor.FederationID.String(),
		"object": a.Object.String(),
	})
}

// localOwner finds the local user an IRI refers to: the actor itself, or the author of one of their posts.
func (s *AppService) localOwner(ctx context.Context, iri *url.URL) (domain.User, bool, error) {
	host := strings.ToLower(iri.Hostname())
	if host != s.Config.BaseDomain && !strings.HasSuffix(host, "."+s.Config.BaseDomain) {
		return domain.User{}, false, nil
	}

	u, err := s.DB.GetUserByFederationID(ctx, iri)
	if err == nil {
		return u, true, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return u, false, err
	}

	p, err := s.DB.GetPost(ctx, path.Base(iri.Path))
	if errors.Is(err, db.ErrNotFound) || (err == nil && p.FederationID.String() != iri.String()) {
		return domain.User{}, false, fmt.Errorf("%w: %s", service.ErrNotFound, iri)
	} else if err != nil {
		return domain.User{}, false, err
	}

	u, err = s.DB.GetUserByID(ctx, p.UserID)
	return u, err == nil, s.mapNotFound(err)
}

func (s *AppService) Notify(ctx context.Context, userID int64, kind string, payload any) error {
	u, err := s.DB.GetUserByID(ctx, userID)
	if err != nil {
		return s.mapNotFound(err)
	}

	site := u.Subdomain
	if site == "" {
		site = strings.ToLower(u.Username)
	}
	s.Events.Publish(events.Event{
		Type: events.Notification,
		Site: site,
		Payload: map[string]any{
			"kind": kind,
			"user": u.Username,
			"data": payload,
		},
	})
	return nil
}

func (s *AppService) activeUser(ctx context.Context, id int64) (domain.User, error) {
	u, err := s.DB.GetUserByID(ctx, id)
	if err != nil {
		return u, s.mapNotFound(err)
	}
	if !u.Active {
		return u, fmt.Errorf("%w: account is deactivated", service.ErrForbidden)
	}
	return u, nil
}

func (s *AppService) enqueue(ctx context.Context, item domain.FederationQueueItem) {
	if _, err := s.Queue.Enqueue(ctx, item); err != nil {
		log.Warn().Err(err).Str("target", item.Target.String()).Str("action", string(item.Action)).
			Msg("delivery not queued")
	}
}

// activityID is stable for a given (actor, action, object), which is what makes the hooks idempotent.
func activityID(actor *url.URL, action domain.Action, object *url.URL) *url.URL {
	return actor.JoinPath("activities", string(action), utils.HashToken(object.String())[:32])
}
