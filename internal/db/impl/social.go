package impl

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/db/impl/queries"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

func (d *dbImpl) InsertPost(ctx context.Context, p domain.Post) (bool, error) {
	created := p.Created
	if created.IsZero() {
		created = time.Now()
	}

	visibility := p.Visibility
	if visibility == "" {
		visibility = "public"
	}

	n, err := d.queries.InsertPost(ctx, queries.Post{
		ID:           p.ID,
		UserID:       p.UserID,
		Content:      p.Content,
		Visibility:   visibility,
		FederationID: p.FederationID.String(),
		CreatedAt:    millis(created),
	})
	return n == 1, d.HandleError(err)
}

func (d *dbImpl) GetPost(ctx context.Context, id string) (domain.Post, error) {
	row, err := d.queries.GetPost(ctx, id)
	if err != nil {
		return domain.Post{}, d.HandleError(err)
	}
	return postFromRow(row)
}

func (d *dbImpl) ListPosts(ctx context.Context, userID int64, limit int) ([]domain.Post, error) {
	rows, err := d.queries.ListPosts(ctx, userID, int64(limit))
	if err != nil {
		return nil, d.HandleError(err)
	}

	posts := make([]domain.Post, 0, len(rows))
	for _, row := range rows {
		p, err := postFromRow(row)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

func (d *dbImpl) CountPosts(ctx context.Context) (int64, error) {
	n, err := d.queries.CountPosts(ctx)
	return n, d.HandleError(err)
}

func (d *dbImpl) AddFollower(ctx context.Context, f domain.Follower) (bool, error) {
	created := f.Created
	if created.IsZero() {
		created = time.Now()
	}

	n, err := d.queries.InsertFollower(ctx, queries.Follower{
		UserID:    f.UserID,
		Actor:     f.Actor.String(),
		Inbox:     f.Inbox.String(),
		CreatedAt: millis(created),
	})
	return n == 1, d.HandleError(err)
}

func (d *dbImpl) ListFollowers(ctx context.Context, userID int64) ([]domain.Follower, error) {
	rows, err := d.queries.ListFollowers(ctx, userID)
	if err != nil {
		return nil, d.HandleError(err)
	}

	followers := make([]domain.Follower, 0, len(rows))
	for _, row := range rows {
		actor, err := url.Parse(row.Actor)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed follower %q", db.ErrInternal, row.Actor)
		}
		inbox, err := url.Parse(row.Inbox)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed inbox %q", db.ErrInternal, row.Inbox)
		}
		followers = append(followers, domain.Follower{
			UserID:  row.UserID,
			Actor:   actor,
			Inbox:   inbox,
			Created: fromMillis(row.CreatedAt),
		})
	}
	return followers, nil
}

func postFromRow(row queries.Post) (domain.Post, error) {
	fid, err := url.Parse(row.FederationID)
	if err != nil {
		return domain.Post{}, fmt.Errorf("%w: malformed post id %q", db.ErrInternal, row.FederationID)
	}

	return domain.Post{
		ID:           row.ID,
		UserID:       row.UserID,
		Content:      row.Content,
		Visibility:   row.Visibility,
		FederationID: fid,
		Created:      fromMillis(row.CreatedAt),
	}, nil
}

func (d *dbImpl) RecordActivity(ctx context.Context, a domain.Activity) (bool, error) {
	created := a.Created
	if created.IsZero() {
		created = time.Now()
	}

	n, err := d.queries.InsertActivity(ctx, queries.Activity{
		ID:        a.ID.String(),
		UserID:    a.UserID,
		Action:    string(a.Action),
		Object:    a.Object.String(),
		CreatedAt: millis(created),
	})
	return n == 1, d.HandleError(err)
}
