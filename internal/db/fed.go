package db

import (
	"context"
	"net/url"
	"time"

	"github.com/sidereusnuntius/fedhost/internal/domain"
)

type Federation interface {
	Enqueue(ctx context.Context, item domain.FederationQueueItem) (int64, error)
	// PendingBatch returns at most limit pending items with fewer than maxAttempts attempts, ordered by priority
	// and then creation time.
	PendingBatch(ctx context.Context, maxAttempts, limit int) ([]domain.FederationQueueItem, error)
	// MarkAttempt increments the attempt counter and records the attempt time. It returns the new counter.
	MarkAttempt(ctx context.Context, id int64, at time.Time) (int, error)
	MarkCompleted(ctx context.Context, id int64) error
	// RecordFailure stores the last error; terminal moves the item to the failed state.
	RecordFailure(ctx context.Context, id int64, reason string, terminal bool) error
	GetQueueItem(ctx context.Context, id int64) (domain.FederationQueueItem, error)
	// ListQueue lists the most recent items; an empty status lists all of them.
	ListQueue(ctx context.Context, status domain.QueueStatus, limit int) ([]domain.FederationQueueItem, error)

	GetRemoteActor(ctx context.Context, iri *url.URL) (domain.RemoteActor, error)
	UpsertRemoteActor(ctx context.Context, a domain.RemoteActor) error
}

type Social interface {
	// InsertPost is idempotent on the post's id: created is false if it already existed.
	InsertPost(ctx context.Context, p domain.Post) (created bool, err error)
	GetPost(ctx context.Context, id string) (domain.Post, error)
	ListPosts(ctx context.Context, userID int64, limit int) ([]domain.Post, error)
	CountPosts(ctx context.Context) (int64, error)
	// AddFollower is idempotent on (user, actor).
	AddFollower(ctx context.Context, f domain.Follower) (created bool, err error)
	ListFollowers(ctx context.Context, userID int64) ([]domain.Follower, error)
	// RecordActivity is idempotent on the activity's id: created is false if it was already recorded.
	RecordActivity(ctx context.Context, a domain.Activity) (created bool, err error)
}
