package domain

import (
	"net/url"
	"time"
)

type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionFollow   Action = "follow"
	ActionUnfollow Action = "unfollow"
	ActionLike     Action = "like"
	ActionAnnounce Action = "announce"
	ActionAccept   Action = "accept"
)

type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueCompleted QueueStatus = "completed"
	QueueFailed    QueueStatus = "failed"
)

// FederationQueueItem is one outbound delivery. Object holds the JSON payload of the activity's object.
type FederationQueueItem struct {
	ID          int64
	Actor       *url.URL
	Action      Action
	Object      []byte
	Target      *url.URL
	Priority    int
	Attempts    int
	LastAttempt time.Time
	LastError   string
	Status      QueueStatus
	Created     time.Time
}

// RemoteActor is the cached part of a remote actor document needed for delivery and signature checks.
type RemoteActor struct {
	IRI         *url.URL
	Inbox       *url.URL
	SharedInbox *url.URL
	PublicKey   string
	Fetched     time.Time
}

type Follower struct {
	UserID  int64
	Actor   *url.URL
	Inbox   *url.URL
	Created time.Time
}

type Post struct {
	ID           string
	UserID       int64
	Content      string
	Visibility   string
	FederationID *url.URL
	Created      time.Time
}

// Activity records an outgoing follow, like or announce. Its id is derived from (actor, action, object), so
// repeating the same action is recognised.
type Activity struct {
	ID      *url.URL
	UserID  int64
	Action  Action
	Object  *url.URL
	Created time.Time
}
