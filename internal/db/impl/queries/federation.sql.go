package queries

import "context"

const enqueueItem = `INSERT INTO federation_queue (
	actor, action, object, target, priority, attempts, status, created_at
) VALUES (?, ?, ?, ?, ?, 0, 'pending', ?)`

type EnqueueItemParams struct {
	Actor     string
	Action    string
	Object    string
	Target    string
	Priority  int64
	CreatedAt int64
}

func (q *Queries) EnqueueItem(ctx context.Context, arg EnqueueItemParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, enqueueItem,
		arg.Actor,
		arg.Action,
		arg.Object,
		arg.Target,
		arg.Priority,
		arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const queueColumns = `id, actor, action, object, target, priority, attempts, last_attempt, last_error, status, created_at`

func scanQueueItem(row interface{ Scan(...any) error }) (FederationQueue, error) {
	var i FederationQueue
	err := row.Scan(
		&i.ID,
		&i.Actor,
		&i.Action,
		&i.Object,
		&i.Target,
		&i.Priority,
		&i.Attempts,
		&i.LastAttempt,
		&i.LastError,
		&i.Status,
		&i.CreatedAt,
	)
	return i, err
}

func (q *Queries) listQueue(ctx context.Context, query string, args ...any) ([]FederationQueue, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FederationQueue
	for rows.Next() {
		i, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const pendingBatch = `SELECT ` + queueColumns + ` FROM federation_queue
WHERE status = 'pending' AND attempts < ?
ORDER BY priority ASC, created_at ASC, id ASC
LIMIT ?`

func (q *Queries) PendingBatch(ctx context.Context, maxAttempts, limit int64) ([]FederationQueue, error) {
	return q.listQueue(ctx, pendingBatch, maxAttempts, limit)
}

const incrementAttempts = `UPDATE federation_queue SET attempts = attempts + 1, last_attempt = ?
WHERE id = ? AND status = 'pending' RETURNING attempts`

func (q *Queries) IncrementAttempts(ctx context.Context, lastAttempt, id int64) (int64, error) {
	var attempts int64
	err := q.db.QueryRowContext(ctx, incrementAttempts, lastAttempt, id).Scan(&attempts)
	return attempts, err
}

const markCompleted = `UPDATE federation_queue SET status = 'completed', last_error = '' WHERE id = ? AND status = 'pending'`

func (q *Queries) MarkCompleted(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markCompleted, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const recordFailure = `UPDATE federation_queue
SET last_error = ?1, status = CASE WHEN ?2 THEN 'failed' ELSE status END
WHERE id = ?3 AND status = 'pending'`

func (q *Queries) RecordFailure(ctx context.Context, lastError string, terminal bool, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, recordFailure, lastError, terminal, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getQueueItem = `SELECT ` + queueColumns + ` FROM federation_queue WHERE id = ?`

func (q *Queries) GetQueueItem(ctx context.Context, id int64) (FederationQueue, error) {
	return scanQueueItem(q.db.QueryRowContext(ctx, getQueueItem, id))
}

const listQueue = `SELECT ` + queueColumns + ` FROM federation_queue ORDER BY id DESC LIMIT ?`

func (q *Queries) ListQueue(ctx context.Context, limit int64) ([]FederationQueue, error) {
	return q.listQueue(ctx, listQueue, limit)
}

const listQueueByStatus = `SELECT ` + queueColumns + ` FROM federation_queue WHERE status = ? ORDER BY id DESC LIMIT ?`

func (q *Queries) ListQueueByStatus(ctx context.Context, status string, limit int64) ([]FederationQueue, error) {
	return q.listQueue(ctx, listQueueByStatus, status, limit)
}

const getRemoteActor = `SELECT iri, inbox, shared_inbox, public_key, fetched_at FROM remote_actors WHERE iri = ?`

func (q *Queries) GetRemoteActor(ctx context.Context, iri string) (RemoteActor, error) {
	row := q.db.QueryRowContext(ctx, getRemoteActor, iri)
	var i RemoteActor
	err := row.Scan(&i.Iri, &i.Inbox, &i.SharedInbox, &i.PublicKey, &i.FetchedAt)
	return i, err
}

const upsertRemoteActor = `INSERT INTO remote_actors (iri, inbox, shared_inbox, public_key, fetched_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (iri) DO UPDATE SET
	inbox = excluded.inbox,
	shared_inbox = excluded.shared_inbox,
	public_key = excluded.public_key,
	fetched_at = excluded.fetched_at`

func (q *Queries) UpsertRemoteActor(ctx context.Context, arg RemoteActor) error {
	_, err := q.db.ExecContext(ctx, upsertRemoteActor, arg.Iri, arg.Inbox, arg.SharedInbox, arg.PublicKey, arg.FetchedAt)
	return err
}

const insertPost = `INSERT INTO posts (id, user_id, content, visibility, federation_id, created_at)
VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`

func (q *Queries) InsertPost(ctx context.Context, arg Post) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertPost,
		arg.ID,
		arg.UserID,
		arg.Content,
		arg.Visibility,
		arg.FederationID,
		arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const postColumns = `id, user_id, content, visibility, federation_id, created_at`

func scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var i Post
	err := row.Scan(&i.ID, &i.UserID, &i.Content, &i.Visibility, &i.FederationID, &i.CreatedAt)
	return i, err
}

const getPost = `SELECT ` + postColumns + ` FROM posts WHERE id = ?`

func (q *Queries) GetPost(ctx context.Context, id string) (Post, error) {
	return scanPost(q.db.QueryRowContext(ctx, getPost, id))
}

const listPosts = `SELECT ` + postColumns + ` FROM posts WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`

func (q *Queries) ListPosts(ctx context.Context, userID, limit int64) ([]Post, error) {
	rows, err := q.db.QueryContext(ctx, listPosts, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Post
	for rows.Next() {
		i, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countPosts = `SELECT COUNT(*) FROM posts`

func (q *Queries) CountPosts(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countPosts).Scan(&n)
	return n, err
}

const insertFollower = `INSERT INTO followers (user_id, actor, inbox, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, actor) DO NOTHING`

func (q *Queries) InsertFollower(ctx context.Context, arg Follower) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertFollower, arg.UserID, arg.Actor, arg.Inbox, arg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listFollowers = `SELECT user_id, actor, inbox, created_at FROM followers WHERE user_id = ? ORDER BY created_at`

func (q *Queries) ListFollowers(ctx context.Context, userID int64) ([]Follower, error) {
	rows, err := q.db.QueryContext(ctx, listFollowers, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Follower
	for rows.Next() {
		var i Follower
		if err := rows.Scan(&i.UserID, &i.Actor, &i.Inbox, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertActivity = `INSERT INTO activities (id, user_id, action, object, created_at)
VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`

func (q *Queries) InsertActivity(ctx context.Context, arg Activity) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertActivity,
		arg.ID,
		arg.UserID,
		arg.Action,
		arg.Object,
		arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
