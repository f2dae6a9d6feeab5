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

func (d *dbImpl) Enqueue(ctx context.Context, item domain.FederationQueueItem) (int64, error) {
	created := item.Created
	if created.IsZero() {
		created = time.Now()
	}

	id, err := d.queries.EnqueueItem(ctx, queries.EnqueueItemParams{
		Actor:     item.Actor.String(),
		Action:    string(item.Action),
		Object:    string(item.Object),
		Target:    item.Target.String(),
		Priority:  int64(item.Priority),
		CreatedAt: millis(created),
	})
	return id, d.HandleError(err)
}

func (d *dbImpl) PendingBatch(ctx context.Context, maxAttempts, limit int) ([]domain.FederationQueueItem, error) {
	rows, err := d.queries.PendingBatch(ctx, int64(maxAttempts), int64(limit))
	if err != nil {
		return nil, d.HandleError(err)
	}
	return queueItemsFromRows(rows)
}

func (d *dbImpl) MarkAttempt(ctx context.Context, id int64, at time.Time) (int, error) {
	attempts, err := d.queries.IncrementAttempts(ctx, millis(at), id)
	return int(attempts), d.HandleError(err)
}

func (d *dbImpl) MarkCompleted(ctx context.Context, id int64) error {
	return d.HandleError(expectOne(d.queries.MarkCompleted(ctx, id)))
}

func (d *dbImpl) RecordFailure(ctx context.Context, id int64, reason string, terminal bool) error {
	return d.HandleError(expectOne(d.queries.RecordFailure(ctx, reason, terminal, id)))
}

func (d *dbImpl) GetQueueItem(ctx context.Context, id int64) (domain.FederationQueueItem, error) {
	row, err := d.queries.GetQueueItem(ctx, id)
	if err != nil {
		return domain.FederationQueueItem{}, d.HandleError(err)
	}
	return queueItemFromRow(row)
}

func (d *dbImpl) ListQueue(ctx context.Context, status domain.QueueStatus, limit int) ([]domain.FederationQueueItem, error) {
	var (
		rows []queries.FederationQueue
		err  error
	)
	if status == "" {
		rows, err = d.queries.ListQueue(ctx, int64(limit))
	} else {
		rows, err = d.queries.ListQueueByStatus(ctx, string(status), int64(limit))
	}
	if err != nil {
		return nil, d.HandleError(err)
	}
	return queueItemsFromRows(rows)
}

func (d *dbImpl) GetRemoteActor(ctx context.Context, iri *url.URL) (domain.RemoteActor, error) {
	row, err := d.queries.GetRemoteActor(ctx, iri.String())
	if err != nil {
		return domain.RemoteActor{}, d.HandleError(err)
	}

	a := domain.RemoteActor{
		IRI:       iri,
		PublicKey: row.PublicKey,
		Fetched:   fromMillis(row.FetchedAt),
	}
	if a.Inbox, err = url.Parse(row.Inbox); err != nil {
		return domain.RemoteActor{}, fmt.Errorf("%w: malformed inbox of %s", db.ErrInternal, row.Iri)
	}
	if row.SharedInbox != "" {
		if a.SharedInbox, err = url.Parse(row.SharedInbox); err != nil {
			return domain.RemoteActor{}, fmt.Errorf("%w: malformed shared inbox of %s", db.ErrInternal, row.Iri)
		}
	}
	return a, nil
}

func (d *dbImpl) UpsertRemoteActor(ctx context.Context, a domain.RemoteActor) error {
	var shared string
	if a.SharedInbox != nil {
		shared = a.SharedInbox.String()
	}

	fetched := a.Fetched
	if fetched.IsZero() {
		fetched = time.Now()
	}

	return d.HandleError(d.queries.UpsertRemoteActor(ctx, queries.RemoteActor{
		Iri:         a.IRI.String(),
		Inbox:       a.Inbox.String(),
		SharedInbox: shared,
		PublicKey:   a.PublicKey,
		FetchedAt:   millis(fetched),
	}))
}

func queueItemsFromRows(rows []queries.FederationQueue) ([]domain.FederationQueueItem, error) {
	items := make([]domain.FederationQueueItem, 0, len(rows))
	for _, row := range rows {
		item, err := queueItemFromRow(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func queueItemFromRow(row queries.FederationQueue) (domain.FederationQueueItem, error) {
	actor, err := url.Parse(row.Actor)
	if err != nil {
		return domain.FederationQueueItem{}, fmt.Errorf("%w: malformed actor in queue item %d", db.ErrInternal, row.ID)
	}

	target, err := url.Parse(row.Target)
	if err != nil {
		return domain.FederationQueueItem{}, fmt.Errorf("%w: malformed target in queue item %d", db.ErrInternal, row.ID)
	}

	return domain.FederationQueueItem{
		ID:          row.ID,
		Actor:       actor,
		Action:      domain.Action(row.Action),
		Object:      []byte(row.Object),
		Target:      target,
		Priority:    int(row.Priority),
		Attempts:    int(row.Attempts),
		LastAttempt: nullMillis(row.LastAttempt),
		LastError:   row.LastError,
		Status:      domain.QueueStatus(row.Status),
		Created:     fromMillis(row.CreatedAt),
	}, nil
}
