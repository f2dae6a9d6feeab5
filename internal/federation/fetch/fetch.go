// Package fetch resolves remote actors: it dereferences their documents with signed requests, caches the inbox
// and public key, and releases deliveries that were waiting for an inbox.
package fetch

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"code.superseriousbusiness.org/httpsig"
	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/conversions"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

// Fetcher dereferences a document, signing the request as actor when it is not nil.
type Fetcher interface {
	Get(ctx context.Context, actor, iri *url.URL) (map[string]any, error)
}

// Queue is where resolved deliveries go.
type Queue interface {
	Allowed(target *url.URL) error
	Enqueue(ctx context.Context, item domain.FederationQueueItem) (int64, error)
}

type Resolver struct {
	store   db.Federation
	fetcher Fetcher
	queue   Queue
	tasks   *backlite.Client
	now     func() time.Time
}

// New registers the resolve queue on tasks. tasks must be started after every queue is registered.
func New(store db.Federation, fetcher Fetcher, queue Queue, tasks *backlite.Client) *Resolver {
	r := &Resolver{
		store:   store,
		fetcher: fetcher,
		queue:   queue,
		tasks:   tasks,
		now:     time.Now,
	}
	if tasks != nil {
		tasks.Register(backlite.NewQueue[ResolveJob](r.resolve))
	}
	return r
}

// EnqueueFor queues item to the inbox of the actor iri names or, for an object, of its author. Unknown actors are
// dereferenced in the background first.
func (r *Resolver) EnqueueFor(ctx context.Context, iri *url.URL, item domain.FederationQueueItem) error {
	if err := r.queue.Allowed(iri); err != nil {
		return err
	}

	actor, err := r.store.GetRemoteActor(ctx, iri)
	if err == nil {
		item.Target = actor.Inbox
		_, err = r.queue.Enqueue(ctx, item)
		return err
	}
	if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	log.Debug().Str("iri", iri.String()).Msg("enqueuing resolve task")
	_, err = r.tasks.Add(ResolveJob{
		IRI:    iri.String(),
		Signer: item.Actor.String(),
		Delivery: Delivery{
			Actor:    item.Actor.String(),
			Action:   string(item.Action),
			Object:   item.Object,
			Priority: item.Priority,
		},
	}).Save()
	return err
}

func (r *Resolver) resolve(ctx context.Context, job ResolveJob) (err error) {
	defer func() {
		if err != nil {
			log.Error().Err(err).Str("iri", job.IRI).Msg("resolve failed")
		}
	}()

	iri, err := url.Parse(job.IRI)
	if err != nil {
		return err
	}
	signer, err := url.Parse(job.Signer)
	if err != nil {
		return err
	}

	raw, err := r.fetcher.Get(ctx, signer, iri)
	if err != nil {
		return err
	}
	t, err := conversions.ToType(ctx, raw)
	if err != nil {
		return err
	}

	if !conversions.IsActor(t) {
		if job.Depth >= maxDepth {
			return fmt.Errorf("%w: %s does not lead to an actor", conversions.ErrUnsupported, iri)
		}
		author, err := conversions.AttributedTo(t)
		if err != nil {
			return err
		}
		next := job
		next.IRI = author.String()
		next.Depth++
		_, err = backlite.FromContext(ctx).Add(next).Save()
		return err
	}

	actor, err := conversions.ActorToRemote(t, raw, r.now())
	if err != nil {
		return err
	}
	if err = r.store.UpsertRemoteActor(ctx, actor); err != nil {
		return err
	}

	item, err := job.Delivery.item(actor.Inbox)
	if err != nil {
		return err
	}
	_, err = r.queue.Enqueue(ctx, item)
	return err
}

func (d Delivery) item(inbox *url.URL) (domain.FederationQueueItem, error) {
	actor, err := url.Parse(d.Actor)
	if err != nil {
		return domain.FederationQueueItem{}, err
	}
	return domain.FederationQueueItem{
		Actor:    actor,
		Action:   domain.Action(d.Action),
		Object:   d.Object,
		Target:   inbox,
		Priority: d.Priority,
	}, nil
}

// Actor returns the cached actor, dereferencing it unsigned if it is unknown or refresh is set.
func (r *Resolver) Actor(ctx context.Context, iri *url.URL, refresh bool) (domain.RemoteActor, error) {
	if !refresh {
		a, err := r.store.GetRemoteActor(ctx, iri)
		if err == nil || !errors.Is(err, db.ErrNotFound) {
			return a, err
		}
	}

	raw, err := r.fetcher.Get(ctx, nil, iri)
	if err != nil {
		return domain.RemoteActor{}, err
	}
	t, err := conversions.ToType(ctx, raw)
	if err != nil {
		return domain.RemoteActor{}, err
	}
	a, err := conversions.ActorToRemote(t, raw, r.now())
	if err != nil {
		return a, err
	}
	return a, r.store.UpsertRemoteActor(ctx, a)
}

func (r *Resolver) PublicKey(ctx context.Context, keyID *url.URL, refresh bool) (crypto.PublicKey, error) {
	owner := *keyID
	owner.Fragment = ""
	owner.RawFragment = ""

	a, err := r.Actor(ctx, &owner, refresh)
	if err != nil {
		return nil, err
	}
	return conversions.ParsePublicKey(a.PublicKey)
}

// Verify checks the HTTP signature of an inbound request and returns the signing key's id. A cached key that
// fails is refetched once, in case the remote actor rotated it.
func (r *Resolver) Verify(ctx context.Context, req *http.Request) (*url.URL, error) {
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return nil, err
	}

	keyID, err := url.Parse(verifier.KeyId())
	if err != nil || !keyID.IsAbs() {
		return nil, fmt.Errorf("unable to parse keyId: %s", verifier.KeyId())
	}

	key, err := r.PublicKey(ctx, keyID, false)
	if err != nil {
		return nil, err
	}
	if err = verifier.Verify(key, httpsig.RSA_SHA256); err == nil {
		return keyID, nil
	}

	if key, err = r.PublicKey(ctx, keyID, true); err != nil {
		return nil, err
	}
	if err = verifier.Verify(key, httpsig.RSA_SHA256); err != nil {
		return nil, err
	}
	return keyID, nil
}
