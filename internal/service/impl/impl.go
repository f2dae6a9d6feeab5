package core

import (
	"context"
	"net/url"
	"time"

	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/events"
	"github.com/sidereusnuntius/fedhost/internal/service"
)

const BcryptCost = 10

// Queue accepts outbound deliveries whose target inbox is known.
type Queue interface {
	Enqueue(ctx context.Context, item domain.FederationQueueItem) (int64, error)
}

// Resolver queues a delivery to the inbox of a remote actor, or of the author of a remote object, dereferencing
// it first if it is not known yet.
type Resolver interface {
	EnqueueFor(ctx context.Context, iri *url.URL, item domain.FederationQueueItem) error
}

type AppService struct {
	Config   *config.Configuration
	DB       db.DB
	Queue    Queue
	Resolver Resolver
	Events   *events.Bus
	now      func() time.Time
}

func New(cfg *config.Configuration, d db.DB, queue Queue, resolver Resolver, bus *events.Bus) service.Service {
	return &AppService{
		Config:   cfg,
		DB:       d,
		Queue:    queue,
		Resolver: resolver,
		Events:   bus,
		now:      time.Now,
	}
}
