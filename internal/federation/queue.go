package federation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

var (
	ErrDisabled = errors.New("federation is disabled")
	ErrBlocked  = errors.New("host is not allowed to receive deliveries")
)

var deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fedhost_federation_deliveries_total",
	Help: "Delivery attempts by outcome.",
}, []string{"outcome"})

// Poster sends a signed activity to an inbox on behalf of a local actor.
type Poster interface {
	Post(ctx context.Context, actor, inbox *url.URL, body []byte) error
}

type Queue struct {
	store       db.Federation
	poster      Poster
	enabled     bool
	whitelist   []string
	blacklist   []string
	maxAttempts int
	batch       int
	interval    time.Duration
	timeout     time.Duration
	now         func() time.Time
}

func NewQueue(cfg *config.Configuration, store db.Federation, poster Poster) *Queue {
	q := &Queue{
		store:       store,
		poster:      poster,
		enabled:     cfg.FederationEnabled,
		whitelist:   cfg.FederationWhitelist,
		blacklist:   cfg.FederationBlacklist,
		maxAttempts: cfg.FederationMaxAttempts,
		batch:       cfg.FederationBatchSize,
		interval:    cfg.FederationPollInterval,
		timeout:     cfg.FederationTimeout,
		now:         time.Now,
	}
	if q.maxAttempts < 1 {
		q.maxAttempts = 5
	}
	if q.batch < 1 {
		q.batch = 10
	}
	if q.interval <= 0 {
		q.interval = 30 * time.Second
	}
	if q.timeout <= 0 {
		q.timeout = 10 * time.Second
	}
	return q
}

// Allowed checks a target against the enabled flag and the host lists. A non-empty whitelist admits only its
// hosts; the blacklist always wins.
func (q *Queue) Allowed(target *url.URL) error {
	if !q.enabled {
		return ErrDisabled
	}
	if target == nil || !target.IsAbs() {
		return fmt.Errorf("%w: target must be an absolute url", ErrBlocked)
	}

	host := strings.ToLower(target.Hostname())
	if slices.Contains(q.blacklist, host) {
		return fmt.Errorf("%w: %s is blacklisted", ErrBlocked, host)
	}
	if len(q.whitelist) > 0 && !slices.Contains(q.whitelist, host) {
		return fmt.Errorf("%w: %s is not whitelisted", ErrBlocked, host)
	}
	return nil
}

func (q *Queue) Enqueue(ctx context.Context, item domain.FederationQueueItem) (int64, error) {
	if err := q.Allowed(item.Target); err != nil {
		return 0, err
	}
	if item.Actor == nil || len(item.Object) == 0 {
		return 0, fmt.Errorf("%w: missing actor or object", ErrMalformedItem)
	}
	if item.Created.IsZero() {
		item.Created = q.now()
	}

	id, err := q.store.Enqueue(ctx, item)
	if err != nil {
		return 0, err
	}
	log.Debug().Int64("id", id).Str("action", string(item.Action)).Str("target", item.Target.String()).
		Msg("queued delivery")
	return id, nil
}

// Run drains the queue every poll interval until ctx is done. An item already being delivered when ctx ends is
// finished first.
func (q *Queue) Run(ctx context.Context) {
	if !q.enabled {
		log.Info().Msg("federation disabled, delivery worker not started")
		return
	}

	log.Info().Dur("interval", q.interval).Int("max attempts", q.maxAttempts).Msg("started delivery worker")
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		if _, err := q.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("delivery batch failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("stopped delivery worker")
			return
		case <-ticker.C:
		}
	}
}

// ProcessBatch delivers one batch of pending items in priority order and returns how many were attempted.
func (q *Queue) ProcessBatch(ctx context.Context) (int, error) {
	items, err := q.store.PendingBatch(ctx, q.maxAttempts, q.batch)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if err = q.process(ctx, item); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// process makes one delivery attempt. Only store errors are returned; delivery failures are recorded on the item.
func (q *Queue) process(ctx context.Context, item domain.FederationQueueItem) error {
	// The attempt must survive shutdown once the counter has been persisted.
	ctx = context.WithoutCancel(ctx)

	attempts, err := q.store.MarkAttempt(ctx, item.ID, q.now())
	if err != nil {
		return fmt.Errorf("marking attempt of item %d: %w", item.ID, err)
	}

	deliveryErr := q.deliver(ctx, item)
	if deliveryErr == nil {
		deliveries.WithLabelValues("completed").Inc()
		log.Debug().Int64("id", item.ID).Int("attempts", attempts).Msg("delivered")
		return q.store.MarkCompleted(ctx, item.ID)
	}

	terminal := attempts >= q.maxAttempts || errors.Is(deliveryErr, ErrMalformedItem) ||
		errors.Is(deliveryErr, ErrBlocked) || errors.Is(deliveryErr, ErrDisabled)
	outcome := "retry"
	if terminal {
		outcome = "failed"
	}
	deliveries.WithLabelValues(outcome).Inc()

	log.Warn().Err(deliveryErr).Int64("id", item.ID).Int("attempts", attempts).Bool("terminal", terminal).
		Str("target", item.Target.String()).Msg("delivery failed")
	return q.store.RecordFailure(ctx, item.ID, deliveryErr.Error(), terminal)
}

func (q *Queue) deliver(ctx context.Context, item domain.FederationQueueItem) error {
	if err := q.Allowed(item.Target); err != nil {
		return err
	}

	body, err := Serialize(ctx, item)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.poster.Post(ctx, item.Actor, item.Target, body)
}
