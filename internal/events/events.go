// Package events is the in-process publish/subscribe bus that connects persistence operations to the real-time
// layer and the site manager.
package events

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

type Type string

const (
	// SubdomainVerified carries the verified domain.SubdomainRegistration.
	SubdomainVerified Type = "subdomain.verified"
	// StatusChanged carries the new domain.StatusEntry of Site.
	StatusChanged    Type = "status.changed"
	SiteMaterialized Type = "site.materialized"
	SiteDemolished   Type = "site.demolished"
	// Notification is addressed to the owner of Site.
	Notification Type = "notification"
)

type Event struct {
	Type    Type      `json:"type"`
	Site    string    `json:"site,omitempty"`
	Payload any       `json:"payload,omitempty"`
	Time    time.Time `json:"time"`
}

var dropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fedhost_events_dropped_total",
	Help: "Events not delivered to a subscriber whose buffer was full.",
}, []string{"type"})

type subscriber struct {
	ch    chan Event
	types map[Type]bool
}

func (s *subscriber) wants(t Type) bool {
	return len(s.types) == 0 || s.types[t]
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber that does not keep up loses events.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	closed bool
	now    func() time.Time
}

func New() *Bus {
	return &Bus{
		subs: map[int]*subscriber{},
		now:  time.Now,
	}
}

// Subscribe returns a channel receiving the events of the given types, every type if none is given, and a function
// that ends the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int, types ...Type) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[Type]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
}

// Publish stamps e with the current time if it has none and hands it to every interested subscriber.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			dropped.WithLabelValues(string(e.Type)).Inc()
			log.Warn().Str("type", string(e.Type)).Str("site", e.Site).Msg("subscriber too slow, event dropped")
		}
	}
}

// Close ends every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}
