// Package status probes the health endpoint of every site on a fixed interval and keeps a bounded history of the
// results.
package status

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/events"
)

const (
	HistorySize  = 100
	CheckTimeout = 5 * time.Second
)

var transitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fedhost_status_transitions_total",
	Help: "Site status changes by new status.",
}, []string{"status"})

// Target is what a site is probed at. Host overrides the Host header, for sites reached through the local
// listener.
type Target struct {
	URL         *url.URL
	Host        string
	Maintenance bool
}

type site struct {
	// target is guarded by the poller's mutex.
	target Target
	status domain.ServiceStatus
	cancel context.CancelFunc
	// mu orders the checks of one site, so history follows emission order.
	mu sync.Mutex
}

type Poller struct {
	client   *http.Client
	bus      *events.Bus
	interval time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	sites map[string]*site
	wg    sync.WaitGroup
}

func New(interval time.Duration, client *http.Client, bus *events.Bus) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{
			// health endpoints answer directly, a redirect is reported as is
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
	}
	return &Poller{
		client:   client,
		bus:      bus,
		interval: interval,
		now:      time.Now,
		sites:    map[string]*site{},
	}
}

// Track starts probing name at t, replacing a previous target. The history of a site survives re-tracking.
func (p *Poller) Track(name string, t Target) {
	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	s, ok := p.sites[name]
	if ok {
		s.cancel()
		s.target = t
	} else {
		s = &site{
			target: t,
			status: domain.ServiceStatus{Site: name, Status: domain.HealthUnknown, History: []domain.StatusEntry{}},
		}
		p.sites[name] = s
	}
	s.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx, name, s)
}

// Untrack stops probing name and forgets its status.
func (p *Poller) Untrack(name string) {
	p.mu.Lock()
	s, ok := p.sites[name]
	delete(p.sites, name)
	p.mu.Unlock()
	if ok {
		s.cancel()
	}
}

func (p *Poller) loop(ctx context.Context, name string, s *site) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.check(ctx, name, s)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CheckNow probes name immediately.
func (p *Poller) CheckNow(ctx context.Context, name string) (domain.StatusEntry, error) {
	p.mu.RLock()
	s, ok := p.sites[name]
	p.mu.RUnlock()
	if !ok {
		return domain.StatusEntry{}, errors.New("site is not tracked")
	}
	return p.check(ctx, name, s), nil
}

func (p *Poller) check(ctx context.Context, name string, s *site) domain.StatusEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return domain.StatusEntry{}
	}

	p.mu.RLock()
	target := s.target
	p.mu.RUnlock()

	var entry domain.StatusEntry
	if target.Maintenance {
		entry = domain.StatusEntry{Status: domain.HealthMaintenance, Checked: p.now()}
	} else {
		entry = p.probe(ctx, target)
	}
	if ctx.Err() != nil {
		// untracked while probing
		return entry
	}

	p.mu.RLock()
	previous := s.status.Status
	p.mu.RUnlock()
	if entry.Status != previous {
		transitions.WithLabelValues(string(entry.Status)).Inc()
		log.Info().Str("site", name).Str("from", string(previous)).Str("to", string(entry.Status)).
			Msg("site status changed")
	}

	p.bus.Publish(events.Event{Type: events.StatusChanged, Site: name, Payload: entry, Time: entry.Checked})

	p.mu.Lock()
	s.status.Status = entry.Status
	s.status.LastChecked = entry.Checked
	s.status.History = push(s.status.History, entry)
	p.mu.Unlock()
	return entry
}

// push prepends e, dropping the oldest entries beyond HistorySize.
func push(history []domain.StatusEntry, e domain.StatusEntry) []domain.StatusEntry {
	n := len(history) + 1
	if n > HistorySize {
		n = HistorySize
	}
	next := make([]domain.StatusEntry, n)
	next[0] = e
	copy(next[1:], history)
	return next
}

func (p *Poller) probe(ctx context.Context, t Target) domain.StatusEntry {
	start := p.now()
	entry := domain.StatusEntry{Checked: start}

	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL.String(), nil)
	if err != nil {
		entry.Status, entry.Error = domain.HealthError, err.Error()
		return entry
	}
	if t.Host != "" {
		req.Host = t.Host
	}
	req.Header.Set("User-Agent", "fedhost-status")

	res, err := p.client.Do(req)
	entry.Latency = p.now().Sub(start).Milliseconds()
	if err != nil {
		entry.Status, entry.Error = domain.HealthError, err.Error()
		return entry
	}
	res.Body.Close()

	entry.Code = res.StatusCode
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		entry.Status = domain.HealthActive
	} else {
		entry.Status = domain.HealthWarning
	}
	return entry
}

// Status returns a copy of the current status of name.
func (p *Poller) Status(name string) (domain.ServiceStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sites[name]
	if !ok {
		return domain.ServiceStatus{}, false
	}
	return copyStatus(s.status), true
}

// All returns the status of every tracked site, sorted by site.
func (p *Poller) All() []domain.ServiceStatus {
	p.mu.RLock()
	all := make([]domain.ServiceStatus, 0, len(p.sites))
	for _, s := range p.sites {
		all = append(all, copyStatus(s.status))
	}
	p.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Site < all[j].Site })
	return all
}

func copyStatus(s domain.ServiceStatus) domain.ServiceStatus {
	history := make([]domain.StatusEntry, len(s.History))
	copy(history, s.History)
	s.History = history
	return s
}

// Stop ends every probe loop and waits for them.
func (p *Poller) Stop() {
	p.mu.Lock()
	for _, s := range p.sites {
		s.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}
