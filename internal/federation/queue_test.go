package federation

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	mock_db "github.com/sidereusnuntius/fedhost/internal/mocks"
	"go.uber.org/mock/gomock"
)

var ctx = context.Background()

// memStore keeps queue items in memory with the same selection rules as the sqlite store.
type memStore struct {
	db.Federation
	mu    sync.Mutex
	items map[int64]*domain.FederationQueueItem
	next  int64
}

func newMemStore() *memStore {
	return &memStore{items: map[int64]*domain.FederationQueueItem{}}
}

func (s *memStore) Enqueue(_ context.Context, item domain.FederationQueueItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	item.ID = s.next
	item.Status = domain.QueuePending
	s.items[item.ID] = &item
	return item.ID, nil
}

func (s *memStore) PendingBatch(_ context.Context, maxAttempts, limit int) ([]domain.FederationQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.FederationQueueItem
	for _, it := range s.items {
		if it.Status == domain.QueuePending && it.Attempts < maxAttempts {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) MarkAttempt(_ context.Context, id int64, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id].Attempts++
	s.items[id].LastAttempt = at
	return s.items[id].Attempts, nil
}

func (s *memStore) MarkCompleted(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id].Status = domain.QueueCompleted
	return nil
}

func (s *memStore) RecordFailure(_ context.Context, id int64, reason string, terminal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id].LastError = reason
	if terminal {
		s.items[id].Status = domain.QueueFailed
	}
	return nil
}

func (s *memStore) get(id int64) domain.FederationQueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.items[id]
}

type scriptedPoster struct {
	mu      sync.Mutex
	results []error
	bodies  [][]byte
	targets []string
}

func (p *scriptedPoster) Post(_ context.Context, _, inbox *url.URL, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodies = append(p.bodies, body)
	p.targets = append(p.targets, inbox.String())
	if len(p.results) == 0 {
		return nil
	}
	err := p.results[0]
	p.results = p.results[1:]
	return err
}

func testConfig() *config.Configuration {
	return &config.Configuration{
		FederationEnabled:      true,
		FederationMaxAttempts:  5,
		FederationBatchSize:    10,
		FederationPollInterval: time.Millisecond,
		FederationTimeout:      time.Second,
	}
}

func mustURL(s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func followItem(t *testing.T, target string, priority int) domain.FederationQueueItem {
	actor := mustURL("https://alice.example.io/user/alice")
	object, err := IRIObject(actor.JoinPath("activities", "follow", "1"), mustURL("https://remote.test/users/bob"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return domain.FederationQueueItem{
		Actor:    actor,
		Action:   domain.ActionFollow,
		Object:   object,
		Target:   mustURL(target),
		Priority: priority,
	}
}

func TestRetryUntilDelivered(t *testing.T) {
	store := newMemStore()
	upstream := errors.New("502 Bad Gateway")
	poster := &scriptedPoster{results: []error{upstream, upstream, nil}}
	q := NewQueue(testConfig(), store, poster)

	id, err := q.Enqueue(ctx, followItem(t, "https://remote.test/inbox", PriorityNormal))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	for i := 0; i < 3; i++ {
		if _, err = q.ProcessBatch(ctx); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	}

	item := store.get(id)
	if item.Status != domain.QueueCompleted || item.Attempts != 3 {
		t.Errorf("expected completed after 3 attempts, got %s after %d", item.Status, item.Attempts)
	}

	if n, _ := q.ProcessBatch(ctx); n != 0 {
		t.Errorf("a completed item was attempted again")
	}
}

func TestTerminalFailure(t *testing.T) {
	store := newMemStore()
	fail := errors.New("connection refused")
	poster := &scriptedPoster{results: []error{fail, fail, fail, fail, fail, fail}}
	cfg := testConfig()
	cfg.FederationMaxAttempts = 3
	q := NewQueue(cfg, store, poster)

	id, _ := q.Enqueue(ctx, followItem(t, "https://remote.test/inbox", PriorityNormal))

	last := 0
	for i := 0; i < 5; i++ {
		if _, err := q.ProcessBatch(ctx); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		item := store.get(id)
		if item.Attempts < last {
			t.Fatalf("attempts decreased from %d to %d", last, item.Attempts)
		}
		last = item.Attempts
	}

	item := store.get(id)
	if item.Status != domain.QueueFailed || item.Attempts != 3 {
		t.Errorf("expected failed after 3 attempts, got %s after %d", item.Status, item.Attempts)
	}
	if item.LastError != fail.Error() {
		t.Errorf("unexpected last error %q", item.LastError)
	}
}

func TestPriorityOrder(t *testing.T) {
	store := newMemStore()
	poster := &scriptedPoster{}
	q := NewQueue(testConfig(), store, poster)

	q.Enqueue(ctx, followItem(t, "https://low.test/inbox", PriorityLow))
	q.Enqueue(ctx, followItem(t, "https://normal.test/inbox", PriorityNormal))
	q.Enqueue(ctx, followItem(t, "https://high.test/inbox", PriorityHigh))

	if _, err := q.ProcessBatch(ctx); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	want := []string{"https://high.test/inbox", "https://normal.test/inbox", "https://low.test/inbox"}
	for i, w := range want {
		if poster.targets[i] != w {
			t.Errorf("delivery %d: expected %s, got %s", i, w, poster.targets[i])
		}
	}
}

func TestAllowed(t *testing.T) {
	cases := []struct {
		name      string
		enabled   bool
		whitelist []string
		blacklist []string
		target    string
		err       error
	}{
		{"Disabled", false, nil, nil, "https://a.test/inbox", ErrDisabled},
		{"Open", true, nil, nil, "https://a.test/inbox", nil},
		{"Blacklisted", true, nil, []string{"a.test"}, "https://A.test/inbox", ErrBlocked},
		{"NotWhitelisted", true, []string{"b.test"}, nil, "https://a.test/inbox", ErrBlocked},
		{"Whitelisted", true, []string{"a.test"}, nil, "https://a.test/inbox", nil},
		{"BlacklistWins", true, []string{"a.test"}, []string{"a.test"}, "https://a.test/inbox", ErrBlocked},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.FederationEnabled = c.enabled
			cfg.FederationWhitelist = c.whitelist
			cfg.FederationBlacklist = c.blacklist
			q := NewQueue(cfg, newMemStore(), &scriptedPoster{})

			err := q.Allowed(mustURL(c.target))
			if c.err == nil && err != nil {
				t.Errorf("unexpected error: %s", err)
			}
			if c.err != nil && !errors.Is(err, c.err) {
				t.Errorf("expected %v, got %v", c.err, err)
			}
		})
	}
}

func TestAttemptPersistedBeforePost(t *testing.T) {
	ctrl := gomock.NewController(t)
	DB := mock_db.NewMockDB(ctrl)
	item := followItem(t, "https://remote.test/inbox", PriorityNormal)
	item.ID = 9

	var marked bool
	poster := posterFunc(func(context.Context, *url.URL, *url.URL, []byte) error {
		if !marked {
			t.Error("delivery attempted before the attempt was persisted")
		}
		return nil
	})

	gomock.InOrder(
		DB.EXPECT().PendingBatch(gomock.Any(), 5, 10).Return([]domain.FederationQueueItem{item}, nil),
		DB.EXPECT().MarkAttempt(gomock.Any(), int64(9), gomock.Any()).DoAndReturn(func(context.Context, int64, time.Time) (int, error) {
			marked = true
			return 1, nil
		}),
		DB.EXPECT().MarkCompleted(gomock.Any(), int64(9)).Return(nil),
	)

	q := NewQueue(testConfig(), DB, poster)
	if n, err := q.ProcessBatch(ctx); err != nil || n != 1 {
		t.Errorf("expected one attempt, got %d, %v", n, err)
	}
}

type posterFunc func(ctx context.Context, actor, inbox *url.URL, body []byte) error

func (f posterFunc) Post(ctx context.Context, actor, inbox *url.URL, body []byte) error {
	return f(ctx, actor, inbox, body)
}

func TestSerialize(t *testing.T) {
	actor := mustURL("https://alice.example.io/user/alice")
	post := domain.Post{ID: "p1", Content: "hi", FederationID: actor.JoinPath("posts", "p1")}
	object, err := NoteObject(post, actor)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	body, err := Serialize(ctx, domain.FederationQueueItem{Actor: actor, Action: domain.ActionCreate, Object: object})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var m map[string]any
	if err = json.Unmarshal(body, &m); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if m["type"] != "Create" || m["id"] != post.FederationID.String()+"/activity" {
		t.Errorf("unexpected activity %v", m)
	}
	note, ok := m["object"].(map[string]any)
	if !ok || note["type"] != "Note" || note["content"] != "hi" {
		t.Errorf("unexpected object %v", m["object"])
	}

	if _, err = Serialize(ctx, domain.FederationQueueItem{Actor: actor, Action: domain.ActionCreate, Object: []byte("{")}); !errors.Is(err, ErrMalformedItem) {
		t.Errorf("expected ErrMalformedItem, got %v", err)
	}
}

func TestShutdownFinishesInFlightDelivery(t *testing.T) {
	store := newMemStore()
	id, err := store.Enqueue(ctx, followItem(t, "https://remote.test/inbox", PriorityNormal))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	posting := make(chan struct{})
	release := make(chan struct{})
	poster := posterFunc(func(ctx context.Context, _, _ *url.URL, _ []byte) error {
		close(posting)
		<-release
		return ctx.Err()
	})

	runCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		NewQueue(testConfig(), store, poster).Run(runCtx)
		close(stopped)
	}()

	<-posting
	cancel()
	select {
	case <-stopped:
		t.Fatal("the worker returned while a delivery was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("the worker did not stop after the delivery finished")
	}
	if got := store.get(id); got.Status != domain.QueueCompleted || got.Attempts != 1 {
		t.Errorf("expected the in-flight item to be completed once, got %s after %d attempts", got.Status, got.Attempts)
	}
}
