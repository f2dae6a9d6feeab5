package cache

import (
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New[string]("test_get_set", 10, time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a miss on an empty cache")
	}

	c.Set("a", "1")
	v, ok := c.Get("a")
	if !ok || v != "1" {
		t.Errorf("expected hit with 1, got %q %v", v, ok)
	}

	c.Delete("a")
	if _, ok = c.Get("a"); ok {
		t.Error("expected a miss after delete")
	}
}

func TestEntryExpiry(t *testing.T) {
	c := New[int]("test_entry_expiry", 10, time.Hour)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.SetWithTTL("short", 1, time.Second)
	c.Set("long", 2)

	now = now.Add(2 * time.Second)
	if _, ok := c.Get("short"); ok {
		t.Error("an entry must not be returned past its own expiry")
	}
	if v, ok := c.Get("long"); !ok || v != 2 {
		t.Errorf("expected the default TTL entry to survive, got %d %v", v, ok)
	}
}

func TestTTLIsCappedByDefault(t *testing.T) {
	c := New[int]("test_ttl_cap", 10, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.SetWithTTL("k", 1, 24*time.Hour)
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("a requested TTL longer than the default must be capped")
	}
}

func TestNonPositiveTTL(t *testing.T) {
	c := New[int]("test_non_positive", 10, time.Minute)
	c.SetWithTTL("k", 1, 0)
	if c.Len() != 0 {
		t.Errorf("expected nothing stored, got %d entries", c.Len())
	}
}

func TestEviction(t *testing.T) {
	c := New[int]("test_eviction", 2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Error("expected the least recently used entry to be evicted")
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}
}
