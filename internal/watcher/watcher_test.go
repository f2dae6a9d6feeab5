package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	changed map[string]int
	removed map[string]int
}

func newRecorder() *recorder {
	return &recorder{changed: map[string]int{}, removed: map[string]int{}}
}

func (r *recorder) Changed(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed[path]++
}

func (r *recorder) Removed(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed[path]++
}

func (r *recorder) counts(path string) (changed, removed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changed[path], r.removed[path]
}

const (
	debounce = 30 * time.Millisecond
	wait     = 2 * time.Second
	tick     = 10 * time.Millisecond
)

func start(t *testing.T, dir string, depth int) *recorder {
	t.Helper()
	w, err := New(debounce)
	require.NoError(t, err)
	rec := newRecorder()
	require.NoError(t, w.Watch(dir, rec, depth))

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	t.Cleanup(func() {
		cancel()
		w.Close()
	})
	return rec
}

func TestBurstIsCoalesced(t *testing.T) {
	dir := t.TempDir()
	rec := start(t, dir, 0)
	file := filepath.Join(dir, "posts.toml")

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(file, []byte("path = \"/api\"\n"), 0o644))
	}

	require.Eventually(t, func() bool {
		changed, _ := rec.counts(file)
		return changed > 0
	}, wait, tick)

	time.Sleep(3 * debounce)
	changed, removed := rec.counts(file)
	assert.Equal(t, 1, changed)
	assert.Zero(t, removed)
}

func TestRemoval(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "posts.toml")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	rec := start(t, dir, 0)

	require.NoError(t, os.Remove(file))
	require.Eventually(t, func() bool {
		_, removed := rec.counts(file)
		return removed == 1
	}, wait, tick)
}

func TestWriteThenRemoveSettlesOnRemoval(t *testing.T) {
	dir := t.TempDir()
	rec := start(t, dir, 0)
	file := filepath.Join(dir, "posts.toml")

	require.NoError(t, os.WriteFile(file, nil, 0o644))
	require.NoError(t, os.Remove(file))

	require.Eventually(t, func() bool {
		_, removed := rec.counts(file)
		return removed == 1
	}, wait, tick)
	changed, _ := rec.counts(file)
	assert.Zero(t, changed)
}

func TestSubdirectories(t *testing.T) {
	dir := t.TempDir()
	rec := start(t, dir, 1)

	site := filepath.Join(dir, "alice")
	require.NoError(t, os.Mkdir(site, 0o755))
	require.Eventually(t, func() bool {
		changed, _ := rec.counts(site)
		return changed == 1
	}, wait, tick)

	// the new directory is watched as well
	server := filepath.Join(site, "server.js")
	require.NoError(t, os.WriteFile(server, nil, 0o644))
	require.Eventually(t, func() bool {
		changed, _ := rec.counts(server)
		return changed == 1
	}, wait, tick)

	require.NoError(t, os.RemoveAll(site))
	require.Eventually(t, func() bool {
		_, removed := rec.counts(site)
		return removed == 1
	}, wait, tick)
}

func TestExistingSubdirectoriesAreWatched(t *testing.T) {
	dir := t.TempDir()
	site := filepath.Join(dir, "bob")
	require.NoError(t, os.Mkdir(site, 0o755))
	rec := start(t, dir, 1)

	file := filepath.Join(site, "site.toml")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	require.Eventually(t, func() bool {
		changed, _ := rec.counts(file)
		return changed == 1
	}, wait, tick)
}
