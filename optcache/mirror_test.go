package optcache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowkit/go-optfetch/internal/test"
	"github.com/flowkit/go-optfetch/optcache"
	"github.com/stretchr/testify/require"
)

type memMirror struct {
	mutex   sync.Mutex
	entries map[string]optcache.Entry
	err     error
}

func newMemMirror() *memMirror {
	return &memMirror{
		entries: make(map[string]optcache.Entry),
	}
}

func (m *memMirror) Load(ctx context.Context, key string) (optcache.Entry, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.err != nil {
		return optcache.Entry{}, false, m.err
	}
	ent, ok := m.entries[key]
	return ent, ok, nil
}

func (m *memMirror) Store(ctx context.Context, key string, ent optcache.Entry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries[key] = ent
	return nil
}

func (m *memMirror) Delete(ctx context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.entries, key)
	return nil
}

func (m *memMirror) Clear(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.err != nil {
		return m.err
	}
	clear(m.entries)
	return nil
}

func (m *memMirror) len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.entries)
}

func TestMirrorHydratesStore(t *testing.T) {
	clk := clock.NewMock()
	mirror := newMemMirror()
	ctx := context.Background()

	// First session fills the mirror.
	c1, err := optcache.New(optcache.WithClock(clk), optcache.WithMirror(mirror))
	require.NoError(t, err)
	src := &countingFetch{value: test.RandomOptions(20)}
	_, err = c1.Resolve(ctx, "slack:channels", 5*time.Minute, src.fetch)
	require.NoError(t, err)
	require.Equal(t, 1, mirror.len())

	// Second session starts empty and loads from the mirror.
	clk.Add(2 * time.Minute)
	c2, err := optcache.New(optcache.WithClock(clk), optcache.WithMirror(mirror))
	require.NoError(t, err)
	value, err := c2.Resolve(ctx, "slack:channels", 5*time.Minute, src.fetch)
	require.NoError(t, err)
	require.Len(t, value, 20)
	require.Equal(t, int32(1), src.calls.Load())
	require.Equal(t, 1, c2.Len())

	// The hydrated entry keeps its original write time.
	clk.Add(3 * time.Minute)
	_, err = c2.Resolve(ctx, "slack:channels", 5*time.Minute, src.fetch)
	require.NoError(t, err)
	require.Equal(t, int32(2), src.calls.Load())
}

func TestMirrorIgnoresExpired(t *testing.T) {
	clk := clock.NewMock()
	mirror := newMemMirror()
	mirror.entries["k"] = optcache.Entry{
		Value:     test.RandomOptions(1),
		WrittenAt: clk.Now(),
		TTL:       time.Minute,
	}
	clk.Add(time.Hour)

	c, err := optcache.New(optcache.WithClock(clk), optcache.WithMirror(mirror))
	require.NoError(t, err)
	src := &countingFetch{value: test.RandomOptions(2)}
	value, err := c.Resolve(context.Background(), "k", time.Minute, src.fetch)
	require.NoError(t, err)
	require.Len(t, value, 2)
	require.Equal(t, int32(1), src.calls.Load())
}

func TestMirrorFailureDoesNotFailResolve(t *testing.T) {
	mirror := newMemMirror()
	mirror.err = errors.New("mirror unavailable")

	c, err := optcache.New(optcache.WithMirror(mirror))
	require.NoError(t, err)
	ctx := context.Background()

	src := &countingFetch{value: test.RandomOptions(3)}
	value, err := c.Resolve(ctx, "k", time.Minute, src.fetch)
	require.NoError(t, err)
	require.Len(t, value, 3)

	c.Invalidate(ctx, "k")
	c.InvalidateAll(ctx)
}

func TestInvalidateAllClearsMirror(t *testing.T) {
	mirror := newMemMirror()
	c, err := optcache.New(optcache.WithMirror(mirror))
	require.NoError(t, err)
	ctx := context.Background()

	c.Set(ctx, "a", test.RandomOptions(1), time.Hour)
	c.Set(ctx, "b", test.RandomOptions(1), time.Hour)
	require.Equal(t, 2, mirror.len())

	c.Invalidate(ctx, "a")
	require.Equal(t, 1, mirror.len())

	// The in-memory mirror is not a Pruner.
	n, err := c.PruneMirror(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	c.InvalidateAll(ctx)
	require.Zero(t, mirror.len())
	require.Zero(t, c.Len())
}
