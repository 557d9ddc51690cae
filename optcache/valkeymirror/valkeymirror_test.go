package valkeymirror_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/flowkit/go-optfetch/model"
	"github.com/flowkit/go-optfetch/optcache"
	"github.com/flowkit/go-optfetch/optcache/valkeymirror"
	"github.com/stretchr/testify/require"
)

func dialTestMirror(t *testing.T, prefix string) *valkeymirror.Mirror {
	addr := os.Getenv("VALKEY_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	m, err := valkeymirror.Dial(ctx, addr, valkeymirror.WithPrefix(prefix))
	if err != nil {
		t.Skip("No valkey:", err)
	}
	t.Cleanup(func() {
		_ = m.Clear(context.Background())
		m.Close()
	})
	return m
}

func TestStoreLoad(t *testing.T) {
	m := dialTestMirror(t, fmt.Sprintf("optfetch-test-%d", time.Now().UnixNano()))
	ctx := context.Background()

	_, found, err := m.Load(ctx, "slack:channels")
	require.NoError(t, err)
	require.False(t, found)

	ent := optcache.Entry{
		Value:     model.Options{{Key: "C01", Label: "#general"}},
		WrittenAt: time.Now(),
		TTL:       time.Minute,
	}
	require.NoError(t, m.Store(ctx, "slack:channels", ent))

	got, found, err := m.Load(ctx, "slack:channels")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, ent.Value, got.Value)
	require.Equal(t, ent.TTL, got.TTL)

	require.NoError(t, m.Clear(ctx))
	_, found, err = m.Load(ctx, "slack:channels")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreExpired(t *testing.T) {
	m := dialTestMirror(t, fmt.Sprintf("optfetch-test-%d", time.Now().UnixNano()))
	ctx := context.Background()

	ent := optcache.Entry{
		Value:     model.Options{{Key: "a"}},
		WrittenAt: time.Now().Add(-time.Hour),
		TTL:       time.Minute,
	}
	require.NoError(t, m.Store(ctx, "k", ent))
	_, found, err := m.Load(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestOptions(t *testing.T) {
	_, err := valkeymirror.New(nil)
	require.Error(t, err)
}
