// Package testutil provides Redis fixtures shared by bus-level tests.
package testutil

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/collab/pkg/bus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// MiniRedis starts an in-process Redis for the lifetime of t and returns
// options for reaching it.
func MiniRedis(t testing.TB) (*miniredis.Miniredis, *redis.Options) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, &redis.Options{Addr: mr.Addr()}
}

// BusClient creates a bus client for session that is closed when t ends.
func BusClient(t testing.TB, opts *redis.Options, session string) *bus.Client {
	t.Helper()
	client, err := bus.NewClient(opts, session)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// Join joins session as objectType, publishes and subscribes the given
// attributes, and leaves when t ends. The session is not started.
func Join(t testing.TB, client *bus.Client, objectType bus.ObjectType, published []string, peer bus.ObjectType, subscribed []string) *bus.Session {
	t.Helper()
	sess, err := client.Join(context.Background(), objectType)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Leave(context.Background()) })

	require.NoError(t, sess.Publish(published...))
	require.NoError(t, sess.Subscribe(peer, subscribed...))
	return sess
}
