//go:build integration

package commands

import (
	"context"
	"testing"
	"time"

	dockerpkg "github.com/dyluth/collab/internal/docker"
	"github.com/dyluth/collab/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests require a running Docker daemon
// Run with: go test -tags=integration -v ./cmd/collab/commands

func TestIntegration_CollaborativeTrial(t *testing.T) {
	runCollaborativeTrial(t, testutil.RedisContainer(t))
}

func TestIntegration_BusUpDown(t *testing.T) {
	ctx := context.Background()
	cli, err := dockerpkg.NewClient(ctx)
	require.NoError(t, err, "Docker daemon must be running for integration tests")
	defer cli.Close()

	session := "it-" + dockerpkg.GenerateRunID()[:8]
	t.Cleanup(func() { dockerpkg.StopBus(context.Background(), cli, session) })

	b, err := dockerpkg.StartBus(ctx, cli, dockerpkg.BusSpec{
		Session: session,
		RunID:   dockerpkg.GenerateRunID(),
		Image:   "redis:7-alpine",
		Port:    16379,
	})
	require.NoError(t, err)
	assert.Equal(t, dockerpkg.RedisContainerName(session), b.Name)

	_, err = dockerpkg.StartBus(ctx, cli, dockerpkg.BusSpec{Session: session, Image: "redis:7-alpine", Port: 16380})
	assert.Error(t, err, "second bus for the same session")

	opts, err := redis.ParseURL(b.URL())
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	require.Eventually(t, func() bool {
		return rdb.Ping(ctx).Err() == nil
	}, 10*time.Second, 100*time.Millisecond)

	buses, err := dockerpkg.ListBuses(ctx, cli, session)
	require.NoError(t, err)
	require.Len(t, buses, 1)
	assert.Equal(t, 16379, buses[0].Port)
	assert.Equal(t, session, buses[0].Session)

	removed, err := dockerpkg.StopBus(ctx, cli, session)
	require.NoError(t, err)
	assert.Len(t, removed, 1)

	buses, err = dockerpkg.ListBuses(ctx, cli, session)
	require.NoError(t, err)
	assert.Empty(t, buses)
}
