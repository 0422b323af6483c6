package cache_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestRedisStoreAgainstRedis runs against a real server in Docker. It is
// skipped unless REDIS_INTEGRATION is set.
func TestRedisStoreAgainstRedis(t *testing.T) {
	if os.Getenv("REDIS_INTEGRATION") == "" {
		t.Skip("set REDIS_INTEGRATION=1 to run against a redis container")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	s := cache.NewRedisStore(client, "it:")
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Ping(ctx))

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := s.Take(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(got))
	_, err = s.Take(ctx, "k")
	require.ErrorIs(t, err, cache.ErrNotFound)

	_, err = s.Swap(ctx, "ptr", []byte("a"), time.Minute)
	require.ErrorIs(t, err, cache.ErrNotFound)
	old, err := s.Swap(ctx, "ptr", []byte("b"), time.Minute)
	require.NoError(t, err)
	require.Equal(t, "a", string(old))
}
