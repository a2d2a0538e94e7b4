//go:build integration

package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_SharedCooldown(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stdout)
	ctx := context.Background()

	// two trackers model two processes sharing one Redis
	a := NewTracker(redisClient, logger)
	b := NewTracker(redisClient, logger)

	state, err := b.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.Until.IsZero() || state.Hits != 0 {
		t.Errorf("initial state = %+v, want zero", state)
	}

	if err := a.RecordRateLimit(ctx, 30*time.Second); err != nil {
		t.Fatalf("RecordRateLimit() error = %v", err)
	}

	remaining, err := b.CooldownRemaining(ctx)
	if err != nil {
		t.Fatalf("CooldownRemaining() error = %v", err)
	}
	if remaining < 29*time.Second || remaining > 30*time.Second {
		t.Errorf("CooldownRemaining() = %v, want ~30s", remaining)
	}

	if err := b.RecordRateLimit(ctx, time.Second); err != nil {
		t.Fatalf("RecordRateLimit() error = %v", err)
	}

	state, err = a.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Hits != 2 {
		t.Errorf("Hits = %d, want 2", state.Hits)
	}
	if state.Remaining(time.Now()) < 28*time.Second {
		t.Errorf("shorter cooldown overwrote longer one: %v", state.Remaining(time.Now()))
	}
}
