//go:build integration

package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/mailbox-sync/internal/testutil"
)

// setupRedis starts a Redis container and returns its address and a client.
func setupRedis(t *testing.T) (string, *redis.Client, func()) {
	ctx := context.Background()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}
	return endpoint, client, cleanup
}

func TestNewProvider_Integration_KeysUseAccountAddress(t *testing.T) {
	addr, rdb, cleanup := setupRedis(t)
	defer cleanup()

	tests := []struct {
		name    string
		owner   string
		user    string
		wantKey string
	}{
		{name: "me resolved", owner: "alice@example.com", user: "me", wantKey: "mailsync:alice@example.com:full:m-0"},
		{name: "explicit user", owner: "alice@example.com", user: "bob@example.com", wantKey: "mailsync:bob@example.com:full:m-0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if err := rdb.FlushDB(ctx).Err(); err != nil {
				t.Fatalf("FlushDB() error = %v", err)
			}

			mock := testutil.NewMockGmail()
			defer mock.Close()
			mock.EmailAddress = tt.owner
			mock.GenerateMessages("m", 1)

			cfg := testConfig(t, mock)
			cfg.Gmail.User = tt.user
			cfg.Redis.Addr = addr
			cfg.Redis.CacheTTL = time.Minute
			cfg.Redis.QuotaUnitsPerSecond = 250

			p, err := newProvider(ctx, cfg)
			if err != nil {
				t.Fatalf("newProvider() error = %v", err)
			}
			defer p.Close()

			if _, err := p.details.Get(ctx, "m-0"); err != nil {
				t.Fatalf("Get() error = %v", err)
			}

			keys, err := rdb.Keys(ctx, "*").Result()
			if err != nil {
				t.Fatalf("Keys() error = %v", err)
			}
			var cached bool
			for _, k := range keys {
				if k == tt.wantKey {
					cached = true
				}
				if strings.Contains(k, ":me:") {
					t.Errorf("key %q uses the me alias", k)
				}
			}
			if !cached {
				t.Errorf("keys = %v, want %q", keys, tt.wantKey)
			}
		})
	}
}
