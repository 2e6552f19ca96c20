//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/presence-guard/internal/config"
	"github.com/kozaktomas/presence-guard/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		PostgresURL:  fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestEventStore(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewEventStore(pool)

	t.Run("RecordAndList", func(t *testing.T) {
		base := time.Now().UTC().Truncate(time.Microsecond)
		for i := 0; i < 3; i++ {
			ev := database.TransitionEvent{
				ID:          uuid.NewString(),
				From:        "idle",
				To:          "away",
				Observation: "no_face",
				At:          base.Add(time.Duration(i) * time.Second),
				ActionFired: true,
			}
			if err := store.RecordTransition(ctx, ev); err != nil {
				t.Fatalf("RecordTransition: %v", err)
			}
		}

		events, err := store.RecentTransitions(ctx, 2)
		if err != nil {
			t.Fatalf("RecentTransitions: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if !events[0].At.After(events[1].At) {
			t.Error("expected newest-first ordering")
		}
	})
}

func TestEncodingCache(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	cache := NewEncodingCache(pool)

	encoding := make([]float32, 128)
	for i := range encoding {
		encoding[i] = float32(i) / 128.0
	}

	t.Run("MissThenHit", func(t *testing.T) {
		if _, ok, err := cache.Get(ctx, "hash-1"); err != nil || ok {
			t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
		}

		if err := cache.Put(ctx, "hash-1", "alice", encoding); err != nil {
			t.Fatalf("Put: %v", err)
		}

		got, ok, err := cache.Get(ctx, "hash-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !ok {
			t.Fatal("expected cache hit")
		}
		if len(got) != 128 {
			t.Fatalf("expected 128-dim encoding, got %d", len(got))
		}
		if got[64] != encoding[64] {
			t.Errorf("encoding mismatch at index 64: got %f, want %f", got[64], encoding[64])
		}
	})

	t.Run("Replace", func(t *testing.T) {
		replacement := []float32{1, 2, 3}
		if err := cache.Put(ctx, "hash-1", "alice", replacement); err != nil {
			t.Fatalf("Put replacement: %v", err)
		}

		got, ok, err := cache.Get(ctx, "hash-1")
		if err != nil || !ok {
			t.Fatalf("Get after replace: ok=%v err=%v", ok, err)
		}
		if len(got) != 3 {
			t.Errorf("expected replaced 3-dim encoding, got %d dims", len(got))
		}
	})
}
