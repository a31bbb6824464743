//go:build integration

package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MoneyMiii/tennis-booking/internal/lock"
	"github.com/MoneyMiii/tennis-booking/internal/logging"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	return endpoint
}

func TestRedis_LockAcrossClients(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	c1, err := lock.NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Close()
	c2, err := lock.NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	l1 := lock.NewRedis(c1, time.Minute, logging.Discard())
	l2 := lock.NewRedis(c2, time.Minute, logging.Discard())

	unlock, err := l1.Lock(ctx, "slots:date:2026-10-24")
	if err != nil {
		t.Fatalf("l1 lock: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if _, err := l2.Lock(waitCtx, "slots:date:2026-10-24"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("l2 lock while held err = %v", err)
	}

	unlock()
	unlock2, err := l2.Lock(ctx, "slots:date:2026-10-24")
	if err != nil {
		t.Fatalf("l2 lock after release: %v", err)
	}
	unlock2()
}

func TestRedis_LeaseRenewedWhileHeld(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	c1, err := lock.NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Close()
	c2, err := lock.NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	l1 := lock.NewRedis(c1, 900*time.Millisecond, logging.Discard())
	l2 := lock.NewRedis(c2, 900*time.Millisecond, logging.Discard())

	unlock, err := l1.Lock(ctx, "slots:date:2026-10-25")
	if err != nil {
		t.Fatal(err)
	}
	// hold well past the TTL, as a long daily run does
	time.Sleep(2500 * time.Millisecond)

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	if _, err := l2.Lock(waitCtx, "slots:date:2026-10-25"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("lease expired while held: %v", err)
	}

	unlock()
	n, err := c1.Exists(ctx, "tennis:lock:slots:date:2026-10-25").Result()
	if err != nil || n != 0 {
		t.Fatalf("key after release: %d, %v", n, err)
	}
}
