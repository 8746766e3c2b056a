package oauthstate

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestManager runs an in-process miniredis and returns a Manager backed
// by it, plus the miniredis handle for TTL fast-forwarding.
func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewManager(client, logger), mr
}

func TestNewToken(t *testing.T) {
	a, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken() error = %v", err)
	}
	b, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken() error = %v", err)
	}

	// 32 bytes of entropy → 43 chars of raw URL-safe base64.
	if len(a) != 43 {
		t.Errorf("NewToken() length = %d, want 43", len(a))
	}
	if a == b {
		t.Error("NewToken() returned identical tokens")
	}
}

func TestCreate_SetsTTL(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	if !m.Create(ctx, "state-abc") {
		t.Fatal("Create() = false, want true")
	}

	ttl := mr.TTL(keyPrefix + "state-abc")
	if ttl != TTL {
		t.Errorf("stored TTL = %v, want %v", ttl, TTL)
	}
}

func TestVerifyAndConsume_ExactlyOnce(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if !m.Create(ctx, "state-once") {
		t.Fatal("Create() failed")
	}

	if !m.VerifyAndConsume(ctx, "state-once") {
		t.Error("first VerifyAndConsume() = false, want true")
	}
	if m.VerifyAndConsume(ctx, "state-once") {
		t.Error("second VerifyAndConsume() = true, want false")
	}
}

func TestVerifyAndConsume_NeverCreated(t *testing.T) {
	m, _ := newTestManager(t)

	if m.VerifyAndConsume(context.Background(), "never-created") {
		t.Error("VerifyAndConsume() accepted an unknown state")
	}
}

func TestVerifyAndConsume_ExpiredState(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	if !m.Create(ctx, "state-expiring") {
		t.Fatal("Create() failed")
	}

	mr.FastForward(TTL + time.Second)

	if m.VerifyAndConsume(ctx, "state-expiring") {
		t.Error("VerifyAndConsume() accepted an expired state")
	}
}

func TestCreate_EmptyState(t *testing.T) {
	m, _ := newTestManager(t)

	if m.Create(context.Background(), "") {
		t.Error("Create(\"\") = true, want false")
	}
}

func TestStoreFailure_ReturnsFalseNotError(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	// Kill the backing store; every operation must degrade to false.
	mr.Close()

	if m.Create(ctx, "state-after-close") {
		t.Error("Create() = true with store down")
	}
	if m.VerifyAndConsume(ctx, "state-after-close") {
		t.Error("VerifyAndConsume() = true with store down")
	}
	if m.HealthCheck(ctx) {
		t.Error("HealthCheck() = true with store down")
	}
}

func TestHealthCheck(t *testing.T) {
	m, _ := newTestManager(t)

	if !m.HealthCheck(context.Background()) {
		t.Error("HealthCheck() = false with store up")
	}
}
