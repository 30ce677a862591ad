package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestRevokeAndCheckToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	revoked, err := store.IsTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsTokenRevoked failed: %v", err)
	}
	if revoked {
		t.Error("fresh token reported as revoked")
	}

	err = store.RevokeToken(ctx, "jti-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	revoked, err = store.IsTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsTokenRevoked after revoke failed: %v", err)
	}
	if !revoked {
		t.Error("revoked token not reported as revoked")
	}
}

func TestRevocationExpiresWithToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	err := store.RevokeToken(ctx, "jti-short", time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	s.FastForward(2 * time.Second)

	revoked, err := store.IsTokenRevoked(ctx, "jti-short")
	if err != nil {
		t.Fatalf("IsTokenRevoked failed: %v", err)
	}
	if revoked {
		t.Error("revocation entry should have expired")
	}
}

func TestRevokeExpiredTokenIsNoop(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	err := store.RevokeToken(ctx, "jti-old", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	revoked, err := store.IsTokenRevoked(ctx, "jti-old")
	if err != nil {
		t.Fatalf("IsTokenRevoked failed: %v", err)
	}
	if revoked {
		t.Error("expired token should not leave a revocation entry")
	}
}

func TestRevocationIsolation(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	if err := store.RevokeToken(ctx, "jti-a", expiresAt); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	revoked, err := store.IsTokenRevoked(ctx, "jti-b")
	if err != nil {
		t.Fatalf("IsTokenRevoked failed: %v", err)
	}
	if revoked {
		t.Error("unrelated token reported as revoked")
	}
}
