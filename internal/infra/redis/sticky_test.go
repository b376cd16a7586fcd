package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *StickyStore {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	client, err := NewClient(Config{URL: url})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewStickyStore(client, "test-"+uuid.NewString(), time.Minute)
}

func TestStickyStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Get(ctx, "orders")
	if err != nil || id != "" {
		t.Fatalf("empty store Get = %q, %v", id, err)
	}

	if err := store.Put(ctx, "orders", "10.0.0.1:8080"); err != nil {
		t.Fatal(err)
	}
	if id, _ := store.Get(ctx, "orders"); id != "10.0.0.1:8080" {
		t.Errorf("Get = %q", id)
	}

	if err := store.Delete(ctx, "orders"); err != nil {
		t.Fatal(err)
	}
	if id, _ := store.Get(ctx, "orders"); id != "" {
		t.Errorf("Get after Delete = %q", id)
	}
}

func TestStickyStore_Defaults(t *testing.T) {
	s := NewStickyStore(&Client{}, "", 0)
	if s.ttl != defaultStickyTTL {
		t.Errorf("ttl = %s", s.ttl)
	}
	if got := s.stickyKey("orders:eu"); got != "livecluster:sticky:orders:eu" {
		t.Errorf("key = %q", got)
	}
}
