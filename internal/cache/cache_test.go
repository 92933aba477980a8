package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cooperative-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	societyID := "society-001"

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, societyID, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, societyID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, societyID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, societyID, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, societyID, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, societyID, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, societyID, "expiring", []byte("temp"), 10*time.Millisecond)

		val, _ := cache.Get(ctx, societyID, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, societyID, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, societyID, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, societyID, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, societyID, "c", []byte("3"), time.Minute)

		// Touch "a" so "b" becomes oldest
		_, _ = smallCache.Get(ctx, societyID, "a")

		_ = smallCache.Set(ctx, societyID, "d", []byte("4"), time.Minute)

		if val, _ := smallCache.Get(ctx, societyID, "b"); val != nil {
			t.Error("expected oldest entry evicted")
		}
		if val, _ := smallCache.Get(ctx, societyID, "a"); val == nil {
			t.Error("recently used entry must survive eviction")
		}
	})

	t.Run("SocietyIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "society-a", "shared-key", []byte("a"), time.Minute)
		_ = cache.Set(ctx, "society-b", "shared-key", []byte("b"), time.Minute)

		val, _ := cache.Get(ctx, "society-a", "shared-key")
		if string(val) != "a" {
			t.Errorf("society isolation broken: got %q", string(val))
		}
	})

	t.Run("RequiresSociety", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty society id")
		}
	})
}

func TestSnapshotCaching(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	societyID := "society-001"

	snap := &domain.Snapshot{
		SocietyID: societyID,
		Accounts: []*domain.Account{
			{AccountNo: "A-1", Outstanding: decimal.NewFromInt(500)},
		},
	}

	if err := cache.SetSnapshot(ctx, societyID, snap, time.Minute); err != nil {
		t.Fatalf("SetSnapshot failed: %v", err)
	}

	got, err := cache.GetSnapshot(ctx, societyID)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached snapshot")
	}
	if len(got.Accounts) != 1 || got.Accounts[0].AccountNo != "A-1" {
		t.Errorf("snapshot lost in round trip: %+v", got)
	}
	if !got.Accounts[0].Outstanding.Equal(decimal.NewFromInt(500)) {
		t.Errorf("decimal lost in round trip: %s", got.Accounts[0].Outstanding)
	}

	t.Run("Miss", func(t *testing.T) {
		got, err := cache.GetSnapshot(ctx, "society-other")
		if err != nil {
			t.Fatalf("GetSnapshot failed: %v", err)
		}
		if got != nil {
			t.Error("expected nil for uncached society")
		}
	})
}

func TestNewCacheFactory(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()

	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected LRU cache for memory type, got %T", c)
	}

	if _, err := New(domain.CacheConfig{Type: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
