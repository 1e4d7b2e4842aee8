package cache

import "testing"

func TestPutUpdatesExistingEntryWithoutGrowing(t *testing.T) {
	cache := NewLRUCache[string, string](2)

	cache.Put("alpha", "x")
	cache.Put("beta", "value")
	cache.Put("alpha", "y")

	if got := cache.Len(); got != 2 {
		t.Fatalf("expected 2 entries after update, got %d", got)
	}

	if value, hit := cache.Get("alpha"); !hit || value != "y" {
		t.Fatalf("expected updated value for alpha, hit=%v value=%q", hit, value)
	}

	if value, hit := cache.Get("beta"); !hit || value != "value" {
		t.Fatalf("expected beta to remain in cache, hit=%v value=%q", hit, value)
	}
}

type customKey struct {
	name string
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewLRUCache[customKey, []byte](2)

	first := customKey{name: "first"}
	second := customKey{name: "second"}
	third := customKey{name: "third"}

	cache.Put(first, []byte("a"))
	cache.Put(second, []byte("b"))

	// Touch first so second becomes the eviction candidate.
	if _, hit := cache.Get(first); !hit {
		t.Fatal("expected first to be cached")
	}

	cache.Put(third, []byte("c"))

	if _, hit := cache.Get(second); hit {
		t.Fatal("expected second to be evicted")
	}
	if _, hit := cache.Get(first); !hit {
		t.Fatal("expected first to survive eviction")
	}
	if _, hit := cache.Get(third); !hit {
		t.Fatal("expected third to be cached")
	}
}

func TestNonPositiveSizeHoldsOneEntry(t *testing.T) {
	cache := NewLRUCache[int, int](0)
	cache.Put(1, 1)
	cache.Put(2, 2)

	if got := cache.Len(); got != 1 {
		t.Fatalf("expected a single entry, got %d", got)
	}
	if _, hit := cache.Get(2); !hit {
		t.Fatal("expected the most recent entry to be kept")
	}
}
