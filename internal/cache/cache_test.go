package cache

import (
	"testing"
	"time"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, found := c.Get("missing"); found {
		t.Error("empty cache should miss")
	}

	if err := c.Set("k", []byte("value"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, found := c.Get("k")
	if !found || string(got) != "value" {
		t.Errorf("Get = %q, %v", got, found)
	}

	if err := c.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found := c.Get("k"); found {
		t.Error("deleted key should miss")
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	if err := c.Set("k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, found := c.Get("k"); found {
		t.Error("expired key should miss")
	}
}

func TestMemoryCacheClear(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	_ = c.Set("a", []byte("1"), time.Minute)
	_ = c.Set("b", []byte("2"), time.Minute)
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, found := c.Get("a"); found {
		t.Error("cleared cache should miss")
	}
}

func TestKeyIsStableAndDistinct(t *testing.T) {
	if Key("query") != Key("query") {
		t.Error("same query must produce the same key")
	}
	if Key("query a") == Key("query b") {
		t.Error("different queries must produce different keys")
	}
}
