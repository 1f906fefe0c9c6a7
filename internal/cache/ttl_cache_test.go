package cache

import (
	"testing"
	"time"
)

func TestTTLCacheSetGet(t *testing.T) {
	c := NewTTLCache[string, int64]()
	c.Set("plate:ABC123", 42, time.Minute)

	v, ok := c.Get("plate:ABC123")
	if !ok {
		t.Fatal("expected a hit")
	}
	if v != 42 {
		t.Fatalf("value = %d", v)
	}
	if _, ok := c.Get("plate:XYZ"); ok {
		t.Fatal("unknown key should miss")
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, string]()
	c.Set("token", "abc", time.Nanosecond)
	time.Sleep(time.Millisecond)

	if _, ok := c.Get("token"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestTTLCacheZeroTTLNeverExpires(t *testing.T) {
	c := NewTTLCache[string, string]()
	c.Set("token", "abc", 0)
	time.Sleep(time.Millisecond)

	if _, ok := c.Get("token"); !ok {
		t.Fatal("zero ttl entries should not expire")
	}
}

func TestTTLCacheOverwriteAndDelete(t *testing.T) {
	c := NewTTLCache[string, string]()
	c.Set("token", "abc", time.Minute)
	c.Set("token", "def", time.Minute)

	if v, _ := c.Get("token"); v != "def" {
		t.Fatalf("value = %q", v)
	}

	c.Delete("token")
	if _, ok := c.Get("token"); ok {
		t.Fatal("deleted key should miss")
	}
}

func TestNilTTLCacheIsSafe(t *testing.T) {
	var c *TTLCache[string, string]
	c.Set("token", "abc", time.Minute)
	c.Delete("token")
	if _, ok := c.Get("token"); ok {
		t.Fatal("nil cache should always miss")
	}
}

func TestNoopCache(t *testing.T) {
	var c NoopCache[string, string]
	c.Set("token", "abc", time.Minute)
	if _, ok := c.Get("token"); ok {
		t.Fatal("noop cache should never hit")
	}
}
