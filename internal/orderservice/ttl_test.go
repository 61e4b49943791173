package orderservice

import (
	"testing"
	"time"
)

func TestTTLFlagCacheSetHas(t *testing.T) {
	c := newTTLFlagCache()
	if c.Has("a") {
		t.Fatal("unset key should not be present")
	}
	c.Set("a", 50*time.Millisecond)
	if !c.Has("a") {
		t.Fatal("expected key to be present immediately after Set")
	}
	time.Sleep(80 * time.Millisecond)
	if c.Has("a") {
		t.Fatal("expected key to have expired")
	}
}

func TestTTLFlagCacheSweepRemovesExpired(t *testing.T) {
	c := newTTLFlagCache()
	c.Set("a", time.Millisecond)
	c.Set("b", time.Hour)
	time.Sleep(5 * time.Millisecond)

	removed := c.Sweep()
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if !c.Has("b") {
		t.Fatal("non-expired key must survive Sweep")
	}
}
