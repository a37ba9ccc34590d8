// ABOUTME: Tests for the update-id dedupe cache
// ABOUTME: Covers duplicate detection, TTL expiry and size-bounded eviction

package dedupe

import (
	"testing"
	"time"
)

func TestCheckAndMark(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	if c.CheckAndMark(1) {
		t.Error("first sighting reported as duplicate")
	}
	if !c.CheckAndMark(1) {
		t.Error("second sighting not reported as duplicate")
	}
	if c.CheckAndMark(2) {
		t.Error("unrelated id reported as duplicate")
	}
}

func TestCheckAndMark_TTLExpiry(t *testing.T) {
	c := New(20*time.Millisecond, 100)
	defer c.Close()

	c.CheckAndMark(1)
	time.Sleep(40 * time.Millisecond)

	if c.CheckAndMark(1) {
		t.Error("expired entry still reported as duplicate")
	}
}

func TestCheckAndMark_EvictsOldestWhenFull(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	for id := int64(1); id <= 3; id++ {
		c.CheckAndMark(id)
	}

	// Inserting a fourth evicts the oldest.
	c.CheckAndMark(4)

	if c.CheckAndMark(1) {
		t.Error("evicted id still reported as duplicate")
	}
	if !c.CheckAndMark(4) {
		t.Error("fresh id lost")
	}
}

func TestCheckAndMark_RefreshDoesNotGrow(t *testing.T) {
	c := New(time.Minute, 2)
	defer c.Close()

	c.CheckAndMark(1)
	c.CheckAndMark(2)

	// Re-seeing known ids must not evict anything.
	c.CheckAndMark(1)
	c.CheckAndMark(2)

	if !c.CheckAndMark(1) || !c.CheckAndMark(2) {
		t.Error("known ids were evicted by refreshes")
	}
}

func TestClose_Idempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}

func TestRunCleanup_DropsExpired(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	c.CheckAndMark(1)
	c.CheckAndMark(2)
	time.Sleep(30 * time.Millisecond)
	c.runCleanup()

	c.mu.Lock()
	live := len(c.seen)
	c.mu.Unlock()
	if live != 0 {
		t.Errorf("cleanup left %d live entries, want 0", live)
	}
}
