package cache

import (
	"testing"
	"time"
)

func TestBoundedMap_EvictsOldestWhenFull(t *testing.T) {
	t.Parallel()

	m := NewBoundedMap[string, int](2, 0)
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	if _, ok := m.Get("a"); ok {
		t.Error("expected oldest entry 'a' to be evicted")
	}
	if v, ok := m.Get("b"); !ok || v != 2 {
		t.Errorf("expected 'b' to survive, got %v ok=%v", v, ok)
	}
	if v, ok := m.Get("c"); !ok || v != 3 {
		t.Errorf("expected 'c' to survive, got %v ok=%v", v, ok)
	}
}

func TestBoundedMap_AccessRefreshesRecency(t *testing.T) {
	t.Parallel()

	m := NewBoundedMap[string, int](2, 0)
	m.Set("a", 1)
	m.Set("b", 2)

	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := m.Get("a"); !ok {
		t.Fatal("expected 'a' present")
	}
	m.Set("c", 3)

	if _, ok := m.Get("b"); ok {
		t.Error("expected least recently accessed entry 'b' to be evicted")
	}
	if _, ok := m.Get("a"); !ok {
		t.Error("expected recently accessed entry 'a' to survive")
	}
}

func TestBoundedMap_TTLExpiry(t *testing.T) {
	t.Parallel()

	m := NewBoundedMap[string, int](10, 20*time.Millisecond)
	m.Set("a", 1)

	if _, ok := m.Get("a"); !ok {
		t.Fatal("expected fresh entry present")
	}

	time.Sleep(40 * time.Millisecond)

	if _, ok := m.Get("a"); ok {
		t.Error("expected entry to expire after TTL")
	}
}

func TestBoundedMap_Delete(t *testing.T) {
	t.Parallel()

	m := NewBoundedMap[string, int](10, 0)
	m.Set("a", 1)
	m.Delete("a")

	if _, ok := m.Get("a"); ok {
		t.Error("expected deleted entry to be gone")
	}
	if m.Len() != 0 {
		t.Errorf("expected empty map, got len %d", m.Len())
	}
}
