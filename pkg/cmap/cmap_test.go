package cmap

import (
	"sync"
	"testing"
)

func TestSetGet(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v, want 1, true", v, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get(missing) should not exist")
	}
	if n := m.Count(); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestDelete(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Delete("a")
	if m.Has("a") {
		t.Error("key should be gone after Delete")
	}
	// Deleting a missing key is a no-op.
	m.Delete("missing")
}

func TestGetOrSet(t *testing.T) {
	m := New[string, int]()

	v, existed := m.GetOrSet("a", 1)
	if existed || v != 1 {
		t.Errorf("GetOrSet(new) = %v, %v, want 1, false", v, existed)
	}

	v, existed = m.GetOrSet("a", 99)
	if !existed || v != 1 {
		t.Errorf("GetOrSet(existing) = %v, %v, want 1, true", v, existed)
	}
}

func TestRangeEarlyStop(t *testing.T) {
	m := New[int, int]()
	for i := 0; i < 100; i++ {
		m.Set(i, i)
	}

	seen := 0
	m.Range(func(_, _ int) bool {
		seen++
		return seen < 10
	})
	if seen != 10 {
		t.Errorf("Range visited %d items, want 10", seen)
	}
}

func TestInvalidShardCountFallsBack(t *testing.T) {
	m := NewWithShards[string, int](7)
	m.Set("a", 1)
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v, want 1, true", v, ok)
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New[int, int]()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				k := base*1000 + i
				m.Set(k, k)
				if v, ok := m.Get(k); !ok || v != k {
					t.Errorf("Get(%d) = %v, %v", k, v, ok)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if n := m.Count(); n != 8000 {
		t.Errorf("Count() = %d, want 8000", n)
	}
}
