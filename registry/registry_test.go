package registry

import (
	"sync"
	"testing"
	"time"
)

func TestSetGetRemove(t *testing.T) {
	m := New[int]()

	if _, ok := m.Get("a"); ok {
		t.Fatalf("expected missing key to report ok=false")
	}

	m.Set("a", 1)
	v, ok := m.Get("a")
	if !ok || v != 1 {
		t.Fatalf("expected (1, true), got (%d, %v)", v, ok)
	}

	removed, ok := m.Remove("a")
	if !ok || removed != 1 {
		t.Fatalf("expected Remove to return (1, true), got (%d, %v)", removed, ok)
	}
	if _, ok := m.Get("a"); ok {
		t.Fatalf("expected key to be gone after Remove")
	}
}

func TestSetIfAbsent(t *testing.T) {
	m := New[string]()

	if !m.SetIfAbsent("k", "first") {
		t.Fatalf("expected first SetIfAbsent to succeed")
	}
	if m.SetIfAbsent("k", "second") {
		t.Fatalf("expected second SetIfAbsent on same key to fail")
	}

	v, _ := m.Get("k")
	if v != "first" {
		t.Fatalf("expected value to remain %q, got %q", "first", v)
	}
}

func TestRangeAndLen(t *testing.T) {
	m := New[int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	if m.Len() != 3 {
		t.Fatalf("expected len 3, got %d", m.Len())
	}

	sum := 0
	m.Range(func(_ string, v int) { sum += v })
	if sum != 6 {
		t.Fatalf("expected sum 6, got %d", sum)
	}
}

func TestLockTableSerializesSameKey(t *testing.T) {
	lt := NewLockTable()
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock := lt.Lock("shared")
			counter++
			lock.Unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("expected counter 50, got %d", counter)
	}
}

func TestLockTableDistinctKeysDoNotBlockEachOther(t *testing.T) {
	lt := NewLockTable()

	lockA := lt.Lock("a")
	done := make(chan struct{})
	go func() {
		lockB := lt.Lock("b")
		lockB.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected Lock(\"b\") not to wait while \"a\" is held")
	}
	lockA.Unlock()
	<-done
}
