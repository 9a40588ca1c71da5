package apisession

import (
	"sync"
	"testing"
	"time"
)

type testState struct {
	Counter int
}

func TestGetOrCreate(t *testing.T) {
	s := New(time.Minute, func() *testState { return &testState{} })

	a := s.Get("a")
	if a == nil {
		t.Fatal("Get returned nil")
	}
	a.Counter = 42

	a2 := s.Get("a")
	if a2 != a {
		t.Error("expected same pointer for same session ID")
	}
	if a2.Counter != 42 {
		t.Errorf("expected Counter=42, got %d", a2.Counter)
	}

	b := s.Get("b")
	if b == a {
		t.Error("different session IDs should return different pointers")
	}
	if s.Len() != 2 {
		t.Errorf("expected Len()=2, got %d", s.Len())
	}
}

func TestPeekDoesNotCreate(t *testing.T) {
	s := New(time.Minute, func() *testState { return &testState{} })

	if _, ok := s.Peek("missing"); ok {
		t.Error("Peek should not find an unknown session")
	}
	if s.Len() != 0 {
		t.Errorf("Peek must not create sessions, got Len()=%d", s.Len())
	}

	s.Get("a")
	if _, ok := s.Peek("a"); !ok {
		t.Error("Peek should find an existing session")
	}
}

func TestCleanupEvictsIdle(t *testing.T) {
	s := New(50*time.Millisecond, func() *testState { return &testState{} })

	s.Get("ephemeral")
	time.Sleep(80 * time.Millisecond)

	if dropped := s.Cleanup(); dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", dropped)
	}
	if s.Len() != 0 {
		t.Errorf("expected 0 after TTL expiry, got %d", s.Len())
	}
}

func TestCleanupKeepsActive(t *testing.T) {
	s := New(50*time.Millisecond, func() *testState { return &testState{} })

	s.Get("keep")
	time.Sleep(30 * time.Millisecond)
	s.Get("keep")
	time.Sleep(30 * time.Millisecond)

	s.Cleanup()
	if s.Len() != 1 {
		t.Errorf("refreshed session should survive cleanup, got Len()=%d", s.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New(time.Minute, func() *testState { return &testState{} })
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Get("session")
		}()
	}
	wg.Wait()

	if s.Len() != 1 {
		t.Errorf("expected 1 session, got %d", s.Len())
	}
}
