package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"api-gateway/middleware/ratelimit/domain"
)

func TestFixedWindowStore_AdmitsUpToLimitThenRejects(t *testing.T) {
	s := NewFixedWindowStore(3, time.Minute)
	now := time.Now()
	key := domain.ClientKey("10.0.0.1", "/users")

	for i := 1; i <= 3; i++ {
		dec := s.Admit(key, now.Add(time.Duration(i)*time.Millisecond))
		if !dec.Allowed {
			t.Fatalf("request %d: expected allowed", i)
		}
		if dec.Remaining != 3-i {
			t.Fatalf("request %d: expected Remaining=%d, got %d", i, 3-i, dec.Remaining)
		}
	}

	dec := s.Admit(key, now.Add(10*time.Millisecond))
	if dec.Allowed {
		t.Fatalf("expected 4th request to be rejected")
	}
	if dec.Remaining != 0 || dec.Limit != 3 {
		t.Fatalf("expected Remaining=0 Limit=3, got %d/%d", dec.Remaining, dec.Limit)
	}
	// janela começou no 1º request (now+1ms)
	if dec.RetryAfter != time.Minute-9*time.Millisecond {
		t.Fatalf("expected RetryAfter until window end, got %s", dec.RetryAfter)
	}
}

func TestFixedWindowStore_ResetsAfterWindow(t *testing.T) {
	s := NewFixedWindowStore(2, time.Second)
	start := time.Now()
	key := domain.Key("k")

	s.Admit(key, start)
	s.Admit(key, start.Add(100*time.Millisecond))
	if dec := s.Admit(key, start.Add(500*time.Millisecond)); dec.Allowed {
		t.Fatalf("expected third request inside the window to be rejected")
	}

	// exatamente window depois do início: nova janela
	dec := s.Admit(key, start.Add(time.Second))
	if !dec.Allowed {
		t.Fatalf("expected request after window to be allowed")
	}
	if dec.Remaining != 1 {
		t.Fatalf("expected counter reset (Remaining=1), got %d", dec.Remaining)
	}
	if !dec.ResetAt.Equal(start.Add(2 * time.Second)) {
		t.Fatalf("expected new window to end at start+2s, got %s", dec.ResetAt.Sub(start))
	}
}

func TestFixedWindowStore_KeysAreIndependent(t *testing.T) {
	s := NewFixedWindowStore(1, time.Minute)
	now := time.Now()

	a := domain.ClientKey("10.0.0.1", "/users")
	b := domain.ClientKey("10.0.0.2", "/users")
	c := domain.ClientKey("10.0.0.1", "/auth")

	if !s.Admit(a, now).Allowed {
		t.Fatalf("expected first request for a to be allowed")
	}
	if s.Admit(a, now).Allowed {
		t.Fatalf("expected second request for a to be rejected")
	}
	if !s.Admit(b, now).Allowed {
		t.Fatalf("expected other client to be unaffected")
	}
	if !s.Admit(c, now).Allowed {
		t.Fatalf("expected same client on another route to be unaffected")
	}
}

func TestFixedWindowStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s := NewFixedWindowStore(1, time.Minute, WithMaxKeys(2))
	now := time.Now()

	s.Admit("a", now)
	s.Admit("b", now)
	// toca "a" para que "b" seja a menos recente
	s.Admit("a", now)
	s.Admit("c", now)

	if s.Len() != 2 {
		t.Fatalf("expected 2 tracked keys, got %d", s.Len())
	}
	if s.Tracks("b") {
		t.Fatalf("expected least recently used key to be evicted")
	}
	if !s.Tracks("a") || !s.Tracks("c") {
		t.Fatalf("expected a and c to be tracked")
	}
	if s.Evicted() != 1 {
		t.Fatalf("expected 1 eviction, got %d", s.Evicted())
	}
}

func TestFixedWindowStore_ConcurrentAdmitsNeverExceedLimit(t *testing.T) {
	const limit = 50
	s := NewFixedWindowStore(limit, time.Minute)
	now := time.Now()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Admit("shared", now).Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != limit {
		t.Fatalf("expected exactly %d admitted, got %d", limit, got)
	}
}

func TestFixedWindowStore_CleanupRemovesIdleEntries(t *testing.T) {
	s := NewFixedWindowStore(1, time.Minute, WithIdleTTL(time.Minute), WithCleanupEvery(0))

	s.Admit("old", time.Now().Add(-2*time.Minute))
	s.Admit("fresh", time.Now())

	if removed := s.Cleanup(); removed != 1 {
		t.Fatalf("expected 1 entry removed, got %d", removed)
	}
	if s.Tracks("old") || !s.Tracks("fresh") {
		t.Fatalf("expected only the idle key to be removed")
	}
}

func TestFixedWindowStore_JanitorRunsUntilCanceled(t *testing.T) {
	s := NewFixedWindowStore(1, time.Minute, WithIdleTTL(time.Millisecond), WithCleanupEvery(5*time.Millisecond))
	s.Admit("k", time.Now().Add(-time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx)

	deadline := time.Now().Add(time.Second)
	for s.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected janitor to remove idle key")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
