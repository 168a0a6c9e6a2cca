package infra

import (
	"time"

	"api-gateway/middleware/ratelimit/domain"
)

// FixedWindowStore conta requisições por chave em janelas fixas.
//
// A janela de uma chave começa na primeira requisição e reinicia quando
// `now - inicio >= window`. A (max+1)-ésima requisição dentro da mesma janela
// é rejeitada.
type FixedWindowStore struct {
	cfg    storeConfig
	max    int
	window time.Duration
	table  *keyTable[fixedWindow]
}

type fixedWindow struct {
	start time.Time
	count int
}

func NewFixedWindowStore(maxRequests int, window time.Duration, opts ...StoreOption) *FixedWindowStore {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FixedWindowStore{
		cfg:    cfg,
		max:    maxRequests,
		window: window,
		table:  newKeyTable[fixedWindow](cfg.maxKeys),
	}
}

func (s *FixedWindowStore) Limit() int { return s.max }
func (s *FixedWindowStore) Window() time.Duration { return s.window }
func (s *FixedWindowStore) CleanupEvery() time.Duration { return s.cfg.cleanupEvery }
func (s *FixedWindowStore) Len() int { return s.table.len() }
func (s *FixedWindowStore) Evicted() int64 { return s.table.evictions() }

// Tracks informa se a chave ainda tem janela em memória.
func (s *FixedWindowStore) Tracks(key domain.Key) bool { return s.table.contains(key) }

// Admit implementa domain.LimiterStore.
func (s *FixedWindowStore) Admit(key domain.Key, now time.Time) domain.Decision {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	sl := s.table.getOrCreate(key, now, func() fixedWindow {
		return fixedWindow{start: now}
	})
	w := &sl.val

	if now.Sub(w.start) >= s.window {
		w.start = now
		w.count = 0
	}
	w.count++

	resetAt := w.start.Add(s.window)
	dec := domain.Decision{
		Allowed:   w.count <= s.max,
		Limit:     s.max,
		Remaining: max(s.max-w.count, 0),
		ResetAt:   resetAt,
	}
	if !dec.Allowed {
		dec.RetryAfter = resetAt.Sub(now)
	}
	return dec
}

// Cleanup descarta janelas sem uso há mais de idleTTL.
func (s *FixedWindowStore) Cleanup() int {
	return s.table.cleanup(time.Now().Add(-s.cfg.idleTTL))
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *FixedWindowStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cfg.cleanupEvery, s.Cleanup)
}
