package infra

import (
	"time"

	"api-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// TokenBucketStore é a alternativa à janela fixa baseada em token-bucket
// (x/time/rate), com um limiter por chave na mesma tabela LRU.
type TokenBucketStore struct {
	cfg   storeConfig
	rps   rate.Limit
	burst int
	table *keyTable[*rate.Limiter]
}

func NewTokenBucketStore(rps float64, burst int, opts ...StoreOption) *TokenBucketStore {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TokenBucketStore{
		cfg:   cfg,
		rps:   rate.Limit(rps),
		burst: burst,
		table: newKeyTable[*rate.Limiter](cfg.maxKeys),
	}
}

// NewTokenBucketStoreForWindow converte "max por janela" em taxa + burst:
// o bucket começa cheio (max) e reabastece max tokens a cada janela.
func NewTokenBucketStoreForWindow(maxRequests int, window time.Duration, opts ...StoreOption) *TokenBucketStore {
	rps := 0.0
	if window > 0 {
		rps = float64(maxRequests) / window.Seconds()
	}
	return NewTokenBucketStore(rps, maxRequests, opts...)
}

func (s *TokenBucketStore) RPS() float64 { return float64(s.rps) }
func (s *TokenBucketStore) Burst() int { return s.burst }
func (s *TokenBucketStore) CleanupEvery() time.Duration { return s.cfg.cleanupEvery }
func (s *TokenBucketStore) Len() int { return s.table.len() }
func (s *TokenBucketStore) Evicted() int64 { return s.table.evictions() }

// Limiter devolve (criando se preciso) o limiter da chave.
func (s *TokenBucketStore) Limiter(key domain.Key, now time.Time) *rate.Limiter {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	sl := s.table.getOrCreate(key, now, func() *rate.Limiter {
		return rate.NewLimiter(s.rps, s.burst)
	})
	return sl.val
}

// Admit implementa domain.LimiterStore.
func (s *TokenBucketStore) Admit(key domain.Key, now time.Time) domain.Decision {
	// rate.Limiter já é thread-safe; a tabela só precisa de lock na busca
	lim := s.Limiter(key, now)

	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)

	dec := domain.Decision{
		Allowed:   allowed,
		Limit:     s.burst,
		Remaining: max(int(tokens), 0),
		ResetAt:   now.Add(s.refill(float64(s.burst) - tokens)),
	}
	if !allowed {
		dec.RetryAfter = s.refill(1 - tokens)
	}
	return dec
}

// refill estima quanto tempo leva para acumular n tokens.
func (s *TokenBucketStore) refill(n float64) time.Duration {
	if n <= 0 || s.rps <= 0 {
		return 0
	}
	return time.Duration(n / float64(s.rps) * float64(time.Second))
}

func (s *TokenBucketStore) Cleanup() int {
	return s.table.cleanup(time.Now().Add(-s.cfg.idleTTL))
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *TokenBucketStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cfg.cleanupEvery, s.Cleanup)
}
