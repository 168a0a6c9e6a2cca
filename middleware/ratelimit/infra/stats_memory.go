package infra

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/puzpuzpuz/xsync/v4"

	"api-gateway/middleware/ratelimit/domain"
)

// UnmatchedRoute agrupa requisições que não casaram com nenhuma rota.
const UnmatchedRoute = "(unmatched)"

// Counters é a fotografia dos contadores de uma rota/chave.
type Counters struct {
	Completed   int64 `json:"completed"`
	NotFound    int64 `json:"not_found"`
	RateLimited int64 `json:"rate_limited"`
	Timeout     int64 `json:"timeout"`
	Unreachable int64 `json:"unreachable"`
	Unavailable int64 `json:"unavailable"`
}

// Allowed soma as requisições que passaram pelo rate limit.
func (c Counters) Allowed() int64 { return c.Completed + c.Timeout + c.Unreachable }

// Denied soma as requisições barradas pelo rate limit.
func (c Counters) Denied() int64 { return c.RateLimited }

type outcomeCounters struct {
	completed   *xsync.Counter
	notFound    *xsync.Counter
	rateLimited *xsync.Counter
	timeout     *xsync.Counter
	unreachable *xsync.Counter
	unavailable *xsync.Counter
}

func newOutcomeCounters() *outcomeCounters {
	return &outcomeCounters{
		completed:   xsync.NewCounter(),
		notFound:    xsync.NewCounter(),
		rateLimited: xsync.NewCounter(),
		timeout:     xsync.NewCounter(),
		unreachable: xsync.NewCounter(),
		unavailable: xsync.NewCounter(),
	}
}

func (c *outcomeCounters) inc(o domain.Outcome) {
	switch o {
	case domain.OutcomeCompleted:
		c.completed.Inc()
	case domain.OutcomeNotFound:
		c.notFound.Inc()
	case domain.OutcomeRateLimited:
		c.rateLimited.Inc()
	case domain.OutcomeTimeout:
		c.timeout.Inc()
	case domain.OutcomeUnreachable:
		c.unreachable.Inc()
	case domain.OutcomeUnavailable:
		c.unavailable.Inc()
	}
}

func (c *outcomeCounters) snapshot() Counters {
	return Counters{
		Completed:   c.completed.Value(),
		NotFound:    c.notFound.Value(),
		RateLimited: c.rateLimited.Value(),
		Timeout:     c.timeout.Value(),
		Unreachable: c.unreachable.Value(),
		Unavailable: c.unavailable.Value(),
	}
}

// MemoryStatsStore guarda os contadores em memória.
// Alimenta o endpoint /stats do admin e os testes.
//
// Total e rotas não usam lock (xsync); rotas vêm da config, então são poucas.
// Com trackKeys=true os contadores por chave ficam num LRU limitado a
// maxKeys (padrão DefaultMaxKeys): a chave menos recente sai primeiro.
type MemoryStatsStore struct {
	total   *outcomeCounters
	byRoute *xsync.Map[string, *outcomeCounters]

	mu      sync.Mutex
	byKey   *simplelru.LRU[string, *outcomeCounters]
	evicted atomic.Int64

	trackKeys bool
	maxKeys   int
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

// WithMaxTrackedKeys limita os contadores por chave. <= 0 usa DefaultMaxKeys.
func WithMaxTrackedKeys(n int) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.maxKeys = n }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		total:   newOutcomeCounters(),
		byRoute: xsync.NewMap[string, *outcomeCounters](),
		maxKeys: DefaultMaxKeys,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxKeys <= 0 {
		s.maxKeys = DefaultMaxKeys
	}
	// só falha com tamanho <= 0
	s.byKey, _ = simplelru.NewLRU[string, *outcomeCounters](s.maxKeys, func(string, *outcomeCounters) {
		s.evicted.Add(1)
	})
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Route
	if route == "" {
		route = UnmatchedRoute
	}

	s.total.inc(ev.Outcome)
	getOrInit(s.byRoute, route).inc(ev.Outcome)
	if s.trackKeys && ev.Key != "" {
		s.keyCounters(string(ev.Key)).inc(ev.Outcome)
	}
	return nil
}

func (s *MemoryStatsStore) keyCounters(k string) *outcomeCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byKey.Get(k); ok {
		return c
	}
	c := newOutcomeCounters()
	s.byKey.Add(k, c)
	return c
}

func getOrInit(m *xsync.Map[string, *outcomeCounters], k string) *outcomeCounters {
	c, _ := m.LoadOrCompute(k, func() (*outcomeCounters, bool) {
		return newOutcomeCounters(), false
	})
	return c
}

func (s *MemoryStatsStore) Total() Counters { return s.total.snapshot() }

func (s *MemoryStatsStore) ByRoute() map[string]Counters { return snapshotAll(s.byRoute) }

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, s.byKey.Len())
	for _, k := range s.byKey.Keys() {
		if c, ok := s.byKey.Peek(k); ok {
			out[k] = c.snapshot()
		}
	}
	return out
}

// EvictedKeys conta as chaves descartadas pelo LRU de contadores por chave.
func (s *MemoryStatsStore) EvictedKeys() int64 { return s.evicted.Load() }

func snapshotAll(m *xsync.Map[string, *outcomeCounters]) map[string]Counters {
	out := make(map[string]Counters, m.Size())
	m.Range(func(k string, c *outcomeCounters) bool {
		out[k] = c.snapshot()
		return true
	})
	return out
}
