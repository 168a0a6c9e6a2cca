package infra

import (
	"sync"
	"time"

	"api-gateway/middleware/ratelimit/domain"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultMaxKeys é o teto padrão de chaves rastreadas por store.
const DefaultMaxKeys = 10000

// keyTable é a tabela limitada (LRU) de estado por chave usada pelos stores.
//
// Toda leitura/escrita de um slot acontece com mu travado: o LRU do simplelru
// não é thread-safe e a sequência "consulta, reinicia, incrementa" precisa ser
// uma única seção crítica.
type keyTable[V any] struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[domain.Key, *slot[V]]
	evicted int64
}

type slot[V any] struct {
	val      V
	lastSeen time.Time
}

func newKeyTable[V any](maxKeys int) *keyTable[V] {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	lru, err := simplelru.NewLRU[domain.Key, *slot[V]](maxKeys, nil)
	if err != nil {
		// só acontece com tamanho <= 0, já tratado acima
		panic(err)
	}
	return &keyTable[V]{lru: lru}
}

// getOrCreate devolve o slot da chave, criando se necessário. Ao criar com a
// tabela cheia, a chave usada há mais tempo é descartada.
// Deve ser chamado com mu travado.
func (t *keyTable[V]) getOrCreate(key domain.Key, now time.Time, create func() V) *slot[V] {
	if s, ok := t.lru.Get(key); ok {
		s.lastSeen = now
		return s
	}
	s := &slot[V]{val: create(), lastSeen: now}
	if t.lru.Add(key, s) {
		t.evicted++
	}
	return s
}

// cleanup remove slots sem uso desde antes de cutoff e retorna quantos saíram.
func (t *keyTable[V]) cleanup(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for _, k := range t.lru.Keys() {
		s, ok := t.lru.Peek(k)
		if ok && s.lastSeen.Before(cutoff) {
			t.lru.Remove(k)
			removed++
		}
	}
	return removed
}

func (t *keyTable[V]) contains(key domain.Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Contains(key)
}

func (t *keyTable[V]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len()
}

func (t *keyTable[V]) evictions() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evicted
}

type storeConfig struct {
	maxKeys      int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

func defaultStoreConfig() storeConfig {
	return storeConfig{
		maxKeys:      DefaultMaxKeys,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
}

type StoreOption func(*storeConfig)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(c *storeConfig) { c.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(c *storeConfig) { c.cleanupEvery = d }
}

// WithMaxKeys limita quantas chaves ficam em memória (LRU). <= 0 usa DefaultMaxKeys.
func WithMaxKeys(n int) StoreOption {
	return func(c *storeConfig) { c.maxKeys = n }
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}

// startJanitor roda cleanup a cada `every` até o contexto encerrar.
func startJanitor(ctx DoneContext, every time.Duration, cleanup func() int) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				cleanup()
			}
		}
	}()
}
