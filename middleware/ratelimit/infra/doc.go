// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - FixedWindowStore: janela fixa por chave (padrão do gateway)
//   - TokenBucketStore: token bucket por chave usando golang.org/x/time/rate
//   - ambos guardam estado numa tabela LRU limitada (hashicorp/golang-lru)
//   - ChanPool: semáforo simples para limite de concorrência
//   - MemoryStatsStore (xsync) / RedisStatsStore: contadores de desfecho por rota
package infra
