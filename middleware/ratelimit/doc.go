// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, acquire/timeout) sem net/http
//   - infra: implementações concretas (janela fixa, token bucket, semáforo, stats)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//   1) O dispatcher (pacote gateway) resolve a rota e monta a chave (cliente, rota)
//   2) Chama a camada application para obter a decisão
//   3) Se bloqueado, responde 429 via Reject (envelope + Retry-After)
//   4) ConcurrencyMiddleware fica na frente de tudo e responde 503 quando lotado
//
// Middleware (chave só do cliente) continua disponível para servidores comuns,
// como o cmd/example-server.
package ratelimit
