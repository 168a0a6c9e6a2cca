package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

type Key string

// ClientKey monta a chave composta (cliente, rota).
// Duas requisições do mesmo endereço para rotas diferentes são contadas separadamente.
func ClientKey(clientAddr, routePrefix string) Key {
	return Key(clientAddr + "|" + routePrefix)
}

// LimiterStore decide, de forma atômica por chave, se a requisição entra.
//
// A implementação pode ser janela fixa, token-bucket, etc.
// O `now` vem de fora para que testes controlem o relógio.
type LimiterStore interface {
	Admit(key Key, now time.Time) Decision
}

type Decision struct {
	Allowed bool

	// Limit é o máximo de requisições por janela; 0 quando não há limite.
	Limit     int
	Remaining int
	ResetAt   time.Time

	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
