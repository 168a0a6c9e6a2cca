package domain

import (
	"context"
	"time"
)

// Outcome é o estado terminal de uma requisição no gateway.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeUnreachable Outcome = "unreachable"
	OutcomeUnavailable Outcome = "unavailable"
)

// StatsEvent representa o desfecho de uma requisição.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus). Por isso
// os agregadores usam Route (prefixo configurado) e não Path.
type StatsEvent struct {
	Key     Key
	Route   string
	Outcome Outcome

	Method string
	Path   string

	At       time.Time
	Duration time.Duration
}

// Allowed indica se a requisição passou pelo rate limit.
func (ev StatsEvent) Allowed() bool {
	return ev.Outcome != OutcomeRateLimited && ev.Outcome != OutcomeNotFound
}

// StatsStore é a estratégia de persistência para estatísticas.
//
// Implementações podem armazenar em Redis, memória, etc.
// O gateway trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
