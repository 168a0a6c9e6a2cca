package application

import (
	"fmt"
	"time"

	"api-gateway/gateway/domain"
	rlapp "api-gateway/middleware/ratelimit/application"
	rldomain "api-gateway/middleware/ratelimit/domain"
)

type Admission struct {
	Routes  domain.RouteTable
	Limiter rlapp.Service
}

// Ticket é o resultado da admissão. Em 429 ele ainda carrega a rota e a
// decisão, para headers e estatísticas.
type Ticket struct {
	Binding  domain.RouteBinding
	Key      rldomain.Key
	Decision rldomain.Decision
}

// Admit leva o trace de Received até Forwarding, ou até Rejected404/Rejected429.
// Uma requisição sem rota nunca consome cota.
func (a Admission) Admit(trace *domain.Trace, path, client string, now time.Time) (Ticket, error) {
	trace.Advance(domain.Matching)
	b, ok := a.Routes.Resolve(path)
	if !ok {
		trace.Advance(domain.Rejected404)
		return Ticket{}, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}

	trace.Advance(domain.RateChecking)
	key := rldomain.ClientKey(client, b.Prefix)
	dec := a.Limiter.Decide(key, now)
	t := Ticket{Binding: b, Key: key, Decision: dec}
	if !dec.Allowed {
		trace.Advance(domain.Rejected429)
		return t, fmt.Errorf("%w: %s", domain.ErrRateLimited, key)
	}

	trace.Advance(domain.Forwarding)
	return t, nil
}

// Finish fecha o trace depois do repasse.
func Finish(trace *domain.Trace, err error) {
	if err != nil {
		trace.Advance(domain.Failed504)
		return
	}
	trace.Advance(domain.Completed)
}
