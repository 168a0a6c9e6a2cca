package application

import (
	"time"

	"api-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// O Store é compartilhado por todas as requisições e vive o processo inteiro.
type Service struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

func (s Service) Decide(key domain.Key, now time.Time) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	dec := s.Store.Admit(key, now)
	if dec.Allowed {
		dec.RetryAfter = 0
		return dec
	}
	// o store sabe quando a janela reinicia; sem isso, usa o padrão
	if dec.RetryAfter <= 0 {
		dec.RetryAfter = s.RetryAfter
	}
	return dec
}
