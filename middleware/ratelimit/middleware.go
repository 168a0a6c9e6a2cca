package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"api-gateway/gateway/envelope"
	"api-gateway/middleware/ratelimit/application"
	"api-gateway/middleware/ratelimit/domain"
)

type KeyFunc func(r *http.Request) string

// Options configura o Middleware genérico (sem rotas): a chave é só o cliente.
// O gateway usa o rate limit por (cliente, rota) dentro do dispatcher; este
// middleware serve para proteger um servidor comum.
type Options struct {
	Store               domain.LimiterStore
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	Now                 func() time.Time
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	svc := application.Service{
		Store:      opts.Store,
		RetryAfter: opts.RetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(opts.KeyFn(r))
			now := opts.Now()

			dec := svc.Decide(key, now)
			if opts.AddRateLimitHeaders {
				SetHeaders(w.Header(), key, dec, now)
			}

			if opts.Stats != nil {
				outcome := domain.OutcomeCompleted
				if !dec.Allowed {
					outcome = domain.OutcomeRateLimited
				}
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     key,
					Outcome: outcome,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      now,
				})
			}
			if !dec.Allowed {
				Reject(w, dec)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Reject responde 429 com Retry-After e o envelope de erro.
func Reject(w http.ResponseWriter, dec domain.Decision) {
	w.Header().Set("Retry-After", formatInt(retryAfterSeconds(dec.RetryAfter)))
	envelope.Write(w, http.StatusTooManyRequests)
}

// SetHeaders publica o estado do limite (X-RateLimit-*).
func SetHeaders(h http.Header, key domain.Key, dec domain.Decision, now time.Time) {
	h.Set("X-RateLimit-Key", string(key))
	if dec.Limit <= 0 {
		return
	}
	h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
	if !dec.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", formatFloat(dec.ResetAt.Sub(now).Seconds()))
	}
}

// retryAfterSeconds arredonda para baixo, mas nunca devolve 0 para um atraso positivo.
func retryAfterSeconds(d time.Duration) int {
	s := int(d.Seconds())
	if s == 0 && d > 0 {
		return 1
	}
	return s
}
