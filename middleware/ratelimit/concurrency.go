package ratelimit

import (
	"net/http"
	"time"

	"api-gateway/gateway/envelope"
	"api-gateway/middleware/ratelimit/application"
	"api-gateway/middleware/ratelimit/domain"
	"api-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// OnReject é chamado quando não há vaga (ex.: registrar estatística).
	OnReject func(r *http.Request)
}

// NewConcurrencyService monta o serviço com o pool de canal; Max <= 0 desliga o limite.
func NewConcurrencyService(opts ConcurrencyOptions) application.ConcurrencyService {
	var pool domain.SlotPool
	if opts.Max > 0 {
		pool = infra.NewChanPool(opts.Max)
	}
	return application.ConcurrencyService{
		Pool:           pool,
		AcquireTimeout: opts.AcquireTimeout,
	}
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	return ConcurrencyMiddlewareWith(NewConcurrencyService(opts), opts)
}

// ConcurrencyMiddlewareWith usa um serviço já criado (compartilhado com o admin).
func ConcurrencyMiddlewareWith(svc application.ConcurrencyService, opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if svc.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				if opts.OnReject != nil {
					opts.OnReject(r)
				}
				envelope.Write(w, opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
