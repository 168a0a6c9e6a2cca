package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"api-gateway/gateway/application"
	"api-gateway/gateway/domain"
	"api-gateway/gateway/envelope"
	"api-gateway/gateway/infra"
	"api-gateway/middleware/ratelimit"
	rlapp "api-gateway/middleware/ratelimit/application"
	rldomain "api-gateway/middleware/ratelimit/domain"
)

// Forwarder é o motor de repasse usado pelo Dispatcher (infra.Forwarder).
type Forwarder interface {
	Forward(ctx context.Context, b domain.RouteBinding, r *http.Request) (*infra.BackendResponse, error)
}

type Options struct {
	Routes    domain.RouteTable
	Limiter   rlapp.Service
	Forwarder Forwarder

	// KeyFn identifica o cliente; padrão é o IP de RemoteAddr.
	KeyFn ratelimit.KeyFunc
	// Stats recebe o desfecho de cada requisição (best-effort).
	Stats  rldomain.StatsStore
	Logger *zap.Logger

	AddRateLimitHeaders bool
	Now                 func() time.Time
}

type Dispatcher struct {
	admission  application.Admission
	forwarder  Forwarder
	keyFn      ratelimit.KeyFunc
	stats      rldomain.StatsStore
	log        *zap.Logger
	addHeaders bool
	now        func() time.Time
}

func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Routes == nil {
		return nil, errors.New("dispatcher: route table is required")
	}
	if opts.Forwarder == nil {
		return nil, errors.New("dispatcher: forwarder is required")
	}
	if opts.KeyFn == nil {
		opts.KeyFn = ratelimit.DefaultKeyFunc("", false)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Dispatcher{
		admission: application.Admission{
			Routes:  opts.Routes,
			Limiter: opts.Limiter,
		},
		forwarder:  opts.Forwarder,
		keyFn:      opts.KeyFn,
		stats:      opts.Stats,
		log:        opts.Logger,
		addHeaders: opts.AddRateLimitHeaders,
		now:        opts.Now,
	}, nil
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := d.now()
	reqID := ensureRequestID(w, r)
	client := d.keyFn(r)

	trace := domain.NewTrace()
	ticket, err := d.admission.Admit(trace, r.URL.Path, client, start)
	if d.addHeaders && ticket.Key != "" {
		ratelimit.SetHeaders(w.Header(), ticket.Key, ticket.Decision, start)
	}

	var status int
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
		ratelimit.Reject(w, ticket.Decision)

	case err != nil:
		status = domain.StatusFor(err)
		envelope.Write(w, status)

	default:
		resp, ferr := d.forwarder.Forward(r.Context(), ticket.Binding, r)
		application.Finish(trace, ferr)
		if ferr != nil {
			err = ferr
			status = http.StatusGatewayTimeout
			envelope.Write(w, status)
			break
		}
		status = resp.StatusCode
		writeBackend(w, resp)
	}

	d.finish(r, requestLog{
		reqID:    reqID,
		client:   client,
		ticket:   ticket,
		state:    trace.State(),
		status:   status,
		err:      err,
		start:    start,
		duration: d.now().Sub(start),
	})
}

func writeBackend(w http.ResponseWriter, resp *infra.BackendResponse) {
	h := w.Header()
	for k, vs := range resp.Header {
		// headers já definidos pelo gateway (request id, CORS, segurança) prevalecem
		if _, set := h[k]; set {
			continue
		}
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

type requestLog struct {
	reqID    string
	client   string
	ticket   application.Ticket
	state    domain.State
	status   int
	err      error
	start    time.Time
	duration time.Duration
}

func (d *Dispatcher) finish(r *http.Request, l requestLog) {
	outcome := outcomeFor(l.state, l.err)

	fields := []zap.Field{
		zap.String("request_id", l.reqID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("route", l.ticket.Binding.Prefix),
		zap.String("client", l.client),
		zap.String("state", l.state.String()),
		zap.Int("status", l.status),
		zap.Duration("duration", l.duration),
	}
	if l.state == domain.Failed504 {
		fields = append(fields,
			zap.String("error_kind", infra.ErrorKind(l.err)),
			zap.Error(l.err),
		)
		if l.ticket.Binding.Target != nil {
			fields = append(fields, zap.String("target", l.ticket.Binding.Target.Host))
		}
		d.log.Warn("backend request failed", fields...)
	} else {
		d.log.Info("request", fields...)
	}

	if d.stats == nil {
		return
	}
	key := l.ticket.Key
	if key == "" {
		key = rldomain.Key(l.client)
	}
	ev := rldomain.StatsEvent{
		Key:      key,
		Route:    l.ticket.Binding.Prefix,
		Outcome:  outcome,
		Method:   r.Method,
		Path:     r.URL.Path,
		At:       l.start,
		Duration: l.duration,
	}
	if err := d.stats.Record(context.WithoutCancel(r.Context()), ev); err != nil {
		d.log.Debug("stats record failed", zap.String("request_id", l.reqID), zap.Error(err))
	}
}

func outcomeFor(s domain.State, err error) rldomain.Outcome {
	switch s {
	case domain.Completed:
		return rldomain.OutcomeCompleted
	case domain.Rejected404:
		return rldomain.OutcomeNotFound
	case domain.Rejected429:
		return rldomain.OutcomeRateLimited
	case domain.Failed504:
		if errors.Is(err, domain.ErrTimeout) {
			return rldomain.OutcomeTimeout
		}
		return rldomain.OutcomeUnreachable
	default:
		panic(fmt.Sprintf("gateway: request finished in non-terminal state %s", s))
	}
}
