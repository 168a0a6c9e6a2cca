package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/docker/go-units"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"api-gateway/gateway/domain"
	"api-gateway/gateway/envelope"
	rlapp "api-gateway/middleware/ratelimit/application"
	rlinfra "api-gateway/middleware/ratelimit/infra"
)

// LimiterTable é o que o admin enxerga da tabela de janelas.
type LimiterTable interface {
	Len() int
	Evicted() int64
}

// StatsHistory lê contadores acumulados fora do processo (Redis).
type StatsHistory interface {
	Snapshot(ctx context.Context) (rlinfra.StatsSnapshot, error)
}

type AdminOptions struct {
	Routes      domain.RouteTable
	Stats       *rlinfra.MemoryStatsStore
	History     StatsHistory
	Limiter     LimiterTable
	Concurrency rlapp.ConcurrencyService
	Started     time.Time
}

type routeView struct {
	Route            string `json:"route"`
	Target           string `json:"target"`
	PreserveBasePath bool   `json:"preserve_base_path"`
}

type statsView struct {
	Total       rlinfra.Counters            `json:"total"`
	Routes      map[string]rlinfra.Counters `json:"routes"`
	Keys        map[string]rlinfra.Counters `json:"keys,omitempty"`
	Limiter     *limiterView                `json:"limiter,omitempty"`
	Concurrency *concurrencyView            `json:"concurrency,omitempty"`
}

type limiterView struct {
	TrackedKeys int   `json:"tracked_keys"`
	Evicted     int64 `json:"evicted"`
}

type concurrencyView struct {
	InUse     int `json:"in_use"`
	Capacity  int `json:"capacity"`
	Available int `json:"available"`
}

// AdminRouter monta o router do listener de administração.
func AdminRouter(opts AdminOptions) http.Handler {
	if opts.Started.IsZero() {
		opts.Started = time.Now()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestID)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		envelope.Write(w, http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		envelope.Write(w, http.StatusMethodNotAllowed)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"uptime": units.HumanDuration(time.Since(opts.Started)),
		})
	})

	r.Get("/routes", func(w http.ResponseWriter, _ *http.Request) {
		out := []routeView{}
		if opts.Routes != nil {
			for _, b := range opts.Routes.Bindings() {
				out = append(out, routeView{
					Route:            b.Prefix,
					Target:           b.Target.String(),
					PreserveBasePath: b.PreserveBasePath,
				})
			}
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		v := statsView{Routes: map[string]rlinfra.Counters{}}
		if opts.Stats != nil {
			v.Total = opts.Stats.Total()
			v.Routes = opts.Stats.ByRoute()
			if keys := opts.Stats.ByKey(); len(keys) > 0 {
				v.Keys = keys
			}
		}
		if opts.Limiter != nil {
			v.Limiter = &limiterView{
				TrackedKeys: opts.Limiter.Len(),
				Evicted:     opts.Limiter.Evicted(),
			}
		}
		if p := opts.Concurrency.Pool; p != nil {
			v.Concurrency = &concurrencyView{
				InUse:     p.InUse(),
				Capacity:  p.Capacity(),
				Available: opts.Concurrency.Available(),
			}
		}
		writeJSON(w, http.StatusOK, v)
	})

	// /stats/history só existe com o Redis ligado
	if opts.History != nil {
		r.Get("/stats/history", func(w http.ResponseWriter, req *http.Request) {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			snap, err := opts.History.Snapshot(ctx)
			if err != nil {
				envelope.Write(w, http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
