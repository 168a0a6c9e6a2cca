package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"api-gateway/config"
	"api-gateway/gateway"
	"api-gateway/gateway/infra"
	"api-gateway/logging"
	"api-gateway/middleware/ratelimit"
	rlapp "api-gateway/middleware/ratelimit/application"
	rldomain "api-gateway/middleware/ratelimit/domain"
	rlinfra "api-gateway/middleware/ratelimit/infra"
)

// limiterStore é o store de janelas com o que o main precisa além de Admit.
type limiterStore interface {
	rldomain.LimiterStore
	gateway.LimiterTable
	StartJanitor(ctx rlinfra.DoneContext)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		// ainda sem logger configurado
		boot, _ := zap.NewProduction()
		boot.Fatal("config error", zap.Error(err))
	}

	logger, cleanup, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	bindings, err := cfg.Bindings()
	if err != nil {
		logger.Fatal("invalid routes", zap.Error(err))
	}
	routes, err := infra.NewRouteTable(bindings)
	if err != nil {
		logger.Fatal("invalid routes", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store limiterStore
	if cfg.RateEnabled {
		store = newLimiterStore(cfg)
		store.StartJanitor(ctx)
	}

	memStats := rlinfra.NewMemoryStatsStore(
		rlinfra.WithTrackKeys(cfg.Stats.TrackKeys),
		rlinfra.WithMaxTrackedKeys(cfg.RateMaxKeys),
	)
	stats := rlinfra.MultiStatsStore{memStats}
	var history gateway.StatsHistory
	if cfg.Stats.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			logger.Fatal("redis stats ping error", zap.String("addr", cfg.Stats.RedisAddr), zap.Error(err))
		}

		redisStats := rlinfra.NewRedisStatsStore(
			rdb,
			rlinfra.WithStatsPrefix(cfg.Stats.Prefix),
			rlinfra.WithStatsTTL(cfg.Stats.TTL),
			rlinfra.WithStatsBucket(cfg.Stats.Bucket),
			rlinfra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		)
		stats = append(stats, redisStats)
		history = redisStats
	}

	limiter := rlapp.Service{}
	if store != nil {
		limiter.Store = store
	}

	dispatcher, err := gateway.NewDispatcher(gateway.Options{
		Routes:              routes,
		Limiter:             limiter,
		Forwarder:           infra.NewForwarder(infra.ForwarderOptions{Timeout: cfg.RequestTimeout}),
		KeyFn:               ratelimit.DefaultKeyFunc(cfg.RateKeyHeader, cfg.TrustXFF),
		Stats:               stats,
		Logger:              logger.Named("dispatcher"),
		AddRateLimitHeaders: cfg.AddHeaders,
	})
	if err != nil {
		logger.Fatal("dispatcher error", zap.Error(err))
	}

	concOpts := ratelimit.ConcurrencyOptions{
		Max:            cfg.ConcurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.ConcurrencyTimeout,
		OnReject: func(r *http.Request) {
			_ = stats.Record(r.Context(), rldomain.StatsEvent{
				Outcome: rldomain.OutcomeUnavailable,
				Method:  r.Method,
				Path:    r.URL.Path,
				At:      time.Now(),
			})
			logger.Warn("concurrency limit reached",
				zap.String("request_id", gateway.RequestIDFrom(r.Context())),
				zap.String("path", r.URL.Path))
		},
	}
	concurrency := ratelimit.NewConcurrencyService(concOpts)

	h := http.Handler(dispatcher)
	h = ratelimit.ConcurrencyMiddlewareWith(concurrency, concOpts)(h)
	h = gateway.RequestID(h)
	if cfg.SecurityHeaders {
		h = gateway.SecureHeaders(h)
	}
	if cfg.CORS.Enabled {
		h = gateway.CORS(gateway.CORSOptions{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			MaxAge:         cfg.CORS.MaxAge,
		})(h)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// precisa cobrir o timeout do backend
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  90 * time.Second,
	}
	servers := []*http.Server{srv}

	if cfg.AdminAddr != "" {
		adminOpts := gateway.AdminOptions{
			Routes:      routes,
			Stats:       memStats,
			History:     history,
			Concurrency: concurrency,
			Started:     time.Now(),
		}
		if store != nil {
			adminOpts.Limiter = store
		}
		servers = append(servers, &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           gateway.AdminRouter(adminOpts),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	for _, b := range bindings {
		logger.Info("route",
			zap.String("prefix", b.Prefix),
			zap.String("target", b.Target.String()),
			zap.Bool("preserve_base_path", b.PreserveBasePath))
	}
	logger.Info("gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("admin_addr", cfg.AdminAddr),
		zap.Duration("request_timeout", cfg.RequestTimeout))
	logger.Info("rate",
		zap.Bool("enabled", cfg.RateEnabled),
		zap.String("algorithm", cfg.RateAlgorithm),
		zap.Int("max_requests", cfg.RateMaxRequests),
		zap.Duration("window", cfg.RateWindow),
		zap.Int("max_keys", cfg.RateMaxKeys),
		zap.String("key_header", cfg.RateKeyHeader),
		zap.Bool("trust_xff", cfg.TrustXFF))
	logger.Info("rate-stats",
		zap.Bool("enabled", cfg.Stats.Enabled),
		zap.String("redis_addr", cfg.Stats.RedisAddr),
		zap.String("bucket", cfg.Stats.Bucket),
		zap.Duration("ttl", cfg.Stats.TTL),
		zap.Bool("track_keys", cfg.Stats.TrackKeys))
	logger.Info("concurrency",
		zap.Int("max", cfg.ConcurrencyMax),
		zap.Duration("acquire_timeout", cfg.ConcurrencyTimeout))

	if err := serve(ctx, servers); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("gateway stopped")
}

// serve sobe todos os listeners; o primeiro que falhar derruba os outros.
func serve(ctx context.Context, servers []*http.Server) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", s.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

func newLimiterStore(cfg config.Config) limiterStore {
	opts := []rlinfra.StoreOption{
		rlinfra.WithMaxKeys(cfg.RateMaxKeys),
		rlinfra.WithIdleTTL(cfg.RateIdleTTL),
		rlinfra.WithCleanupEvery(cfg.RateCleanupEvery),
	}
	if cfg.RateAlgorithm == config.AlgorithmToken {
		return rlinfra.NewTokenBucketStoreForWindow(cfg.RateMaxRequests, cfg.RateWindow, opts...)
	}
	return rlinfra.NewFixedWindowStore(cfg.RateMaxRequests, cfg.RateWindow, opts...)
}
