package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"api-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores de desfecho em hashes do Redis, para que
// sobrevivam a restarts e sejam somados entre instâncias:
//
//	<prefix>:total                  outcome -> n
//	<prefix>:minute:<yyyymmddhhmm>  outcome -> n (com TTL)
//	<prefix>:routes                 set com as rotas vistas
//	<prefix>:route:<rota>           outcome -> n, duration_ms -> soma
//	<prefix>:key:<chave>            outcome -> n (com TTL, opcional)
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "gateway:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	if ev.Outcome == "" {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	route := strings.TrimSpace(ev.Route)
	if route == "" {
		route = UnmatchedRoute
	}
	pipe.SAdd(ctx, s.prefix+":routes", route)
	routeKey := s.routeKey(route)
	pipe.HIncrBy(ctx, routeKey, field, 1)
	if ev.Duration > 0 {
		pipe.HIncrBy(ctx, routeKey, durationField, ev.Duration.Milliseconds())
	}

	if s.trackKeys {
		k := strings.TrimSpace(string(ev.Key))
		if k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis stats: %w", err)
	}
	return nil
}

const durationField = "duration_ms"

func (s *RedisStatsStore) routeKey(route string) string { return s.prefix + ":route:" + route }

// StatsSnapshot são os contadores acumulados no Redis (todas as instâncias).
type StatsSnapshot struct {
	Total  Counters                 `json:"total"`
	Routes map[string]RouteCounters `json:"routes"`
}

type RouteCounters struct {
	Counters
	DurationMS int64 `json:"duration_ms"`
}

// Snapshot lê os contadores cumulativos (sem os buckets por minuto).
func (s *RedisStatsStore) Snapshot(ctx context.Context) (StatsSnapshot, error) {
	total, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("redis stats: %w", err)
	}
	routes, err := s.rdb.SMembers(ctx, s.prefix+":routes").Result()
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("redis stats: %w", err)
	}

	pipe := s.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(routes))
	for _, r := range routes {
		cmds[r] = pipe.HGetAll(ctx, s.routeKey(r))
	}
	if len(routes) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return StatsSnapshot{}, fmt.Errorf("redis stats: %w", err)
		}
	}

	snap := StatsSnapshot{
		Total:  countersFromHash(total),
		Routes: make(map[string]RouteCounters, len(routes)),
	}
	for r, cmd := range cmds {
		h := cmd.Val()
		dur, _ := strconv.ParseInt(h[durationField], 10, 64)
		snap.Routes[r] = RouteCounters{Counters: countersFromHash(h), DurationMS: dur}
	}
	return snap, nil
}

func countersFromHash(h map[string]string) Counters {
	n := func(o domain.Outcome) int64 {
		v, _ := strconv.ParseInt(h[string(o)], 10, 64)
		return v
	}
	return Counters{
		Completed:   n(domain.OutcomeCompleted),
		NotFound:    n(domain.OutcomeNotFound),
		RateLimited: n(domain.OutcomeRateLimited),
		Timeout:     n(domain.OutcomeTimeout),
		Unreachable: n(domain.OutcomeUnreachable),
		Unavailable: n(domain.OutcomeUnavailable),
	}
}
