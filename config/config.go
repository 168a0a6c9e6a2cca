// Package config lê a configuração do gateway do ambiente (e, opcionalmente,
// de um arquivo YAML de rotas). Qualquer valor inválido é erro: o binário não
// sobe com configuração pela metade.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"api-gateway/gateway/domain"
	"api-gateway/logging"
)

const (
	AlgorithmFixed = "fixed"
	AlgorithmToken = "token"
)

type Route struct {
	Prefix           string `yaml:"route"`
	Target           string `yaml:"target"`
	PreserveBasePath bool   `yaml:"preserve_base_path"`
}

type routesFile struct {
	Routes []Route `yaml:"routes"`
}

type Config struct {
	ListenAddr string
	AdminAddr  string
	Routes     []Route

	RateEnabled      bool
	RateAlgorithm    string
	RateWindow       time.Duration
	RateMaxRequests  int
	RateMaxKeys      int
	RateIdleTTL      time.Duration
	RateCleanupEvery time.Duration
	RateKeyHeader    string
	TrustXFF         bool
	AddHeaders       bool

	RequestTimeout time.Duration

	ConcurrencyMax     int
	ConcurrencyTimeout time.Duration

	CORS            CORSConfig
	SecurityHeaders bool

	Stats StatsConfig
	Log   logging.Config
}

type CORSConfig struct {
	Enabled        bool
	AllowedOrigins []string
	MaxAge         int
}

type StatsConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
	TTL           time.Duration
	Bucket        string
	TrackKeys     bool
}

func Load() (Config, error) {
	e := &env{}
	cfg := Config{}

	cfg.ListenAddr = e.str("LISTEN_ADDR", "")
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":" + e.str("PORT", "5000")
	}
	cfg.AdminAddr = e.str("ADMIN_ADDR", "")

	cfg.RateEnabled = e.boolean("RATE_ENABLED", true)
	cfg.RateAlgorithm = strings.ToLower(e.str("RATE_ALGORITHM", AlgorithmFixed))
	cfg.RateWindow = e.duration("RATE_WINDOW", 60*time.Second)
	cfg.RateMaxRequests = e.integer("RATE_MAX_REQUESTS", 100)
	cfg.RateMaxKeys = e.integer("RATE_MAX_KEYS", 10000)
	cfg.RateIdleTTL = e.duration("RATE_IDLE_TTL", 15*time.Minute)
	cfg.RateCleanupEvery = e.duration("RATE_CLEANUP_EVERY", 2*time.Minute)
	cfg.RateKeyHeader = e.str("RATE_KEY_HEADER", "")
	cfg.TrustXFF = e.boolean("TRUST_XFF", false)
	cfg.AddHeaders = e.boolean("ADD_RATELIMIT_HEADERS", false)

	cfg.RequestTimeout = e.duration("REQUEST_TIMEOUT", 10*time.Second)

	cfg.ConcurrencyMax = e.integer("CONCURRENCY_MAX", 0)
	cfg.ConcurrencyTimeout = e.duration("CONCURRENCY_TIMEOUT", 0)

	cfg.CORS = CORSConfig{
		Enabled:        e.boolean("CORS_ENABLED", true),
		AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS", []string{"*"}),
		MaxAge:         e.integer("CORS_MAX_AGE", 0),
	}
	cfg.SecurityHeaders = e.boolean("SECURITY_HEADERS", true)

	cfg.Stats = StatsConfig{
		Enabled:       e.boolean("RATE_STATS_ENABLED", false),
		RedisAddr:     e.str("RATE_STATS_REDIS_ADDR", ""),
		RedisPassword: os.Getenv("RATE_STATS_REDIS_PASSWORD"),
		RedisDB:       e.integer("RATE_STATS_REDIS_DB", 0),
		Prefix:        e.str("RATE_STATS_PREFIX", "gateway:stats"),
		TTL:           e.duration("RATE_STATS_TTL", 24*time.Hour),
		Bucket:        e.str("RATE_STATS_BUCKET", "minute"),
		TrackKeys:     e.boolean("RATE_STATS_TRACK_KEYS", false),
	}

	cfg.Log = logging.Config{
		Level:      e.str("LOG_LEVEL", "info"),
		Format:     e.str("LOG_FORMAT", logging.FormatJSON),
		File:       e.str("LOG_FILE", ""),
		MaxSize:    e.megabytes("LOG_MAX_SIZE", 100),
		MaxBackups: e.integer("LOG_MAX_BACKUPS", 3),
		MaxAge:     e.integer("LOG_MAX_AGE_DAYS", 28),
	}

	if path := e.str("ROUTES_FILE", ""); path != "" {
		routes, err := ReadRoutesFile(path)
		if err != nil {
			e.fail(err)
		}
		cfg.Routes = append(cfg.Routes, routes...)
	}
	if raw := e.str("ROUTES", ""); raw != "" {
		routes, err := ParseRoutes(raw)
		if err != nil {
			e.fail(fmt.Errorf("ROUTES: %w", err))
		}
		cfg.Routes = append(cfg.Routes, routes...)
	}

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate confere as regras entre campos e monta as rotas para validar prefixo/alvo.
func (c Config) Validate() error {
	var errs []error
	if len(c.Routes) == 0 {
		errs = append(errs, errors.New("at least one route is required (ROUTES or ROUTES_FILE)"))
	}
	if _, err := c.Bindings(); err != nil {
		errs = append(errs, err)
	}
	if c.RateAlgorithm != AlgorithmFixed && c.RateAlgorithm != AlgorithmToken {
		errs = append(errs, fmt.Errorf("RATE_ALGORITHM must be %q or %q, got %q", AlgorithmFixed, AlgorithmToken, c.RateAlgorithm))
	}
	if c.RateWindow <= 0 {
		errs = append(errs, errors.New("RATE_WINDOW must be > 0"))
	}
	if c.RateMaxRequests <= 0 {
		errs = append(errs, errors.New("RATE_MAX_REQUESTS must be > 0"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be > 0"))
	}
	if c.ConcurrencyMax < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if c.CORS.MaxAge < 0 {
		errs = append(errs, errors.New("CORS_MAX_AGE must be >= 0"))
	}
	if c.Stats.Enabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		errs = append(errs, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	return errors.Join(errs...)
}

// Bindings converte as rotas configuradas, na ordem de registro.
func (c Config) Bindings() ([]domain.RouteBinding, error) {
	out := make([]domain.RouteBinding, 0, len(c.Routes))
	for _, r := range c.Routes {
		b, err := domain.NewRouteBinding(r.Prefix, r.Target, r.PreserveBasePath)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// ParseRoutes lê o formato "/users=http://host/users,/auth=http://host/auth".
func ParseRoutes(raw string) ([]Route, error) {
	var out []Route
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		prefix, target, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("invalid route %q, expected prefix=target", item)
		}
		out = append(out, Route{
			Prefix: strings.TrimSpace(prefix),
			Target: strings.TrimSpace(target),
		})
	}
	return out, nil
}

func ReadRoutesFile(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ROUTES_FILE: %w", err)
	}
	var f routesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ROUTES_FILE %s: %w", path, err)
	}
	return f.Routes, nil
}

// env acumula os erros de parse para que Load reporte todos de uma vez.
type env struct {
	errs []error
}

func (e *env) fail(err error) { e.errs = append(e.errs, err) }

func (e *env) str(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// list lê valores separados por vírgula; vazio devolve def.
func (e *env) list(k string, def []string) []string {
	raw := e.str(k, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func (e *env) integer(k string, def int) int {
	v := e.str(k, "")
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: invalid integer %q", k, v))
		return def
	}
	return i
}

func (e *env) boolean(k string, def bool) bool {
	v := e.str(k, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: invalid boolean %q", k, v))
		return def
	}
	return b
}

// duration aceita duração Go ("1.5s") ou inteiro em milissegundos ("1500").
func (e *env) duration(k string, def time.Duration) time.Duration {
	v := e.str(k, "")
	if v == "" {
		return def
	}
	d, err := ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

// megabytes aceita tamanho humano ("512MB", "1GiB") ou inteiro em MB.
func (e *env) megabytes(k string, def int) int {
	v := e.str(k, "")
	if v == "" {
		return def
	}
	mb, err := ParseMegabytes(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", k, err))
		return def
	}
	return mb
}

func ParseMegabytes(v string) (int, error) {
	if mb, err := strconv.Atoi(v); err == nil {
		return mb, nil
	}
	b, err := units.RAMInBytes(v)
	if err != nil || b <= 0 {
		return 0, fmt.Errorf("invalid size %q", v)
	}
	return int(max(b/units.MiB, 1)), nil
}

func ParseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}
