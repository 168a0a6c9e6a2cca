package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"api-gateway/gateway/domain"
	"api-gateway/gateway/infra"
	"api-gateway/middleware/ratelimit"
	rldomain "api-gateway/middleware/ratelimit/domain"
	rlinfra "api-gateway/middleware/ratelimit/infra"
)

func adminGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestAdmin_Health(t *testing.T) {
	h := AdminRouter(AdminOptions{})

	w := adminGet(t, h, "/health")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.Bytes()
	assert.Equal(t, "ok", gjson.GetBytes(body, "status").String())
	assert.True(t, gjson.GetBytes(body, "uptime").Exists())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestAdmin_Routes(t *testing.T) {
	users, err := domain.NewRouteBinding("/users", "http://users.internal/users", false)
	require.NoError(t, err)
	auth, err := domain.NewRouteBinding("/auth", "http://auth.internal", true)
	require.NoError(t, err)
	table, err := infra.NewRouteTable([]domain.RouteBinding{users, auth})
	require.NoError(t, err)

	w := adminGet(t, AdminRouter(AdminOptions{Routes: table}), "/routes")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[
		{"route":"/users","target":"http://users.internal/users","preserve_base_path":false},
		{"route":"/auth","target":"http://auth.internal","preserve_base_path":true}
	]`, w.Body.String())
}

func TestAdmin_Stats(t *testing.T) {
	stats := rlinfra.NewMemoryStatsStore()
	ctx := context.Background()
	require.NoError(t, stats.Record(ctx, rldomain.StatsEvent{Route: "/users", Outcome: rldomain.OutcomeCompleted}))
	require.NoError(t, stats.Record(ctx, rldomain.StatsEvent{Route: "/users", Outcome: rldomain.OutcomeRateLimited}))
	require.NoError(t, stats.Record(ctx, rldomain.StatsEvent{Outcome: rldomain.OutcomeNotFound}))

	store := rlinfra.NewFixedWindowStore(5, time.Minute)
	store.Admit("a|/users", time.Now())
	store.Admit("b|/users", time.Now())

	conc := ratelimit.NewConcurrencyService(ratelimit.ConcurrencyOptions{Max: 4})
	release, ok := conc.Acquire(ctx)
	require.True(t, ok)
	defer release()

	w := adminGet(t, AdminRouter(AdminOptions{Stats: stats, Limiter: store, Concurrency: conc}), "/stats")

	require.Equal(t, http.StatusOK, w.Code)
	var body statsView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.Total.Completed)
	assert.Equal(t, int64(1), body.Total.RateLimited)
	assert.Equal(t, int64(1), body.Routes["/users"].RateLimited)
	assert.Equal(t, int64(1), body.Routes[rlinfra.UnmatchedRoute].NotFound)
	assert.Empty(t, body.Keys)

	require.NotNil(t, body.Limiter)
	assert.Equal(t, 2, body.Limiter.TrackedKeys)

	require.NotNil(t, body.Concurrency)
	assert.Equal(t, 1, body.Concurrency.InUse)
	assert.Equal(t, 4, body.Concurrency.Capacity)
	assert.Equal(t, 3, body.Concurrency.Available)
}

func TestAdmin_StatsWithoutCollaborators(t *testing.T) {
	w := adminGet(t, AdminRouter(AdminOptions{}), "/stats")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.Bytes()
	assert.Equal(t, int64(0), gjson.GetBytes(body, "total.completed").Int())
	assert.False(t, gjson.GetBytes(body, "limiter").Exists())
	assert.False(t, gjson.GetBytes(body, "concurrency").Exists())
}

type fakeHistory struct {
	snap rlinfra.StatsSnapshot
	err  error
}

func (f fakeHistory) Snapshot(context.Context) (rlinfra.StatsSnapshot, error) { return f.snap, f.err }

func TestAdmin_StatsHistory(t *testing.T) {
	h := AdminRouter(AdminOptions{History: fakeHistory{snap: rlinfra.StatsSnapshot{
		Total: rlinfra.Counters{Completed: 7},
		Routes: map[string]rlinfra.RouteCounters{
			"/users": {Counters: rlinfra.Counters{Completed: 7}, DurationMS: 350},
		},
	}}})

	w := adminGet(t, h, "/stats/history")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.Bytes()
	assert.Equal(t, int64(7), gjson.GetBytes(body, "total.completed").Int())
	assert.Equal(t, int64(350), gjson.GetBytes(body, `routes.\/users.duration_ms`).Int())
}

func TestAdmin_StatsHistoryUnavailable(t *testing.T) {
	w := adminGet(t, AdminRouter(AdminOptions{History: fakeHistory{err: errors.New("redis down")}}), "/stats/history")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"code":503,"status":"Error","message":"Service unavailable.","data":null}`, w.Body.String())

	// sem Redis a rota nem existe
	w = adminGet(t, AdminRouter(AdminOptions{}), "/stats/history")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_UnknownPath(t *testing.T) {
	w := adminGet(t, AdminRouter(AdminOptions{}), "/nope")

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"code":404,"status":"Error","message":"Route not found.","data":null}`, w.Body.String())
}

func TestRequestID_Middleware(t *testing.T) {
	var fromCtx string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = RequestIDFrom(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "abc", fromCtx)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, fromCtx, 36)
	assert.Equal(t, fromCtx, w.Header().Get(RequestIDHeader))
}
