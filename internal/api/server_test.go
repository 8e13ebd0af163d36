package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/gdp-network/gdpnet/internal/app/claims"
	"github.com/gdp-network/gdpnet/internal/app/eligibility"
	"github.com/gdp-network/gdpnet/internal/domain"
	"github.com/gdp-network/gdpnet/internal/infra/memstore"
	"github.com/gdp-network/gdpnet/internal/infra/observability"
	"github.com/gdp-network/gdpnet/internal/logger"
)

func ptr(s string) *string { return &s }

// newTestServer seeds root with two same-price children, the first of
// which has two same-price children of its own.
func newTestServer(t *testing.T, opts Options) (*httptest.Server, *memstore.Store) {
	t.Helper()
	store := memstore.New(clockwork.NewFakeClockAt(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)))
	store.PutUser(domain.User{ID: "root", Value: 1})
	store.PutUser(domain.User{ID: "a", Value: 1, ParentID: ptr("root")})
	store.PutUser(domain.User{ID: "b", Value: 1, ParentID: ptr("root")})
	store.PutUser(domain.User{ID: "a1", Value: 1, ParentID: ptr("a")})
	store.PutUser(domain.User{ID: "a2", Value: 1, ParentID: ptr("a")})
	store.PutUser(domain.User{ID: "cheap", Value: 0.5, ParentID: ptr("root")})

	log := logger.NewTest()
	tracer := observability.NewTracer(observability.DefaultTracerConfig())
	engine := eligibility.NewEngine(store, store, log)
	svc := claims.NewService(claims.Deps{
		Engine:   engine,
		Claims:   store,
		Ledger:   store,
		Settings: store,
		Tracer:   tracer,
		Logger:   log,
	})
	srv := httptest.NewServer(NewServer(engine, svc, store, tracer, log, opts).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string) (int, map[string]any, http.Header) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body, resp.Header
}

func errorType(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error body, got %v", body)
	return e["type"].(string)
}

func TestHealthAndVersion(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	status, body, _ := doJSON(t, http.MethodGet, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body, _ = doJSON(t, http.MethodGet, srv.URL+"/api/version")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, Version, body["version"])
}

func TestTiers(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	status, body, _ := doJSON(t, http.MethodGet, srv.URL+"/api/tiers")
	require.Equal(t, http.StatusOK, status)
	tiers := body["tiers"].([]any)
	assert.Len(t, tiers, 6)
	first := tiers[0].(map[string]any)
	assert.EqualValues(t, 130, first["id"])
}

func TestSettings(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	status, body, _ := doJSON(t, http.MethodGet, srv.URL+"/api/settings")
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body)
}

func TestRewardsReport(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	status, body, _ := doJSON(t, http.MethodGet, srv.URL+"/api/users/root/rewards")
	require.Equal(t, http.StatusOK, status)

	counts := body["counts"].([]any)
	assert.EqualValues(t, 2, counts[0], "cheap child does not qualify")
	assert.EqualValues(t, 2, counts[1])

	byTier := map[float64]map[string]any{}
	for _, v := range body["tiers"].([]any) {
		tv := v.(map[string]any)
		byTier[tv["tier_id"].(float64)] = tv
	}
	require.Len(t, byTier, 6)

	assert.Equal(t, true, byTier[130]["eligible"])
	assert.EqualValues(t, 100, byTier[130]["progress_percent"])
	assert.Equal(t, "unclaimed", byTier[130]["state"])

	assert.Equal(t, false, byTier[150]["eligible"])
	assert.InDelta(t, 58.33, byTier[150]["progress_percent"].(float64), 0.001)
	assert.Equal(t, "need 1 more at generation 1", byTier[150]["message"])
}

func TestRewardTier(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	status, body, _ := doJSON(t, http.MethodGet, srv.URL+"/api/users/root/rewards/150")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "150%", body["tier"])

	status, body, _ = doJSON(t, http.MethodGet, srv.URL+"/api/users/root/rewards/175")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown_tier", errorType(t, body))

	status, body, _ = doJSON(t, http.MethodGet, srv.URL+"/api/users/root/rewards/abc")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown_tier", errorType(t, body))
}

func TestUnknownUser(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	status, body, _ := doJSON(t, http.MethodGet, srv.URL+"/api/users/ghost/rewards")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "user_not_found", errorType(t, body))

	status, body, _ = doJSON(t, http.MethodPost, srv.URL+"/api/users/ghost/rewards/130/claim")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "user_not_found", errorType(t, body))
}

func TestClaimFlow(t *testing.T) {
	srv, store := newTestServer(t, Options{})
	claimURL := srv.URL + "/api/users/root/rewards/130/claim"

	status, body, _ := doJSON(t, http.MethodPost, claimURL)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, false, body["already_claimed"])
	first := body["claim"].(map[string]any)
	assert.Equal(t, "root", first["user_id"])

	status, body, _ = doJSON(t, http.MethodPost, claimURL)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["already_claimed"])
	assert.Equal(t, first["id"], body["claim"].(map[string]any)["id"])

	assert.Len(t, store.Entries("root"), 1)

	status, body, _ = doJSON(t, http.MethodGet, srv.URL+"/api/users/root/rewards/130")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "claimed", body["state"])

	status, body, _ = doJSON(t, http.MethodGet, srv.URL+"/api/users/root/claims")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["claims"].([]any), 1)
}

func TestClaimNotEligible(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	status, body, _ := doJSON(t, http.MethodPost, srv.URL+"/api/users/root/rewards/150/claim")
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "not_eligible", errorType(t, body))
	e := body["error"].(map[string]any)
	assert.InDelta(t, 58.33, e["progress_percent"].(float64), 0.001)
	expl := e["explanation"].(map[string]any)
	assert.EqualValues(t, 1, expl["generation"])
	assert.EqualValues(t, 1, expl["needed"])

	status, body, _ = doJSON(t, http.MethodGet, srv.URL+"/api/users/root/claims")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["claims"])
}

func TestClaimRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Options{ClaimLimiter: NewRateLimiter(rate.Every(time.Hour), 2)})
	claimURL := srv.URL + "/api/users/root/rewards/130/claim"

	for i := 0; i < 2; i++ {
		status, _, _ := doJSON(t, http.MethodPost, claimURL)
		require.Less(t, status, 300, "attempt %d", i)
	}
	status, body, hdr := doJSON(t, http.MethodPost, claimURL)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limit_exceeded", errorType(t, body))
	assert.NotEmpty(t, hdr.Get("Retry-After"))

	// Other users have their own bucket.
	status, _, _ = doJSON(t, http.MethodPost, srv.URL+"/api/users/a/rewards/130/claim")
	assert.Equal(t, http.StatusCreated, status)
}

func TestTraces(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	doJSON(t, http.MethodPost, srv.URL+"/api/users/root/rewards/130/claim")

	status, body, _ := doJSON(t, http.MethodGet, srv.URL+"/api/traces?limit=10")
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["spans"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Options{MetricsEnabled: true})
	doJSON(t, http.MethodGet, srv.URL+"/health")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWriteDomainErrorStorageUnavailable(t *testing.T) {
	s := NewServer(nil, nil, nil, nil, nil, Options{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	s.writeDomainError(rec, req, fmt.Errorf("load: %w", &domain.StorageUnavailableError{Op: "users.get", Err: errors.New("connection refused")}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	s.writeDomainError(rec, req, domain.Invalid("counts", "negative"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.writeDomainError(rec, req, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimiterEvict(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 1)
	ok, _ := rl.AllowWithRetry("u")
	require.True(t, ok)
	ok, wait := rl.AllowWithRetry("u")
	require.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))

	rl.evict(time.Now().Add(time.Minute))
	ok, _ = rl.AllowWithRetry("u")
	assert.True(t, ok, "evicted key starts a fresh bucket")
}
