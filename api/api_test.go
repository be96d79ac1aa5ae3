package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/verity"
	"github.com/xraph/verity/api"
	"github.com/xraph/verity/store/memory"
	"github.com/xraph/verity/types"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	srv   *httptest.Server
	auth  *api.Auth
	clock *clock
}

func newFixture(t *testing.T, opts ...api.Option) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	eng := verity.New(memory.New(),
		verity.WithAdmins("ops"),
		verity.WithResolvers("arbiter"),
		verity.WithClock(c.Now),
	)
	require.NoError(t, eng.Start(context.Background()))

	auth := api.NewAuth("test-secret", "verity")
	srv := httptest.NewServer(api.New(eng, auth, opts...).Router())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, auth: auth, clock: c}
}

func (f *fixture) do(t *testing.T, who types.Principal, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	if who != "" {
		tok, err := f.auth.Token(who, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRequiresToken(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, "", http.MethodGet, "/v1/params", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	other := api.NewAuth("other-secret", "verity")
	tok, err := other.Token("mallory", time.Hour)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/v1/params", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestPublishAndReadFlow(t *testing.T) {
	f := newFixture(t)

	resp, pr := f.do(t, "acme", http.MethodPost, "/v1/producers/", map[string]any{"amount": 100000})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	pid := pr["id"].(string)

	at := f.clock.now.Add(time.Hour)
	resp, ev := f.do(t, "acme", http.MethodPost, "/v1/producers/"+pid+"/events", map[string]any{"scheduled_at": at})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	eid := ev["id"].(string)

	// Too early: the event has not started.
	resp, body := f.do(t, "acme", http.MethodPost, "/v1/events/"+eid+"/result", map[string]any{"payload": `{"home":2}`})
	assert.Equal(t, http.StatusTooEarly, resp.StatusCode)
	assert.Equal(t, true, body["retryable"])

	f.clock.now = at
	resp, body = f.do(t, "acme", http.MethodPost, "/v1/events/"+eid+"/result", map[string]any{
		"payload":      `{"home":2}`,
		"quick_fields": map[string]string{"winner": "home"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Nil(t, body["payload"])

	resp, _ = f.do(t, "acme", http.MethodPost, "/v1/events/"+eid+"/result", map[string]any{"payload": "again"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Not yet readable while the window is open.
	resp, _ = f.do(t, "reader", http.MethodGet, "/v1/events/"+eid+"/result", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	f.clock.now = at.Add(15 * time.Minute)
	resp, body = f.do(t, "keeper", http.MethodPost, "/v1/events/"+eid+"/result/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["finalized"])

	resp, body = f.do(t, "reader", http.MethodGet, "/v1/events/"+eid+"/result/fields/winner", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "home", body["value"])

	resp, body = f.do(t, "reader", http.MethodGet, "/v1/events/"+eid+"/result", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"home":2}`, body["payload"])

	resp, body = f.do(t, "reader", http.MethodGet, "/v1/events/"+eid+"/access", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["access"])
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "acme", http.MethodGet, "/v1/producers/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, "acme", http.MethodPost, "/v1/producers/", map[string]any{"amount": 10})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	resp, _ = f.do(t, "acme", http.MethodPut, "/v1/params/admins/acme", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, "ops", http.MethodPut, "/v1/params/resolvers/judge", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, "acme", http.MethodGet, "/v1/events/evt_01h2xcejqtf2nbrexx3vqjhp41", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, "acme", http.MethodPost, "/v1/producers/", map[string]any{"amount": 1, "bogus": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestParamsRoundTrip(t *testing.T) {
	f := newFixture(t)

	resp, cur := f.do(t, "ops", http.MethodGet, "/v1/params", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cur["free_quota"] = 5
	resp, next := f.do(t, "ops", http.MethodPut, "/v1/params", cur)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 5, next["free_quota"])
	assert.EqualValues(t, 2, next["version"])
}

func TestRateLimitPerPrincipal(t *testing.T) {
	f := newFixture(t, api.WithRateLimiter(api.NewRateLimiter(0.001, 2)))

	for range 2 {
		resp, _ := f.do(t, "acme", http.MethodGet, "/v1/pools", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := f.do(t, "acme", http.MethodGet, "/v1/pools", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = f.do(t, "reader", http.MethodGet, "/v1/pools", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
