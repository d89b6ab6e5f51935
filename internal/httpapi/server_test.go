package httpapi

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkalerts/nwws-ingest/internal/alert"
	"github.com/sparkalerts/nwws-ingest/internal/config"
	"github.com/sparkalerts/nwws-ingest/internal/store"
)

const testKey = "test-api-key"

func testConfig() *config.Config {
	return &config.Config{
		APIKeys: map[string]*config.APIKey{
			testKey: {Name: "tests", Active: true},
		},
		DomainWhitelist: []string{"example.com"},
		RateLimit:       config.RateLimit{WindowMs: 60000, DefaultMax: 100},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *store.Bus) {
	t.Helper()
	bus := store.NewBus()
	st := store.Open(filepath.Join(t.TempDir(), "alerts.json"), bus)
	return NewServer(cfg, st, bus), bus
}

func sign(key, timestamp, method, path string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + method + path))
	return hex.EncodeToString(mac.Sum(nil))
}

func signedRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("X-Request-Time", ts)
	req.Header.Set("X-Signature", sign(testKey, ts, method, path))
	return req
}

func TestPingRequiresNoAuth(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}

func TestRootRejectsUnsignedRequest(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRootAdmitsSignedRequest(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, signedRequest(http.MethodGet, "/"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"AUTHORIZED"}`, rec.Body.String())
}

func TestAuthRejectsTamperedFields(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	tamper := map[string]func(*http.Request){
		"signature": func(r *http.Request) {
			sig := []byte(r.Header.Get("X-Signature"))
			if sig[0] == 'a' {
				sig[0] = 'b'
			} else {
				sig[0] = 'a'
			}
			r.Header.Set("X-Signature", string(sig))
		},
		"timestamp": func(r *http.Request) {
			ts, _ := strconv.ParseInt(r.Header.Get("X-Request-Time"), 10, 64)
			r.Header.Set("X-Request-Time", strconv.FormatInt(ts+1, 10))
		},
		"stale timestamp": func(r *http.Request) {
			old := time.Now().Add(-10 * time.Minute).UnixMilli()
			ts := strconv.FormatInt(old, 10)
			r.Header.Set("X-Request-Time", ts)
			r.Header.Set("X-Signature", sign(testKey, ts, r.Method, r.URL.Path))
		},
		"wrong key": func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer some-other-key")
		},
	}

	for name, mutate := range tamper {
		t.Run(name, func(t *testing.T) {
			req := signedRequest(http.MethodGet, "/")
			mutate(req)
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestInactiveKeyRejected(t *testing.T) {
	cfg := testConfig()
	cfg.APIKeys[testKey].Active = false
	srv, _ := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, signedRequest(http.MethodGet, "/"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWhitelistedOriginBypassesSignature(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAllowNoOriginBypass(t *testing.T) {
	cfg := testConfig()
	cfg.AllowNoOrigin = true
	srv, _ := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.APIKeys[testKey].RateLimit = 2
	srv, _ := newTestServer(t, cfg)

	router := srv.Router()
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, signedRequest(http.MethodGet, "/"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(http.MethodGet, "/"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
}

func TestAlertsSnapshot(t *testing.T) {
	cfg := testConfig()
	cfg.AllowNoOrigin = true
	srv, bus := newTestServer(t, cfg)
	defer bus.Close()

	srv.store.Upsert([]alert.Alert{{ID: "KSGX.TO.W.0002", Name: "Tornado Warning"}})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string        `json:"status"`
		Count  int           `json:"count"`
		Alerts []alert.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OK", body.Status)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Alerts, 1)
	assert.Equal(t, "KSGX.TO.W.0002", body.Alerts[0].ID)
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status":"ERROR","message":"Not found"}`, rec.Body.String())
}

func TestSubscribeStreamsEvents(t *testing.T) {
	cfg := testConfig()
	cfg.AllowNoOrigin = true
	srv, bus := newTestServer(t, cfg)
	defer bus.Close()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/alerts/subscribe")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "data: {\"status\":\"connected\"}\n", line)

	// Wait for the subscriber to register, then push a change through
	// the store so the stream carries a NEW event.
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 },
		time.Second, 10*time.Millisecond)
	srv.store.Upsert([]alert.Alert{{ID: "KSGX.TO.W.0002", Name: "Tornado Warning"}})

	var eventLine, dataLine string
	for {
		l, err := reader.ReadString('\n')
		require.NoError(t, err)
		trimmed := strings.TrimSpace(l)
		if trimmed == "" || strings.HasPrefix(trimmed, ":") {
			continue
		}
		if strings.HasPrefix(trimmed, "event: ") {
			eventLine = trimmed
			continue
		}
		if strings.HasPrefix(trimmed, "data: ") {
			dataLine = trimmed
			break
		}
	}

	assert.Equal(t, "event: NEW", eventLine)
	assert.Contains(t, dataLine, `"id":"KSGX.TO.W.0002"`)
}

func TestPreflightEchoesWhitelistedOrigin(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/alerts", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Values("Vary"), "Origin")
}

func TestPreflightIgnoresUnlistedOrigin(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/alerts", nil)
	req.Header.Set("Origin", "https://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPanicYieldsErrorEnvelope(t *testing.T) {
	h := recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body struct {
		Status    string `json:"status"`
		ExtraInfo string `json:"extra_info"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ERROR", body.Status)
	assert.Equal(t, "boom", body.ExtraInfo)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}
