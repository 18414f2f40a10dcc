package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/selfauth/selfauth/internal/config"
)

func TestRateLimiterPerAddress(t *testing.T) {
	rl := NewRateLimiter(2)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiterDropsIdleAddresses(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(2)
	rl.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		rl.Allow(fmt.Sprintf("198.51.100.%d", i))
	}
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.Len(t, rl.visitors, 101)

	now = now.Add(45 * time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "one token refilled after 45s")
	assert.False(t, rl.Allow("10.0.0.1"))

	now = now.Add(limiterIdle + time.Second)
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Len(t, rl.visitors, 1)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:5555"
	assert.Equal(t, "203.0.113.9", clientIP(r))
	r.RemoteAddr = "unix"
	assert.Equal(t, "unix", clientIP(r))
}

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	open := (&App{cfg: &config.Config{}, log: zap.NewNop()}).CORS(ok)
	req := httptest.NewRequest(http.MethodGet, "/token", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	restricted := (&App{cfg: &config.Config{AllowedOrigins: []string{"https://good.example"}}, log: zap.NewNop()}).CORS(ok)
	rec = httptest.NewRecorder()
	restricted.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	pre := httptest.NewRequest(http.MethodOptions, "/token", nil)
	pre.Header.Set("Origin", "https://good.example")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	restricted.ServeHTTP(rec, pre)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://good.example", rec.Header().Get("Access-Control-Allow-Origin"))

	for name, hdr := range map[string]http.Header{
		"no headers":  {},
		"origin only": {"Origin": {"https://good.example"}},
		"no origin":   {"Access-Control-Request-Method": {http.MethodPost}},
	} {
		t.Run("plain OPTIONS "+name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodOptions, "/token", nil)
			r.Header = hdr
			rec := httptest.NewRecorder()
			restricted.ServeHTTP(rec, r)
			assert.Equal(t, http.StatusTeapot, rec.Code)
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}
