// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/terraform/v1/hooks/dvr/files", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_EnforcesLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestLimit: 3, WindowSize: time.Second})(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "203.0.113.1:12345").Code, "request %d", i+1)
	}

	w := hit(h, "203.0.113.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":429,"data":{"message":"too many requests"}}`, w.Body.String())
}

func TestRateLimit_DifferentIPsIndependent(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestLimit: 2, WindowSize: time.Second})(okHandler())

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "203.0.113.1:1").Code)
	}
	assert.Equal(t, http.StatusOK, hit(h, "203.0.113.2:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "203.0.113.1:1").Code)
}

func TestRateLimit_WhitelistCIDR(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		RequestLimit: 1,
		WindowSize:   time.Second,
		Whitelist:    []string{"192.168.0.0/16", "not-a-cidr"},
	})(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "192.168.1.10:12345").Code)
	}
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:12345").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:12345").Code)
}

func TestAPIRateLimit(t *testing.T) {
	h := APIRateLimit(2)(okHandler())
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "127.0.0.1:9000").Code, "loopback is exempt")
	}
	assert.Equal(t, http.StatusOK, hit(h, "198.51.100.7:1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "198.51.100.7:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "198.51.100.7:1").Code)

	off := APIRateLimit(0)(okHandler())
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(off, "198.51.100.7:1").Code)
	}
}
