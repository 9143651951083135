package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestTarget(t *testing.T) {
	t.Setenv("HEALTHCHECK_URL", "")
	if got := target(nil); got != defaultURL {
		t.Errorf("target(nil) = %q, want %q", got, defaultURL)
	}
	if got := target([]string{"http://x/livez"}); got != "http://x/livez" {
		t.Errorf("explicit url ignored: %q", got)
	}
	t.Setenv("HEALTHCHECK_URL", "http://env/readyz")
	if got := target(nil); got != "http://env/readyz" {
		t.Errorf("env url ignored: %q", got)
	}
}

func TestCheck(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	if err := check(context.Background(), srv.URL, time.Second); err != nil {
		t.Errorf("2xx should pass: %v", err)
	}

	status.Store(http.StatusServiceUnavailable)
	if err := check(context.Background(), srv.URL, time.Second); err == nil {
		t.Error("503 should fail")
	}
}
