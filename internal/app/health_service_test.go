package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eb2tech/aura/internal/config"
	"github.com/eb2tech/aura/internal/metrics"
	"github.com/eb2tech/aura/internal/scheduler"
)

func newTestHealth() (*HealthService, *SchedulerService) {
	sched := &SchedulerService{
		Loop: scheduler.New(scheduler.Options{Tick: 5 * time.Millisecond}),
		done: make(chan struct{}),
	}
	return NewHealthService(&config.Config{}, sched, metrics.NewRegistry()), sched
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthService_Endpoints(t *testing.T) {
	health, _ := newTestHealth()
	h := health.Handler()

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/health", http.StatusOK, `"healthy"`},
		{"/ready", http.StatusServiceUnavailable, `"starting"`},
		{"/metrics", http.StatusOK, "go_goroutines"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestHealthService_ReadyOnceLoopRuns(t *testing.T) {
	health, sched := newTestHealth()
	h := health.Handler()

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for get(t, h, "/ready").Code != http.StatusOK {
		if time.Now().After(deadline) {
			t.Fatal("loop never reported ready")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	sched.Wait()
	if rec := get(t, h, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after stop = %d, want 503", rec.Code)
	}
}
