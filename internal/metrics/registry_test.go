package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_Records(t *testing.T) {
	r := NewRegistry()

	r.RecordWeatherPoll(true, 200*time.Millisecond)
	r.RecordWeatherPoll(false, time.Second)
	r.RecordWeatherPoll(false, time.Second)
	r.RecordBrokerPhase("mqtt", 3)
	r.RecordBrokerConnect("mqtt", false)
	r.ObserveRequest("/setBrightness", 200)
	r.ObserveJob("weather", time.Millisecond, true)

	if got := testutil.ToFloat64(r.weatherPolls.WithLabelValues("failure")); got != 2 {
		t.Errorf("weather failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.brokerPhase.WithLabelValues("mqtt")); got != 3 {
		t.Errorf("broker phase = %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.jobPanics.WithLabelValues("weather")); got != 1 {
		t.Errorf("job panics = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{"aura_api_requests_total", "aura_broker_connect_attempts_total", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
