package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExportsCounters(t *testing.T) {
	m := New()
	m.Inc(SessionCreated)
	m.Inc(SessionCreated)
	m.Inc(DropReasonUnknownSession)

	rec := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `castlet_signal_relay_events_total{event="session_created"} 2`) {
		t.Fatalf("missing session_created counter in body:\n%s", body)
	}
	if !strings.Contains(body, `castlet_signal_relay_events_total{event="drop_unknown_session"} 1`) {
		t.Fatalf("missing drop counter in body:\n%s", body)
	}
	if !strings.HasPrefix(body, "# HELP castlet_signal_relay_events_total") {
		t.Fatalf("missing HELP header in body:\n%s", body)
	}
}

func TestPrometheusHandler_ExportsZeroValuedDeclaredCounters(t *testing.T) {
	rec := httptest.NewRecorder()
	PrometheusHandler(New()).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range EventNames {
		if !strings.Contains(body, `{event="`+name+`"} 0`) {
			t.Errorf("declared counter %s missing from fresh exposition:\n%s", name, body)
		}
	}
}

func TestPrometheusHandler_UndeclaredCountersFollowDeclared(t *testing.T) {
	m := New()
	m.Inc("ad_hoc_event")

	rec := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `{event="ad_hoc_event"} 1`) {
		t.Fatalf("undeclared counter missing from exposition:\n%s", body)
	}
	lastDeclared := EventNames[len(EventNames)-1]
	if strings.Index(body, `"ad_hoc_event"`) < strings.Index(body, `"`+lastDeclared+`"`) {
		t.Fatal("undeclared counter exported before declared ones")
	}
}

func TestPrometheusHandler_NilMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 500 {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(SessionCreated)
	if got := m.Get(SessionCreated); got != 0 {
		t.Fatalf("nil metrics Get = %d, want 0", got)
	}
	if snap := m.Snapshot(); snap != nil {
		t.Fatalf("nil metrics Snapshot = %v, want nil", snap)
	}
}
