package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/api/lead/list", 200, 15*time.Millisecond)
	m.ObserveRequest("GET", "/api/lead/list", 200, 5*time.Millisecond)
	m.ObserveRequest("POST", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/lead/list", "200")); got != 2 {
		t.Fatalf("lead list count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("POST", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched count = %v, want 1", got)
	}
}

func TestStageAndSyncCounters(t *testing.T) {
	m := New()
	m.StageAppended("converted")
	m.StageAppended("converted")
	m.StageAppended("dropped")
	m.UserSynced("created", 3)
	m.UserSynced("skipped", 0)

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("converted")); got != 2 {
		t.Fatalf("converted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.userSync.WithLabelValues("created")); got != 3 {
		t.Fatalf("created = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(m.userSync); got != 1 {
		t.Fatalf("sync series = %d, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.StageAppended("interested")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(string(body), `crm_stage_transitions_total{stage="interested"} 1`) {
		t.Fatalf("missing transition series in:\n%s", body)
	}
}
