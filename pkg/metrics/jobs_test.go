package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "signature-reminders"
	m.ObserveDuration(job, 250*time.Millisecond)
	m.IncSuccess(job)
	m.IncFailure(job)
	m.IncFailure(job)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	labels := map[string]string{"job": job}
	if got := fetchCounterValue(t, families, "dealroom_job_success_total", labels); got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}
	if got := fetchCounterValue(t, families, "dealroom_job_failure_total", labels); got != 2 {
		t.Fatalf("expected failure=2, got %f", got)
	}
	if got := fetchHistogramSum(t, families, "dealroom_job_duration_seconds", labels); got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestOutboxMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncEvent("offer_submitted", OutboxPublished)
	m.IncEvent("offer_submitted", OutboxPublished)
	m.IncEvent("", OutboxDeadLetter)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got := fetchCounterValue(t, families, "dealroom_outbox_events_total", map[string]string{"event_type": "offer_submitted", "outcome": OutboxPublished}); got != 2 {
		t.Fatalf("expected 2 published, got %f", got)
	}
	if got := fetchCounterValue(t, families, "dealroom_outbox_events_total", map[string]string{"event_type": "unknown", "outcome": OutboxDeadLetter}); got != 1 {
		t.Fatalf("expected 1 dead letter, got %f", got)
	}

	var empty *OutboxMetrics
	empty.IncEvent("offer_submitted", OutboxRetried)
	NewCronJobMetrics(nil).IncSuccess("noop")
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := NewRegistry()
	NewOutboxMetrics(reg).IncEvent("room_status_changed", OutboxPublished)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "dealroom_outbox_events_total") || !strings.Contains(body, "go_goroutines") {
		t.Fatalf("scrape body missing expected families")
	}

	rec = httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected live 200, got %d", rec.Code)
	}
}
