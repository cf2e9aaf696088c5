package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cascade outcomes recorded by ObserveCascade.
const (
	CascadeCreated         = "created"
	CascadeNoAcceptedOffer = "no_accepted_offer"
	CascadeAlreadySettled  = "already_settled"
	CascadeRoomNotSigning  = "room_not_signing"
	CascadeFailed          = "failed"
)

// WorkflowMetrics records deal-room workflow activity. A nil *WorkflowMetrics
// is valid and records nothing.
type WorkflowMetrics struct {
	duration      *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	offers        prometheus.Counter
	versionRetry  prometheus.Counter
	signatures    *prometheus.CounterVec
	cascades      *prometheus.CounterVec
	notifyFailure *prometheus.CounterVec
}

// NewWorkflowMetrics registers the workflow metrics on the provided registerer.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if unregistered(reg) {
		return &WorkflowMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dealroom_operation_duration_seconds",
		Help:    "Duration of deal-room workflow operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealroom_room_transitions_total",
		Help: "Room lifecycle transitions by source and target status.",
	}, []string{"from", "to"})
	offers := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dealroom_offers_submitted_total",
		Help: "Offers recorded in the offer ledger.",
	})
	versionRetry := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dealroom_offer_version_retries_total",
		Help: "Offer inserts retried after a version collision.",
	})
	signatures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealroom_signatures_recorded_total",
		Help: "Signature actions recorded per action.",
	}, []string{"action"})
	cascades := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealroom_settlement_cascades_total",
		Help: "Settlement cascade invocations by outcome.",
	}, []string{"outcome"})
	notifyFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealroom_notification_failures_total",
		Help: "Notifications that could not be stored.",
	}, []string{"kind"})
	reg.MustRegister(duration, transitions, offers, versionRetry, signatures, cascades, notifyFailure)
	return &WorkflowMetrics{
		duration:      duration,
		transitions:   transitions,
		offers:        offers,
		versionRetry:  versionRetry,
		signatures:    signatures,
		cascades:      cascades,
		notifyFailure: notifyFailure,
	}
}

// ObserveOperation records how long a named operation took and whether it failed.
func (m *WorkflowMetrics) ObserveOperation(operation string, started time.Time, err error) {
	if m == nil || m.duration == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.duration.WithLabelValues(normalizeLabel(operation), outcome).Observe(time.Since(started).Seconds())
}

// IncTransition counts a room moving between two statuses.
func (m *WorkflowMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *WorkflowMetrics) IncOfferSubmitted() {
	if m == nil || m.offers == nil {
		return
	}
	m.offers.Inc()
}

func (m *WorkflowMetrics) IncOfferVersionRetry() {
	if m == nil || m.versionRetry == nil {
		return
	}
	m.versionRetry.Inc()
}

func (m *WorkflowMetrics) IncSignature(action string) {
	if m == nil || m.signatures == nil {
		return
	}
	m.signatures.WithLabelValues(normalizeLabel(action)).Inc()
}

// ObserveCascade counts a settlement cascade run by outcome.
func (m *WorkflowMetrics) ObserveCascade(outcome string) {
	if m == nil || m.cascades == nil {
		return
	}
	m.cascades.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *WorkflowMetrics) IncNotificationFailure(kind string) {
	if m == nil || m.notifyFailure == nil {
		return
	}
	m.notifyFailure.WithLabelValues(normalizeLabel(kind)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
