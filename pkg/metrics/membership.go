package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MembershipMetrics records the lifecycle counters for the registration and
// payment pipeline.
type MembershipMetrics struct {
	registrations *prometheus.CounterVec
	verifications *prometheus.CounterVec
	payments      *prometheus.CounterVec
	cardRenders   *prometheus.HistogramVec
}

// NewMembershipMetrics registers the pipeline metrics on the provided registerer.
func NewMembershipMetrics(reg prometheus.Registerer) *MembershipMetrics {
	if reg == nil {
		return &MembershipMetrics{}
	}
	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "member_registrations_total",
		Help: "Member registration attempts by outcome.",
	}, []string{"outcome"})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "email_verifications_total",
		Help: "Email verification attempts by outcome.",
	}, []string{"outcome"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_recorded_total",
		Help: "Recorded payments by method.",
	}, []string{"method"})
	cardRenders := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "card_render_duration_seconds",
		Help:    "Duration of membership card PDF rendering.",
		Buckets: prometheus.DefBuckets,
	}, []string{"cached"})
	reg.MustRegister(registrations, verifications, payments, cardRenders)
	return &MembershipMetrics{
		registrations: registrations,
		verifications: verifications,
		payments:      payments,
		cardRenders:   cardRenders,
	}
}

// IncRegistration counts a registration attempt with its outcome.
func (m *MembershipMetrics) IncRegistration(outcome string) {
	if m == nil || m.registrations == nil {
		return
	}
	m.registrations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncVerification counts a verification attempt with its outcome.
func (m *MembershipMetrics) IncVerification(outcome string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPayment counts a recorded payment by method.
func (m *MembershipMetrics) IncPayment(method string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(method)).Inc()
}

// ObserveCardRender records how long a card render took.
func (m *MembershipMetrics) ObserveCardRender(cached bool, duration time.Duration) {
	if m == nil || m.cardRenders == nil {
		return
	}
	label := "miss"
	if cached {
		label = "hit"
	}
	m.cardRenders.WithLabelValues(label).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
