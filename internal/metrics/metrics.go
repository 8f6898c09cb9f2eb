package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsCaptured = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadwarden_requests_captured_total",
		Help: "Total number of requests captured into the request log",
	})
	rulesEvaluated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadwarden_rules_evaluated_total",
		Help: "Total number of rule evaluations performed",
	})
	infringementsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadwarden_infringements_total",
		Help: "Total number of infringements recorded",
	})
	blocksEnforced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadwarden_blocks_enforced_total",
		Help: "Total number of requests terminated by a blocking verdict",
	})
	notificationsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadwarden_notifications_sent_total",
		Help: "Total number of notification dispatches attempted",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(requestsCaptured, rulesEvaluated, infringementsTotal, blocksEnforced, notificationsSent)
}

// IncRequestCaptured increments the captured requests counter.
func IncRequestCaptured() { requestsCaptured.Inc() }

// IncRuleEvaluated increments the rule evaluations counter.
func IncRuleEvaluated() { rulesEvaluated.Inc() }

// IncInfringement increments the infringements counter.
func IncInfringement() { infringementsTotal.Inc() }

// IncBlockEnforced increments the enforced blocks counter.
func IncBlockEnforced() { blocksEnforced.Inc() }

// IncNotificationSent increments the notification dispatch counter.
func IncNotificationSent() { notificationsSent.Inc() }
