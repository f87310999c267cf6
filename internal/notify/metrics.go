package notify

import "github.com/prometheus/client_golang/prometheus"

// Result labels for notificationsTotal.
const (
	resultSent    = "sent"
	resultFailed  = "failed"
	resultDropped = "dropped"
	resultSkipped = "skipped"
)

// notificationsTotal counts notification outcomes by provider.
var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "contact_notifications_total",
		Help: "Contact notification outcomes by provider and result.",
	},
	[]string{"provider", "result"},
)

func init() {
	prometheus.MustRegister(notificationsTotal)
}
