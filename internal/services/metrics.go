package services

import "github.com/prometheus/client_golang/prometheus"

// Submission outcomes recorded in submissionsTotal.
const (
	OutcomeCreated      = "created"
	OutcomeSpam         = "spam"
	OutcomeUnverified   = "unverified"
	OutcomeInvalid      = "invalid"
	OutcomePersistError = "error"
)

// submissionsTotal counts contact submissions by pipeline outcome.
var submissionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "contact_submissions_total",
		Help: "Contact form submissions by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(submissionsTotal)
}
