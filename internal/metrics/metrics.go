package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	IssuesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlgw_issues_total",
			Help: "Issues resolved by the gateway, by content source",
		},
		[]string{"source"}, // existing|ai|fallback
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlgw_deliveries_total",
			Help: "Delivery lifecycle counter by outcome",
		},
		[]string{"outcome"}, // sent|failed|skipped|requeued
	)

	CronRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlgw_cron_runs_total",
			Help: "Daily cron invocations by result",
		},
		[]string{"result"}, // ok|error
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		IssuesTotal,
		DeliveriesTotal,
		CronRunsTotal,
	)
}
