package services

import "github.com/prometheus/client_golang/prometheus"

var (
	verdictsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposit_verdicts_total",
			Help: "Verdicts on deposit issues by reason (valid for accepted ones).",
		},
		[]string{"reason"},
	)
	migrationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_migrations_total",
			Help: "Report migrations to the cold tier by result.",
		},
		[]string{"result"},
	)
	migratedReportsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reports_migrated_total",
			Help: "Total number of reports moved to the cold tier.",
		},
	)
	depositsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "data_deposits_total",
			Help: "Aggregate data deposits by result.",
		},
		[]string{"result"},
	)
	batchesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "record_batches_written_total",
			Help: "CSV batches written by record kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(verdictsCounter, migrationsCounter, migratedReportsCounter, depositsCounter, batchesCounter)
}
