package command

import "github.com/prometheus/client_golang/prometheus"

var (
	commandCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rowdis",
			Subsystem: "command",
			Name:      "total",
			Help:      "Counter of commands by name and result.",
		}, []string{"command", "result"})

	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rowdis",
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Bucketed histogram of command processing time.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"command"})
)

func init() {
	prometheus.MustRegister(commandCounter)
	prometheus.MustRegister(commandDuration)
}
