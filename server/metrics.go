package server

import "github.com/prometheus/client_golang/prometheus"

var (
	connectionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rowdis",
			Subsystem: "server",
			Name:      "connections",
			Help:      "Number of active client connections.",
		})
)

func init() {
	prometheus.MustRegister(connectionsGauge)
}
