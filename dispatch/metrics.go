package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var plansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentinel",
	Subsystem: "dispatch",
	Name:      "plans_total",
	Help:      "Total notification plans by outcome",
}, []string{"outcome"})
