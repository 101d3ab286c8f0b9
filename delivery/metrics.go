package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentinel",
	Subsystem: "delivery",
	Name:      "sends_total",
	Help:      "Total notification sends by result",
}, []string{"result"})
