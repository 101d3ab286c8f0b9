package ipfs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "ipfs",
		Name:      "fetches_total",
		Help:      "Total gateway fetches by result",
	}, []string{"result"})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "ipfs",
		Name:      "cache_hits_total",
		Help:      "Total document cache hits",
	})
)
