package subscription

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	liveEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "subscription",
		Name:      "live_events_total",
		Help:      "Decoded live events by outcome (handled, suppressed).",
	}, []string{"outcome"})

	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "subscription",
		Name:      "reconnects_total",
		Help:      "Websocket subscription reconnect attempts.",
	})

	headGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "subscription",
		Name:      "head_block",
		Help:      "Newest block number seen via the newHeads stream.",
	})

	backfillBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "subscription",
		Name:      "backfill_blocks_total",
		Help:      "Blocks covered by completed backfill batches.",
	})

	backfillEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "subscription",
		Name:      "backfill_events_total",
		Help:      "Events replayed from historical logs.",
	})

	stallAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "subscription",
		Name:      "stall_alerts_total",
		Help:      "Staleness alerts sent to the admin chat.",
	})
)
