package subscription

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/csm-sentinel/dispatch"
)

const defaultStallInterval = 30 * time.Minute

// AdminSender delivers operational alerts to a single chat.
type AdminSender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// HeadSource exposes the newest block number seen on the live head stream.
type HeadSource interface {
	Head() uint64
}

// Monitor watches the chain head estimate and alerts the admin chats when
// the RPC stopped delivering new blocks for a full interval. The durable
// event checkpoint plays no part here: watched events are rare, so a still
// checkpoint is normal while a still head means the connection went quiet.
type Monitor struct {
	source   HeadSource
	sender   AdminSender
	adminIDs []int64
	interval time.Duration
	logger   *zap.Logger
}

// NewMonitor creates a staleness monitor. A zero interval falls back to the
// default of 30 minutes.
func NewMonitor(source HeadSource, sender AdminSender, adminIDs []int64, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultStallInterval
	}
	return &Monitor{
		source:   source,
		sender:   sender,
		adminIDs: adminIDs,
		interval: interval,
		logger:   logger,
	}
}

// Run ticks until the context ends. Each tick compares the head to the
// previous tick's value; an unchanged head triggers one alert.
func (m *Monitor) Run(ctx context.Context) error {
	if len(m.adminIDs) == 0 {
		m.logger.Info("No admin chats configured, staleness monitor disabled")
		return nil
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	last := m.source.Head()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			current := m.source.Head()
			if current > last {
				last = current
				continue
			}
			m.alert(ctx, current)
		}
	}
}

func (m *Monitor) alert(ctx context.Context, block uint64) {
	stallAlertsTotal.Inc()
	m.logger.Warn("No new blocks received",
		zap.Duration("interval", m.interval),
		zap.Uint64("head", block),
	)
	text := dispatch.NoNewBlocksAlert(m.interval, block)
	for _, chatID := range m.adminIDs {
		if err := m.sender.Send(ctx, chatID, text); err != nil {
			m.logger.Error("Failed to alert admin chat",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
		}
	}
}
