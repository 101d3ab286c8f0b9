package delivery

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/0xmhha/csm-sentinel/dispatch"
	"github.com/0xmhha/csm-sentinel/events"
)

// Pipeline is the event sink behind both consumption modes: it plans a
// notification for each decoded event and fans it out.
type Pipeline struct {
	dispatcher *dispatch.Dispatcher
	fanout     *Fanout
	logger     *zap.Logger
}

// NewPipeline wires dispatch to delivery.
func NewPipeline(dispatcher *dispatch.Dispatcher, fanout *Fanout, logger *zap.Logger) (*Pipeline, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if fanout == nil {
		return nil, fmt.Errorf("fanout cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		dispatcher: dispatcher,
		fanout:     fanout,
		logger:     logger.With(zap.String("component", "pipeline")),
	}, nil
}

// HandleEvent plans and delivers one decoded event. Send failures are
// counted inside the fan-out and never surfaced as an error: delivery
// problems must not stall block processing.
func (p *Pipeline) HandleEvent(ctx context.Context, e *events.Event) error {
	plan := p.dispatcher.Dispatch(ctx, e)
	if plan == nil {
		p.logger.Debug("event suppressed", zap.String("event", e.Name), zap.Uint64("block", e.Block))
		return nil
	}

	sent, failed := p.fanout.Deliver(ctx, e, plan)
	p.logger.Info("event delivered",
		zap.String("event", e.Name),
		zap.Uint64("block", e.Block),
		zap.Int("sent", sent),
		zap.Int("failed", failed))
	return nil
}
