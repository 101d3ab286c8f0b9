package subscription

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/csm-sentinel/events"
	"github.com/0xmhha/csm-sentinel/internal/constants"
)

const defaultReconnectDelay = constants.ReconnectDelay

// Engine follows the watched contracts over a websocket connection, decodes
// their logs, and feeds accepted events to the sink. It reconnects forever on
// subscription failure and advances the durable checkpoint after each handled
// event.
type Engine struct {
	client  ChainClient
	decoder *events.Decoder
	watches []Watch
	sink    Sink
	state   Checkpointer
	logger  *zap.Logger

	reconnectDelay time.Duration

	// head is the newest block number seen via newHeads; it never touches
	// the durable checkpoint.
	head atomic.Uint64

	// threshold suppresses live events at or below the block the backfill
	// pass is responsible for.
	threshold atomic.Uint64
}

// NewEngine creates a live subscription engine over the given watches.
func NewEngine(client ChainClient, decoder *events.Decoder, watches []Watch, sink Sink, state Checkpointer, logger *zap.Logger) *Engine {
	return &Engine{
		client:         client,
		decoder:        decoder,
		watches:        watches,
		sink:           sink,
		state:          state,
		logger:         logger,
		reconnectDelay: defaultReconnectDelay,
	}
}

// SetCatchUpThreshold marks every block up to and including the given number
// as owned by the backfill pass. Live events inside that range are dropped.
func (e *Engine) SetCatchUpThreshold(block uint64) {
	e.threshold.Store(block)
}

// ClearCatchUpThreshold lifts the suppression once the backfill pass has
// finished; live events at any block flow again.
func (e *Engine) ClearCatchUpThreshold() {
	e.threshold.Store(0)
}

// Head returns the newest block number observed via the newHeads stream.
func (e *Engine) Head() uint64 {
	return e.head.Load()
}

// Run subscribes and processes events until the context ends. Subscription
// failures are logged and retried indefinitely.
func (e *Engine) Run(ctx context.Context) error {
	for {
		err := e.runOnce(ctx)
		if ctx.Err() != nil {
			e.logger.Info("Subscription engine stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		}

		reconnectsTotal.Inc()
		e.logger.Warn("Subscription lost, reconnecting",
			zap.Error(err),
			zap.Duration("delay", e.reconnectDelay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.reconnectDelay):
		}
	}
}

// runOnce holds one set of subscriptions open until any of them fails.
func (e *Engine) runOnce(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logCh := make(chan types.Log, 256)
	headCh := make(chan *types.Header, 16)
	errCh := make(chan error, len(e.watches)+1)

	var subs []ethereum.Subscription
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	for i := range e.watches {
		w := &e.watches[i]
		sub, err := e.client.SubscribeFilterLogs(subCtx, w.query(), logCh)
		if err != nil {
			return fmt.Errorf("failed to subscribe to logs of %s: %w", w.Address.Hex(), err)
		}
		subs = append(subs, sub)
		go forwardSubErr(subCtx, sub, errCh)
	}

	headSub, err := e.client.SubscribeNewHead(subCtx, headCh)
	if err != nil {
		return fmt.Errorf("failed to subscribe to new heads: %w", err)
	}
	subs = append(subs, headSub)
	go forwardSubErr(subCtx, headSub, errCh)

	e.logger.Info("Subscribed to contract events",
		zap.Int("watches", len(e.watches)),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case header := <-headCh:
			e.observeHead(header)
		case log := <-logCh:
			if err := e.handleLog(ctx, log); err != nil {
				e.logger.Error("Failed to handle log",
					zap.Uint64("block", log.BlockNumber),
					zap.String("tx", log.TxHash.Hex()),
					zap.Error(err),
				)
			}
		}
	}
}

func (e *Engine) observeHead(header *types.Header) {
	if header == nil {
		return
	}
	number := header.Number.Uint64()
	for {
		current := e.head.Load()
		if number <= current {
			return
		}
		if e.head.CompareAndSwap(current, number) {
			headGauge.Set(float64(number))
			return
		}
	}
}

func (e *Engine) handleLog(ctx context.Context, log types.Log) error {
	event, ok, err := e.decoder.Decode(log)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	watch := watchFor(e.watches, log.Address)
	if watch != nil && !watch.Accepts(event) {
		return nil
	}

	if event.Block <= e.threshold.Load() {
		liveEventsTotal.WithLabelValues("suppressed").Inc()
		e.logger.Debug("Suppressing live event inside the backfill range",
			zap.String("event", event.Name),
			zap.Uint64("block", event.Block),
			zap.Uint64("threshold", e.threshold.Load()),
		)
		return nil
	}

	liveEventsTotal.WithLabelValues("handled").Inc()
	if err := e.sink.HandleEvent(ctx, event); err != nil {
		return fmt.Errorf("sink rejected %s at block %d: %w", event.Name, event.Block, err)
	}

	if _, err := e.state.AdvanceCheckpoint(event.Block); err != nil {
		return fmt.Errorf("failed to advance checkpoint to %d: %w", event.Block, err)
	}
	return nil
}

func forwardSubErr(ctx context.Context, sub ethereum.Subscription, errCh chan<- error) {
	select {
	case <-ctx.Done():
	case err := <-sub.Err():
		if err == nil {
			err = fmt.Errorf("subscription closed")
		}
		select {
		case errCh <- err:
		case <-ctx.Done():
		}
	}
}
