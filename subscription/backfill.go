package subscription

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/csm-sentinel/events"
)

// BackfillConfig holds backfill tuning parameters.
type BackfillConfig struct {
	// BatchSize is the number of blocks covered by one eth_getLogs call.
	BatchSize uint64

	// RequestsPerSecond caps eth_getLogs calls; Burst is the limiter burst.
	RequestsPerSecond float64
	Burst             int

	// StartBlock, when non-zero, overrides the stored checkpoint as the
	// first block of the replay.
	StartBlock uint64
}

// Validate validates the backfill configuration.
func (c *BackfillConfig) Validate() error {
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if c.Burst <= 0 {
		return fmt.Errorf("burst must be positive")
	}
	return nil
}

// Backfill replays historical logs from the checkpoint up to a target block.
// Only the eth_getLogs calls are rate limited; decoding and delivery run at
// full speed.
type Backfill struct {
	client  ChainClient
	decoder *events.Decoder
	watches []Watch
	sink    Sink
	state   Checkpointer
	limiter *rate.Limiter
	config  *BackfillConfig
	logger  *zap.Logger
}

// NewBackfill creates a historical replay pass over the given watches.
func NewBackfill(client ChainClient, decoder *events.Decoder, watches []Watch, sink Sink, state Checkpointer, config *BackfillConfig, logger *zap.Logger) (*Backfill, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backfill config: %w", err)
	}
	return &Backfill{
		client:  client,
		decoder: decoder,
		watches: watches,
		sink:    sink,
		state:   state,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		config:  config,
		logger:  logger,
	}, nil
}

// Run replays blocks from the block after the checkpoint through target.
// A configured StartBlock takes precedence over the checkpoint. The
// checkpoint advances to each batch end even when the batch produced no
// logs, so a restart never re-scans empty ranges. Any RPC failure aborts the
// pass; the caller decides whether that is fatal.
func (b *Backfill) Run(ctx context.Context, target uint64) error {
	start := b.state.Checkpoint() + 1
	if b.config.StartBlock > 0 {
		start = b.config.StartBlock
	}
	if start > target {
		b.logger.Info("Backfill already caught up",
			zap.Uint64("checkpoint", start-1),
			zap.Uint64("target", target),
		)
		return nil
	}

	began := time.Now()
	b.logger.Info("Starting backfill",
		zap.Uint64("start", start),
		zap.Uint64("target", target),
		zap.Uint64("blocks", target-start+1),
	)

	for from := start; from <= target; from += b.config.BatchSize {
		to := from + b.config.BatchSize - 1
		if to > target {
			to = target
		}

		if err := b.processBatch(ctx, from, to); err != nil {
			return fmt.Errorf("backfill failed at blocks %d-%d: %w", from, to, err)
		}

		if _, err := b.state.AdvanceCheckpoint(to); err != nil {
			return fmt.Errorf("failed to advance checkpoint to %d: %w", to, err)
		}
		backfillBlocksTotal.Add(float64(to - from + 1))
	}

	b.logger.Info("Completed backfill",
		zap.Uint64("start", start),
		zap.Uint64("target", target),
		zap.Duration("elapsed", time.Since(began)),
	)
	return nil
}

// processBatch fetches one block range for every watch, merges the logs into
// chain order, and feeds the accepted events through the sink.
func (b *Backfill) processBatch(ctx context.Context, from, to uint64) error {
	var logs []types.Log
	for i := range b.watches {
		w := &b.watches[i]
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		q := w.query()
		q.FromBlock = new(big.Int).SetUint64(from)
		q.ToBlock = new(big.Int).SetUint64(to)
		batch, err := b.client.FilterLogs(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to fetch logs of %s: %w", w.Address.Hex(), err)
		}
		logs = append(logs, batch...)
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	for _, log := range logs {
		event, ok, err := b.decoder.Decode(log)
		if err != nil {
			b.logger.Error("Failed to decode backfilled log",
				zap.Uint64("block", log.BlockNumber),
				zap.String("tx", log.TxHash.Hex()),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}
		if w := watchFor(b.watches, log.Address); w != nil && !w.Accepts(event) {
			continue
		}
		backfillEventsTotal.Inc()
		if err := b.sink.HandleEvent(ctx, event); err != nil {
			return fmt.Errorf("sink rejected %s at block %d: %w", event.Name, event.Block, err)
		}
	}

	b.logger.Debug("Backfilled block range",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Int("logs", len(logs)),
	)
	return nil
}
