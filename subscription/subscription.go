package subscription

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/0xmhha/csm-sentinel/contracts"
	"github.com/0xmhha/csm-sentinel/events"
)

// ChainClient is the RPC surface both consumption modes use.
type ChainClient interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// Sink consumes decoded events in block order.
type Sink interface {
	HandleEvent(ctx context.Context, e *events.Event) error
}

// Checkpointer owns the durable last-processed-block value.
type Checkpointer interface {
	Checkpoint() uint64
	AdvanceCheckpoint(block uint64) (uint64, error)
}

// Watch describes one contract to follow: which address, optionally which
// topics, and an optional post-decode predicate.
type Watch struct {
	Address   common.Address
	Topics    []common.Hash
	Predicate func(*events.Event) bool
}

// Accepts reports whether the watch's predicate passes the event.
func (w *Watch) Accepts(e *events.Event) bool {
	return w.Predicate == nil || w.Predicate(e)
}

func (w *Watch) query() ethereum.FilterQuery {
	q := ethereum.FilterQuery{Addresses: []common.Address{w.Address}}
	if len(w.Topics) > 0 {
		q.Topics = [][]common.Hash{w.Topics}
	}
	return q
}

// DefaultWatches builds the three watches of a deployment: every module
// event, the fee distributor's distribution log updates, and the exit bus
// oracle's exit requests for this staking module only.
func DefaultWatches(addrs *contracts.Addresses) []Watch {
	moduleID := new(big.Int).SetUint64(addrs.StakingModuleID)
	return []Watch{
		{Address: addrs.Module},
		{
			Address: addrs.FeeDistributor,
			Topics:  []common.Hash{contracts.FeeDistributorABI.Events["DistributionLogUpdated"].ID},
		},
		{
			Address: addrs.ExitBus,
			Topics:  []common.Hash{contracts.ExitBusABI.Events["ValidatorExitRequest"].ID},
			Predicate: func(e *events.Event) bool {
				id, ok := e.Args["stakingModuleId"].(*big.Int)
				return ok && id.Cmp(moduleID) == 0
			},
		},
	}
}

// watchFor returns the watch covering an emitting address.
func watchFor(watches []Watch, address common.Address) *Watch {
	for i := range watches {
		if watches[i].Address == address {
			return &watches[i]
		}
	}
	return nil
}
