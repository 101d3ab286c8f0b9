package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/0xmhha/csm-sentinel/internal/constants"
)

// versionCacheSize bounds the per-block contract version cache
const versionCacheSize = constants.VersionCacheSize

// NodeOperator is the view of a node operator the enrichment handlers need.
type NodeOperator struct {
	TotalAddedKeys  uint32
	TargetLimit     uint32
	TargetLimitMode uint8
}

// nodeOperatorTuple mirrors the module's getNodeOperator() tuple.
type nodeOperatorTuple struct {
	TotalAddedKeys             uint32
	TotalWithdrawnKeys         uint32
	TotalDepositedKeys         uint32
	TotalVettedKeys            uint32
	StuckValidatorsCount       uint32
	DepositableValidatorsCount uint32
	TargetLimit                uint32
	TargetLimitMode            uint8
	TotalUnbondedKeys          uint32
	EnqueuedCount              uint32
	ManagerAddress             common.Address
	ProposedManagerAddress     common.Address
	RewardAddress              common.Address
	ProposedRewardAddress      common.Address
	ExtendedManagerPermissions bool
}

// Reader is the view-call surface the notification handlers enrich from.
// Calls are pinned to the block of the event being handled.
type Reader struct {
	caller  Caller
	addrs   *Addresses
	logger  *zap.Logger
	v2Cache *lru.Cache[uint64, bool]
}

// NewReader creates a reader over the discovered addresses.
func NewReader(caller Caller, addrs *Addresses, logger *zap.Logger) (*Reader, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller cannot be nil")
	}
	if addrs == nil {
		return nil, fmt.Errorf("addresses cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := lru.New[uint64, bool](versionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create version cache: %w", err)
	}

	return &Reader{
		caller:  caller,
		addrs:   addrs,
		logger:  logger,
		v2Cache: cache,
	}, nil
}

// Addresses returns the discovered addresses the reader operates on.
func (r *Reader) Addresses() *Addresses {
	return r.addrs
}

// IsV2 reports whether the module is initialized to version 2 at the given
// block. The answer is cached per block; a failed call degrades to v1 with
// a warning, matching how version probing behaved before v2 existed.
func (r *Reader) IsV2(ctx context.Context, block uint64) bool {
	if cached, ok := r.v2Cache.Get(block); ok {
		return cached
	}

	isV2 := false
	out, err := call(ctx, r.caller, r.addrs.Module, ModuleABI, "getInitializedVersion", blockArg(block))
	if err != nil {
		r.logger.Warn("failed to check module version, defaulting to v1",
			zap.Uint64("block", block), zap.Error(err))
	} else if version, ok := out[0].(uint64); ok {
		isV2 = version == 2
	}

	r.v2Cache.Add(block, isV2)
	return isV2
}

// ActualLockedBond returns the operator's currently locked bond at a block.
func (r *Reader) ActualLockedBond(ctx context.Context, opID *big.Int, block uint64) (*big.Int, error) {
	out, err := call(ctx, r.caller, r.addrs.Accounting, AccountingABI, "getActualLockedBond", blockArg(block), opID)
	if err != nil {
		return nil, err
	}
	return toBigInt(out[0], "getActualLockedBond")
}

// SigningKey returns one of the operator's signing keys by index.
func (r *Reader) SigningKey(ctx context.Context, opID, keyIndex *big.Int, block uint64) ([]byte, error) {
	out, err := call(ctx, r.caller, r.addrs.Module, ModuleABI, "getSigningKeys", blockArg(block), opID, keyIndex, big.NewInt(1))
	if err != nil {
		return nil, err
	}
	key, ok := out[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected getSigningKeys result %T", out[0])
	}
	return key, nil
}

// NodeOperator returns the operator's summary view at a block.
func (r *Reader) NodeOperator(ctx context.Context, opID *big.Int, block uint64) (*NodeOperator, error) {
	out, err := call(ctx, r.caller, r.addrs.Module, ModuleABI, "getNodeOperator", blockArg(block), opID)
	if err != nil {
		return nil, err
	}

	tuple := *abi.ConvertType(out[0], new(nodeOperatorTuple)).(*nodeOperatorTuple)
	return &NodeOperator{
		TotalAddedKeys:  tuple.TotalAddedKeys,
		TargetLimit:     tuple.TargetLimit,
		TargetLimitMode: tuple.TargetLimitMode,
	}, nil
}

// KeyRemovalCharge returns the charge applied for removing one of the
// operator's keys. On v1 the module holds the value directly; on v2 it is
// looked up in the parameters registry by the operator's bond curve.
func (r *Reader) KeyRemovalCharge(ctx context.Context, opID *big.Int, block uint64) (*big.Int, error) {
	if !r.IsV2(ctx, block) {
		out, err := call(ctx, r.caller, r.addrs.Module, ModuleABI, "keyRemovalCharge", blockArg(block))
		if err != nil {
			return nil, err
		}
		return toBigInt(out[0], "keyRemovalCharge")
	}

	out, err := call(ctx, r.caller, r.addrs.Accounting, AccountingABI, "getBondCurveId", blockArg(block), opID)
	if err != nil {
		return nil, err
	}
	curveID, err := toBigInt(out[0], "getBondCurveId")
	if err != nil {
		return nil, err
	}

	out, err = call(ctx, r.caller, r.addrs.ParametersRegistry, ParametersRegistryABI, "getKeyRemovalCharge", blockArg(block), curveID)
	if err != nil {
		return nil, err
	}
	return toBigInt(out[0], "getKeyRemovalCharge")
}

// BondBurnedAmount returns the amount burned from the operator's bond in a
// block, found by querying the accounting contract's BondBurned logs at
// exactly that block. Zero when no matching log exists.
func (r *Reader) BondBurnedAmount(ctx context.Context, opID *big.Int, block uint64) (*big.Int, error) {
	burnedEvent := AccountingABI.Events["BondBurned"]

	blockNum := new(big.Int).SetUint64(block)
	logs, err := r.caller.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: blockNum,
		ToBlock:   blockNum,
		Addresses: []common.Address{r.addrs.Accounting},
		Topics:    [][]common.Hash{{burnedEvent.ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query BondBurned logs: %w", err)
	}

	for _, log := range logs {
		if len(log.Topics) < 2 {
			continue
		}
		if new(big.Int).SetBytes(log.Topics[1].Bytes()).Cmp(opID) != 0 {
			continue
		}
		values, err := burnedEvent.Inputs.NonIndexed().UnpackValues(log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack BondBurned log: %w", err)
		}
		if len(values) < 2 {
			continue
		}
		return toBigInt(values[1], "BondBurned.burnedAmount")
	}
	return big.NewInt(0), nil
}

func blockArg(block uint64) *big.Int {
	if block == 0 {
		return nil
	}
	return new(big.Int).SetUint64(block)
}

func toBigInt(v interface{}, source string) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result %T", source, v)
	}
	return n, nil
}
