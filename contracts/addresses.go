package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Caller is the read-only chain surface the contracts package needs.
// *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Addresses holds the discovered contract addresses around a staking module
// deployment, plus its staking router module id and on-chain type tag.
type Addresses struct {
	Module             common.Address
	Accounting         common.Address
	ParametersRegistry common.Address
	FeeDistributor     common.Address
	ExitPenalties      common.Address
	LidoLocator        common.Address
	StakingRouter      common.Address
	ExitBus            common.Address

	StakingModuleID uint64
	ModuleType      ModuleType
}

// stakingModule mirrors the staking router's getStakingModules() tuple.
type stakingModule struct {
	Id                         *big.Int
	StakingModuleAddress       common.Address
	StakingModuleFee           uint16
	TreasuryFee                uint16
	StakeShareLimit            uint16
	Status                     uint8
	Name                       string
	LastDepositAt              uint64
	LastDepositBlock           *big.Int
	ExitedValidatorsCount      *big.Int
	PriorityExitShareThreshold uint16
	MaxDepositsPerBlock        uint64
	MinDepositBlockDistance    uint64
}

// Discover resolves every dependent contract address from the module address
// alone: the module's own view getters, then the locator for the exit bus
// oracle and the staking router, then the router for the module's numeric id.
func Discover(ctx context.Context, caller Caller, module common.Address, logger *zap.Logger) (*Addresses, error) {
	accounting, err := callAddress(ctx, caller, module, ModuleABI, "ACCOUNTING")
	if err != nil {
		return nil, err
	}
	parametersRegistry, err := callAddress(ctx, caller, module, ModuleABI, "PARAMETERS_REGISTRY")
	if err != nil {
		return nil, err
	}
	feeDistributor, err := callAddress(ctx, caller, module, ModuleABI, "FEE_DISTRIBUTOR")
	if err != nil {
		return nil, err
	}
	exitPenalties, err := callAddress(ctx, caller, module, ModuleABI, "EXIT_PENALTIES")
	if err != nil {
		return nil, err
	}
	locator, err := callAddress(ctx, caller, module, ModuleABI, "LIDO_LOCATOR")
	if err != nil {
		return nil, err
	}

	exitBus, err := callAddress(ctx, caller, locator, LocatorABI, "validatorsExitBusOracle")
	if err != nil {
		return nil, err
	}
	stakingRouter, err := callAddress(ctx, caller, locator, LocatorABI, "stakingRouter")
	if err != nil {
		return nil, err
	}

	moduleID, err := findStakingModuleID(ctx, caller, stakingRouter, module)
	if err != nil {
		return nil, err
	}

	moduleType, err := readModuleType(ctx, caller, module)
	if err != nil {
		return nil, err
	}

	addrs := &Addresses{
		Module:             module,
		Accounting:         accounting,
		ParametersRegistry: parametersRegistry,
		FeeDistributor:     feeDistributor,
		ExitPenalties:      exitPenalties,
		LidoLocator:        locator,
		StakingRouter:      stakingRouter,
		ExitBus:            exitBus,
		StakingModuleID:    moduleID,
		ModuleType:         moduleType,
	}

	if logger != nil {
		logger.Info("discovered contract addresses",
			zap.String("module", addrs.Module.Hex()),
			zap.String("accounting", addrs.Accounting.Hex()),
			zap.String("parametersRegistry", addrs.ParametersRegistry.Hex()),
			zap.String("feeDistributor", addrs.FeeDistributor.Hex()),
			zap.String("exitPenalties", addrs.ExitPenalties.Hex()),
			zap.String("lidoLocator", addrs.LidoLocator.Hex()),
			zap.String("stakingRouter", addrs.StakingRouter.Hex()),
			zap.String("exitBus", addrs.ExitBus.Hex()),
			zap.Uint64("stakingModuleId", addrs.StakingModuleID),
			zap.String("moduleType", string(addrs.ModuleType)),
		)
	}
	return addrs, nil
}

func readModuleType(ctx context.Context, caller Caller, module common.Address) (ModuleType, error) {
	out, err := call(ctx, caller, module, ModuleABI, "getType", nil)
	if err != nil {
		return "", err
	}
	raw, ok := out[0].([32]byte)
	if !ok {
		return "", fmt.Errorf("unexpected getType() result %T", out[0])
	}
	return DecodeModuleType(raw)
}

func findStakingModuleID(ctx context.Context, caller Caller, router, module common.Address) (uint64, error) {
	out, err := call(ctx, caller, router, StakingRouterABI, "getStakingModules", nil)
	if err != nil {
		return 0, err
	}

	modules := *abi.ConvertType(out[0], new([]stakingModule)).(*[]stakingModule)
	for _, m := range modules {
		if strings.EqualFold(m.StakingModuleAddress.Hex(), module.Hex()) {
			return m.Id.Uint64(), nil
		}
	}
	return 0, fmt.Errorf("module %s is not registered in staking router %s", module.Hex(), router.Hex())
}

// callAddress performs a no-argument view call returning a single address
// and rejects the zero address.
func callAddress(ctx context.Context, caller Caller, to common.Address, contractABI abi.ABI, method string) (common.Address, error) {
	out, err := call(ctx, caller, to, contractABI, method, nil)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s() result %T", method, out[0])
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s() returned the zero address", method)
	}
	return addr, nil
}

// call packs a view call, executes it at the given block (nil for latest)
// and unpacks the outputs.
func call(ctx context.Context, caller Caller, to common.Address, contractABI abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, block)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}
