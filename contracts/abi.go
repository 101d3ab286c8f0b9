package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Trimmed ABI definitions for the contracts the bot talks to. Only the
// events followed and the view functions used for enrichment are kept.

const moduleABIJSON = `[
	{"type":"function","name":"ACCOUNTING","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"PARAMETERS_REGISTRY","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"FEE_DISTRIBUTOR","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"EXIT_PENALTIES","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"LIDO_LOCATOR","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getType","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"getInitializedVersion","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint64"}]},
	{"type":"function","name":"keyRemovalCharge","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getSigningKeys","stateMutability":"view","inputs":[
		{"name":"nodeOperatorId","type":"uint256"},
		{"name":"startIndex","type":"uint256"},
		{"name":"keysCount","type":"uint256"}
	],"outputs":[{"name":"","type":"bytes"}]},
	{"type":"function","name":"getNodeOperator","stateMutability":"view","inputs":[
		{"name":"nodeOperatorId","type":"uint256"}
	],"outputs":[{"name":"","type":"tuple","components":[
		{"name":"totalAddedKeys","type":"uint32"},
		{"name":"totalWithdrawnKeys","type":"uint32"},
		{"name":"totalDepositedKeys","type":"uint32"},
		{"name":"totalVettedKeys","type":"uint32"},
		{"name":"stuckValidatorsCount","type":"uint32"},
		{"name":"depositableValidatorsCount","type":"uint32"},
		{"name":"targetLimit","type":"uint32"},
		{"name":"targetLimitMode","type":"uint8"},
		{"name":"totalUnbondedKeys","type":"uint32"},
		{"name":"enqueuedCount","type":"uint32"},
		{"name":"managerAddress","type":"address"},
		{"name":"proposedManagerAddress","type":"address"},
		{"name":"rewardAddress","type":"address"},
		{"name":"proposedRewardAddress","type":"address"},
		{"name":"extendedManagerPermissions","type":"bool"}
	]}]},
	{"type":"event","name":"DepositedSigningKeysCountChanged","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"depositedKeysCount","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"ELRewardsStealingPenaltyReported","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"proposedBlockHash","type":"bytes32","indexed":false},
		{"name":"stolenAmount","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"ELRewardsStealingPenaltySettled","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true}
	]},
	{"type":"event","name":"ELRewardsStealingPenaltyCancelled","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"InitialSlashingSubmitted","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"keyIndex","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"KeyRemovalChargeApplied","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true}
	]},
	{"type":"event","name":"BondCurveSet","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"curveId","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"NodeOperatorManagerAddressChangeProposed","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"oldProposedAddress","type":"address","indexed":true},
		{"name":"newProposedAddress","type":"address","indexed":true}
	]},
	{"type":"event","name":"NodeOperatorManagerAddressChanged","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"oldAddress","type":"address","indexed":true},
		{"name":"newAddress","type":"address","indexed":true}
	]},
	{"type":"event","name":"NodeOperatorRewardAddressChangeProposed","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"oldProposedAddress","type":"address","indexed":true},
		{"name":"newProposedAddress","type":"address","indexed":true}
	]},
	{"type":"event","name":"NodeOperatorRewardAddressChanged","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"oldAddress","type":"address","indexed":true},
		{"name":"newAddress","type":"address","indexed":true}
	]},
	{"type":"event","name":"StuckSigningKeysCountChanged","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"stuckKeysCount","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"VettedSigningKeysCountDecreased","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true}
	]},
	{"type":"event","name":"WithdrawalSubmitted","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"keyIndex","type":"uint256","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"pubkey","type":"bytes","indexed":false}
	]},
	{"type":"event","name":"TotalSigningKeysCountChanged","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"totalKeysCount","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"TargetValidatorsCountChanged","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"targetLimitMode","type":"uint256","indexed":false},
		{"name":"targetValidatorsCount","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"ValidatorExitDelayProcessed","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"pubkey","type":"bytes","indexed":false},
		{"name":"delayPenalty","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"TriggeredExitFeeRecorded","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"exitType","type":"uint256","indexed":false},
		{"name":"pubkey","type":"bytes","indexed":false},
		{"name":"withdrawalRequestPaidFee","type":"uint256","indexed":false},
		{"name":"withdrawalRequestRecordedFee","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"StrikesPenaltyProcessed","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"pubkey","type":"bytes","indexed":false},
		{"name":"strikesPenalty","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"PublicRelease","inputs":[]},
	{"type":"event","name":"Initialized","inputs":[
		{"name":"version","type":"uint64","indexed":false}
	]}
]`

const accountingABIJSON = `[
	{"type":"function","name":"getActualLockedBond","stateMutability":"view","inputs":[
		{"name":"nodeOperatorId","type":"uint256"}
	],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getBondCurveId","stateMutability":"view","inputs":[
		{"name":"nodeOperatorId","type":"uint256"}
	],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"BondBurned","inputs":[
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"toBurnAmount","type":"uint256","indexed":false},
		{"name":"burnedAmount","type":"uint256","indexed":false}
	]}
]`

const feeDistributorABIJSON = `[
	{"type":"event","name":"DistributionLogUpdated","inputs":[
		{"name":"logCid","type":"string","indexed":false}
	]}
]`

const exitBusABIJSON = `[
	{"type":"event","name":"ValidatorExitRequest","inputs":[
		{"name":"stakingModuleId","type":"uint256","indexed":true},
		{"name":"nodeOperatorId","type":"uint256","indexed":true},
		{"name":"validatorIndex","type":"uint256","indexed":true},
		{"name":"validatorPubkey","type":"bytes","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false}
	]}
]`

const parametersRegistryABIJSON = `[
	{"type":"function","name":"getKeyRemovalCharge","stateMutability":"view","inputs":[
		{"name":"curveId","type":"uint256"}
	],"outputs":[{"name":"","type":"uint256"}]}
]`

const locatorABIJSON = `[
	{"type":"function","name":"validatorsExitBusOracle","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"stakingRouter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

const stakingRouterABIJSON = `[
	{"type":"function","name":"getStakingModules","stateMutability":"view","inputs":[],"outputs":[
		{"name":"res","type":"tuple[]","components":[
			{"name":"id","type":"uint24"},
			{"name":"stakingModuleAddress","type":"address"},
			{"name":"stakingModuleFee","type":"uint16"},
			{"name":"treasuryFee","type":"uint16"},
			{"name":"stakeShareLimit","type":"uint16"},
			{"name":"status","type":"uint8"},
			{"name":"name","type":"string"},
			{"name":"lastDepositAt","type":"uint64"},
			{"name":"lastDepositBlock","type":"uint256"},
			{"name":"exitedValidatorsCount","type":"uint256"},
			{"name":"priorityExitShareThreshold","type":"uint16"},
			{"name":"maxDepositsPerBlock","type":"uint64"},
			{"name":"minDepositBlockDistance","type":"uint64"}
		]}
	]}
]`

// Parsed ABIs, shared by discovery, the reader, and the log decoder.
var (
	ModuleABI             = mustParseABI(moduleABIJSON)
	AccountingABI         = mustParseABI(accountingABIJSON)
	FeeDistributorABI     = mustParseABI(feeDistributorABIJSON)
	ExitBusABI            = mustParseABI(exitBusABIJSON)
	ParametersRegistryABI = mustParseABI(parametersRegistryABIJSON)
	LocatorABI            = mustParseABI(locatorABIJSON)
	StakingRouterABI      = mustParseABI(stakingRouterABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
