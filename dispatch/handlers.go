package dispatch

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/csm-sentinel/contracts"
	"github.com/0xmhha/csm-sentinel/events"
	"github.com/0xmhha/csm-sentinel/internal/constants"
	"github.com/0xmhha/csm-sentinel/ipfs"
)

// exitDeadline is how long an operator has to exit a validator after an
// exit request before penalties apply.
const exitDeadline = constants.ExitRequestDeadline

// ContractReader is the view-call surface handlers enrich from.
type ContractReader interface {
	IsV2(ctx context.Context, block uint64) bool
	ActualLockedBond(ctx context.Context, opID *big.Int, block uint64) (*big.Int, error)
	SigningKey(ctx context.Context, opID, keyIndex *big.Int, block uint64) ([]byte, error)
	NodeOperator(ctx context.Context, opID *big.Int, block uint64) (*contracts.NodeOperator, error)
	KeyRemovalCharge(ctx context.Context, opID *big.Int, block uint64) (*big.Int, error)
	BondBurnedAmount(ctx context.Context, opID *big.Int, block uint64) (*big.Int, error)
}

// DocumentFetcher retrieves off-chain distribution documents.
type DocumentFetcher interface {
	Distribution(ctx context.Context, cid string) (*ipfs.DistributionLog, error)
}

// Links holds the outbound URL templates, each with a single %s verb.
type Links struct {
	EtherscanTx    string
	EtherscanBlock string
	Beaconchain    string
	ModuleUI       string
}

// Messages composes notification texts for decoded events, enriching them
// with contract state pinned to the event's block.
type Messages struct {
	reader ContractReader
	docs   DocumentFetcher
	links  Links
	module common.Address
	logger *zap.Logger
}

// NewMessages creates the message composition service.
func NewMessages(reader ContractReader, docs DocumentFetcher, links Links, module common.Address, logger *zap.Logger) (*Messages, error) {
	if reader == nil {
		return nil, fmt.Errorf("contract reader cannot be nil")
	}
	if docs == nil {
		return nil, fmt.Errorf("document fetcher cannot be nil")
	}
	if links.EtherscanTx == "" || links.EtherscanBlock == "" || links.Beaconchain == "" {
		return nil, fmt.Errorf("etherscan and beaconchain URL templates must be configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Messages{
		reader: reader,
		docs:   docs,
		links:  links,
		module: module,
		logger: logger.With(zap.String("component", "dispatch")),
	}, nil
}

// footerFor renders the message footer with the operator id (when present)
// and the transaction link.
func (m *Messages) footerFor(e *events.Event) string {
	txLink := fmt.Sprintf(m.links.EtherscanTx, e.TxHash.Hex())
	opID, _ := e.OperatorID()
	return footer(opID, txLink)
}

func (m *Messages) keyURL(key string) string {
	return fmt.Sprintf(m.links.Beaconchain, key)
}

// Default formats the fallback text for events without a registered handler.
func (m *Messages) Default(e *events.Event) *Plan {
	return NewBroadcast(defaultEventText(e.Name, e.Readable()) + m.footerFor(e))
}

// Typed argument accessors. A missing or mistyped argument is a handler
// error, surfaced to the dispatcher's degrade path.

func argBig(e *events.Event, name string) (*big.Int, error) {
	v, ok := e.Args[name]
	if !ok {
		return nil, fmt.Errorf("%s: missing argument %q", e.Name, name)
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: argument %q is %T, want *big.Int", e.Name, name, v)
	}
	return n, nil
}

func argAddress(e *events.Event, name string) (common.Address, error) {
	v, ok := e.Args[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%s: missing argument %q", e.Name, name)
	}
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: argument %q is %T, want common.Address", e.Name, name, v)
	}
	return addr, nil
}

func argBytes(e *events.Event, name string) ([]byte, error) {
	v, ok := e.Args[name]
	if !ok {
		return nil, fmt.Errorf("%s: missing argument %q", e.Name, name)
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%s: argument %q is %T, want []byte", e.Name, name, v)
	}
	return b, nil
}

func argHash(e *events.Event, name string) (common.Hash, error) {
	v, ok := e.Args[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("%s: missing argument %q", e.Name, name)
	}
	h, ok := v.(common.Hash)
	if !ok {
		return common.Hash{}, fmt.Errorf("%s: argument %q is %T, want common.Hash", e.Name, name, v)
	}
	return h, nil
}

func argString(e *events.Event, name string) (string, error) {
	v, ok := e.Args[name]
	if !ok {
		return "", fmt.Errorf("%s: missing argument %q", e.Name, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %q is %T, want string", e.Name, name, v)
	}
	return s, nil
}

// Handler composes the notification plan for one event. Returning a nil
// plan with a nil error suppresses the event.
type Handler func(ctx context.Context, m *Messages, e *events.Event) (*Plan, error)

// newHandlerRegistry builds the static event name to handler map.
func newHandlerRegistry() map[string]Handler {
	return map[string]Handler{
		"DepositedSigningKeysCountChanged":         handleDepositedKeys,
		"ELRewardsStealingPenaltyReported":         handleStealingReported,
		"ELRewardsStealingPenaltySettled":          handleStealingSettled,
		"ELRewardsStealingPenaltyCancelled":        handleStealingCancelled,
		"InitialSlashingSubmitted":                 handleInitialSlashing,
		"KeyRemovalChargeApplied":                  handleKeyRemovalCharge,
		"BondCurveSet":                             handleBondCurveSet,
		"NodeOperatorManagerAddressChangeProposed": handleManagerAddressProposed,
		"NodeOperatorManagerAddressChanged":        handleManagerAddressChanged,
		"NodeOperatorRewardAddressChangeProposed":  handleRewardAddressProposed,
		"NodeOperatorRewardAddressChanged":         handleRewardAddressChanged,
		"StuckSigningKeysCountChanged":             handleStuckKeys,
		"VettedSigningKeysCountDecreased":          handleVettedKeysDecreased,
		"WithdrawalSubmitted":                      handleWithdrawalSubmitted,
		"TotalSigningKeysCountChanged":             handleTotalKeysChanged,
		"TargetValidatorsCountChanged":             handleTargetValidatorsCount,
		"ValidatorExitRequest":                     handleValidatorExitRequest,
		"ValidatorExitDelayProcessed":              handleExitDelayProcessed,
		"TriggeredExitFeeRecorded":                 handleTriggeredExitFee,
		"StrikesPenaltyProcessed":                  handleStrikesPenalty,
		"PublicRelease":                            handlePublicRelease,
		"DistributionLogUpdated":                   handleDistributionLogUpdated,
		"Initialized":                              handleInitialized,
	}
}

func handleDepositedKeys(_ context.Context, m *Messages, e *events.Event) (*Plan, error) {
	count, err := argBig(e, "depositedKeysCount")
	if err != nil {
		return nil, err
	}
	return NewBroadcast(depositedKeysText(count) + m.footerFor(e)), nil
}

func handleStealingCancelled(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	opID, err := argBig(e, "nodeOperatorId")
	if err != nil {
		return nil, err
	}
	remaining, err := m.reader.ActualLockedBond(ctx, opID, e.Block)
	if err != nil {
		return nil, fmt.Errorf("failed to read locked bond: %w", err)
	}
	return NewBroadcast(stealingPenaltyCancelledText(humanizeWei(remaining)) + m.footerFor(e)), nil
}

func handleStealingReported(_ context.Context, m *Messages, e *events.Event) (*Plan, error) {
	blockHash, err := argHash(e, "proposedBlockHash")
	if err != nil {
		return nil, err
	}
	stolen, err := argBig(e, "stolenAmount")
	if err != nil {
		return nil, err
	}
	blockLink := fmt.Sprintf(m.links.EtherscanBlock, blockHash.Hex())
	return NewBroadcast(stealingPenaltyReportedText(humanizeWei(stolen), blockLink) + m.footerFor(e)), nil
}

func handleStealingSettled(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	opID, err := argBig(e, "nodeOperatorId")
	if err != nil {
		return nil, err
	}
	burnt, err := m.reader.BondBurnedAmount(ctx, opID, e.Block)
	if err != nil {
		return nil, fmt.Errorf("failed to read burned bond: %w", err)
	}
	return NewBroadcast(stealingPenaltySettledText(humanizeWei(burnt)) + m.footerFor(e)), nil
}

func handleInitialSlashing(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	if m.reader.IsV2(ctx, e.Block) {
		return nil, nil
	}
	opID, err := argBig(e, "nodeOperatorId")
	if err != nil {
		return nil, err
	}
	keyIndex, err := argBig(e, "keyIndex")
	if err != nil {
		return nil, err
	}
	key, err := m.reader.SigningKey(ctx, opID, keyIndex, e.Block)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	keyHex := hexutilBytes(key)
	return NewBroadcast(initialSlashingText(keyHex, m.keyURL(keyHex)) + m.footerFor(e)), nil
}

func handleKeyRemovalCharge(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	opID, err := argBig(e, "nodeOperatorId")
	if err != nil {
		return nil, err
	}
	amount, err := m.reader.KeyRemovalCharge(ctx, opID, e.Block)
	if err != nil {
		return nil, fmt.Errorf("failed to read key removal charge: %w", err)
	}
	return NewBroadcast(keyRemovalChargeText(humanizeWei(amount)) + m.footerFor(e)), nil
}

func handleBondCurveSet(_ context.Context, m *Messages, e *events.Event) (*Plan, error) {
	curveID, err := argBig(e, "curveId")
	if err != nil {
		return nil, err
	}
	return NewBroadcast(bondCurveSetText(curveID, m.links.ModuleUI) + m.footerFor(e)), nil
}

func handleManagerAddressProposed(_ context.Context, m *Messages, e *events.Event) (*Plan, error) {
	addr, err := argAddress(e, "newProposedAddress")
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return NewBroadcast(managerAddressRevokedText() + m.footerFor(e)), nil
	}
	return NewBroadcast(managerAddressProposedText(addr.Hex()) + m.footerFor(e)), nil
}

func handleManagerAddressChanged(_ context.Context, m *Messages, e *events.Event) (*Plan, error) {
	addr, err := argAddress(e, "newAddress")
	if err != nil {
		return nil, err
	}
	return NewBroadcast(managerAddressChangedText(addr.Hex()) + m.footerFor(e)), nil
}

func handleRewardAddressProposed(_ context.Context, m *Messages, e *events.Event) (*Plan, error) {
	addr, err := argAddress(e, "newProposedAddress")
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return NewBroadcast(rewardAddressRevokedText() + m.footerFor(e)), nil
	}
	return NewBroadcast(rewardAddressProposedText(addr.Hex()) + m.footerFor(e)), nil
}

func handleRewardAddressChanged(_ context.Context, m *Messages, e *events.Event) (*Plan, error) {
	addr, err := argAddress(e, "newAddress")
	if err != nil {
		return nil, err
	}
	return NewBroadcast(rewardAddressChangedText(addr.Hex()) + m.footerFor(e)), nil
}

func handleStuckKeys(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	if m.reader.IsV2(ctx, e.Block) {
		return nil, nil
	}
	count, err := argBig(e, "stuckKeysCount")
	if err != nil {
		return nil, err
	}
	return NewBroadcast(stuckKeysText(count, m.links.ModuleUI) + m.footerFor(e)), nil
}

func handleVettedKeysDecreased(_ context.Context, m *Messages, e *events.Event) (*Plan, error) {
	return NewBroadcast(vettedKeysDecreasedText(m.links.ModuleUI) + m.footerFor(e)), nil
}

func handleWithdrawalSubmitted(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	opID, err := argBig(e, "nodeOperatorId")
	if err != nil {
		return nil, err
	}
	keyIndex, err := argBig(e, "keyIndex")
	if err != nil {
		return nil, err
	}
	amount, err := argBig(e, "amount")
	if err != nil {
		return nil, err
	}
	key, err := m.reader.SigningKey(ctx, opID, keyIndex, e.Block)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	keyHex := hexutilBytes(key)
	text := withdrawalSubmittedText(keyHex, m.keyURL(keyHex), humanizeWei(amount), m.links.ModuleUI)
	return NewBroadcast(text + m.footerFor(e)), nil
}

func handleTotalKeysChanged(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	opID, err := argBig(e, "nodeOperatorId")
	if err != nil {
		return nil, err
	}
	count, err := argBig(e, "totalKeysCount")
	if err != nil {
		return nil, err
	}
	// The count before the change is the operator's state one block back.
	op, err := m.reader.NodeOperator(ctx, opID, e.Block-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read node operator: %w", err)
	}
	before := new(big.Int).SetUint64(uint64(op.TotalAddedKeys))
	return NewBroadcast(totalKeysChangedText(count, before) + m.footerFor(e)), nil
}

func handleTargetValidatorsCount(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	opID, err := argBig(e, "nodeOperatorId")
	if err != nil {
		return nil, err
	}
	modeAfter, err := argBig(e, "targetLimitMode")
	if err != nil {
		return nil, err
	}
	limitAfter, err := argBig(e, "targetValidatorsCount")
	if err != nil {
		return nil, err
	}
	op, err := m.reader.NodeOperator(ctx, opID, e.Block-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read node operator: %w", err)
	}
	limitBefore := new(big.Int).SetUint64(uint64(op.TargetLimit))
	text := targetValidatorsCountText(uint64(op.TargetLimitMode), limitBefore, modeAfter.Uint64(), limitAfter)
	return NewBroadcast(text + m.footerFor(e)), nil
}

func handleValidatorExitRequest(_ context.Context, m *Messages, e *events.Event) (*Plan, error) {
	pubkey, err := argBytes(e, "validatorPubkey")
	if err != nil {
		return nil, err
	}
	timestamp, err := argBig(e, "timestamp")
	if err != nil {
		return nil, err
	}
	requestDate := time.Unix(timestamp.Int64(), 0).UTC()
	exitUntil := requestDate.Add(exitDeadline)
	keyHex := hexutilBytes(pubkey)
	text := validatorExitRequestText(keyHex, m.keyURL(keyHex),
		formatEventDate(requestDate), formatEventDate(exitUntil))
	return NewBroadcast(text + m.footerFor(e)), nil
}

func handleExitDelayProcessed(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	if !m.reader.IsV2(ctx, e.Block) {
		return nil, nil
	}
	pubkey, err := argBytes(e, "pubkey")
	if err != nil {
		return nil, err
	}
	penalty, err := argBig(e, "delayPenalty")
	if err != nil {
		return nil, err
	}
	keyHex := hexutilBytes(pubkey)
	return NewBroadcast(exitDelayProcessedText(keyHex, m.keyURL(keyHex), humanizeWei(penalty)) + m.footerFor(e)), nil
}

func handleTriggeredExitFee(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	if !m.reader.IsV2(ctx, e.Block) {
		return nil, nil
	}
	pubkey, err := argBytes(e, "pubkey")
	if err != nil {
		return nil, err
	}
	paidFee, err := argBig(e, "withdrawalRequestPaidFee")
	if err != nil {
		return nil, err
	}
	recordedFee, err := argBig(e, "withdrawalRequestRecordedFee")
	if err != nil {
		return nil, err
	}
	keyHex := hexutilBytes(pubkey)
	text := triggeredExitFeeText(keyHex, m.keyURL(keyHex), humanizeWei(paidFee), humanizeWei(recordedFee))
	return NewBroadcast(text + m.footerFor(e)), nil
}

func handleStrikesPenalty(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	if !m.reader.IsV2(ctx, e.Block) {
		return nil, nil
	}
	pubkey, err := argBytes(e, "pubkey")
	if err != nil {
		return nil, err
	}
	penalty, err := argBig(e, "strikesPenalty")
	if err != nil {
		return nil, err
	}
	keyHex := hexutilBytes(pubkey)
	return NewBroadcast(strikesPenaltyText(keyHex, m.keyURL(keyHex), humanizeWei(penalty)) + m.footerFor(e)), nil
}

func handlePublicRelease(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	if m.reader.IsV2(ctx, e.Block) {
		return nil, nil
	}
	return NewBroadcast(publicReleaseText() + m.footerFor(e)), nil
}

func handleInitialized(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	v, ok := e.Args["version"]
	if !ok {
		return nil, fmt.Errorf("%s: missing argument %q", e.Name, "version")
	}
	version, ok := v.(uint64)
	if !ok {
		return nil, fmt.Errorf("%s: argument %q is %T, want uint64", e.Name, "version", v)
	}
	// Proxies below the module emit Initialized too; only the module's own
	// v2 upgrade is announced.
	if version != 2 || e.Address != m.module {
		return nil, nil
	}
	return NewBroadcast(initializedV2Text() + m.footerFor(e)), nil
}

// handleDistributionLogUpdated fetches the off-chain distribution document
// and builds a plan targeting every operator in it, with a richer message
// for operators whose validators received strikes. A failed fetch degrades
// to the plain broadcast.
func handleDistributionLogUpdated(ctx context.Context, m *Messages, e *events.Event) (*Plan, error) {
	text := rewardsDistributedText(m.links.ModuleUI) + m.footerFor(e)

	cid, err := argString(e, "logCid")
	if err != nil {
		return nil, err
	}

	doc, err := m.docs.Distribution(ctx, cid)
	if err != nil {
		m.logger.Warn("failed to fetch distribution document, broadcasting without operator detail",
			zap.String("cid", cid), zap.Error(err))
		return NewBroadcast(text), nil
	}

	plan := NewBroadcast(text).Target(doc.OperatorIDs()...)
	for _, opID := range doc.OperatorIDs() {
		striked := doc.StrikedValidators(opID)
		if len(striked) == 0 {
			continue
		}
		plan.SetOperatorMessage(opID, operatorStrikesText(striked, m.links.ModuleUI)+m.footerFor(e))
	}
	return plan, nil
}

func hexutilBytes(b []byte) string {
	return "0x" + common.Bytes2Hex(b)
}
