package subscription

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xmhha/csm-sentinel/contracts"
	"github.com/0xmhha/csm-sentinel/events"
)

var (
	testModuleAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testExitBusAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type fakeState struct {
	mu    sync.Mutex
	block uint64
}

func (s *fakeState) Checkpoint() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.block
}

func (s *fakeState) AdvanceCheckpoint(block uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block > s.block {
		s.block = block
	}
	return s.block, nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []*events.Event
	err    error
}

func (s *fakeSink) HandleEvent(_ context.Context, e *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *fakeSink) blocks() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Block)
	}
	return out
}

type fakeClient struct {
	mu          sync.Mutex
	latest      uint64
	logs        map[common.Address][]types.Log
	filterErr   error
	filterCalls int
}

func (c *fakeClient) GetLatestBlockNumber(context.Context) (uint64, error) {
	return c.latest, nil
}

func (c *fakeClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filterCalls++
	if c.filterErr != nil {
		return nil, c.filterErr
	}
	from := q.FromBlock.Uint64()
	to := q.ToBlock.Uint64()
	var out []types.Log
	for _, addr := range q.Addresses {
		for _, log := range c.logs[addr] {
			if log.BlockNumber >= from && log.BlockNumber <= to {
				out = append(out, log)
			}
		}
	}
	return out, nil
}

func (c *fakeClient) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, fmt.Errorf("not used")
}

func (c *fakeClient) SubscribeNewHead(context.Context, chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, fmt.Errorf("not used")
}

func testDecoder(t *testing.T) *events.Decoder {
	t.Helper()
	allowed := map[string]struct{}{
		"DepositedSigningKeysCountChanged": {},
		"ValidatorExitRequest":             {},
	}
	return events.NewDecoder(events.NewTopicSet(allowed, contracts.ModuleABI, contracts.ExitBusABI))
}

func depositLog(t *testing.T, block uint64, opID, count int64) types.Log {
	t.Helper()
	event := contracts.ModuleABI.Events["DepositedSigningKeysCountChanged"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(count))
	require.NoError(t, err)
	return types.Log{
		Address:     testModuleAddr,
		Topics:      []common.Hash{event.ID, common.BigToHash(big.NewInt(opID))},
		Data:        data,
		BlockNumber: block,
		Index:       0,
	}
}

func newTestBackfill(t *testing.T, client *fakeClient, sink *fakeSink, state *fakeState, watches []Watch) *Backfill {
	t.Helper()
	b, err := NewBackfill(client, testDecoder(t), watches, sink, state, &BackfillConfig{
		BatchSize:         10000,
		RequestsPerSecond: 1000,
		Burst:             10,
	}, zap.NewNop())
	require.NoError(t, err)
	return b
}

func TestBackfill_AdvancesCheckpointThroughEmptyBatches(t *testing.T) {
	client := &fakeClient{latest: 25000}
	sink := &fakeSink{}
	state := &fakeState{}
	b := newTestBackfill(t, client, sink, state, []Watch{{Address: testModuleAddr}})

	require.NoError(t, b.Run(context.Background(), 25000))

	assert.Equal(t, uint64(25000), state.Checkpoint())
	assert.Empty(t, sink.events)
	assert.Equal(t, 3, client.filterCalls)
}

func TestBackfill_DeliversEventsInBlockOrder(t *testing.T) {
	client := &fakeClient{
		logs: map[common.Address][]types.Log{
			testModuleAddr: {
				depositLog(t, 300, 7, 2),
				depositLog(t, 100, 5, 3),
				depositLog(t, 200, 6, 1),
			},
		},
	}
	sink := &fakeSink{}
	state := &fakeState{}
	b := newTestBackfill(t, client, sink, state, []Watch{{Address: testModuleAddr}})

	require.NoError(t, b.Run(context.Background(), 500))

	assert.Equal(t, []uint64{100, 200, 300}, sink.blocks())
	assert.Equal(t, uint64(500), state.Checkpoint())
}

func TestBackfill_RPCErrorAborts(t *testing.T) {
	client := &fakeClient{filterErr: fmt.Errorf("connection reset")}
	sink := &fakeSink{}
	state := &fakeState{}
	b := newTestBackfill(t, client, sink, state, []Watch{{Address: testModuleAddr}})

	err := b.Run(context.Background(), 5000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, uint64(0), state.Checkpoint())
}

func TestBackfill_AlreadyCaughtUp(t *testing.T) {
	client := &fakeClient{}
	state := &fakeState{block: 900}
	b := newTestBackfill(t, client, &fakeSink{}, state, []Watch{{Address: testModuleAddr}})

	require.NoError(t, b.Run(context.Background(), 800))
	assert.Zero(t, client.filterCalls)
	assert.Equal(t, uint64(900), state.Checkpoint())
}

func TestBackfill_StartBlockOverridesCheckpoint(t *testing.T) {
	client := &fakeClient{
		logs: map[common.Address][]types.Log{
			testModuleAddr: {
				depositLog(t, 100, 5, 3),
				depositLog(t, 2100, 6, 1),
			},
		},
	}
	sink := &fakeSink{}
	state := &fakeState{block: 900}
	b, err := NewBackfill(client, testDecoder(t), []Watch{{Address: testModuleAddr}}, sink, state, &BackfillConfig{
		BatchSize:         10000,
		RequestsPerSecond: 1000,
		Burst:             10,
		StartBlock:        2000,
	}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, b.Run(context.Background(), 2500))

	assert.Equal(t, []uint64{2100}, sink.blocks())
	assert.Equal(t, uint64(2500), state.Checkpoint())
}

func TestBackfill_ConfigValidation(t *testing.T) {
	_, err := NewBackfill(&fakeClient{}, testDecoder(t), nil, &fakeSink{}, &fakeState{}, &BackfillConfig{
		BatchSize:         0,
		RequestsPerSecond: 5,
		Burst:             1,
	}, zap.NewNop())
	assert.Error(t, err)
}

func newTestEngine(t *testing.T, sink *fakeSink, state *fakeState, watches []Watch) *Engine {
	t.Helper()
	return NewEngine(&fakeClient{}, testDecoder(t), watches, sink, state, zap.NewNop())
}

func TestEngine_SuppressesEventsInsideBackfillRange(t *testing.T) {
	sink := &fakeSink{}
	state := &fakeState{}
	e := newTestEngine(t, sink, state, []Watch{{Address: testModuleAddr}})
	e.SetCatchUpThreshold(100)

	require.NoError(t, e.handleLog(context.Background(), depositLog(t, 90, 5, 3)))
	assert.Empty(t, sink.events)
	assert.Equal(t, uint64(0), state.Checkpoint())

	require.NoError(t, e.handleLog(context.Background(), depositLog(t, 101, 5, 3)))
	require.Len(t, sink.events, 1)
	assert.Equal(t, uint64(101), state.Checkpoint())
}

func TestEngine_ClearThresholdRestoresDelivery(t *testing.T) {
	sink := &fakeSink{}
	state := &fakeState{}
	e := newTestEngine(t, sink, state, []Watch{{Address: testModuleAddr}})
	e.SetCatchUpThreshold(100)

	require.NoError(t, e.handleLog(context.Background(), depositLog(t, 90, 5, 3)))
	assert.Empty(t, sink.events)

	// Once the backfill pass finishes the suppression is lifted; a late
	// live log below the old threshold is delivered again.
	e.ClearCatchUpThreshold()
	require.NoError(t, e.handleLog(context.Background(), depositLog(t, 90, 5, 3)))
	require.Len(t, sink.events, 1)
	assert.Equal(t, uint64(90), state.Checkpoint())
}

func TestEngine_SinkErrorDoesNotAdvanceCheckpoint(t *testing.T) {
	sink := &fakeSink{err: fmt.Errorf("delivery down")}
	state := &fakeState{}
	e := newTestEngine(t, sink, state, []Watch{{Address: testModuleAddr}})

	err := e.handleLog(context.Background(), depositLog(t, 50, 5, 3))
	require.Error(t, err)
	assert.Equal(t, uint64(0), state.Checkpoint())
}

func TestEngine_ObserveHeadTracksMaximum(t *testing.T) {
	e := newTestEngine(t, &fakeSink{}, &fakeState{}, nil)

	e.observeHead(&types.Header{Number: big.NewInt(500)})
	e.observeHead(&types.Header{Number: big.NewInt(300)})

	assert.Equal(t, uint64(500), e.Head())
}

func TestWatch_ExitRequestPredicateFiltersStakingModule(t *testing.T) {
	addrs := &contracts.Addresses{
		Module:          testModuleAddr,
		ExitBus:         testExitBusAddr,
		StakingModuleID: 3,
	}
	watches := DefaultWatches(addrs)
	require.Len(t, watches, 3)

	exitWatch := watchFor(watches, testExitBusAddr)
	require.NotNil(t, exitWatch)

	ours := &events.Event{Args: map[string]interface{}{"stakingModuleId": big.NewInt(3)}}
	foreign := &events.Event{Args: map[string]interface{}{"stakingModuleId": big.NewInt(1)}}
	assert.True(t, exitWatch.Accepts(ours))
	assert.False(t, exitWatch.Accepts(foreign))

	moduleWatch := watchFor(watches, testModuleAddr)
	require.NotNil(t, moduleWatch)
	assert.True(t, moduleWatch.Accepts(foreign))
}

type recordingSender struct {
	mu    sync.Mutex
	chats []int64
	texts []string
}

func (s *recordingSender) Send(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append(s.chats, chatID)
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}

type fakeHead struct {
	block atomic.Uint64
}

func (h *fakeHead) Head() uint64 { return h.block.Load() }

func TestMonitor_AlertsWhenHeadStalls(t *testing.T) {
	source := &fakeHead{}
	source.block.Store(42)
	sender := &recordingSender{}
	m := NewMonitor(source, sender, []int64{777, 888}, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_ = m.Run(ctx)

	require.GreaterOrEqual(t, sender.count(), 2)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Contains(t, sender.texts[0], "No new blocks processed")
	assert.Contains(t, sender.texts[0], "Latest block: 42")
	assert.Equal(t, []int64{777, 888}, sender.chats[:2])
}

func TestMonitor_QuietWhileHeadAdvances(t *testing.T) {
	source := &fakeHead{}
	source.block.Store(200)
	sender := &recordingSender{}
	m := NewMonitor(source, sender, []int64{777}, 30*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	// The head keeps moving while no watched event fires; a quiet event
	// stream must never page the admins.
	for i := 1; i <= 8; i++ {
		source.block.Store(200 + uint64(i))
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	assert.Zero(t, sender.count())
}

func TestMonitor_IgnoresCheckpoint(t *testing.T) {
	state := &fakeState{}
	sink := &fakeSink{}
	e := newTestEngine(t, sink, state, []Watch{{Address: testModuleAddr}})

	// Heads flow but no event is handled, so the checkpoint stands still.
	e.observeHead(&types.Header{Number: big.NewInt(500)})
	require.Equal(t, uint64(0), state.Checkpoint())

	sender := &recordingSender{}
	m := NewMonitor(e, sender, []int64{777}, 25*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	for i := 1; i <= 6; i++ {
		e.observeHead(&types.Header{Number: big.NewInt(500 + int64(i))})
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	assert.Zero(t, sender.count())
}

func TestMonitor_DisabledWithoutAdminChat(t *testing.T) {
	m := NewMonitor(&fakeHead{}, &recordingSender{}, nil, time.Minute, zap.NewNop())
	assert.NoError(t, m.Run(context.Background()))
}
