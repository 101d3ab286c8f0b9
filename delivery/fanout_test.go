package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xmhha/csm-sentinel/dispatch"
	"github.com/0xmhha/csm-sentinel/events"
)

type fakeIndex struct {
	actual    map[int64]struct{}
	operators map[string][]int64
}

func (f *fakeIndex) ActualChatIDs() map[int64]struct{} { return f.actual }

func (f *fakeIndex) ChatsFor(opID string) []int64 { return f.operators[opID] }

func (f *fakeIndex) OperatorIDs() []string {
	ids := make([]string, 0, len(f.operators))
	for id := range f.operators {
		ids = append(ids, id)
	}
	return ids
}

type recordingSender struct {
	sent   map[int64][]string
	failOn map[int64]struct{}
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[int64][]string), failOn: make(map[int64]struct{})}
}

func (s *recordingSender) Send(_ context.Context, chatID int64, text string) error {
	if _, fail := s.failOn[chatID]; fail {
		return errors.New("blocked")
	}
	s.sent[chatID] = append(s.sent[chatID], text)
	return nil
}

func testEvent() *events.Event {
	return &events.Event{Name: "TestEvent", Block: 10, TxHash: common.HexToHash("0x1")}
}

func newTestFanout(t *testing.T, index *fakeIndex, sender Sender) *Fanout {
	t.Helper()
	f, err := NewFanout(index, sender, zap.NewNop())
	require.NoError(t, err)
	return f
}

func TestFanout_BroadcastTargetedExclusivity(t *testing.T) {
	// Chat 100 follows both operators; it must get only the per-operator
	// message, never the broadcast on top.
	index := &fakeIndex{
		actual:    map[int64]struct{}{100: {}, 200: {}},
		operators: map[string][]int64{"5": {100}, "7": {100, 200}},
	}
	sender := newRecordingSender()
	f := newTestFanout(t, index, sender)

	plan := dispatch.NewBroadcast("broadcast").SetOperatorMessage("5", "for operator 5")
	sent, failed := f.Deliver(context.Background(), testEvent(), plan)

	assert.Equal(t, 2, sent)
	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{"for operator 5"}, sender.sent[100])
	assert.Equal(t, []string{"broadcast"}, sender.sent[200])
}

func TestFanout_ExplicitTargetsRestrictBroadcast(t *testing.T) {
	index := &fakeIndex{
		actual:    map[int64]struct{}{100: {}, 200: {}, 300: {}},
		operators: map[string][]int64{"5": {100}, "7": {200}, "9": {300}},
	}
	sender := newRecordingSender()
	f := newTestFanout(t, index, sender)

	plan := dispatch.NewBroadcast("hello").Target("5", "7")
	sent, _ := f.Deliver(context.Background(), testEvent(), plan)

	assert.Equal(t, 2, sent)
	assert.Contains(t, sender.sent, int64(100))
	assert.Contains(t, sender.sent, int64(200))
	assert.NotContains(t, sender.sent, int64(300))
}

func TestFanout_UnrestrictedBroadcastReachesAllOperators(t *testing.T) {
	index := &fakeIndex{
		actual:    map[int64]struct{}{100: {}, 200: {}},
		operators: map[string][]int64{"5": {100}, "7": {200}},
	}
	sender := newRecordingSender()
	f := newTestFanout(t, index, sender)

	sent, _ := f.Deliver(context.Background(), testEvent(), dispatch.NewBroadcast("hello"))

	assert.Equal(t, 2, sent)
}

func TestFanout_SkipsInactiveChats(t *testing.T) {
	// Chat 999 is subscribed but no longer in any active chat set.
	index := &fakeIndex{
		actual:    map[int64]struct{}{100: {}},
		operators: map[string][]int64{"5": {100, 999}},
	}
	sender := newRecordingSender()
	f := newTestFanout(t, index, sender)

	sent, _ := f.Deliver(context.Background(), testEvent(), dispatch.NewBroadcast("hello"))

	assert.Equal(t, 1, sent)
	assert.NotContains(t, sender.sent, int64(999))
}

func TestFanout_SendFailureIsIsolated(t *testing.T) {
	index := &fakeIndex{
		actual:    map[int64]struct{}{100: {}, 200: {}, 300: {}},
		operators: map[string][]int64{"5": {100, 200, 300}},
	}
	sender := newRecordingSender()
	sender.failOn[200] = struct{}{}
	f := newTestFanout(t, index, sender)

	sent, failed := f.Deliver(context.Background(), testEvent(), dispatch.NewBroadcast("hello"))

	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, failed)
	assert.Contains(t, sender.sent, int64(100))
	assert.Contains(t, sender.sent, int64(300))
}

func TestFanout_ChatSeesAtMostOneMessage(t *testing.T) {
	// A chat following two operators with per-operator overrides gets only
	// the first override in deterministic operator order.
	index := &fakeIndex{
		actual:    map[int64]struct{}{100: {}},
		operators: map[string][]int64{"5": {100}, "12": {100}},
	}
	sender := newRecordingSender()
	f := newTestFanout(t, index, sender)

	plan := dispatch.NewBroadcast("broadcast").
		SetOperatorMessage("12", "for 12").
		SetOperatorMessage("5", "for 5")
	sent, _ := f.Deliver(context.Background(), testEvent(), plan)

	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"for 5"}, sender.sent[100], "numeric order puts operator 5 first")
}

func TestSortedOperatorIDs(t *testing.T) {
	m := map[string]struct{}{"10": {}, "2": {}, "x": {}, "1": {}}
	assert.Equal(t, []string{"1", "2", "10", "x"}, sortedOperatorIDs(m))
}
