package delivery

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/0xmhha/csm-sentinel/dispatch"
	"github.com/0xmhha/csm-sentinel/events"
)

// Sender delivers one message to one chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// SubscriberIndex is the subscription state fan-out resolves targets from.
type SubscriberIndex interface {
	ActualChatIDs() map[int64]struct{}
	ChatsFor(opID string) []int64
	OperatorIDs() []string
}

// Fanout resolves a notification plan into per-chat sends. A chat never
// receives both a targeted and a broadcast message for the same event.
type Fanout struct {
	index  SubscriberIndex
	sender Sender
	logger *zap.Logger
}

// NewFanout creates a fan-out over the subscription index and sender.
func NewFanout(index SubscriberIndex, sender Sender, logger *zap.Logger) (*Fanout, error) {
	if index == nil {
		return nil, fmt.Errorf("subscriber index cannot be nil")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{
		index:  index,
		sender: sender,
		logger: logger.With(zap.String("component", "delivery")),
	}, nil
}

// Deliver sends the plan's messages. Each send is isolated: a failure is
// logged and counted but never aborts the remaining sends.
func (f *Fanout) Deliver(ctx context.Context, e *events.Event, plan *dispatch.Plan) (sent, failed int) {
	actual := f.index.ActualChatIDs()
	targeted := make(map[int64]struct{})
	coveredOps := make(map[string]struct{}, len(plan.PerOperator))

	for _, opID := range sortedOperatorIDs(plan.PerOperator) {
		coveredOps[opID] = struct{}{}
		text := plan.PerOperator[opID]
		for _, chatID := range f.index.ChatsFor(opID) {
			if _, active := actual[chatID]; !active {
				continue
			}
			if _, done := targeted[chatID]; done {
				continue
			}
			targeted[chatID] = struct{}{}
			f.send(ctx, e, chatID, text, &sent, &failed)
		}
	}

	if plan.Broadcast == "" {
		return sent, failed
	}

	var candidates []string
	if plan.BroadcastTargetIDs != nil {
		candidates = sortedOperatorIDs(plan.BroadcastTargetIDs)
	} else {
		candidates = f.index.OperatorIDs()
	}

	broadcastChats := make(map[int64]struct{})
	for _, opID := range candidates {
		if _, covered := coveredOps[opID]; covered {
			continue
		}
		for _, chatID := range f.index.ChatsFor(opID) {
			if _, active := actual[chatID]; !active {
				continue
			}
			if _, done := targeted[chatID]; done {
				continue
			}
			broadcastChats[chatID] = struct{}{}
		}
	}

	for _, chatID := range sortedChatIDs(broadcastChats) {
		f.send(ctx, e, chatID, plan.Broadcast, &sent, &failed)
	}
	return sent, failed
}

func (f *Fanout) send(ctx context.Context, e *events.Event, chatID int64, text string, sent, failed *int) {
	if err := f.sender.Send(ctx, chatID, text); err != nil {
		*failed++
		sendsTotal.WithLabelValues("failed").Inc()
		f.logger.Warn("failed to send notification",
			zap.Int64("chatId", chatID), zap.String("event", e.Name), zap.Error(err))
		return
	}
	*sent++
	sendsTotal.WithLabelValues("ok").Inc()
}

// sortedOperatorIDs orders numeric operator ids ascending, with any
// non-numeric ids after them in lexicographic order.
func sortedOperatorIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, aerr := strconv.ParseUint(ids[i], 10, 64)
		b, berr := strconv.ParseUint(ids[j], 10, 64)
		switch {
		case aerr == nil && berr == nil:
			return a < b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}

func sortedChatIDs(m map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
