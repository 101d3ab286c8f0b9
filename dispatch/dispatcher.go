package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/0xmhha/csm-sentinel/events"
)

// Dispatcher turns decoded events into notification plans. The module
// adapter gets first refusal, then the static handler registry, then the
// generic fallback. Handler failures degrade to the generic plan so one
// broken enrichment path never drops an event.
type Dispatcher struct {
	adapter  ModuleAdapter
	messages *Messages
	registry map[string]Handler
	logger   *zap.Logger
}

// NewDispatcher wires the dispatcher and verifies the event catalog is
// internally consistent for the adapter's module variant.
func NewDispatcher(adapter ModuleAdapter, messages *Messages, logger *zap.Logger) (*Dispatcher, error) {
	if adapter == nil {
		return nil, fmt.Errorf("module adapter cannot be nil")
	}
	if messages == nil {
		return nil, fmt.Errorf("messages service cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := newHandlerRegistry()
	if err := VerifyCatalog(registry, adapter.AllowedEvents()); err != nil {
		return nil, err
	}

	return &Dispatcher{
		adapter:  adapter,
		messages: messages,
		registry: registry,
		logger:   logger.With(zap.String("component", "dispatch")),
	}, nil
}

// Dispatch computes the plan for one event. A nil result means the event
// is suppressed.
func (d *Dispatcher) Dispatch(ctx context.Context, e *events.Event) *Plan {
	plan, err := d.compose(ctx, e)
	if err != nil {
		d.logger.Warn("handler failed, degrading to the generic message",
			zap.String("event", e.Name), zap.Uint64("block", e.Block), zap.Error(err))
		plansTotal.WithLabelValues("degraded").Inc()
		plan = d.messages.Default(e)
	}
	if plan == nil {
		plansTotal.WithLabelValues("suppressed").Inc()
		return nil
	}
	plansTotal.WithLabelValues("composed").Inc()

	d.autoNarrow(plan, e)
	return plan
}

func (d *Dispatcher) compose(ctx context.Context, e *events.Event) (*Plan, error) {
	plan, handled, err := d.adapter.Enrich(ctx, d.messages, e)
	if err != nil {
		return nil, err
	}
	if handled {
		return plan, nil
	}
	if handler, ok := d.registry[e.Name]; ok {
		return handler(ctx, d.messages, e)
	}
	return d.messages.Default(e), nil
}

// autoNarrow keeps operator-scoped events from broadcasting bot-wide: a
// broadcast with no explicit targets narrows to the event's operator when
// the event names one.
func (d *Dispatcher) autoNarrow(plan *Plan, e *events.Event) {
	if plan.Broadcast == "" || plan.BroadcastTargetIDs != nil {
		return
	}
	if opID, ok := e.OperatorID(); ok {
		plan.Target(opID)
	}
}

// VerifyCatalog enforces three-way agreement between the handler registry,
// the event descriptions, and the module variant's allowed events. A
// mismatch is a wiring bug worth failing startup for.
func VerifyCatalog(registry map[string]Handler, allowed map[string]struct{}) error {
	handlers := make(map[string]struct{}, len(registry))
	for name := range registry {
		handlers[name] = struct{}{}
	}
	descriptions := make(map[string]struct{}, len(eventDescriptions))
	for name := range eventDescriptions {
		descriptions[name] = struct{}{}
	}

	var problems []string
	problems = append(problems, diffSets("handler registered but not described", handlers, descriptions)...)
	problems = append(problems, diffSets("described but no handler registered", descriptions, handlers)...)
	problems = append(problems, diffSets("allowed by module but no handler registered", allowed, handlers)...)
	problems = append(problems, diffSets("handler registered but not allowed by module", handlers, allowed)...)

	if len(problems) > 0 {
		return fmt.Errorf("event catalog mismatch: %s", strings.Join(problems, "; "))
	}
	return nil
}

func diffSets(label string, a, b map[string]struct{}) []string {
	var missing []string
	for name := range a {
		if _, ok := b[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return []string{fmt.Sprintf("%s: %s", label, strings.Join(missing, ", "))}
}
