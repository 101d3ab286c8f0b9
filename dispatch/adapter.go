package dispatch

import (
	"context"
	"fmt"

	"github.com/0xmhha/csm-sentinel/contracts"
	"github.com/0xmhha/csm-sentinel/events"
)

// ModuleAdapter adapts dispatch to a staking module variant. Variants
// differ in which events they emit and may override the enrichment for
// individual events.
type ModuleAdapter interface {
	Type() contracts.ModuleType

	// AllowedEvents returns the event names this module variant emits.
	AllowedEvents() map[string]struct{}

	// EventListText renders the subscriber-facing event list.
	EventListText() string

	// Enrich gets first refusal on an event. handled=false falls through
	// to the static registry; handled=true with a nil plan suppresses.
	Enrich(ctx context.Context, m *Messages, e *events.Event) (plan *Plan, handled bool, err error)
}

// NewModuleAdapter selects the adapter for a discovered module type.
func NewModuleAdapter(moduleType contracts.ModuleType, uiURL string) (ModuleAdapter, error) {
	switch moduleType {
	case contracts.ModuleTypeCommunity:
		return newCommunityAdapter(uiURL), nil
	case contracts.ModuleTypeCurated:
		return nil, fmt.Errorf("curated module adapter is not implemented yet")
	default:
		return nil, fmt.Errorf("unsupported module type %q", moduleType)
	}
}

// communityAdapter covers the community staking module, which emits the
// full event catalog. All enrichment lives in the static registry.
type communityAdapter struct {
	allowed  map[string]struct{}
	listText string
}

func newCommunityAdapter(uiURL string) *communityAdapter {
	_ = uiURL
	allowed := make(map[string]struct{}, len(eventDescriptions))
	for name := range eventDescriptions {
		allowed[name] = struct{}{}
	}
	return &communityAdapter{
		allowed:  allowed,
		listText: EventListText(allowed),
	}
}

func (a *communityAdapter) Type() contracts.ModuleType { return contracts.ModuleTypeCommunity }

func (a *communityAdapter) AllowedEvents() map[string]struct{} { return a.allowed }

func (a *communityAdapter) EventListText() string { return a.listText }

func (a *communityAdapter) Enrich(context.Context, *Messages, *events.Event) (*Plan, bool, error) {
	return nil, false, nil
}
