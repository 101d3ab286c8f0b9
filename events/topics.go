package events

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// TopicSet maps a log's topic0 hash to the ABI event definition it decodes
// with, restricted to the event names the bot is configured to follow.
type TopicSet map[common.Hash]abi.Event

// NewTopicSet builds the topic0 mapping for the allowed event names across
// one or more contract ABIs. Events outside the allowed set are excluded;
// that is filtering, not an error.
func NewTopicSet(allowed map[string]struct{}, abis ...abi.ABI) TopicSet {
	topics := make(TopicSet)
	for _, contractABI := range abis {
		for name, event := range contractABI.Events {
			if _, ok := allowed[name]; !ok {
				continue
			}
			topics[event.ID] = event
		}
	}
	return topics
}

// Names returns the set of event names the topic set decodes.
func (t TopicSet) Names() map[string]struct{} {
	names := make(map[string]struct{}, len(t))
	for _, event := range t {
		names[event.Name] = struct{}{}
	}
	return names
}
