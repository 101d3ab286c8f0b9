package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Decoder turns raw logs into Events using a resolved topic set.
type Decoder struct {
	topics TopicSet
}

// NewDecoder creates a decoder over the given topic set.
func NewDecoder(topics TopicSet) *Decoder {
	return &Decoder{topics: topics}
}

// Decode decodes a raw log into an Event. A log whose topic0 is not in the
// topic set returns (nil, false, nil); the caller skips it. A log that
// matches but fails to unpack returns an error.
func (d *Decoder) Decode(log types.Log) (*Event, bool, error) {
	if len(log.Topics) == 0 {
		return nil, false, nil
	}

	event, ok := d.topics[log.Topics[0]]
	if !ok {
		return nil, false, nil
	}

	args := make(map[string]interface{}, len(event.Inputs))
	order := make([]string, 0, len(event.Inputs))
	for _, input := range event.Inputs {
		order = append(order, input.Name)
	}

	// Non-indexed arguments live in the data section
	if len(log.Data) > 0 {
		values, err := event.Inputs.NonIndexed().UnpackValues(log.Data)
		if err != nil {
			return nil, false, fmt.Errorf("failed to unpack data of %s: %w", event.Name, err)
		}
		idx := 0
		for _, input := range event.Inputs {
			if input.Indexed {
				continue
			}
			if idx < len(values) {
				args[input.Name] = convertABIValue(values[idx])
				idx++
			}
		}
	}

	// Indexed arguments live in topics[1:]
	topicIdx := 1
	for _, input := range event.Inputs {
		if !input.Indexed {
			continue
		}
		if topicIdx < len(log.Topics) {
			args[input.Name] = parseIndexedTopic(input, log.Topics[topicIdx])
			topicIdx++
		}
	}

	return &Event{
		Name:     event.Name,
		Args:     args,
		ArgOrder: order,
		Block:    log.BlockNumber,
		TxHash:   log.TxHash,
		Address:  log.Address,
	}, true, nil
}

// parseIndexedTopic parses an indexed topic based on its declared type
func parseIndexedTopic(input abi.Argument, topic common.Hash) interface{} {
	switch input.Type.T {
	case abi.AddressTy:
		return common.BytesToAddress(topic.Bytes())
	case abi.UintTy, abi.IntTy:
		return new(big.Int).SetBytes(topic.Bytes())
	case abi.BoolTy:
		return topic[31] == 1
	case abi.BytesTy, abi.FixedBytesTy:
		return topic.Bytes()
	default:
		// Dynamic types keep only their hash in the topic
		return topic
	}
}

// convertABIValue converts ABI decoded values to the types the rest of the
// pipeline works with
func convertABIValue(value interface{}) interface{} {
	switch v := value.(type) {
	case [32]byte:
		return common.BytesToHash(v[:])
	default:
		return v
	}
}
