package events

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Event is one decoded contract log. It is constructed once by the Decoder
// and treated as immutable by every downstream stage.
type Event struct {
	// Name is the ABI event name, e.g. "DepositedSigningKeysCountChanged"
	Name string

	// Args holds the decoded arguments keyed by ABI input name
	Args map[string]interface{}

	// ArgOrder preserves the ABI input order of Args keys
	ArgOrder []string

	// Block is the number of the block the log was emitted in
	Block uint64

	// TxHash is the hash of the transaction that emitted the log
	TxHash common.Hash

	// Address is the emitting contract address
	Address common.Address
}

// OperatorID returns the canonical decimal form of the nodeOperatorId
// argument, if the event carries one.
func (e *Event) OperatorID() (string, bool) {
	v, ok := e.Args["nodeOperatorId"]
	if !ok {
		return "", false
	}
	switch id := v.(type) {
	case *big.Int:
		return id.String(), true
	case uint64:
		return fmt.Sprintf("%d", id), true
	case string:
		return id, true
	default:
		return "", false
	}
}

// Readable renders the event as Name(key=value, ...) in ABI input order,
// primarily for logs.
func (e *Event) Readable() string {
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteByte('(')
	for i, key := range e.ArgOrder {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", key, formatArg(e.Args[key]))
	}
	b.WriteByte(')')
	return b.String()
}

func formatArg(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return "0x" + common.Bytes2Hex(val)
	case common.Hash:
		return val.Hex()
	case common.Address:
		return val.Hex()
	default:
		return v
	}
}
