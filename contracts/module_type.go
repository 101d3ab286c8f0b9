package contracts

import (
	"bytes"
	"fmt"
)

// ModuleType is the on-chain type tag of a staking module, read from the
// module contract's getType() bytes32.
type ModuleType string

const (
	// ModuleTypeCommunity is the community staking module variant
	ModuleTypeCommunity ModuleType = "community-onchain-v1"

	// ModuleTypeCurated is the curated staking module variant
	ModuleTypeCurated ModuleType = "curated-onchain-v2"
)

// DecodeModuleType decodes a raw bytes32 type tag into a known ModuleType.
// The tag is NUL-padded UTF-8; an unknown tag is a startup error.
func DecodeModuleType(raw [32]byte) (ModuleType, error) {
	decoded := string(bytes.TrimRight(raw[:], "\x00"))
	switch ModuleType(decoded) {
	case ModuleTypeCommunity:
		return ModuleTypeCommunity, nil
	case ModuleTypeCurated:
		return ModuleTypeCurated, nil
	default:
		return "", fmt.Errorf("unknown module type %q (raw: 0x%x)", decoded, raw)
	}
}
