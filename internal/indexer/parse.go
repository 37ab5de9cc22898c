package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	return common.HexToAddress(input), nil
}

// ParseIdentity validates an optional identity filter and returns it in
// checksummed 0x form, so unprefixed and mixed-case inputs name the same
// creator. Empty input means no filter.
func ParseIdentity(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}
	addr, err := ParseAddress(input)
	if err != nil {
		return "", fmt.Errorf("invalid identity address: %q", input)
	}
	return addr.Hex(), nil
}
