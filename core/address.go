package core

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress validates a hex address and returns it lowercased.
// Wallet addresses are case-insensitive; lowercase is the canonical key.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%q: %w", address, ErrInvalidAddress)
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}

// ChecksumAddress returns the EIP-55 form used inside challenge messages
func ChecksumAddress(address string) string {
	return common.HexToAddress(address).Hex()
}

// SameAddress compares two addresses case-insensitively
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
