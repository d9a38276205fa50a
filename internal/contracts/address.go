package contracts

import "strings"

// AddressType classifies a contract address by its originating chain family
type AddressType string

const (
	TypeEVM  AddressType = "EVM"
	TypeSOL  AddressType = "SOL"
	TypeTRON AddressType = "TRON"
)

// DetectAddressType infers the address type from its shape.
// EVM addresses are 0x-prefixed and 42 chars, TRON addresses start with T
// and are 34 chars, everything else is treated as Solana.
func DetectAddressType(address string) AddressType {
	if strings.HasPrefix(address, "0x") && len(address) == 42 {
		return TypeEVM
	}
	if strings.HasPrefix(address, "T") && len(address) == 34 {
		return TypeTRON
	}
	return TypeSOL
}

// NormalizeAddress canonicalizes an address for use as a store key.
// EVM addresses are case-insensitive and stored lowercased; Solana and
// TRON addresses are base58 and must keep their case.
func NormalizeAddress(address string, typ AddressType) string {
	if typ == TypeEVM {
		return strings.ToLower(address)
	}
	return address
}

// evmChains maps chain aliases reported by upstreams to feed chain ids
var evmChains = map[string]string{
	"bsc":      "bsc",
	"eth":      "eth",
	"ethereum": "eth",
	"base":     "base",
}

// MapChain translates a detected chain name into the feed's chain id.
// Unknown EVM chains pass through lowercased; an empty chain falls back
// to bsc, the most common source of monitored contracts.
func MapChain(typ AddressType, chain string) string {
	switch typ {
	case TypeSOL:
		return "solana"
	case TypeTRON:
		return "tron"
	}

	lc := strings.ToLower(chain)
	if mapped, ok := evmChains[lc]; ok {
		return mapped
	}
	if lc != "" {
		return lc
	}
	return "bsc"
}

// TokenKey builds the feed subscription key for a normalized address
func TokenKey(address, chain string) string {
	return address + "-" + chain
}

// SplitTokenKey splits a feed token key back into address and chain.
// Addresses may themselves contain dashes, so the chain is everything
// after the last separator.
func SplitTokenKey(key string) (address, chain string) {
	idx := strings.LastIndex(key, "-")
	if idx < 0 {
		return key, ""
	}
	return key[:idx], key[idx+1:]
}
