package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Chain represents a supported blockchain network
type Chain string

const (
	ChainEthereum Chain = "eth"
	ChainBase     Chain = "base"
)

// DefaultChains is the chain set used when the caller does not restrict chains
var DefaultChains = []Chain{ChainEthereum, ChainBase}

// IsValidChain checks if a chain is valid
func IsValidChain(chain Chain) bool {
	return chain == ChainEthereum || chain == ChainBase
}

// ParseChains parses a comma-separated chain list, returning the default set
// for an empty or "all" input
func ParseChains(raw string) ([]Chain, error) {
	if raw == "" || raw == "all" {
		return DefaultChains, nil
	}
	var chains []Chain
	for _, part := range strings.Split(raw, ",") {
		chain := Chain(strings.TrimSpace(part))
		if !IsValidChain(chain) {
			return nil, InvalidInput(fmt.Sprintf("unsupported chain %q", part))
		}
		chains = append(chains, chain)
	}
	return chains, nil
}

// TokenID is the canonical NFT identifier in format: chain:contract-tokenNumber
// (e.g. "eth:0xbc4ca0eda7647a8ab7c2061c2e118a18a936f13d-1234").
// The contract part is always lowercase; the token number is the decimal
// string form of the upstream value.
type TokenID string

// NewTokenID builds a TokenID, lowercasing the contract part
func NewTokenID(chain Chain, contract string, tokenNumber string) TokenID {
	return TokenID(fmt.Sprintf("%s:%s-%s", chain, strings.ToLower(contract), tokenNumber))
}

// String returns the string representation of the TokenID
func (t TokenID) String() string {
	return string(t)
}

// Parse splits the TokenID into chain, contract address, and token number
func (t TokenID) Parse() (Chain, string, string) {
	rest := string(t)
	var chain string
	if idx := strings.Index(rest, ":"); idx >= 0 {
		chain, rest = rest[:idx], rest[idx+1:]
	}
	contract := rest
	var tokenNumber string
	if idx := strings.LastIndex(rest, "-"); idx >= 0 {
		contract, tokenNumber = rest[:idx], rest[idx+1:]
	}
	return Chain(chain), contract, tokenNumber
}

// Valid checks that the TokenID has a known chain, a well-formed lowercase
// contract address, and a non-empty token number
func (t TokenID) Valid() bool {
	chain, contract, tokenNumber := t.Parse()
	if !IsValidChain(chain) || tokenNumber == "" {
		return false
	}
	if !common.IsHexAddress(contract) {
		return false
	}
	return contract == strings.ToLower(contract)
}

// AddressOrigin tags how an address is attached to an identity
type AddressOrigin string

const (
	AddressOriginCustody  AddressOrigin = "custody"
	AddressOriginVerified AddressOrigin = "verified"
)

// Identity represents a resolved Farcaster user
type Identity struct {
	FID               uint64   `json:"fid"`
	Username          string   `json:"username"`
	DisplayName       string   `json:"display_name"`
	AvatarURL         string   `json:"avatar_url"`
	CustodyAddress    string   `json:"custody_address"`
	VerifiedAddresses []string `json:"verified_addresses"`
}

// Addresses returns the effective address set (custody ∪ verified),
// lowercase and deduplicated, preserving first-seen order
func (i *Identity) Addresses() []string {
	seen := make(map[string]bool)
	var out []string
	for _, addr := range append([]string{i.CustodyAddress}, i.VerifiedAddresses...) {
		normalized := NormalizeAddress(addr)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}

// FloorPrice carries an amount with its currency; the amount is never
// converted between currencies
type FloorPrice struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// USD reports whether the floor price is denominated in USD
func (f *FloorPrice) USD() bool {
	return f != nil && strings.EqualFold(f.Currency, "usd")
}

// Collection identifies a set of related NFTs on one chain
type Collection struct {
	ID         string      `json:"id"` // "{chain}:{contract}"
	Name       string      `json:"name"`
	Chain      Chain       `json:"chain"`
	Contract   string      `json:"contract"`
	FloorPrice *FloorPrice `json:"floor_price,omitempty"`
}

// NewCollectionID builds a collection identifier, lowercasing the contract
func NewCollectionID(chain Chain, contract string) string {
	return fmt.Sprintf("%s:%s", chain, strings.ToLower(contract))
}

// NFTRecord is the canonical normalized NFT
type NFTRecord struct {
	ID           TokenID     `json:"id"`
	Chain        Chain       `json:"chain"`
	Contract     string      `json:"contract"`
	TokenNumber  string      `json:"token_id"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	Collection   Collection  `json:"collection"`
	ImageURL     string      `json:"image_url,omitempty"`
	AnimationURL string      `json:"animation_url,omitempty"`
	Spam         bool        `json:"spam"`
	Owners       []string    `json:"owners"`
	FloorPrice   *FloorPrice `json:"floor_price,omitempty"`
	LastActivity *time.Time  `json:"last_activity,omitempty"`
}

// AddOwner unions an owning address into the record. The union is
// commutative and idempotent; owners are lowercased and kept sorted so two
// merge orders produce equal records. Existing entries are normalized too,
// a record deserialized with mixed-case owners converges on first union.
func (r *NFTRecord) AddOwner(address string) {
	set := make(map[string]struct{}, len(r.Owners)+1)
	for _, owner := range r.Owners {
		if normalized := NormalizeAddress(owner); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	if normalized := NormalizeAddress(address); normalized != "" {
		set[normalized] = struct{}{}
	}
	owners := make([]string, 0, len(set))
	for owner := range set {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	r.Owners = owners
}

// Merge unions the other record's owners into this one. Both records must
// share the same ID.
func (r *NFTRecord) Merge(other *NFTRecord) {
	for _, owner := range other.Owners {
		r.AddOwner(owner)
	}
}

// OwnedBy reports whether the given address is in the owning set
func (r *NFTRecord) OwnedBy(address string) bool {
	normalized := NormalizeAddress(address)
	for _, owner := range r.Owners {
		if NormalizeAddress(owner) == normalized {
			return true
		}
	}
	return false
}

// OwnerListing is the owner set of one collection at enumeration time.
// Counts carries per-owner token balances when the upstream exposes them.
type OwnerListing struct {
	Chain    Chain            `json:"chain"`
	Contract string           `json:"contract"`
	Owners   []string         `json:"owners"`
	Counts   map[string]int64 `json:"counts,omitempty"`
}

// HoldingCount returns the balance recorded for an owner, defaulting to 1
// when the listing carries no counts
func (l *OwnerListing) HoldingCount(address string) int64 {
	if l.Counts == nil {
		return 1
	}
	if count, ok := l.Counts[NormalizeAddress(address)]; ok && count > 0 {
		return count
	}
	return 1
}

// FriendProfile is a followed identity that holds at least one token of a
// collection
type FriendProfile struct {
	FID          uint64 `json:"fid"`
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
	AvatarURL    string `json:"avatar_url"`
	HoldingCount int64  `json:"holding_count"`
}

// NormalizeAddress lowercases an address so later comparisons are plain
// equality
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// NormalizeAddresses normalizes a list of addresses in place
func NormalizeAddresses(addresses []string) []string {
	for i, address := range addresses {
		addresses[i] = NormalizeAddress(address)
	}
	return addresses
}

// ValidHexAddress checks a 20-byte 0x hex address
func ValidHexAddress(address string) bool {
	return common.IsHexAddress(address)
}
