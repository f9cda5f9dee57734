package cache

import (
	"fmt"
	"strings"

	"github.com/fc-gallery/nft-aggregator/internal/domain"
)

// Key builders. Lowercasing happens here so every caller shares one
// canonical key per logical input.

// IdentityKey keys a resolved identity by username or FID
func IdentityKey(usernameOrFID string) string {
	return "identity:" + strings.ToLower(usernameOrFID)
}

// NFTsKey keys one page of a per-wallet enumeration
func NFTsKey(address string, chain domain.Chain, pageSize int, excludeSpam bool, pageToken string) string {
	if pageToken == "" {
		pageToken = "none"
	}
	return fmt.Sprintf("nfts:%s:%s:%d:%t:%s", domain.NormalizeAddress(address), chain, pageSize, excludeSpam, pageToken)
}

// OwnersKey keys a collection's owner listing
func OwnersKey(chain domain.Chain, contract string) string {
	return fmt.Sprintf("owners:%s:%s", chain, strings.ToLower(contract))
}

// FollowingKey keys a viewer's follow graph
func FollowingKey(fid uint64) string {
	return fmt.Sprintf("following:%d", fid)
}
