// Package friends intersects a viewer's follow graph with a collection's
// owner set to answer "which accounts I follow hold this collection".
package friends

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fc-gallery/nft-aggregator/internal/cache"
	"github.com/fc-gallery/nft-aggregator/internal/domain"
	"github.com/fc-gallery/nft-aggregator/internal/providers/alchemy"
	"github.com/fc-gallery/nft-aggregator/internal/providers/farcaster"
)

// Options sets cache TTLs for the two upstream reads
type Options struct {
	FollowingTTL time.Duration
	OwnersTTL    time.Duration
}

// Result is the resolved friend list for one (contract, chain, viewer)
type Result struct {
	Friends []domain.FriendProfile `json:"friends"`
	Total   int                    `json:"total"`
	// NoSocialAddresses is set when the viewer follows accounts but none
	// of them carries a wallet address, so the intersection was vacuous
	NoSocialAddresses bool `json:"noSocialAddresses,omitempty"`
}

// Resolver computes collection friends, reading both upstreams through the
// cache. It never fabricates results: either upstream failing fails the
// call.
type Resolver struct {
	identities farcaster.Client
	nfts       alchemy.Client
	store      *cache.Cache
	opts       Options
}

// New creates a resolver
func New(identities farcaster.Client, nfts alchemy.Client, store *cache.Cache, opts Options) *Resolver {
	return &Resolver{
		identities: identities,
		nfts:       nfts,
		store:      store,
		opts:       opts,
	}
}

// GetCollectionFriends returns the accounts the viewer follows that hold
// at least one token of the collection, sorted by holding count descending
// and username ascending. A viewer following nobody gets an empty list.
func (r *Resolver) GetCollectionFriends(ctx context.Context, chain domain.Chain, contract string, viewerFID uint64) (*Result, error) {
	if !domain.ValidHexAddress(contract) {
		return nil, domain.InvalidInput(fmt.Sprintf("invalid contract address %q", contract))
	}
	if viewerFID == 0 {
		return nil, domain.InvalidInput("viewer fid is required")
	}

	following, err := cache.GetOrCompute(ctx, r.store, cache.FollowingKey(viewerFID), r.opts.FollowingTTL,
		func(ctx context.Context) ([]domain.Identity, error) {
			return r.identities.ListFollowing(ctx, viewerFID)
		})
	if err != nil {
		return nil, fmt.Errorf("failed to load follow graph: %w", err)
	}
	if len(following) == 0 {
		return &Result{Friends: []domain.FriendProfile{}}, nil
	}

	// collect each followed account's wallets before touching the owner
	// listing: a follow set with no wallets short-circuits to the
	// no-social-addresses diagnostic, and an owner-side outage must not
	// mask it
	type candidate struct {
		identity  *domain.Identity
		addresses []string
	}
	seen := map[uint64]struct{}{}
	candidates := make([]candidate, 0, len(following))
	anyAddresses := false
	for i := range following {
		identity := &following[i]
		if _, done := seen[identity.FID]; done {
			continue
		}
		seen[identity.FID] = struct{}{}
		addresses := identity.Addresses()
		if len(addresses) > 0 {
			anyAddresses = true
		}
		candidates = append(candidates, candidate{identity: identity, addresses: addresses})
	}
	if !anyAddresses {
		return &Result{Friends: []domain.FriendProfile{}, NoSocialAddresses: true}, nil
	}

	listing, err := cache.GetOrCompute(ctx, r.store, cache.OwnersKey(chain, contract), r.opts.OwnersTTL,
		func(ctx context.Context) (*domain.OwnerListing, error) {
			return r.nfts.ListOwnersForCollection(ctx, chain, contract)
		})
	if err != nil {
		return nil, fmt.Errorf("failed to load owner set: %w", err)
	}

	owners := make(map[string]struct{}, len(listing.Owners))
	for _, owner := range listing.Owners {
		owners[domain.NormalizeAddress(owner)] = struct{}{}
	}

	friends := []domain.FriendProfile{}
	for _, cand := range candidates {
		count := holdingCount(listing, owners, cand.addresses)
		if count == 0 {
			continue
		}
		friends = append(friends, domain.FriendProfile{
			FID:          cand.identity.FID,
			Username:     cand.identity.Username,
			DisplayName:  cand.identity.DisplayName,
			AvatarURL:    cand.identity.AvatarURL,
			HoldingCount: count,
		})
	}

	sort.Slice(friends, func(i, j int) bool {
		if friends[i].HoldingCount != friends[j].HoldingCount {
			return friends[i].HoldingCount > friends[j].HoldingCount
		}
		return friends[i].Username < friends[j].Username
	})

	return &Result{
		Friends: friends,
		Total:   len(friends),
	}, nil
}

// holdingCount sums the owner listing's balances across every address the
// identity controls; zero means the identity holds nothing here
func holdingCount(listing *domain.OwnerListing, owners map[string]struct{}, addresses []string) int64 {
	var total int64
	for _, address := range addresses {
		if _, owns := owners[address]; !owns {
			continue
		}
		total += listing.HoldingCount(address)
	}
	return total
}
