package alchemy

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/fc-gallery/nft-aggregator/internal/adapter"
	"github.com/fc-gallery/nft-aggregator/internal/domain"
	"github.com/fc-gallery/nft-aggregator/internal/normalizer"
	"github.com/fc-gallery/nft-aggregator/internal/ratelimit"
)

const PROVIDER_NAME = "alchemy"

// MaxPageSize is the provider's hard cap on per-wallet enumeration pages
const MaxPageSize = 100

// maxOwnerPages bounds the internal pagination of collection owner listings
const maxOwnerPages = 50

// ownedNFTsResponse is one page of a per-wallet enumeration
type ownedNFTsResponse struct {
	OwnedNFTs  []normalizer.RawNFT `json:"ownedNfts"`
	PageKey    string              `json:"pageKey"`
	TotalCount int64               `json:"totalCount"`
}

// ownersResponse is one page of a collection owner listing
type ownersResponse struct {
	Owners  []ownerEntry `json:"owners"`
	PageKey string       `json:"pageKey"`
}

type ownerEntry struct {
	OwnerAddress  string         `json:"ownerAddress"`
	TokenBalances []tokenBalance `json:"tokenBalances"`
}

type tokenBalance struct {
	TokenID string `json:"tokenId"`
	Balance string `json:"balance"`
}

// Client defines the interface for NFT provider operations to enable mocking
type Client interface {
	// ListNFTsForOwner enumerates one page of NFTs a wallet holds on a
	// chain, returning the raw payloads and the next page cursor ("" when
	// the enumeration is complete)
	ListNFTsForOwner(ctx context.Context, chain domain.Chain, address string, pageSize int, pageToken string, excludeSpam bool) ([]normalizer.RawNFT, string, error)

	// ListOwnersForCollection returns the complete owner set of a contract
	// on a chain, paginating internally
	ListOwnersForCollection(ctx context.Context, chain domain.Chain, contract string) (*domain.OwnerListing, error)
}

// AlchemyClient implements the NFT provider client across chains. Each
// supported chain maps to its own base URL.
type AlchemyClient struct {
	httpClient     adapter.HTTPClient
	rateLimitProxy ratelimit.Proxy
	chainURLs      map[domain.Chain]string
	apiKey         string
}

// NewClient creates a new NFT provider client
func NewClient(httpClient adapter.HTTPClient, rateLimitProxy ratelimit.Proxy, chainURLs map[domain.Chain]string, apiKey string) Client {
	return &AlchemyClient{
		httpClient:     httpClient,
		rateLimitProxy: rateLimitProxy,
		chainURLs:      chainURLs,
		apiKey:         apiKey,
	}
}

func (c *AlchemyClient) baseURL(chain domain.Chain) (string, error) {
	base, ok := c.chainURLs[chain]
	if !ok || base == "" {
		return "", domain.Unsupported(fmt.Sprintf("chain %q is not configured", chain))
	}
	return strings.TrimSuffix(base, "/"), nil
}

// ListNFTsForOwner enumerates one page of NFTs a wallet holds on a chain
func (c *AlchemyClient) ListNFTsForOwner(ctx context.Context, chain domain.Chain, address string, pageSize int, pageToken string, excludeSpam bool) ([]normalizer.RawNFT, string, error) {
	if !domain.ValidHexAddress(address) {
		return nil, "", domain.InvalidInput(fmt.Sprintf("invalid wallet address %q", address))
	}
	base, err := c.baseURL(chain)
	if err != nil {
		return nil, "", err
	}
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	query := url.Values{}
	query.Set("owner", domain.NormalizeAddress(address))
	query.Set("pageSize", strconv.Itoa(pageSize))
	query.Set("withMetadata", "true")
	if pageToken != "" {
		query.Set("pageKey", pageToken)
	}
	if excludeSpam {
		query.Add("excludeFilters[]", "SPAM")
	}
	endpoint := fmt.Sprintf("%s/nft/v3/%s/getNFTsForOwner?%s", base, c.apiKey, query.Encode())

	response, err := ratelimit.Request(ctx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) (*ownedNFTsResponse, error) {
		var resp ownedNFTsResponse
		if err := c.httpClient.Get(ctx, endpoint, nil, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to list NFTs for %s on %s: %w", address, chain, err)
	}

	return response.OwnedNFTs, response.PageKey, nil
}

// ListOwnersForCollection returns the complete owner set of a contract on a
// chain. Owners are lowercased and deduplicated; balances for repeated owner
// entries accumulate.
func (c *AlchemyClient) ListOwnersForCollection(ctx context.Context, chain domain.Chain, contract string) (*domain.OwnerListing, error) {
	if !domain.ValidHexAddress(contract) {
		return nil, domain.InvalidInput(fmt.Sprintf("invalid contract address %q", contract))
	}
	base, err := c.baseURL(chain)
	if err != nil {
		return nil, err
	}

	listing := &domain.OwnerListing{
		Chain:    chain,
		Contract: domain.NormalizeAddress(contract),
		Counts:   map[string]int64{},
	}

	pageKey := ""
	for page := 0; page < maxOwnerPages; page++ {
		query := url.Values{}
		query.Set("contractAddress", listing.Contract)
		query.Set("withTokenBalances", "true")
		if pageKey != "" {
			query.Set("pageKey", pageKey)
		}
		endpoint := fmt.Sprintf("%s/nft/v3/%s/getOwnersForContract?%s", base, c.apiKey, query.Encode())

		response, err := ratelimit.Request(ctx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) (*ownersResponse, error) {
			var resp ownersResponse
			if err := c.httpClient.Get(ctx, endpoint, nil, &resp); err != nil {
				return nil, err
			}
			return &resp, nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list owners of %s on %s: %w", contract, chain, err)
		}

		for _, entry := range response.Owners {
			owner := domain.NormalizeAddress(entry.OwnerAddress)
			if owner == "" {
				continue
			}
			listing.Counts[owner] += balanceSum(entry.TokenBalances)
		}

		if response.PageKey == "" {
			break
		}
		pageKey = response.PageKey
	}

	listing.Owners = make([]string, 0, len(listing.Counts))
	for owner := range listing.Counts {
		listing.Owners = append(listing.Owners, owner)
	}
	sort.Strings(listing.Owners)

	return listing, nil
}

// balanceSum totals an owner's token balances, treating absent or
// unparseable balances as one token each
func balanceSum(balances []tokenBalance) int64 {
	if len(balances) == 0 {
		return 1
	}
	var total int64
	for _, balance := range balances {
		count, err := strconv.ParseInt(balance.Balance, 10, 64)
		if err != nil || count <= 0 {
			count = 1
		}
		total += count
	}
	return total
}
