package farcaster

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fc-gallery/nft-aggregator/internal/adapter"
	"github.com/fc-gallery/nft-aggregator/internal/domain"
	"github.com/fc-gallery/nft-aggregator/internal/ratelimit"
)

const PROVIDER_NAME = "farcaster"

// followingPageSize is the provider's maximum page size for follow lists
const followingPageSize = 100

// maxFollowingPages bounds the internal pagination of very large follow
// graphs
const maxFollowingPages = 50

// User represents a user object from the identity provider API
type User struct {
	FID               uint64             `json:"fid"`
	Username          string             `json:"username"`
	DisplayName       string             `json:"display_name"`
	PfpURL            string             `json:"pfp_url"`
	CustodyAddress    string             `json:"custody_address"`
	VerifiedAddresses *VerifiedAddresses `json:"verified_addresses"`
}

// VerifiedAddresses carries the addresses a user has attested to
type VerifiedAddresses struct {
	EthAddresses []string `json:"eth_addresses"`
}

// Identity converts the wire user into the canonical identity, lowercasing
// every address at the ingestion boundary
func (u *User) Identity() domain.Identity {
	identity := domain.Identity{
		FID:            u.FID,
		Username:       u.Username,
		DisplayName:    u.DisplayName,
		AvatarURL:      u.PfpURL,
		CustodyAddress: domain.NormalizeAddress(u.CustodyAddress),
	}
	if u.VerifiedAddresses != nil {
		for _, address := range u.VerifiedAddresses.EthAddresses {
			identity.VerifiedAddresses = append(identity.VerifiedAddresses, domain.NormalizeAddress(address))
		}
	}
	return identity
}

// userResponse wraps single-user lookups
type userResponse struct {
	User *User `json:"user"`
}

// bulkUserResponse wraps FID lookups
type bulkUserResponse struct {
	Users []User `json:"users"`
}

// followingResponse is one page of a follow list
type followingResponse struct {
	Users []followEntry `json:"users"`
	Next  *cursor       `json:"next"`
}

type followEntry struct {
	User *User `json:"user"`
}

type cursor struct {
	Cursor string `json:"cursor"`
}

// Client defines the interface for identity provider operations to enable
// mocking
type Client interface {
	// ResolveIdentity resolves a username or numeric FID to an identity
	// with its full verified address set
	ResolveIdentity(ctx context.Context, usernameOrFID string) (*domain.Identity, error)

	// ListFollowing returns the complete follow set of an FID, paginating
	// internally
	ListFollowing(ctx context.Context, fid uint64) ([]domain.Identity, error)
}

// FarcasterClient implements the identity provider client
type FarcasterClient struct {
	httpClient     adapter.HTTPClient
	rateLimitProxy ratelimit.Proxy
	apiURL         string
	apiKey         string
}

// NewClient creates a new identity provider client
func NewClient(httpClient adapter.HTTPClient, rateLimitProxy ratelimit.Proxy, apiURL string, apiKey string) Client {
	return &FarcasterClient{
		httpClient:     httpClient,
		rateLimitProxy: rateLimitProxy,
		apiURL:         apiURL,
		apiKey:         apiKey,
	}
}

func (c *FarcasterClient) headers() map[string]string {
	return map[string]string{"x-api-key": c.apiKey}
}

// ResolveIdentity resolves a username or numeric FID to an identity
func (c *FarcasterClient) ResolveIdentity(ctx context.Context, usernameOrFID string) (*domain.Identity, error) {
	if usernameOrFID == "" {
		return nil, domain.InvalidInput("username or fid is required")
	}

	if fid, err := strconv.ParseUint(usernameOrFID, 10, 64); err == nil {
		return c.resolveByFID(ctx, fid)
	}
	return c.resolveByUsername(ctx, usernameOrFID)
}

func (c *FarcasterClient) resolveByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	endpoint := fmt.Sprintf("%s/v2/farcaster/user/by_username?username=%s", c.apiURL, url.QueryEscape(username))

	response, err := ratelimit.Request(ctx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) (*userResponse, error) {
		var resp userResponse
		if err := c.httpClient.Get(ctx, endpoint, c.headers(), &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve username %q: %w", username, err)
	}
	if response.User == nil {
		return nil, domain.NotFound(fmt.Sprintf("no user named %q", username))
	}

	identity := response.User.Identity()
	return &identity, nil
}

func (c *FarcasterClient) resolveByFID(ctx context.Context, fid uint64) (*domain.Identity, error) {
	endpoint := fmt.Sprintf("%s/v2/farcaster/user/bulk?fids=%d", c.apiURL, fid)

	response, err := ratelimit.Request(ctx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) (*bulkUserResponse, error) {
		var resp bulkUserResponse
		if err := c.httpClient.Get(ctx, endpoint, c.headers(), &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fid %d: %w", fid, err)
	}
	if len(response.Users) == 0 {
		return nil, domain.NotFound(fmt.Sprintf("no user with fid %d", fid))
	}

	identity := response.Users[0].Identity()
	return &identity, nil
}

// ListFollowing returns the complete follow set of an FID. Pages are
// fetched sequentially since each cursor depends on the previous page.
// Followed users without verified addresses are kept; downstream decides
// what to do with them.
func (c *FarcasterClient) ListFollowing(ctx context.Context, fid uint64) ([]domain.Identity, error) {
	var identities []domain.Identity
	pageCursor := ""

	for page := 0; page < maxFollowingPages; page++ {
		endpoint := fmt.Sprintf("%s/v2/farcaster/following?fid=%d&limit=%d", c.apiURL, fid, followingPageSize)
		if pageCursor != "" {
			endpoint += "&cursor=" + url.QueryEscape(pageCursor)
		}

		response, err := ratelimit.Request(ctx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) (*followingResponse, error) {
			var resp followingResponse
			if err := c.httpClient.Get(ctx, endpoint, c.headers(), &resp); err != nil {
				return nil, err
			}
			return &resp, nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list following for fid %d: %w", fid, err)
		}

		for _, entry := range response.Users {
			if entry.User == nil {
				continue
			}
			identities = append(identities, entry.User.Identity())
		}

		if response.Next == nil || response.Next.Cursor == "" {
			break
		}
		pageCursor = response.Next.Cursor
	}

	return identities, nil
}
