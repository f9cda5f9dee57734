package rest

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/fc-gallery/nft-aggregator/internal/aggregator"
	"github.com/fc-gallery/nft-aggregator/internal/domain"
	"github.com/fc-gallery/nft-aggregator/internal/filtersort"
	"github.com/fc-gallery/nft-aggregator/internal/friends"
)

// NFTService is the aggregation surface the handlers depend on
type NFTService interface {
	ResolveIdentity(ctx context.Context, usernameOrFID string) (*domain.Identity, error)
	GetNFTsForIdentity(ctx context.Context, req aggregator.Request) (*aggregator.Result, error)
}

// FriendsService resolves collection friends
type FriendsService interface {
	GetCollectionFriends(ctx context.Context, chain domain.Chain, contract string, viewerFID uint64) (*friends.Result, error)
}

// Handler defines the interface for REST API handlers
type Handler interface {
	// ResolveIdentity resolves a username or FID to an identity
	// POST /api/identity
	ResolveIdentity(c *gin.Context)

	// GetNFTs returns one page of the identity's aggregated NFTs
	// GET /api/nfts?identity=<usernameOrFid>&chain=<chains>&pageToken=<token>&pageSize=<n>&excludeSpam=<bool>&sort=<key>
	GetNFTs(c *gin.Context)

	// GetCollectionFriends returns followed accounts holding a collection
	// GET /api/collection-friends?contract=<address>&chain=<chain>&viewerFid=<fid>
	GetCollectionFriends(c *gin.Context)

	// ImageProxy streams a remote image through the gateway
	// GET /api/image-proxy?url=<encoded>
	ImageProxy(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	nfts       NFTService
	friends    FriendsService
	imageProxy *imageProxy
}

// NewHandler creates a new REST API handler
func NewHandler(nfts NFTService, friendsService FriendsService, imageProxy *imageProxy) Handler {
	return &handler{
		nfts:       nfts,
		friends:    friendsService,
		imageProxy: imageProxy,
	}
}

// identityRequest is the body of POST /api/identity
type identityRequest struct {
	UsernameOrFID string `json:"usernameOrFid" binding:"required"`
}

// ResolveIdentity resolves a username or numeric FID
func (h *handler) ResolveIdentity(c *gin.Context) {
	var req identityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "usernameOrFid is required")
		return
	}

	identity, err := h.nfts.ResolveIdentity(c.Request.Context(), strings.TrimSpace(req.UsernameOrFID))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"identity": identity})
}

// GetNFTs returns one page of aggregated NFTs
func (h *handler) GetNFTs(c *gin.Context) {
	identity := strings.TrimSpace(c.Query("identity"))
	if identity == "" {
		respondBadRequest(c, "identity is required")
		return
	}

	req := aggregator.Request{
		Identity:    identity,
		PageToken:   c.Query("pageToken"),
		ExcludeSpam: true,
	}

	if raw := c.Query("chain"); raw != "" && !strings.EqualFold(raw, "all") {
		chains, err := domain.ParseChains(raw)
		if err != nil {
			respondWithError(c, err)
			return
		}
		req.Chains = chains
	}
	if raw := c.Query("pageSize"); raw != "" {
		pageSize, err := strconv.Atoi(raw)
		if err != nil || pageSize < 1 || pageSize > 100 {
			respondBadRequest(c, "pageSize must be an integer within [1, 100]")
			return
		}
		req.PageSize = pageSize
	}
	if raw := c.Query("excludeSpam"); raw != "" {
		excludeSpam, err := strconv.ParseBool(raw)
		if err != nil {
			respondBadRequest(c, "excludeSpam must be a boolean")
			return
		}
		req.ExcludeSpam = excludeSpam
	}

	filter, err := parseFilterOptions(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	filter.Chains = req.Chains
	req.Filter = filter

	result, err := h.nfts.GetNFTsForIdentity(c.Request.Context(), req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	response := gin.H{
		"items":    result.Items,
		"hasMore":  result.HasMore,
		"identity": result.Identity,
	}
	if result.NextPageToken != "" {
		response["nextPageToken"] = result.NextPageToken
	}
	if result.Diagnostics != nil {
		response["diagnostics"] = result.Diagnostics
	}
	c.JSON(http.StatusOK, response)
}

// parseFilterOptions reads the optional filter and sort query parameters
func parseFilterOptions(c *gin.Context) (filtersort.Options, error) {
	var opts filtersort.Options

	sortKey, err := filtersort.ParseSortKey(c.Query("sort"))
	if err != nil {
		return opts, err
	}
	opts.Sort = sortKey

	if raw := c.Query("wallet"); raw != "" {
		opts.Wallets = domain.NormalizeAddresses(strings.Split(raw, ","))
	}
	opts.Query = strings.TrimSpace(c.Query("q"))

	if raw := c.Query("minPrice"); raw != "" {
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return opts, domain.InvalidInput("minPrice must be a decimal number")
		}
		opts.MinPriceUSD = &value
	}
	if raw := c.Query("maxPrice"); raw != "" {
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return opts, domain.InvalidInput("maxPrice must be a decimal number")
		}
		opts.MaxPriceUSD = &value
	}
	if raw := c.Query("acquiredAfter"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, domain.InvalidInput("acquiredAfter must be RFC 3339")
		}
		opts.AcquiredAfter = &at
	}
	if raw := c.Query("acquiredBefore"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, domain.InvalidInput("acquiredBefore must be RFC 3339")
		}
		opts.AcquiredBefore = &at
	}

	return opts, nil
}

// GetCollectionFriends returns followed accounts holding the collection
func (h *handler) GetCollectionFriends(c *gin.Context) {
	contract := strings.TrimSpace(c.Query("contract"))
	if contract == "" {
		respondBadRequest(c, "contract is required")
		return
	}

	chain := domain.ChainEthereum
	if raw := c.Query("chain"); raw != "" {
		chains, err := domain.ParseChains(raw)
		if err != nil || len(chains) != 1 {
			respondBadRequest(c, "chain must name exactly one supported chain")
			return
		}
		chain = chains[0]
	}

	viewerFID, err := strconv.ParseUint(c.Query("viewerFid"), 10, 64)
	if err != nil || viewerFID == 0 {
		respondBadRequest(c, "viewerFid must be a positive integer")
		return
	}

	result, err := h.friends.GetCollectionFriends(c.Request.Context(), chain, contract, viewerFID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ImageProxy streams a remote image through the gateway
func (h *handler) ImageProxy(c *gin.Context) {
	h.imageProxy.Serve(c)
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
