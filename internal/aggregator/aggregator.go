// Package aggregator orchestrates the identity → addresses → (chain ×
// address) NFT fan-out, merges the results into canonical records, and
// assembles pages with resumable cursors.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/fc-gallery/nft-aggregator/internal/cache"
	"github.com/fc-gallery/nft-aggregator/internal/domain"
	"github.com/fc-gallery/nft-aggregator/internal/filtersort"
	"github.com/fc-gallery/nft-aggregator/internal/logger"
	"github.com/fc-gallery/nft-aggregator/internal/normalizer"
	"github.com/fc-gallery/nft-aggregator/internal/providers/alchemy"
	"github.com/fc-gallery/nft-aggregator/internal/providers/farcaster"
)

const (
	defaultPerChainParallelism = 3
	defaultPageSize            = 100
)

// Options bounds the fan-out and sets cache TTLs for the aggregation path
type Options struct {
	Chains              []domain.Chain
	PerChainParallelism int
	PageSize            int
	RequestTimeout      time.Duration
	IdentityTTL         time.Duration
	NFTsTTL             time.Duration
}

// Request carries everything the caller selected for one page of results
type Request struct {
	Identity    string // username or numeric FID
	Chains      []domain.Chain
	PageSize    int
	PageToken   string
	ExcludeSpam bool
	Filter      filtersort.Options
}

// FanoutFailure records one failed (chain, address) fetch for the
// diagnostics envelope
type FanoutFailure struct {
	Chain   domain.Chain     `json:"chain"`
	Address string           `json:"address"`
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// Diagnostics reports partial-failure state alongside a successful page
type Diagnostics struct {
	Partial  bool            `json:"partial"`
	Failures []FanoutFailure `json:"failures,omitempty"`
}

// Result is one assembled page
type Result struct {
	Identity      *domain.Identity    `json:"identity"`
	Items         []*domain.NFTRecord `json:"items"`
	NextPageToken string              `json:"nextPageToken,omitempty"`
	HasMore       bool                `json:"hasMore"`
	Diagnostics   *Diagnostics        `json:"diagnostics,omitempty"`
}

// NFTPage is one cached upstream page for a single (chain, address) pair
type NFTPage struct {
	Raws []normalizer.RawNFT `json:"raws"`
	Next string              `json:"next"`
}

// Aggregator fans out NFT enumeration across the effective address set and
// the configured chains, reading every upstream through the cache
type Aggregator struct {
	identities farcaster.Client
	nfts       alchemy.Client
	store      *cache.Cache
	opts       Options
}

// New creates an aggregator. Zero option fields fall back to defaults.
func New(identities farcaster.Client, nfts alchemy.Client, store *cache.Cache, opts Options) *Aggregator {
	if len(opts.Chains) == 0 {
		opts.Chains = domain.DefaultChains
	}
	if opts.PerChainParallelism <= 0 {
		opts.PerChainParallelism = defaultPerChainParallelism
	}
	if opts.PageSize <= 0 || opts.PageSize > alchemy.MaxPageSize {
		opts.PageSize = defaultPageSize
	}
	return &Aggregator{
		identities: identities,
		nfts:       nfts,
		store:      store,
		opts:       opts,
	}
}

// ResolveIdentity resolves a username or FID through the cache
func (a *Aggregator) ResolveIdentity(ctx context.Context, usernameOrFID string) (*domain.Identity, error) {
	if usernameOrFID == "" {
		return nil, domain.InvalidInput("username or fid is required")
	}
	return cache.GetOrCompute(ctx, a.store, cache.IdentityKey(usernameOrFID), a.opts.IdentityTTL,
		func(ctx context.Context) (*domain.Identity, error) {
			return a.identities.ResolveIdentity(ctx, usernameOrFID)
		})
}

type fetchOutcome struct {
	chain   domain.Chain
	address string
	cursor  string
	page    *NFTPage
	err     error
}

// GetNFTsForIdentity assembles one page of the identity's aggregated NFTs.
// A single failing (chain, address) fetch degrades to an empty contribution
// and lands in diagnostics; the call fails only when every fetch fails.
func (a *Aggregator) GetNFTsForIdentity(ctx context.Context, req Request) (*Result, error) {
	if a.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.RequestTimeout)
		defer cancel()
	}

	identity, err := a.ResolveIdentity(ctx, req.Identity)
	if err != nil {
		return nil, err
	}

	addresses := identity.Addresses()
	if len(addresses) == 0 {
		return nil, domain.NoAddresses(fmt.Sprintf("identity %q has no wallet addresses", identity.Username))
	}

	chains := req.Chains
	if len(chains) == 0 {
		chains = a.opts.Chains
	}
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > alchemy.MaxPageSize {
		pageSize = a.opts.PageSize
	}

	cursors, err := decodePageToken(req.PageToken)
	if err != nil {
		return nil, err
	}

	outcomes := a.fanOut(ctx, chains, addresses, cursors, pageSize, req.ExcludeSpam)

	merged := map[domain.TokenID]*domain.NFTRecord{}
	nextCursors := cursorState{}
	var failures []FanoutFailure
	var firstErr error

	for _, outcome := range outcomes {
		if outcome.err != nil {
			if firstErr == nil {
				firstErr = outcome.err
			}
			failures = append(failures, FanoutFailure{
				Chain:   outcome.chain,
				Address: outcome.address,
				Kind:    domain.KindOf(outcome.err),
				Message: outcome.err.Error(),
			})
			// keep the attempted cursor so a later page retries the
			// pair instead of treating it as exhausted
			nextCursors[cursorKey(outcome.chain, outcome.address)] = outcome.cursor
			continue
		}
		mergePage(merged, outcome)
		if outcome.page.Next != "" {
			nextCursors[cursorKey(outcome.chain, outcome.address)] = outcome.page.Next
		}
	}

	if len(failures) == len(outcomes) && firstErr != nil {
		return nil, fmt.Errorf("every fan-out failed: %w", firstErr)
	}

	records := make([]*domain.NFTRecord, 0, len(merged))
	for _, record := range merged {
		if req.ExcludeSpam && record.Spam {
			continue
		}
		records = append(records, record)
	}
	records = filtersort.Apply(records, req.Filter)

	nextToken, err := encodePageToken(nextCursors)
	if err != nil {
		return nil, domain.Internal("failed to encode page token", err)
	}

	result := &Result{
		Identity:      identity,
		Items:         records,
		NextPageToken: nextToken,
		HasMore:       len(nextCursors) > 0,
	}
	if len(failures) > 0 {
		// deterministic diagnostics order for clients and tests
		sort.Slice(failures, func(i, j int) bool {
			if failures[i].Chain != failures[j].Chain {
				return failures[i].Chain < failures[j].Chain
			}
			return failures[i].Address < failures[j].Address
		})
		result.Diagnostics = &Diagnostics{Partial: true, Failures: failures}
	}
	return result, nil
}

// fanOut fetches one upstream page per pending (chain, address) pair, at
// most PerChainParallelism wallets in flight per chain. Pages within one
// pair are sequential across requests since each cursor depends on the
// previous page.
func (a *Aggregator) fanOut(ctx context.Context, chains []domain.Chain, addresses []string, cursors cursorState, pageSize int, excludeSpam bool) []*fetchOutcome {
	results := make(chan *fetchOutcome, len(chains)*len(addresses))

	var pools []pond.Pool
	submitted := 0
	for _, chain := range chains {
		pool := pond.NewPool(a.opts.PerChainParallelism)
		pools = append(pools, pool)

		for _, address := range addresses {
			cursor, pending := pendingCursor(cursors, chain, address)
			if !pending {
				continue
			}
			submitted++
			chain, address := chain, address
			pool.Submit(func() {
				page, err := a.fetchPage(ctx, chain, address, pageSize, cursor, excludeSpam)
				results <- &fetchOutcome{chain: chain, address: address, cursor: cursor, page: page, err: err}
			})
		}
	}

	for _, pool := range pools {
		pool.StopAndWait()
	}
	close(results)

	outcomes := make([]*fetchOutcome, 0, submitted)
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// pendingCursor reports whether a (chain, address) pair still has pages to
// fetch under the decoded token, and the cursor to resume from. With no
// token every pair is pending from the start.
func pendingCursor(cursors cursorState, chain domain.Chain, address string) (string, bool) {
	if cursors == nil {
		return "", true
	}
	cursor, ok := cursors[cursorKey(chain, address)]
	return cursor, ok
}

// fetchPage reads one upstream page through the cache. The cache key pins
// every parameter that changes the page contents.
func (a *Aggregator) fetchPage(ctx context.Context, chain domain.Chain, address string, pageSize int, cursor string, excludeSpam bool) (*NFTPage, error) {
	key := cache.NFTsKey(address, chain, pageSize, excludeSpam, cursor)
	return cache.GetOrCompute(ctx, a.store, key, a.opts.NFTsTTL,
		func(ctx context.Context) (*NFTPage, error) {
			raws, next, err := a.nfts.ListNFTsForOwner(ctx, chain, address, pageSize, cursor, excludeSpam)
			if err != nil {
				return nil, err
			}
			return &NFTPage{Raws: raws, Next: next}, nil
		})
}

// mergePage normalizes a page's raw payloads and unions them into the
// working set, tagging each record with its owning address
func mergePage(merged map[domain.TokenID]*domain.NFTRecord, outcome *fetchOutcome) {
	for i := range outcome.page.Raws {
		record, err := normalizer.Normalize(outcome.chain, &outcome.page.Raws[i])
		if err != nil {
			logger.Debug("skipping unnormalizable payload",
				zap.String("chain", string(outcome.chain)),
				zap.String("address", outcome.address),
				zap.Error(err),
			)
			continue
		}
		record.AddOwner(outcome.address)
		if existing, ok := merged[record.ID]; ok {
			existing.Merge(record)
		} else {
			merged[record.ID] = record
		}
	}
}
