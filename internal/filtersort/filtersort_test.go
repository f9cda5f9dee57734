package filtersort

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fc-gallery/nft-aggregator/internal/domain"
)

func record(chain domain.Chain, contract, tokenNumber string, mutate ...func(*domain.NFTRecord)) *domain.NFTRecord {
	r := &domain.NFTRecord{
		ID:          domain.NewTokenID(chain, contract, tokenNumber),
		Chain:       chain,
		Contract:    domain.NormalizeAddress(contract),
		TokenNumber: tokenNumber,
		Title:       "Token " + tokenNumber,
		Collection:  domain.Collection{Name: "Test Collection", Chain: chain},
	}
	for _, fn := range mutate {
		fn(r)
	}
	return r
}

func usd(amount string) func(*domain.NFTRecord) {
	return func(r *domain.NFTRecord) {
		value := decimal.RequireFromString(amount)
		r.FloorPrice = &domain.FloorPrice{Amount: value, Currency: "USD"}
	}
}

func activity(at time.Time) func(*domain.NFTRecord) {
	return func(r *domain.NFTRecord) { r.LastActivity = &at }
}

func ids(records []*domain.NFTRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = string(r.ID)
	}
	return out
}

func TestSortValueDescendingMissingLast(t *testing.T) {
	records := []*domain.NFTRecord{
		record(domain.ChainEthereum, "0xaaa", "1", usd("2.5")),
		record(domain.ChainEthereum, "0xaaa", "2", usd("10.0")),
		record(domain.ChainEthereum, "0xaaa", "3"),
	}

	out := Apply(records, Options{Sort: SortValue})
	assert.Equal(t, []string{"eth:0xaaa-2", "eth:0xaaa-1", "eth:0xaaa-3"}, ids(out))
}

func TestSortValueTieBreaksByID(t *testing.T) {
	records := []*domain.NFTRecord{
		record(domain.ChainEthereum, "0xbbb", "1", usd("5")),
		record(domain.ChainEthereum, "0xaaa", "1", usd("5")),
	}

	out := Apply(records, Options{Sort: SortValue})
	assert.Equal(t, []string{"eth:0xaaa-1", "eth:0xbbb-1"}, ids(out))
}

func TestSortValueIgnoresNonUSDFloors(t *testing.T) {
	records := []*domain.NFTRecord{
		record(domain.ChainEthereum, "0xaaa", "1", func(r *domain.NFTRecord) {
			amount := decimal.RequireFromString("99")
			r.FloorPrice = &domain.FloorPrice{Amount: amount, Currency: "ETH"}
		}),
		record(domain.ChainEthereum, "0xaaa", "2", usd("0.01")),
	}

	out := Apply(records, Options{Sort: SortValue})
	// the ETH-denominated floor counts as zero, not 99
	assert.Equal(t, []string{"eth:0xaaa-2", "eth:0xaaa-1"}, ids(out))
}

func TestSortCollectionNumericTokenIDs(t *testing.T) {
	records := []*domain.NFTRecord{
		record(domain.ChainEthereum, "0xaaa", "10"),
		record(domain.ChainEthereum, "0xaaa", "2"),
		record(domain.ChainEthereum, "0xaaa", "115792089237316195423570985008687907853269984665640564039457584007913129639935"),
	}

	out := Apply(records, Options{Sort: SortCollection})
	require.Len(t, out, 3)
	assert.Equal(t, "2", out[0].TokenNumber)
	assert.Equal(t, "10", out[1].TokenNumber)
	// the 256-bit id sorts numerically, not lexicographically
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", out[2].TokenNumber)
}

func TestSortCollectionGroupsByNameCaseInsensitive(t *testing.T) {
	records := []*domain.NFTRecord{
		record(domain.ChainEthereum, "0xbbb", "1", func(r *domain.NFTRecord) { r.Collection.Name = "zebra" }),
		record(domain.ChainEthereum, "0xaaa", "1", func(r *domain.NFTRecord) { r.Collection.Name = "Apples" }),
		record(domain.ChainEthereum, "0xccc", "1", func(r *domain.NFTRecord) { r.Collection.Name = "apples" }),
	}

	out := Apply(records, Options{Sort: SortCollection})
	assert.Equal(t, []string{"eth:0xaaa-1", "eth:0xccc-1", "eth:0xbbb-1"}, ids(out))
}

func TestSortRecentMissingTimestampLast(t *testing.T) {
	now := time.Now()
	records := []*domain.NFTRecord{
		record(domain.ChainEthereum, "0xaaa", "1"),
		record(domain.ChainEthereum, "0xaaa", "2", activity(now.Add(-time.Hour))),
		record(domain.ChainEthereum, "0xaaa", "3", activity(now)),
	}

	out := Apply(records, Options{Sort: SortRecent})
	assert.Equal(t, []string{"eth:0xaaa-3", "eth:0xaaa-2", "eth:0xaaa-1"}, ids(out))
}

func TestFilterByChain(t *testing.T) {
	records := []*domain.NFTRecord{
		record(domain.ChainEthereum, "0xaaa", "1"),
		record(domain.ChainBase, "0xaaa", "1"),
	}

	out := Apply(records, Options{Chains: []domain.Chain{domain.ChainBase}})
	require.Len(t, out, 1)
	assert.Equal(t, domain.ChainBase, out[0].Chain)
}

func TestFilterByOwningWallet(t *testing.T) {
	mine := record(domain.ChainEthereum, "0xaaa", "1")
	mine.AddOwner("0xAA00000000000000000000000000000000000001")
	other := record(domain.ChainEthereum, "0xaaa", "2")
	other.AddOwner("0xbb00000000000000000000000000000000000002")

	out := Apply([]*domain.NFTRecord{mine, other}, Options{
		Wallets: []string{"0xaa00000000000000000000000000000000000001"},
	})
	require.Len(t, out, 1)
	assert.Equal(t, mine.ID, out[0].ID)
}

func TestFilterByQuery(t *testing.T) {
	records := []*domain.NFTRecord{
		record(domain.ChainEthereum, "0xaaa", "1", func(r *domain.NFTRecord) { r.Title = "Rare Pepe" }),
		record(domain.ChainEthereum, "0xaaa", "2", func(r *domain.NFTRecord) { r.Collection.Name = "Pepe Classics" }),
		record(domain.ChainEthereum, "0xaaa", "3", func(r *domain.NFTRecord) { r.Title = "Boring" }),
	}

	out := Apply(records, Options{Query: "pepe"})
	assert.Equal(t, []string{"eth:0xaaa-1", "eth:0xaaa-2"}, ids(out))
}

func TestFilterByQueryMatchesTokenNumber(t *testing.T) {
	records := []*domain.NFTRecord{
		record(domain.ChainEthereum, "0xaaa", "4211"),
		record(domain.ChainEthereum, "0xaaa", "7"),
	}

	out := Apply(records, Options{Query: "421"})
	require.Len(t, out, 1)
	assert.Equal(t, "4211", out[0].TokenNumber)
}

func TestFilterByPriceRange(t *testing.T) {
	records := []*domain.NFTRecord{
		record(domain.ChainEthereum, "0xaaa", "1", usd("1")),
		record(domain.ChainEthereum, "0xaaa", "2", usd("50")),
		record(domain.ChainEthereum, "0xaaa", "3", usd("500")),
		record(domain.ChainEthereum, "0xaaa", "4"),
	}

	min := decimal.RequireFromString("10")
	max := decimal.RequireFromString("100")
	out := Apply(records, Options{MinPriceUSD: &min, MaxPriceUSD: &max})
	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].TokenNumber)

	// with only an upper bound, unpriced records pass
	out = Apply(records, Options{MaxPriceUSD: &max})
	assert.Len(t, out, 3)
}

func TestFilterByDateRange(t *testing.T) {
	day := 24 * time.Hour
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	records := []*domain.NFTRecord{
		record(domain.ChainEthereum, "0xaaa", "1", activity(cutoff.Add(-day))),
		record(domain.ChainEthereum, "0xaaa", "2", activity(cutoff.Add(day))),
		record(domain.ChainEthereum, "0xaaa", "3"),
	}

	out := Apply(records, Options{AcquiredAfter: &cutoff})
	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].TokenNumber)
}

func TestApplyDoesNotModifyInput(t *testing.T) {
	records := []*domain.NFTRecord{
		record(domain.ChainEthereum, "0xaaa", "2"),
		record(domain.ChainEthereum, "0xaaa", "1"),
	}

	_ = Apply(records, Options{Sort: SortCollection})
	assert.Equal(t, "2", records[0].TokenNumber)
}

func TestParseSortKey(t *testing.T) {
	key, err := ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortValue, key)

	key, err = ParseSortKey(" Recent ")
	require.NoError(t, err)
	assert.Equal(t, SortRecent, key)

	_, err = ParseSortKey("alphabetical")
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}
