// Package filtersort applies viewer-selected predicates and a total order
// to a working set of normalized NFT records. Everything here is pure; the
// caller owns the slice lifecycle.
package filtersort

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fc-gallery/nft-aggregator/internal/domain"
)

// SortKey selects the total order applied after filtering
type SortKey string

const (
	// SortValue orders by floor-price USD descending, missing prices last
	SortValue SortKey = "value"
	// SortCollection orders by collection name, then numeric token id
	SortCollection SortKey = "collection"
	// SortRecent orders by last activity descending, missing timestamps last
	SortRecent SortKey = "recent"
)

// ParseSortKey validates a sort key from the request surface. An empty key
// defaults to value ordering.
func ParseSortKey(raw string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return SortValue, nil
	case SortValue:
		return SortValue, nil
	case SortCollection:
		return SortCollection, nil
	case SortRecent:
		return SortRecent, nil
	default:
		return "", domain.InvalidInput(fmt.Sprintf("unknown sort key %q", raw))
	}
}

// Options carries the predicates and the sort key for one request. Zero
// values mean "no restriction".
type Options struct {
	Chains         []domain.Chain
	Wallets        []string
	Query          string
	MinPriceUSD    *decimal.Decimal
	MaxPriceUSD    *decimal.Decimal
	AcquiredAfter  *time.Time
	AcquiredBefore *time.Time
	Sort           SortKey
}

// Apply filters the records by every predicate in opts, then sorts them by
// the selected key. The input slice is not modified.
func Apply(records []*domain.NFTRecord, opts Options) []*domain.NFTRecord {
	out := make([]*domain.NFTRecord, 0, len(records))
	for _, record := range records {
		if matches(record, &opts) {
			out = append(out, record)
		}
	}
	Sort(out, opts.Sort)
	return out
}

func matches(record *domain.NFTRecord, opts *Options) bool {
	if len(opts.Chains) > 0 && !chainAllowed(record.Chain, opts.Chains) {
		return false
	}
	if len(opts.Wallets) > 0 && !ownedByAny(record, opts.Wallets) {
		return false
	}
	if opts.Query != "" && !matchesQuery(record, opts.Query) {
		return false
	}
	if !withinPriceRange(record, opts.MinPriceUSD, opts.MaxPriceUSD) {
		return false
	}
	if !withinDateRange(record, opts.AcquiredAfter, opts.AcquiredBefore) {
		return false
	}
	return true
}

func chainAllowed(chain domain.Chain, allowed []domain.Chain) bool {
	for _, candidate := range allowed {
		if candidate == chain {
			return true
		}
	}
	return false
}

func ownedByAny(record *domain.NFTRecord, wallets []string) bool {
	for _, wallet := range wallets {
		if record.OwnedBy(wallet) {
			return true
		}
	}
	return false
}

// matchesQuery is a case-insensitive substring match over title, collection
// name, and token number
func matchesQuery(record *domain.NFTRecord, query string) bool {
	needle := strings.ToLower(query)
	return strings.Contains(strings.ToLower(record.Title), needle) ||
		strings.Contains(strings.ToLower(record.Collection.Name), needle) ||
		strings.Contains(strings.ToLower(record.TokenNumber), needle)
}

// withinPriceRange checks the USD floor price against an inclusive range.
// A record with no USD floor only passes when no lower bound is set.
func withinPriceRange(record *domain.NFTRecord, min, max *decimal.Decimal) bool {
	if min == nil && max == nil {
		return true
	}
	price, ok := usdFloor(record)
	if !ok {
		return min == nil
	}
	if min != nil && price.LessThan(*min) {
		return false
	}
	if max != nil && price.GreaterThan(*max) {
		return false
	}
	return true
}

func withinDateRange(record *domain.NFTRecord, after, before *time.Time) bool {
	if after == nil && before == nil {
		return true
	}
	if record.LastActivity == nil {
		return false
	}
	if after != nil && record.LastActivity.Before(*after) {
		return false
	}
	if before != nil && record.LastActivity.After(*before) {
		return false
	}
	return true
}

func usdFloor(record *domain.NFTRecord) (decimal.Decimal, bool) {
	if record.FloorPrice == nil || !record.FloorPrice.USD() {
		return decimal.Zero, false
	}
	return record.FloorPrice.Amount, true
}

// Sort orders records in place by the given key. Every ordering is total:
// ties fall through to token id ascending so identical inputs always
// produce identical output.
func Sort(records []*domain.NFTRecord, key SortKey) {
	var less func(a, b *domain.NFTRecord) int
	switch key {
	case SortCollection:
		less = compareCollection
	case SortRecent:
		less = compareRecent
	default:
		less = compareValue
	}
	sort.Slice(records, func(i, j int) bool {
		if c := less(records[i], records[j]); c != 0 {
			return c < 0
		}
		return records[i].ID < records[j].ID
	})
}

// compareValue sorts by USD floor descending, treating a missing or
// non-USD floor as zero
func compareValue(a, b *domain.NFTRecord) int {
	priceA, _ := usdFloor(a)
	priceB, _ := usdFloor(b)
	return priceB.Cmp(priceA)
}

// compareCollection sorts by collection name case-insensitively, then by
// token number. Token numbers compare as integers when both parse,
// lexicographically otherwise.
func compareCollection(a, b *domain.NFTRecord) int {
	nameA, nameB := strings.ToLower(a.Collection.Name), strings.ToLower(b.Collection.Name)
	if nameA != nameB {
		return strings.Compare(nameA, nameB)
	}
	return compareTokenNumbers(a.TokenNumber, b.TokenNumber)
}

func compareTokenNumbers(a, b string) int {
	numberA, okA := new(big.Int).SetString(a, 10)
	numberB, okB := new(big.Int).SetString(b, 10)
	if okA && okB {
		return numberA.Cmp(numberB)
	}
	return strings.Compare(a, b)
}

// compareRecent sorts by last activity descending. Records without a
// timestamp sort after every record that has one.
func compareRecent(a, b *domain.NFTRecord) int {
	switch {
	case a.LastActivity == nil && b.LastActivity == nil:
		return 0
	case a.LastActivity == nil:
		return 1
	case b.LastActivity == nil:
		return -1
	case a.LastActivity.After(*b.LastActivity):
		return -1
	case a.LastActivity.Before(*b.LastActivity):
		return 1
	default:
		return 0
	}
}
