package normalizer

import (
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fc-gallery/nft-aggregator/internal/domain"
)

// UnknownCollectionName is used when no source names the collection
const UnknownCollectionName = "Unknown Collection"

// Normalize converts an upstream NFT payload into the canonical record.
// It is pure and deterministic: the same input always yields the same
// output. Records without a resolvable contract or token id are rejected.
func Normalize(chain domain.Chain, raw *RawNFT) (*domain.NFTRecord, error) {
	contract := resolveContract(raw)
	if contract == "" {
		return nil, domain.InvalidInput("nft payload has no contract address")
	}
	contract = strings.ToLower(contract)

	tokenNumber := resolveTokenNumber(raw)
	if tokenNumber == "" {
		return nil, domain.InvalidInput("nft payload has no token id")
	}

	collectionName := resolveCollectionName(raw)
	record := &domain.NFTRecord{
		ID:          domain.NewTokenID(chain, contract, tokenNumber),
		Chain:       chain,
		Contract:    contract,
		TokenNumber: tokenNumber,
		Title:       resolveTitle(raw, collectionName, tokenNumber),
		Description: raw.Description,
		Collection: domain.Collection{
			ID:         domain.NewCollectionID(chain, contract),
			Name:       collectionName,
			Chain:      chain,
			Contract:   contract,
			FloorPrice: resolveFloorPrice(raw),
		},
		ImageURL:     resolveImageURL(raw),
		AnimationURL: resolveAnimationURL(raw),
		Spam:         resolveSpam(raw),
		FloorPrice:   resolveFloorPrice(raw),
		LastActivity: resolveLastActivity(raw),
	}
	return record, nil
}

// resolveContract picks contract.address, then contractAddress, then the
// second segment of a colon-separated composite id
func resolveContract(raw *RawNFT) string {
	if raw.Contract != nil && raw.Contract.Address != "" {
		return raw.Contract.Address
	}
	if raw.ContractAddress != "" {
		return raw.ContractAddress
	}
	if parts := strings.Split(raw.ID, ":"); len(parts) >= 3 {
		return parts[1]
	}
	return ""
}

// resolveTokenNumber picks tokenId, then token_id, then the last segment
// of a composite id, converting hex token ids to their decimal string form
func resolveTokenNumber(raw *RawNFT) string {
	candidate := raw.TokenID
	if candidate == "" {
		candidate = raw.TokenIDAlt
	}
	if candidate == "" {
		if parts := strings.Split(raw.ID, ":"); len(parts) >= 3 {
			candidate = parts[len(parts)-1]
		}
	}
	return decimalTokenNumber(candidate)
}

// decimalTokenNumber renders a token id as a decimal string; hex inputs
// are converted, token ids above 64 bits stay exact via big.Int
func decimalTokenNumber(tokenID string) string {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return ""
	}
	if strings.HasPrefix(tokenID, "0x") || strings.HasPrefix(tokenID, "0X") {
		n, ok := new(big.Int).SetString(tokenID[2:], 16)
		if !ok {
			return ""
		}
		return n.String()
	}
	n, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return ""
	}
	return n.String()
}

func resolveTitle(raw *RawNFT, collectionName, tokenNumber string) string {
	if raw.Title != "" {
		return raw.Title
	}
	if raw.Name != "" {
		return raw.Name
	}
	if raw.Metadata != nil && raw.Metadata.Name != "" {
		return raw.Metadata.Name
	}
	if collectionName != UnknownCollectionName {
		return collectionName + " #" + tokenNumber
	}
	return "#" + tokenNumber
}

// resolveImageURL walks the image fallback chain: media array (gateway,
// raw, thumbnail of the first entry), image_url, image (string or
// structured), metadata.image, raw.metadata.image, tokenUri.gateway
func resolveImageURL(raw *RawNFT) string {
	if len(raw.Media) > 0 {
		m := raw.Media[0]
		for _, candidate := range []string{m.Gateway, m.Raw, m.Thumbnail} {
			if candidate != "" {
				return candidate
			}
		}
	}
	if raw.ImageURL != "" {
		return raw.ImageURL
	}
	if best := raw.Image.Best(); best != "" {
		return best
	}
	if raw.Metadata != nil && raw.Metadata.Image != "" {
		return raw.Metadata.Image
	}
	if raw.Raw != nil && raw.Raw.Metadata != nil && raw.Raw.Metadata.Image != "" {
		return raw.Raw.Metadata.Image
	}
	if raw.TokenURI != nil && raw.TokenURI.Gateway != "" {
		return raw.TokenURI.Gateway
	}
	return ""
}

func resolveAnimationURL(raw *RawNFT) string {
	if best := raw.Animation.Best(); best != "" {
		return best
	}
	if raw.AnimationURL != "" {
		return raw.AnimationURL
	}
	if raw.Metadata != nil && raw.Metadata.AnimationURL != "" {
		return raw.Metadata.AnimationURL
	}
	if raw.Raw != nil && raw.Raw.Metadata != nil && raw.Raw.Metadata.AnimationURL != "" {
		return raw.Raw.Metadata.AnimationURL
	}
	return ""
}

// resolveCollectionName picks contract.name, contractMetadata.name,
// collection.name, then metadata.collection
func resolveCollectionName(raw *RawNFT) string {
	if raw.Contract != nil && raw.Contract.Name != "" {
		return raw.Contract.Name
	}
	if raw.ContractMetadata != nil && raw.ContractMetadata.Name != "" {
		return raw.ContractMetadata.Name
	}
	if raw.Collection != nil && raw.Collection.Name != "" {
		return raw.Collection.Name
	}
	if raw.Metadata != nil && raw.Metadata.Collection != "" {
		return raw.Metadata.Collection
	}
	return UnknownCollectionName
}

// resolveFloorPrice prefers a USD value; a native-currency floor is kept
// with its currency tag and never converted here
func resolveFloorPrice(raw *RawNFT) *domain.FloorPrice {
	if raw.FloorPriceUSD != "" {
		if amount, err := decimal.NewFromString(raw.FloorPriceUSD.String()); err == nil {
			return &domain.FloorPrice{Amount: amount, Currency: "USD"}
		}
	}

	var openSea *RawOpenSeaMetadata
	if raw.Contract != nil && raw.Contract.OpenSeaMetadata != nil {
		openSea = raw.Contract.OpenSeaMetadata
	} else if raw.ContractMetadata != nil && raw.ContractMetadata.OpenSeaMetadata != nil {
		openSea = raw.ContractMetadata.OpenSeaMetadata
	}
	if openSea != nil && openSea.FloorPrice != "" {
		if amount, err := decimal.NewFromString(openSea.FloorPrice.String()); err == nil {
			return &domain.FloorPrice{Amount: amount, Currency: "ETH"}
		}
	}
	return nil
}

func resolveSpam(raw *RawNFT) bool {
	if raw.Contract != nil && raw.Contract.IsSpam != nil {
		return *raw.Contract.IsSpam
	}
	if raw.SpamInfo != nil && raw.SpamInfo.IsSpam != nil {
		return *raw.SpamInfo.IsSpam
	}
	return false
}

func resolveLastActivity(raw *RawNFT) *time.Time {
	if raw.AcquiredAt != nil && raw.AcquiredAt.BlockTimestamp != nil {
		return raw.AcquiredAt.BlockTimestamp
	}
	return raw.TimeLastUpdated
}
