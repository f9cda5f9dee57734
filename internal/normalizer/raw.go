package normalizer

import (
	"encoding/json"
	"time"
)

// RawNFT is the provider-neutral upstream NFT payload. Field names cover
// the shapes the NFT providers actually emit; the Normalize fallback
// chains pick the first populated source.
type RawNFT struct {
	ID              string       `json:"id,omitempty"` // composite "{chain}:{contract}:{tokenId}"
	Contract        *RawContract `json:"contract,omitempty"`
	ContractAddress string       `json:"contractAddress,omitempty"`
	TokenID         string       `json:"tokenId,omitempty"`
	TokenIDAlt      string       `json:"token_id,omitempty"`

	Title       string `json:"title,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	Media        []RawMedia `json:"media,omitempty"`
	ImageURL     string     `json:"image_url,omitempty"`
	Image        RawImage   `json:"image,omitzero"`
	Animation    RawImage   `json:"animation,omitzero"`
	AnimationURL string     `json:"animation_url,omitempty"`

	Metadata *RawMetadata `json:"metadata,omitempty"`
	Raw      *RawWrapper  `json:"raw,omitempty"`
	TokenURI *RawTokenURI `json:"tokenUri,omitempty"`

	ContractMetadata *RawContractMetadata `json:"contractMetadata,omitempty"`
	Collection       *RawCollection       `json:"collection,omitempty"`

	SpamInfo *RawSpamInfo `json:"spamInfo,omitempty"`

	FloorPriceUSD json.Number `json:"floor_price_usd,omitempty"`

	AcquiredAt      *RawAcquiredAt `json:"acquiredAt,omitempty"`
	TimeLastUpdated *time.Time     `json:"timeLastUpdated,omitempty"`
}

// RawContract carries contract-level metadata
type RawContract struct {
	Address         string              `json:"address,omitempty"`
	Name            string              `json:"name,omitempty"`
	IsSpam          *bool               `json:"isSpam,omitempty"`
	OpenSeaMetadata *RawOpenSeaMetadata `json:"openSeaMetadata,omitempty"`
}

// RawContractMetadata is the older nesting of contract metadata
type RawContractMetadata struct {
	Name            string              `json:"name,omitempty"`
	OpenSeaMetadata *RawOpenSeaMetadata `json:"openSea,omitempty"`
}

// RawOpenSeaMetadata carries marketplace enrichment; floorPrice is
// denominated in the chain's native currency
type RawOpenSeaMetadata struct {
	CollectionName string      `json:"collectionName,omitempty"`
	FloorPrice     json.Number `json:"floorPrice,omitempty"`
}

// RawCollection is a flat collection reference
type RawCollection struct {
	Name string `json:"name,omitempty"`
}

// RawMedia is one entry of the media array
type RawMedia struct {
	Gateway   string `json:"gateway,omitempty"`
	Raw       string `json:"raw,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// RawTokenURI points at the token's metadata document
type RawTokenURI struct {
	Gateway string `json:"gateway,omitempty"`
	Raw     string `json:"raw,omitempty"`
}

// RawMetadata is the token-level metadata document
type RawMetadata struct {
	Name         string `json:"name,omitempty"`
	Image        string `json:"image,omitempty"`
	AnimationURL string `json:"animation_url,omitempty"`
	Collection   string `json:"collection,omitempty"`
}

// RawWrapper nests the unresolved metadata document
type RawWrapper struct {
	Metadata *RawMetadata `json:"metadata,omitempty"`
}

// RawSpamInfo is the spam classification block
type RawSpamInfo struct {
	IsSpam *bool `json:"isSpam,omitempty"`
}

// RawAcquiredAt records when the owning wallet received the token
type RawAcquiredAt struct {
	BlockTimestamp *time.Time `json:"blockTimestamp,omitempty"`
}

// RawImage accepts both shapes the providers emit for the image field: a
// bare URL string or a structured object of variants.
type RawImage struct {
	CachedURL    string `json:"cachedUrl,omitempty"`
	OriginalURL  string `json:"originalUrl,omitempty"`
	PngURL       string `json:"pngUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Gateway      string `json:"gateway,omitempty"`

	// URL is set when the upstream sent a bare string
	URL string `json:"-"`
}

// UnmarshalJSON accepts either a JSON string or the structured object
func (i *RawImage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		i.URL = s
		return nil
	}

	type plain RawImage
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*i = RawImage(p)
	return nil
}

// Empty reports whether no variant is populated
func (i *RawImage) Empty() bool {
	return i.URL == "" && i.CachedURL == "" && i.OriginalURL == "" &&
		i.PngURL == "" && i.ThumbnailURL == "" && i.Gateway == ""
}

// Best returns the preferred variant: cachedUrl, originalUrl, pngUrl,
// thumbnailUrl, then gateway; a bare string wins outright
func (i *RawImage) Best() string {
	if i.URL != "" {
		return i.URL
	}
	for _, candidate := range []string{i.CachedURL, i.OriginalURL, i.PngURL, i.ThumbnailURL, i.Gateway} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
