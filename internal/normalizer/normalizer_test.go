package normalizer_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fc-gallery/nft-aggregator/internal/domain"
	"github.com/fc-gallery/nft-aggregator/internal/normalizer"
)

func TestNormalize_CaseStableID(t *testing.T) {
	upper := &normalizer.RawNFT{
		Contract: &normalizer.RawContract{Address: "0xAaA0000000000000000000000000000000000000"},
		TokenID:  "1",
	}
	lower := &normalizer.RawNFT{
		Contract: &normalizer.RawContract{Address: "0xaaa0000000000000000000000000000000000000"},
		TokenID:  "1",
	}

	a, err := normalizer.Normalize(domain.ChainEthereum, upper)
	require.NoError(t, err)
	b, err := normalizer.Normalize(domain.ChainEthereum, lower)
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "eth:0xaaa0000000000000000000000000000000000000-1", a.ID.String())
}

func TestNormalize_Deterministic(t *testing.T) {
	raw := &normalizer.RawNFT{
		Contract:    &normalizer.RawContract{Address: "0xaaa0000000000000000000000000000000000000", Name: "Milady"},
		TokenID:     "42",
		Title:       "Milady #42",
		Description: "a milady",
		ImageURL:    "https://img.example/42.png",
	}

	first, err := normalizer.Normalize(domain.ChainEthereum, raw)
	require.NoError(t, err)
	second, err := normalizer.Normalize(domain.ChainEthereum, raw)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNormalize_ContractFallbacks(t *testing.T) {
	tests := []struct {
		name string
		raw  *normalizer.RawNFT
		want string
	}{
		{
			"contract.address",
			&normalizer.RawNFT{Contract: &normalizer.RawContract{Address: "0xAAA0000000000000000000000000000000000000"}, TokenID: "1"},
			"0xaaa0000000000000000000000000000000000000",
		},
		{
			"contractAddress",
			&normalizer.RawNFT{ContractAddress: "0xBBB0000000000000000000000000000000000000", TokenID: "1"},
			"0xbbb0000000000000000000000000000000000000",
		},
		{
			"composite id",
			&normalizer.RawNFT{ID: "eth:0xCCC0000000000000000000000000000000000000:7"},
			"0xccc0000000000000000000000000000000000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := normalizer.Normalize(domain.ChainEthereum, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, record.Contract)
		})
	}
}

func TestNormalize_RejectsMissingContractOrToken(t *testing.T) {
	_, err := normalizer.Normalize(domain.ChainEthereum, &normalizer.RawNFT{TokenID: "1"})
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))

	_, err = normalizer.Normalize(domain.ChainEthereum, &normalizer.RawNFT{
		Contract: &normalizer.RawContract{Address: "0xaaa0000000000000000000000000000000000000"},
	})
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))
}

func TestNormalize_TokenNumberForms(t *testing.T) {
	base := func(tokenID string) *normalizer.RawNFT {
		return &normalizer.RawNFT{
			Contract: &normalizer.RawContract{Address: "0xaaa0000000000000000000000000000000000000"},
			TokenID:  tokenID,
		}
	}

	record, err := normalizer.Normalize(domain.ChainEthereum, base("0x2a"))
	require.NoError(t, err)
	assert.Equal(t, "42", record.TokenNumber, "hex token ids become decimal strings")

	big := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	record, err = normalizer.Normalize(domain.ChainEthereum, base(big))
	require.NoError(t, err)
	assert.Equal(t, big, record.TokenNumber, "token ids above 64 bits stay exact")

	raw := base("")
	raw.TokenIDAlt = "7"
	record, err = normalizer.Normalize(domain.ChainEthereum, raw)
	require.NoError(t, err)
	assert.Equal(t, "7", record.TokenNumber)
}

func TestNormalize_ImageFallbackChain(t *testing.T) {
	contract := &normalizer.RawContract{Address: "0xaaa0000000000000000000000000000000000000"}

	tests := []struct {
		name string
		raw  *normalizer.RawNFT
		want string
	}{
		{
			"media gateway wins",
			&normalizer.RawNFT{Contract: contract, TokenID: "1",
				Media:    []normalizer.RawMedia{{Gateway: "https://gw", Raw: "https://raw"}},
				ImageURL: "https://direct"},
			"https://gw",
		},
		{
			"media raw when gateway empty",
			&normalizer.RawNFT{Contract: contract, TokenID: "1",
				Media: []normalizer.RawMedia{{Raw: "https://raw", Thumbnail: "https://thumb"}}},
			"https://raw",
		},
		{
			"image_url",
			&normalizer.RawNFT{Contract: contract, TokenID: "1", ImageURL: "https://direct"},
			"https://direct",
		},
		{
			"structured image cachedUrl",
			&normalizer.RawNFT{Contract: contract, TokenID: "1",
				Image: normalizer.RawImage{CachedURL: "https://cached", PngURL: "https://png"}},
			"https://cached",
		},
		{
			"structured image pngUrl when cached empty",
			&normalizer.RawNFT{Contract: contract, TokenID: "1",
				Image: normalizer.RawImage{PngURL: "https://png", ThumbnailURL: "https://thumb"}},
			"https://png",
		},
		{
			"metadata image",
			&normalizer.RawNFT{Contract: contract, TokenID: "1",
				Metadata: &normalizer.RawMetadata{Image: "ipfs://meta"}},
			"ipfs://meta",
		},
		{
			"raw metadata image",
			&normalizer.RawNFT{Contract: contract, TokenID: "1",
				Raw: &normalizer.RawWrapper{Metadata: &normalizer.RawMetadata{Image: "ipfs://rawmeta"}}},
			"ipfs://rawmeta",
		},
		{
			"tokenUri gateway last",
			&normalizer.RawNFT{Contract: contract, TokenID: "1",
				TokenURI: &normalizer.RawTokenURI{Gateway: "https://token-uri"}},
			"https://token-uri",
		},
		{
			"nothing",
			&normalizer.RawNFT{Contract: contract, TokenID: "1"},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := normalizer.Normalize(domain.ChainEthereum, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, record.ImageURL)
		})
	}
}

func TestRawImage_UnmarshalBothShapes(t *testing.T) {
	var fromString normalizer.RawImage
	require.NoError(t, json.Unmarshal([]byte(`"https://plain"`), &fromString))
	assert.Equal(t, "https://plain", fromString.Best())

	var fromObject normalizer.RawImage
	require.NoError(t, json.Unmarshal([]byte(`{"cachedUrl":"https://cached","thumbnailUrl":"https://thumb"}`), &fromObject))
	assert.Equal(t, "https://cached", fromObject.Best())
}

func TestNormalize_CollectionNameFallbacks(t *testing.T) {
	address := "0xaaa0000000000000000000000000000000000000"

	record, err := normalizer.Normalize(domain.ChainEthereum, &normalizer.RawNFT{
		Contract: &normalizer.RawContract{Address: address, Name: "From Contract"},
		TokenID:  "1",
		Metadata: &normalizer.RawMetadata{Collection: "From Metadata"},
	})
	require.NoError(t, err)
	assert.Equal(t, "From Contract", record.Collection.Name)

	record, err = normalizer.Normalize(domain.ChainEthereum, &normalizer.RawNFT{
		Contract:         &normalizer.RawContract{Address: address},
		TokenID:          "1",
		ContractMetadata: &normalizer.RawContractMetadata{Name: "From ContractMetadata"},
	})
	require.NoError(t, err)
	assert.Equal(t, "From ContractMetadata", record.Collection.Name)

	record, err = normalizer.Normalize(domain.ChainEthereum, &normalizer.RawNFT{
		Contract: &normalizer.RawContract{Address: address},
		TokenID:  "1",
	})
	require.NoError(t, err)
	assert.Equal(t, normalizer.UnknownCollectionName, record.Collection.Name)
}

func TestNormalize_FloorPricePrefersUSD(t *testing.T) {
	address := "0xaaa0000000000000000000000000000000000000"

	record, err := normalizer.Normalize(domain.ChainEthereum, &normalizer.RawNFT{
		Contract: &normalizer.RawContract{
			Address:         address,
			OpenSeaMetadata: &normalizer.RawOpenSeaMetadata{FloorPrice: "1.5"},
		},
		TokenID:       "1",
		FloorPriceUSD: "2500.10",
	})
	require.NoError(t, err)
	require.NotNil(t, record.FloorPrice)
	assert.Equal(t, "USD", record.FloorPrice.Currency)
	assert.True(t, record.FloorPrice.Amount.Equal(decimal.RequireFromString("2500.10")))

	record, err = normalizer.Normalize(domain.ChainEthereum, &normalizer.RawNFT{
		Contract: &normalizer.RawContract{
			Address:         address,
			OpenSeaMetadata: &normalizer.RawOpenSeaMetadata{FloorPrice: "1.5"},
		},
		TokenID: "1",
	})
	require.NoError(t, err)
	require.NotNil(t, record.FloorPrice)
	assert.Equal(t, "ETH", record.FloorPrice.Currency, "native floors keep their currency, never converted")
	assert.True(t, record.FloorPrice.Amount.Equal(decimal.RequireFromString("1.5")))
}

func TestNormalize_SpamAndLastActivity(t *testing.T) {
	address := "0xaaa0000000000000000000000000000000000000"
	spam := true
	acquired := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	record, err := normalizer.Normalize(domain.ChainEthereum, &normalizer.RawNFT{
		Contract:   &normalizer.RawContract{Address: address, IsSpam: &spam},
		TokenID:    "1",
		AcquiredAt: &normalizer.RawAcquiredAt{BlockTimestamp: &acquired},
	})
	require.NoError(t, err)
	assert.True(t, record.Spam)
	require.NotNil(t, record.LastActivity)
	assert.Equal(t, acquired, *record.LastActivity)

	record, err = normalizer.Normalize(domain.ChainEthereum, &normalizer.RawNFT{
		Contract: &normalizer.RawContract{Address: address},
		TokenID:  "1",
	})
	require.NoError(t, err)
	assert.False(t, record.Spam, "spam flag left unset when the upstream omits it")
	assert.Nil(t, record.LastActivity)
}
