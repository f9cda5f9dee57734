package aggregator

import (
	"encoding/base64"
	"encoding/json"

	"github.com/gowebpki/jcs"

	"github.com/fc-gallery/nft-aggregator/internal/domain"
)

// cursorState maps "{chain}:{address}" to that wallet's upstream page
// cursor. A pair absent from the map is exhausted; an empty token means a
// fresh request where every pair is pending.
type cursorState map[string]string

func cursorKey(chain domain.Chain, address string) string {
	return string(chain) + ":" + domain.NormalizeAddress(address)
}

// encodePageToken serializes cursor state into an opaque token. The JSON is
// canonicalized first so equal states always encode to equal tokens.
func encodePageToken(state cursorState) (string, error) {
	if len(state) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(canonical), nil
}

// decodePageToken parses an opaque token back into cursor state. Tokens are
// client-supplied, so any malformed input maps to an invalid-input error.
func decodePageToken(token string) (cursorState, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, domain.InvalidInput("malformed page token")
	}
	var state cursorState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, domain.InvalidInput("malformed page token")
	}
	if len(state) == 0 {
		return nil, domain.InvalidInput("empty page token")
	}
	return state, nil
}
