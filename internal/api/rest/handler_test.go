package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fc-gallery/nft-aggregator/internal/adapter"
	"github.com/fc-gallery/nft-aggregator/internal/aggregator"
	"github.com/fc-gallery/nft-aggregator/internal/api/middleware"
	"github.com/fc-gallery/nft-aggregator/internal/domain"
	"github.com/fc-gallery/nft-aggregator/internal/friends"
)

type fakeNFTService struct {
	identity    *domain.Identity
	identityErr error
	result      *aggregator.Result
	resultErr   error
	lastRequest aggregator.Request
}

func (f *fakeNFTService) ResolveIdentity(ctx context.Context, usernameOrFID string) (*domain.Identity, error) {
	if f.identityErr != nil {
		return nil, f.identityErr
	}
	return f.identity, nil
}

func (f *fakeNFTService) GetNFTsForIdentity(ctx context.Context, req aggregator.Request) (*aggregator.Result, error) {
	f.lastRequest = req
	if f.resultErr != nil {
		return nil, f.resultErr
	}
	return f.result, nil
}

type fakeFriendsService struct {
	result *friends.Result
	err    error
}

func (f *fakeFriendsService) GetCollectionFriends(ctx context.Context, chain domain.Chain, contract string, viewerFID uint64) (*friends.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestRouter(t *testing.T, nfts NFTService, friendsService FriendsService, imageHost string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	httpClient := adapter.NewHTTPClient(5*time.Second, adapter.RetryPolicy{MaxRetries: 0, InitialDelay: time.Millisecond})
	proxy := NewImageProxy(httpClient, []string{imageHost}, time.Hour)
	handler := NewHandler(nfts, friendsService, proxy)
	router := gin.New()
	SetupRoutes(router, handler, middleware.AuthConfig{}, false)
	return router
}

func performRequest(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestResolveIdentityEndpoint(t *testing.T) {
	nfts := &fakeNFTService{identity: &domain.Identity{FID: 7, Username: "alice"}}
	router := newTestRouter(t, nfts, &fakeFriendsService{}, "images.test")

	resp := performRequest(router, http.MethodPost, "/api/identity", `{"usernameOrFid":"alice"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Identity domain.Identity `json:"identity"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, uint64(7), body.Identity.FID)
}

func TestResolveIdentityMissingBody(t *testing.T) {
	router := newTestRouter(t, &fakeNFTService{}, &fakeFriendsService{}, "images.test")

	resp := performRequest(router, http.MethodPost, "/api/identity", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "invalid-input")
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{domain.NotFound("no user"), http.StatusNotFound, "not-found"},
		{domain.RateLimited("quota", nil), http.StatusTooManyRequests, "rate-limited"},
		{domain.UpstreamUnavailable("down", nil), http.StatusBadGateway, "upstream-unavailable"},
		{domain.InvalidInput("bad"), http.StatusBadRequest, "invalid-input"},
		{domain.NoAddresses("none"), http.StatusNotFound, "no-addresses"},
		{domain.Timeout("budget", nil), http.StatusGatewayTimeout, "timeout"},
		{domain.Internal("boom", nil), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			nfts := &fakeNFTService{identityErr: tc.err}
			router := newTestRouter(t, nfts, &fakeFriendsService{}, "images.test")

			resp := performRequest(router, http.MethodPost, "/api/identity", `{"usernameOrFid":"x"}`)
			assert.Equal(t, tc.status, resp.Code)
			assert.Contains(t, resp.Body.String(), tc.kind)
		})
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	nfts := &fakeNFTService{identityErr: domain.Internal("secret upstream body", nil)}
	router := newTestRouter(t, nfts, &fakeFriendsService{}, "images.test")

	resp := performRequest(router, http.MethodPost, "/api/identity", `{"usernameOrFid":"x"}`)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "secret upstream body")
	assert.Contains(t, resp.Body.String(), "ref ")
}

func TestGetNFTsEndpoint(t *testing.T) {
	nfts := &fakeNFTService{result: &aggregator.Result{
		Identity:      &domain.Identity{FID: 7, Username: "alice"},
		Items:         []*domain.NFTRecord{},
		NextPageToken: "tok",
		HasMore:       true,
	}}
	router := newTestRouter(t, nfts, &fakeFriendsService{}, "images.test")

	resp := performRequest(router, http.MethodGet, "/api/nfts?identity=alice&chain=base&pageSize=25&sort=recent&excludeSpam=false", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"nextPageToken":"tok"`)
	assert.Contains(t, resp.Body.String(), `"hasMore":true`)

	assert.Equal(t, []domain.Chain{domain.ChainBase}, nfts.lastRequest.Chains)
	assert.Equal(t, 25, nfts.lastRequest.PageSize)
	assert.False(t, nfts.lastRequest.ExcludeSpam)
}

func TestGetNFTsValidation(t *testing.T) {
	router := newTestRouter(t, &fakeNFTService{}, &fakeFriendsService{}, "images.test")

	resp := performRequest(router, http.MethodGet, "/api/nfts", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = performRequest(router, http.MethodGet, "/api/nfts?identity=a&pageSize=500", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = performRequest(router, http.MethodGet, "/api/nfts?identity=a&sort=bogus", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = performRequest(router, http.MethodGet, "/api/nfts?identity=a&chain=solana", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetNFTsDiagnosticsPassThrough(t *testing.T) {
	nfts := &fakeNFTService{result: &aggregator.Result{
		Identity: &domain.Identity{FID: 7},
		Items:    []*domain.NFTRecord{},
		Diagnostics: &aggregator.Diagnostics{
			Partial: true,
			Failures: []aggregator.FanoutFailure{
				{Chain: domain.ChainEthereum, Address: "0x1", Kind: domain.KindTimeout, Message: "deadline"},
			},
		},
	}}
	router := newTestRouter(t, nfts, &fakeFriendsService{}, "images.test")

	resp := performRequest(router, http.MethodGet, "/api/nfts?identity=alice", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"partial":true`)
}

func TestCollectionFriendsEndpoint(t *testing.T) {
	friendsService := &fakeFriendsService{result: &friends.Result{
		Friends: []domain.FriendProfile{{FID: 1, Username: "ana", HoldingCount: 2}},
		Total:   1,
	}}
	router := newTestRouter(t, &fakeNFTService{}, friendsService, "images.test")

	resp := performRequest(router, http.MethodGet, "/api/collection-friends?contract=0x00000000000000000000000000000000000000b1&viewerFid=42", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"total":1`)
	assert.Contains(t, resp.Body.String(), `"ana"`)
}

func TestCollectionFriendsValidation(t *testing.T) {
	router := newTestRouter(t, &fakeNFTService{}, &fakeFriendsService{}, "images.test")

	resp := performRequest(router, http.MethodGet, "/api/collection-friends?viewerFid=42", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = performRequest(router, http.MethodGet, "/api/collection-friends?contract=0xb1&viewerFid=zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestImageProxyStreamsAllowedHost(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer upstream.Close()

	host := strings.TrimPrefix(upstream.URL, "http://")
	router := newTestRouter(t, &fakeNFTService{}, &fakeFriendsService{}, host)

	resp := performRequest(router, http.MethodGet, "/api/image-proxy?url="+url.QueryEscape(upstream.URL+"/img.png"), "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "image/png", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Header().Get("Cache-Control"), "max-age=3600")
	assert.Equal(t, "png-bytes", resp.Body.String())
}

func TestImageProxyRejectsUnlistedHost(t *testing.T) {
	router := newTestRouter(t, &fakeNFTService{}, &fakeFriendsService{}, "images.test")

	resp := performRequest(router, http.MethodGet, "/api/image-proxy?url="+url.QueryEscape("http://evil.example/x.png"), "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestImageProxyRequiresURL(t *testing.T) {
	router := newTestRouter(t, &fakeNFTService{}, &fakeFriendsService{}, "images.test")

	resp := performRequest(router, http.MethodGet, "/api/image-proxy", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t, &fakeNFTService{}, &fakeFriendsService{}, "images.test")

	resp := performRequest(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "ok")
}
