package rest

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fc-gallery/nft-aggregator/internal/adapter"
	"github.com/fc-gallery/nft-aggregator/internal/logger"
)

// sniffLimit is how many leading bytes are inspected when the upstream
// omits a content type
const sniffLimit = 3072

// imageProxy streams remote images through the gateway so the front end
// never talks to NFT CDNs directly. The host allow-list keeps it from
// becoming an open proxy.
type imageProxy struct {
	httpClient          adapter.HTTPClient
	allowedHostPrefixes []string
	cacheMaxAge         time.Duration
}

// NewImageProxy creates the image proxy used by the GET /api/image-proxy
// handler
func NewImageProxy(httpClient adapter.HTTPClient, allowedHostPrefixes []string, cacheMaxAge time.Duration) *imageProxy {
	return &imageProxy{
		httpClient:          httpClient,
		allowedHostPrefixes: allowedHostPrefixes,
		cacheMaxAge:         cacheMaxAge,
	}
}

// Serve validates the target URL against the allow-list and streams the
// response body with caching headers
func (p *imageProxy) Serve(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		respondBadRequest(c, "url is required")
		return
	}

	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		respondBadRequest(c, "url must be an absolute http(s) URL")
		return
	}
	if !p.hostAllowed(target.Host) {
		respondBadRequest(c, fmt.Sprintf("host %q is not allowed", target.Host))
		return
	}

	resp, err := p.httpClient.GetStream(c.Request.Context(), target.String())
	if err != nil {
		respondWithError(c, err)
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		respondBadRequest(c, fmt.Sprintf("upstream returned status %d", resp.StatusCode))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	body := io.Reader(resp.Body)
	if contentType == "" || contentType == "application/octet-stream" {
		head := make([]byte, sniffLimit)
		n, _ := io.ReadFull(resp.Body, head)
		head = head[:n]
		contentType = mimetype.Detect(head).String()
		body = io.MultiReader(bytes.NewReader(head), resp.Body)
	}

	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(p.cacheMaxAge.Seconds())))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		logger.Debug("image proxy stream interrupted", zap.Error(err))
	}
}

// hostAllowed checks the target host against the configured prefixes
func (p *imageProxy) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, prefix := range p.allowedHostPrefixes {
		if strings.HasPrefix(host, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}
