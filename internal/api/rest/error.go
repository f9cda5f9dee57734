package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/fc-gallery/nft-aggregator/internal/domain"
	"github.com/fc-gallery/nft-aggregator/internal/logger"
)

// errorResponse is the normalized error envelope every endpoint emits
type errorResponse struct {
	Error   domain.ErrorKind `json:"error"`
	Message string           `json:"message"`
	Details string           `json:"details,omitempty"`
}

// statusForKind maps surface error kinds to HTTP statuses
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput, domain.KindUnsupported:
		return http.StatusBadRequest
	case domain.KindNotFound, domain.KindNoAddresses:
		return http.StatusNotFound
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindUpstreamUnavailable:
		return http.StatusBadGateway
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError translates an aggregation-path error into the envelope.
// Internal errors get a correlation token for log lookup; their causes and
// any upstream response bodies never reach the client.
func respondWithError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)

	if status == http.StatusInternalServerError {
		correlation := ulid.Make().String()
		logger.Error(err,
			zap.String("correlation", correlation),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString("request_id")),
		)
		c.JSON(status, errorResponse{
			Error:   domain.KindInternal,
			Message: fmt.Sprintf("internal error (ref %s)", correlation),
		})
		return
	}

	message := err.Error()
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	c.JSON(status, errorResponse{Error: kind, Message: message})
}

// respondBadRequest sends a 400 with the invalid-input kind
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{
		Error:   domain.KindInvalidInput,
		Message: message,
	})
}
