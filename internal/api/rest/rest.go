package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/fc-gallery/nft-aggregator/internal/api/middleware"
)

// SetupRoutes configures all REST API routes. When authEnabled is set the
// aggregation endpoints require a bearer token or API key; the health check
// and image proxy stay open.
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig, authEnabled bool) {
	router.GET("/health", handler.HealthCheck)

	api := router.Group("/api")
	if authEnabled {
		authed := api.Group("", middleware.Auth(authCfg))
		authed.POST("/identity", handler.ResolveIdentity)
		authed.GET("/nfts", handler.GetNFTs)
		authed.GET("/collection-friends", handler.GetCollectionFriends)
	} else {
		api.POST("/identity", handler.ResolveIdentity)
		api.GET("/nfts", handler.GetNFTs)
		api.GET("/collection-friends", handler.GetCollectionFriends)
	}
	api.GET("/image-proxy", handler.ImageProxy)
}
