package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupCORS configures CORS for the configured front-end origin. Only debug
// builds without an origin fall back to allowing everything.
func SetupCORS(frontendOrigin string, debug bool) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           time.Hour,
	}
	if frontendOrigin != "" {
		config.AllowOrigins = []string{frontendOrigin}
	} else if debug {
		config.AllowAllOrigins = true
	} else {
		// no origin configured and not in debug: same-origin only
		config.AllowOrigins = []string{}
		config.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(config)
}
