package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the comma-separated origins to call the API from a browser.
func CORS(origins string) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	allowed := make([]string, 0)
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed = append(allowed, origin)
		}
	}
	if len(allowed) == 0 {
		allowed = []string{"http://localhost:8501"}
	}

	corsConfig.AllowOrigins = allowed
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", UserIDHeader, CorrelationIDHeader}
	corsConfig.ExposeHeaders = []string{CorrelationIDHeader, "X-Trace-ID"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	return cors.New(corsConfig)
}
