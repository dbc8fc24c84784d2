package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/temcen/pirex-admin/internal/config"
)

func CORS(cfg *config.Config) gin.HandlerFunc {
	origins := cfg.Security.CORS.AllowedOrigins
	config := cors.Config{
		AllowMethods:  cfg.Security.CORS.AllowedMethods,
		AllowHeaders:  cfg.Security.CORS.AllowedHeaders,
		ExposeHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-Cache"},
	}

	// Credentials cannot be combined with a wildcard origin.
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}

	return cors.New(config)
}
