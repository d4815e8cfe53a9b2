package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, cronSecret string, debug bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS middleware for the frontend
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Cron-Secret")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, cronSecret, debug)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler, cronSecret string, debug bool) {
	r.GET("/health", handler.GetHealth)
	r.GET("/news", handler.GetNews)
	r.POST("/generate-image", handler.GenerateImage)

	// Cron endpoints accept GET for scheduler platforms and POST for manual
	// triggers, both behind the shared secret
	cron := r.Group("/cron")
	cron.Use(cronAuthMiddleware(cronSecret))
	{
		cron.GET("/pull-feeds", handler.PullFeeds)
		cron.POST("/pull-feeds", handler.PullFeeds)
	}

	r.GET("/debug/db", handler.GetDebugDB)

	// Unauthenticated manual trigger, only registered in debug mode
	if debug {
		r.POST("/debug/pull-feeds", handler.PullFeeds)
	}

	// Root endpoint with basic information
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "ToonFeed",
			"description": "News headline ingestion and satirical cartoon generation backend",
			"endpoints": map[string]string{
				"health":   "/health",
				"news":     "/news",
				"generate": "/generate-image (POST)",
				"cron":     "/cron/pull-feeds (requires cron secret)",
				"debug":    "/debug/db",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// cronAuthMiddleware guards the cron endpoints with a shared secret, accepted
// as either "Authorization: Bearer <secret>" or "X-Cron-Secret: <secret>"
func cronAuthMiddleware(cronSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cronSecret == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Cron secret not configured"})
			c.Abort()
			return
		}

		providedSecret := ""
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			providedSecret = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		} else if xSecret := c.GetHeader("X-Cron-Secret"); xSecret != "" {
			providedSecret = xSecret
		}

		if providedSecret == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Missing authentication header"})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(providedSecret), []byte(cronSecret)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid cron secret"})
			c.Abort()
			return
		}

		c.Next()
	}
}
