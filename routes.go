package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront/api/handlers"
	"storefront/api/logging"
	"storefront/api/middleware"
	"storefront/api/utils"
)

type routerDeps struct {
	analytics *handlers.AnalyticsHandlers
	auth      *handlers.AuthHandlers
	tokens    *utils.TokenIssuer
	apiKey    string
	origins   []string
	proxies   []string
	logger    *slog.Logger
}

func setupRouter(d routerDeps) (*gin.Engine, error) {
	r := gin.New()
	// With no proxies listed, ClientIP is the peer address and forwarded
	// headers are ignored.
	if err := r.SetTrustedProxies(d.proxies); err != nil {
		return nil, fmt.Errorf("configure trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logging.For(d.logger, logging.ChannelHTTP)))
	r.Use(middleware.CORS(d.origins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// Ingestion (public, called by the storefront tracker)
		api.POST("/track", d.analytics.TrackEvent)
		api.POST("/track/search", d.analytics.TrackSearch)

		// Authentication
		api.POST("/signup", d.auth.Signup)
		api.POST("/login", d.auth.Login)
		api.POST("/logout", d.auth.Logout)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(d.tokens, d.apiKey, logging.For(d.logger, logging.ChannelAuth)))
		{
			protected.GET("/profile", d.auth.Profile)
			protected.GET("/entries", d.analytics.ListEntries)
			protected.GET("/entries/:id", d.analytics.GetEntry)

			stats := protected.Group("/stats")
			{
				stats.GET("/event-counts", d.analytics.GetEventCountsOverTime)
				stats.GET("/unique-sessions", d.analytics.GetUniqueSessionsOverTime)
				stats.GET("/top-paths", d.analytics.GetTopNPagePaths)
				stats.GET("/average-metadata", d.analytics.GetAverageMetadataValue)
			}
		}
	}
	return r, nil
}
