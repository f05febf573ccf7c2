// Package server is the reference dashboard backend: watchlist storage plus
// market data behind the JSON API the engine consumes.
package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Handler *Handler
	Log     logrus.FieldLogger
}

func NewRouter(cfg *Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Log))

	api := router.Group("/api")
	registerTabRoutes(api, cfg.Handler)
	registerWatchlistRoutes(api, cfg.Handler)
	registerMarketRoutes(api, cfg.Handler)

	return router
}

func registerTabRoutes(router *gin.RouterGroup, h *Handler) {
	tabs := router.Group("/tabs")
	{
		tabs.GET("", h.GetTabs)
		tabs.POST("", h.CreateTab)
		tabs.PUT("/:tab_id", h.RenameTab)
		tabs.DELETE("/:tab_id", h.DeleteTab)
	}
}

func registerWatchlistRoutes(router *gin.RouterGroup, h *Handler) {
	watchlist := router.Group("/watchlist/:tab_id")
	{
		watchlist.GET("", h.GetWatchlist)
		watchlist.PUT("/reorder", h.Reorder)
		watchlist.POST("/:ticker", h.AddTicker)
		watchlist.DELETE("/:ticker", h.RemoveTicker)
	}
}

func registerMarketRoutes(router *gin.RouterGroup, h *Handler) {
	router.GET("/quotes", h.GetQuotes)
	router.GET("/quote/:ticker", h.GetQuote)
	router.GET("/chart/:ticker", h.GetChart)
	router.GET("/search", h.Search)
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	log = log.WithField("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"elapsed":    time.Since(start).Round(time.Millisecond),
			"request_id": c.GetHeader("X-Request-ID"),
		})
		if c.Writer.Status() >= 500 {
			entry.Error("request failed")
			return
		}
		entry.Debug("request served")
	}
}
