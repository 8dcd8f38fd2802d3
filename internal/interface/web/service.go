package web

import (
	"net/http"

	"github.com/ArkLabsHQ/bitswap/internal/core/application"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	SentryEnabled bool
	NoMetrics     bool
}

// NewService returns the http handler of the swap API.
func NewService(svc *application.Service, cfg Config) http.Handler {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware())
	if cfg.SentryEnabled {
		router.Use(SentryMiddleware())
	}

	h := &handler{svc: svc}

	v1 := router.Group("/v1")
	{
		v1.GET("/info", h.getInfo)
		v1.GET("/balances", h.getBalances)

		v1.GET("/swaps", h.listSwaps)
		v1.POST("/swaps", h.propose)
		v1.GET("/swaps/:id", h.getSwap)
		v1.POST("/swaps/:id/lock", h.lock)
		v1.POST("/swaps/:id/announce", h.announce)
		v1.POST("/swaps/:id/observe", h.observe)
		v1.POST("/swaps/:id/claim", h.claim)
		v1.POST("/swaps/:id/refund", h.refund)

		v1.GET("/orderbook", h.orderbook)
		v1.POST("/intents/:id/take", h.take)

		v1.POST("/topics/:topic/watch", h.watch)
		v1.DELETE("/topics/:topic", h.stopWatching)
	}

	if !cfg.NoMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return router
}
