package http

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures the Gin router for the diagnostics
// surface. The surface binds to loopback only, so there is no auth layer.
func NewRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), gzip.Gzip(gzip.DefaultCompression))

	router.GET("/healthz", handler.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sync := router.Group("/sync")
	{
		sync.GET("/status", handler.SyncStatus)
		sync.GET("/failed", handler.SyncFailed)
		sync.POST("/run", handler.SyncRun)
		sync.POST("/retry", handler.SyncRetry)
	}

	mem := router.Group("/memory")
	{
		mem.GET("/stats", handler.MemoryStats)
		mem.POST("/cleanup", handler.MemoryCleanup)
	}

	router.GET("/cache/stats", handler.CacheStats)

	return router
}
