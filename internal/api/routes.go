package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/api/handlers"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/metrics"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/services"
)

func SetupRouter(cfg config.ServerConfig, runner *services.Runner) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), metricsMiddleware())

	// CORS configuration - allow origins from config
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", handlers.APIKeyHeader}
	corsConfig.AllowCredentials = false
	router.Use(cors.New(corsConfig))

	runHandler := handlers.NewRunHandler(runner)

	// API routes
	api := router.Group("/api")
	{
		runs := api.Group("/runs")
		{
			runs.GET("", runHandler.ListRuns)
			runs.GET("/:id", runHandler.GetRun)
			runs.POST("/sets", runHandler.StartSets)
			runs.POST("/cards", runHandler.StartCards)
			runs.POST("/jp", runHandler.StartJP)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}

// metricsMiddleware records request counts and latency by route template.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
