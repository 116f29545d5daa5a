package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(handler *Handler, authMiddleware gin.HandlerFunc, env string) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"*"},
		ExposeHeaders:   []string{"Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/route-plans", handler.planRoute)

		protected.GET("/trips/:id", handler.getTrip)
		protected.POST("/trips/:id/activate", handler.activateTrip)
		protected.POST("/trips/:id/complete", handler.completeTrip)
		protected.POST("/trips/:id/cancel", handler.cancelTrip)

		protected.POST("/telemetry", handler.ingestTelemetry)

		protected.GET("/alerts", handler.listAlerts)
		protected.POST("/alerts/:id/ack", handler.acknowledgeAlert)

		protected.GET("/dashboard", handler.dashboard)
		protected.GET("/analytics", handler.analytics)
	}

	return router
}
