package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-courier-orders/internal/orders"
	"github.com/imrishuroy/go-courier-orders/internal/packets"
)

// adminActor is the identity recorded for operations issued over the admin API.
var adminActor = orders.Player{Name: "admin", Admin: true}

// RegisterAdminRoutes registers the administrative endpoints under /admin.
// The routes are unauthenticated; bind the server to a trusted interface.
func RegisterAdminRoutes(r *gin.Engine, cfg HandlerConfig) {
	log := cfg.logger()
	admin := r.Group("/admin")

	admin.GET("/orders", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"orders": packets.NewOrderViews(cfg.Manager.ListAllOrders())})
	})

	admin.POST("/cleanup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"removed": cfg.Manager.CleanupExpired()})
	})

	admin.POST("/clear", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"cleared": cfg.Manager.ClearAll()})
	})

	admin.POST("/reload", func(c *gin.Context) {
		if cfg.Files == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence_disabled"})
			return
		}
		loaded, report, err := cfg.Files.Load()
		if err != nil {
			log.Error("admin reload failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reload_failed", "detail": err.Error()})
			return
		}
		n := cfg.Manager.Replace(loaded)
		if cfg.Flusher != nil {
			cfg.Flusher.ClearDegraded()
		}
		c.JSON(http.StatusOK, gin.H{"loaded": n, "skipped": report.Skipped})
	})

	admin.POST("/flush", func(c *gin.Context) {
		if cfg.Flusher == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence_disabled"})
			return
		}
		if err := cfg.Flusher.ForceFlush(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "flush_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"flushed": true, "persistence": cfg.Flusher.Health()})
	})

	admin.POST("/orders/:id/complete", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		o, err := cfg.Manager.CompleteOrder(id, nil)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, packets.NewOrderView(o))
	})

	admin.DELETE("/orders/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		o, err := cfg.Manager.DeleteOrder(id, adminActor)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, packets.NewOrderView(o))
	})
}
