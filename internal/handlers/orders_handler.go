package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-courier-orders/internal/orders"
	"github.com/imrishuroy/go-courier-orders/internal/packets"
	"github.com/imrishuroy/go-courier-orders/internal/persist"
	"github.com/imrishuroy/go-courier-orders/internal/validation"
)

// HandlerConfig groups dependencies for the order routes.
type HandlerConfig struct {
	Manager   *orders.Manager
	Processor *packets.Processor
	Files     *persist.FileStore // nil disables reload
	Flusher   *persist.Flusher   // nil disables flush and persistence health
	Metrics   http.Handler       // nil disables /metrics
	Logger    *slog.Logger
}

func (cfg HandlerConfig) logger() *slog.Logger {
	if cfg.Logger == nil {
		return slog.Default()
	}
	return cfg.Logger
}

// RegisterOrdersRoutes registers the player packet endpoint and the read-only order queries.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	log := cfg.logger()

	r.POST("/packets", func(c *gin.Context) {
		var req validation.PacketRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		resp, err := cfg.Processor.Handle(c.Request.Context(), c.GetHeader("Idempotency-Key"), req)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, resp)
		case errors.Is(err, packets.ErrMalformed):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		case errors.Is(err, packets.ErrInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": "request_in_progress"})
		default:
			log.Error("packet handling failed", "action", req.Action, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "detail": err.Error()})
		}
	})

	// /orders/active shares the segment with :id.
	r.GET("/orders/:id", func(c *gin.Context) {
		if c.Param("id") == "active" {
			c.JSON(http.StatusOK, gin.H{"orders": packets.NewOrderViews(cfg.Manager.ListActiveOrders())})
			return
		}
		id, ok := parseID(c)
		if !ok {
			return
		}
		o, err := cfg.Manager.GetOrder(id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, packets.NewOrderView(o))
	})

	r.GET("/orders", func(c *gin.Context) {
		var list []orders.Order
		switch {
		case c.Query("owner") != "":
			id, err := uuid.Parse(c.Query("owner"))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_owner"})
				return
			}
			list = cfg.Manager.ListOrdersByOwner(id)
		case c.Query("owner_name") != "":
			list = cfg.Manager.ListOrdersByOwnerName(c.Query("owner_name"))
		case c.Query("accepted_by") != "":
			id, err := uuid.Parse(c.Query("accepted_by"))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_accepted_by"})
				return
			}
			list = cfg.Manager.ListOrdersAcceptedBy(id)
		case c.Query("visible_to") != "":
			id, err := uuid.Parse(c.Query("visible_to"))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_visible_to"})
				return
			}
			list = cfg.Manager.VisibleOrders(orders.Player{ID: id})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_filter", "msg": "one of owner, owner_name, accepted_by, visible_to is required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": packets.NewOrderViews(list)})
	})

	r.GET("/stats", func(c *gin.Context) {
		st := cfg.Manager.GetStatistics()
		c.JSON(http.StatusOK, gin.H{"stats": st, "active": st.Active()})
	})
}

// RegisterHealthRoutes registers /health and, when configured, /metrics.
func RegisterHealthRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok", "orders": cfg.Manager.Store().Len()}
		if cfg.Flusher != nil {
			h := cfg.Flusher.Health()
			body["persistence"] = h
			if h.Degraded || h.Failures > 0 {
				body["status"] = "degraded"
			}
		}
		c.JSON(http.StatusOK, body)
	})

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_order_id"})
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps a domain error to an HTTP status and reason body.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orders.ErrInvalidOrder):
		status = http.StatusBadRequest
	case errors.Is(err, orders.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, orders.ErrNotPermitted), errors.Is(err, orders.ErrNotAcceptor):
		status = http.StatusForbidden
	case errors.Is(err, orders.ErrStatusMismatch), errors.Is(err, orders.ErrSelfFulfillment), errors.Is(err, orders.ErrLimitReached):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": orders.Reason(err), "detail": err.Error()})
}
