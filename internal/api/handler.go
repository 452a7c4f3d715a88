package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"alerthub/internal/fanout"
	"alerthub/internal/ingest"
	"alerthub/internal/insight"
	"alerthub/internal/models"
	"alerthub/internal/store"
)

type Handler struct {
	coordinator *ingest.Coordinator
	alerts      store.AlertStore
	subscriber  *fanout.Subscriber
	requestor   *insight.Requestor // nil when the insight feature is unconfigured
}

func NewHandler(coordinator *ingest.Coordinator, alerts store.AlertStore, subscriber *fanout.Subscriber, requestor *insight.Requestor) *Handler {
	return &Handler{
		coordinator: coordinator,
		alerts:      alerts,
		subscriber:  subscriber,
		requestor:   requestor,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/alerts", h.submitAlert)
	r.GET("/api/alerts", h.listAlerts)
	r.GET("/api/alerts/live", h.liveAlerts)
	r.POST("/api/insight", h.requestInsight)
	r.GET("/health", h.health)
}

func (h *Handler) submitAlert(c *gin.Context) {
	var input models.AlertInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	id, err := h.coordinator.Submit(c.Request.Context(), input)
	switch {
	case errors.Is(err, ingest.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid alert",
			"details": err.Error(),
		})
	case errors.Is(err, store.ErrUnavailable):
		// Retryable: nothing was persisted.
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "failed to submit alert, please retry",
		})
	case err != nil:
		slog.Error("alert submission failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to submit alert",
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"message": "Alert submitted successfully and notification attempted!",
			"id":      id,
		})
	}
}

// listAlerts is the polling alternative to the live subscription. The store
// returns canonical order, so the feed here matches fan-out snapshots.
func (h *Handler) listAlerts(c *gin.Context) {
	alerts, err := h.alerts.List(c.Request.Context())
	if err != nil {
		slog.Error("alert listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch alerts",
		})
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, alerts)
}

type insightRequest struct {
	AlertID     string `json:"alertId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *Handler) requestInsight(c *gin.Context) {
	if h.requestor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "insight service not configured",
		})
		return
	}

	var req insightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	text, err := h.requestor.Request(c.Request.Context(), req.Title, req.Description)
	switch {
	case errors.Is(err, insight.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid insight request",
			"details": err.Error(),
		})
	case errors.Is(err, insight.ErrMalformedResponse), errors.Is(err, insight.ErrUpstreamUnavailable):
		slog.Error("insight request failed", "alert_id", req.AlertID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "failed to generate insight",
		})
	case err != nil:
		slog.Error("insight request failed", "alert_id", req.AlertID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to generate insight",
		})
	default:
		c.JSON(http.StatusOK, gin.H{"insight": text})
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
