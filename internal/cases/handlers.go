package cases

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fraudwatch/internal/pagination"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Handler provides HTTP endpoints for alerts and cases.
type Handler struct {
	service    *Service
	correlator *Correlator
}

// NewHandler creates a new cases handler.
func NewHandler(service *Service, correlator *Correlator) *Handler {
	return &Handler{service: service, correlator: correlator}
}

// RegisterRoutes sets up alert and case routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/alerts/refresh", h.RefreshAlerts)
	r.GET("/alerts", h.ListAlerts)
	r.GET("/alerts/:id", h.GetAlert)
	r.GET("/cases", h.ListCases)
	r.GET("/cases/:id", h.GetCase)
	r.POST("/cases/:id/actions", h.ApplyAction)
	r.GET("/cases/:id/audit", h.GetAudit)
}

// RefreshAlerts handles POST /v1/alerts/refresh
func (h *Handler) RefreshAlerts(c *gin.Context) {
	var req struct {
		RuleID string `json:"rule_id"`
	}
	_ = c.ShouldBindJSON(&req) // body is optional

	generated, err := h.correlator.RefreshAlerts(c.Request.Context(), req.RuleID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "refresh_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"generated_alerts": generated,
	})
}

// ListAlerts handles GET /v1/alerts?status=OPEN&family=FAF&limit=50&cursor=...
func (h *Handler) ListAlerts(c *gin.Context) {
	filter := AlertFilter{Status: c.Query("status")}
	if strings.EqualFold(c.Query("family"), "FAF") {
		filter.RulePrefix = "FAF-"
	}

	limit, cur, ok := parsePage(c)
	if !ok {
		return
	}

	alerts, err := h.service.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	if cur != nil {
		alerts = afterCursor(alerts, cur.ID, func(a *Alert) string { return a.ID })
	}
	if len(alerts) > limit+1 {
		alerts = alerts[:limit+1]
	}
	page, next, hasMore := pagination.ComputePage(alerts, limit, func(a *Alert) (time.Time, string) {
		return a.CreatedAt, a.ID
	})

	c.JSON(http.StatusOK, gin.H{
		"alerts":      page,
		"count":       len(page),
		"next_cursor": next,
		"has_more":    hasMore,
	})
}

// parsePage reads ?limit and ?cursor; on invalid input it writes a 400 and
// returns ok=false.
func parsePage(c *gin.Context) (int, *pagination.Cursor, bool) {
	limit := defaultPageLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageLimit {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "limit must be between 1 and 200",
			})
			return 0, nil, false
		}
		limit = n
	}

	cur, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "invalid cursor",
		})
		return 0, nil, false
	}
	return limit, cur, true
}

// afterCursor drops items up to and including the one matching the cursor ID.
// If the cursor ID is no longer present the full list is returned.
func afterCursor[T any](items []T, id string, itemID func(T) string) []T {
	for i, it := range items {
		if itemID(it) == id {
			return items[i+1:]
		}
	}
	return items
}

// GetAlert handles GET /v1/alerts/:id
func (h *Handler) GetAlert(c *gin.Context) {
	alert, err := h.service.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Alert not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

// ListCases handles GET /v1/cases?status=OPEN
func (h *Handler) ListCases(c *gin.Context) {
	out, err := h.service.ListCases(c.Request.Context(), c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cases": out,
		"count": len(out),
	})
}

// GetCase handles GET /v1/cases/:id
func (h *Handler) GetCase(c *gin.Context) {
	cs, err := h.service.GetCase(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrCaseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Case not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"case": cs})
}

// ApplyAction handles POST /v1/cases/:id/actions
func (h *Handler) ApplyAction(c *gin.Context) {
	var req struct {
		Action      string `json:"action" binding:"required"`
		PerformedBy string `json:"performed_by"`
		Notes       string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "action is required",
		})
		return
	}

	cs, err := h.service.ApplyAction(c.Request.Context(), c.Param("id"),
		req.Action, req.PerformedBy, req.Notes)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrCaseNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrInvalidAction):
			status = http.StatusBadRequest
			code = "invalid_action"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "case": cs})
}

// GetAudit handles GET /v1/cases/:id/audit
func (h *Handler) GetAudit(c *gin.Context) {
	actions, err := h.service.AuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"actions": actions,
		"count":   len(actions),
	})
}
