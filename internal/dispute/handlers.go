package dispute

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fraudwatch/internal/pagination"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Handler provides HTTP endpoints for the dispute workflow.
type Handler struct {
	service *Service
}

// NewHandler creates a new dispute handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up dispute routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/afasa/disputes", h.CreateDispute)
	r.GET("/afasa/disputes", h.ListDisputes)
	r.GET("/afasa/disputes/:id", h.GetDispute)
	r.GET("/afasa/disputes/:id/events", h.ListEvents)
	r.POST("/afasa/disputes/:id/hold", h.HoldDispute)
	r.POST("/afasa/disputes/:id/release", h.ReleaseDispute)
	r.POST("/afasa/disputes/:id/events", h.AddEvent)
	r.POST("/afasa/enforce", h.RunEnforcement)
	r.GET("/afasa/reports/summary", h.ReportSummary)
	r.POST("/afasa/mule-flags", h.FlagMule)
	r.GET("/afasa/mule-flags", h.ListMuleFlags)
}

// CreateDispute handles POST /v1/afasa/disputes
func (h *Handler) CreateDispute(c *gin.Context) {
	var req struct {
		AlertID        string `json:"alert_id"`
		TxID           string `json:"tx_id"`
		ReasonCategory string `json:"reason_category" binding:"required"`
		SuspicionType  string `json:"suspicion_type" binding:"required"`
		InitiatedBy    string `json:"initiated_by"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "reason_category and suspicion_type are required",
		})
		return
	}
	if req.InitiatedBy == "" {
		req.InitiatedBy = "system"
	}

	d, err := h.service.Initiate(c.Request.Context(),
		req.AlertID, req.TxID, req.ReasonCategory, req.SuspicionType, req.InitiatedBy)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"dispute": d})
}

// ListDisputes handles GET /v1/afasa/disputes?status=HELD&suspicion_type=MONEY_MULE&limit=50&cursor=...
func (h *Handler) ListDisputes(c *gin.Context) {
	filter := Filter{
		Status:        c.Query("status"),
		SuspicionType: c.Query("suspicion_type"),
	}

	limit := defaultPageLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageLimit {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "limit must be between 1 and 200",
			})
			return
		}
		limit = n
	}
	cur, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "invalid cursor",
		})
		return
	}

	disputes, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if cur != nil {
		for i, d := range disputes {
			if d.ID == cur.ID {
				disputes = disputes[i+1:]
				break
			}
		}
	}
	if len(disputes) > limit+1 {
		disputes = disputes[:limit+1]
	}
	page, next, hasMore := pagination.ComputePage(disputes, limit,
		func(d *DisputedTransaction) (time.Time, string) {
			return d.CreatedAt, d.ID
		})

	c.JSON(http.StatusOK, gin.H{
		"disputes":    page,
		"count":       len(page),
		"next_cursor": next,
		"has_more":    hasMore,
	})
}

// GetDispute handles GET /v1/afasa/disputes/:id
func (h *Handler) GetDispute(c *gin.Context) {
	d, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// ListEvents handles GET /v1/afasa/disputes/:id/events
func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.service.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// HoldDispute handles POST /v1/afasa/disputes/:id/hold
func (h *Handler) HoldDispute(c *gin.Context) {
	var req struct {
		Actor string `json:"actor"`
	}
	_ = c.ShouldBindJSON(&req) // body is optional
	if req.Actor == "" {
		req.Actor = "system"
	}

	d, err := h.service.ApplyHold(c.Request.Context(), c.Param("id"), req.Actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// ReleaseDispute handles POST /v1/afasa/disputes/:id/release
func (h *Handler) ReleaseDispute(c *gin.Context) {
	var req struct {
		Decision string `json:"decision"`
		Notes    string `json:"notes"`
		Actor    string `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if req.Decision == "" {
		req.Decision = "RELEASE"
	}
	if req.Actor == "" {
		req.Actor = "system"
	}

	d, err := h.service.Release(c.Request.Context(), c.Param("id"),
		req.Decision, req.Actor, req.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// AddEvent handles POST /v1/afasa/disputes/:id/events
func (h *Handler) AddEvent(c *gin.Context) {
	var req struct {
		EventType string `json:"event_type" binding:"required"`
		Notes     string `json:"notes"`
		Actor     string `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "event_type is required",
		})
		return
	}
	if req.Actor == "" {
		req.Actor = "system"
	}

	ev, err := h.service.AddEvent(c.Request.Context(), c.Param("id"),
		req.EventType, req.Notes, req.Actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"event": ev})
}

// RunEnforcement handles POST /v1/afasa/enforce
func (h *Handler) RunEnforcement(c *gin.Context) {
	count, err := h.service.AutoEnforceMaxHold(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"escalated": count,
	})
}

// ReportSummary handles GET /v1/afasa/reports/summary
func (h *Handler) ReportSummary(c *gin.Context) {
	summary, err := h.service.Summarize(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// FlagMule handles POST /v1/afasa/mule-flags
func (h *Handler) FlagMule(c *gin.Context) {
	var req struct {
		AccountID   string `json:"account_id" binding:"required"`
		FlagSource  string `json:"flag_source"`
		RiskScore   int    `json:"risk_score"`
		IsConfirmed bool   `json:"is_confirmed"`
		Notes       string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "account_id is required",
		})
		return
	}

	flag, err := h.service.FlagMule(c.Request.Context(), req.AccountID,
		req.FlagSource, req.RiskScore, req.IsConfirmed, req.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"flag": flag})
}

// ListMuleFlags handles GET /v1/afasa/mule-flags?account_id=...
func (h *Handler) ListMuleFlags(c *gin.Context) {
	flags, err := h.service.MuleFlags(c.Request.Context(), c.Query("account_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"flags": flags,
		"count": len(flags),
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrDisputeNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, ErrInvalidReasonCategory),
		errors.Is(err, ErrInvalidSuspicionType),
		errors.Is(err, ErrInvalidEventType),
		errors.Is(err, ErrInvalidFlagSource):
		status = http.StatusBadRequest
		code = "validation_error"
	case errors.Is(err, ErrConflict):
		status = http.StatusConflict
		code = "conflict"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
