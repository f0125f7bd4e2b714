package overlay

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for investigator overrides and flag lookups.
type Handler struct {
	service  *Service
	resolver *Resolver
}

// NewHandler creates a new overlay handler.
func NewHandler(service *Service, resolver *Resolver) *Handler {
	return &Handler{service: service, resolver: resolver}
}

// RegisterRoutes sets up investigator routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/investigator/notes", h.AddNote)
	r.POST("/investigator/actions", h.AddAction)
	r.POST("/investigator/flags", h.SetFlag)
	r.GET("/investigator/flags", h.IsFlagged)
	r.GET("/investigator/anchors/:type/:id/actions", h.History)
}

type actionRequest struct {
	AnchorID   string `json:"anchor_id" binding:"required"`
	AnchorType string `json:"anchor_type"`
	Action     string `json:"action"`
	Status     string `json:"status"`
	Note       string `json:"note"`
	RuleKey    string `json:"rule_key"`
}

func (r actionRequest) anchor() Anchor {
	t := r.AnchorType
	if t == "" {
		t = AnchorAccount
	}
	return Anchor{ID: r.AnchorID, Type: t}
}

// AddNote handles POST /v1/investigator/notes
func (h *Handler) AddNote(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Note == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "anchor_id and note are required",
		})
		return
	}

	action, err := h.service.AddNote(c.Request.Context(), req.anchor(), req.RuleKey, req.Note)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"action": action})
}

// AddAction handles POST /v1/investigator/actions
func (h *Handler) AddAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "anchor_id and action are required",
		})
		return
	}

	action, err := h.service.RecordAction(c.Request.Context(), req.anchor(),
		req.Action, req.Status, req.Note, req.RuleKey)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"action": action})
}

// SetFlag handles POST /v1/investigator/flags
func (h *Handler) SetFlag(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "anchor_id is required",
		})
		return
	}

	action, err := h.service.SetFlag(c.Request.Context(), req.anchor(), req.RuleKey, req.Note)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"action": action})
}

// IsFlagged handles GET /v1/investigator/flags?anchor_id=..&anchor_type=..&external=true
func (h *Handler) IsFlagged(c *gin.Context) {
	anchor := Anchor{
		ID:   c.Query("anchor_id"),
		Type: c.DefaultQuery("anchor_type", AnchorAccount),
	}
	if anchor.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "anchor_id is required",
		})
		return
	}
	externalHint, _ := strconv.ParseBool(c.Query("external"))

	flagged, err := h.resolver.IsFlagged(c.Request.Context(), anchor, externalHint)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"anchor":  anchor,
		"flagged": flagged,
	})
}

// History handles GET /v1/investigator/anchors/:type/:id/actions
func (h *Handler) History(c *gin.Context) {
	anchor := Anchor{
		ID:   c.Param("id"),
		Type: c.Param("type"),
	}

	actions, err := h.service.History(c.Request.Context(), anchor)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"actions": actions,
		"count":   len(actions),
	})
}

func (h *Handler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrMissingAnchor), errors.Is(err, ErrInvalidAnchorType):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}
