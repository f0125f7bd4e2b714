package rules

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fraudwatch/internal/clock"
	"github.com/mbd888/fraudwatch/internal/idgen"
)

// GetOrCreateByName returns the rule with the given name, creating it if
// absent. Concurrent creates under the same name settle to the stored row.
func GetOrCreateByName(ctx context.Context, store Store, clk clock.Clock, name, severity, description string) (*Definition, error) {
	rule, err := store.GetByName(ctx, name)
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, ErrRuleNotFound) {
		return nil, err
	}

	if !ValidSeverity(severity) {
		severity = SeverityHigh
	}
	if description == "" {
		description = name
	}
	rule = &Definition{
		ID:          idgen.WithPrefix("rul_"),
		Name:        name,
		Description: description,
		Severity:    severity,
		Enabled:     true,
		CreatedAt:   clk.Now(),
	}
	if err := store.Create(ctx, rule); err != nil {
		return nil, err
	}
	// Another writer may have won the unique-name race; re-read either way.
	return store.GetByName(ctx, name)
}

// SeedDefaults installs the built-in graph detection rules if the store is empty.
func SeedDefaults(ctx context.Context, store Store, clk clock.Clock) error {
	existing, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	defaults := []Definition{
		{
			Name:        "Mule Ring Detection",
			Description: "Detects accounts connected via shared devices and rapid transfers.",
			Severity:    SeverityCritical,
		},
		{
			Name:        "Identity Fraud Detection",
			Description: "Flags identity mismatches across devices and KYC data.",
			Severity:    SeverityHigh,
		},
	}
	for _, d := range defaults {
		if _, err := GetOrCreateByName(ctx, store, clk, d.Name, d.Severity, d.Description); err != nil {
			return err
		}
	}
	return nil
}

// Handler provides HTTP endpoints for rule management.
type Handler struct {
	store Store
}

// NewHandler creates a new rules handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up rule management routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/rules", h.ListRules)
	r.POST("/rules/:id/enable", h.EnableRule)
	r.POST("/rules/:id/disable", h.DisableRule)
}

// ListRules handles GET /v1/rules
func (h *Handler) ListRules(c *gin.Context) {
	defs, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rules": defs,
		"count": len(defs),
	})
}

// EnableRule handles POST /v1/rules/:id/enable
func (h *Handler) EnableRule(c *gin.Context) {
	h.setEnabled(c, true)
}

// DisableRule handles POST /v1/rules/:id/disable
func (h *Handler) DisableRule(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *Handler) setEnabled(c *gin.Context, enabled bool) {
	id := c.Param("id")

	if err := h.store.SetEnabled(c.Request.Context(), id, enabled); err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Rule not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	rule, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rule": rule})
}
