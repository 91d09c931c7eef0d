package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/custodia-io/audit-trail/internal/audit"
)

// AdminHandler exposes the auditor registry and settings endpoints.
type AdminHandler struct {
	svc    *audit.Service
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc *audit.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

// Register mounts the admin routes on the given router group.
func (h *AdminHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auditors", h.AddAuditor)
	rg.GET("/settings", h.GetSettings)
	rg.PUT("/settings", h.UpdateSettings)
}

type addAuditorRequest struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
}

// AddAuditor handles POST /auditors.
func (h *AdminHandler) AddAuditor(c *gin.Context) {
	var req addAuditorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.svc.AddAuditor(c.Request.Context(), CallerIdentity(c), req.Identity, req.Name)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"status": "ok"})
	case errors.Is(err, audit.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// GetSettings handles GET /settings. Non-auditors receive the all-disabled
// zero settings rather than a denial.
func (h *AdminHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"settings": h.svc.GetSettings(CallerIdentity(c))})
}

// UpdateSettings handles PUT /settings.
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var next audit.Settings
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.svc.UpdateSettings(c.Request.Context(), CallerIdentity(c), next)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, audit.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
