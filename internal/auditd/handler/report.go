package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/custodia-io/audit-trail/internal/audit"
)

// ReportHandler exposes the compliance reporting endpoints.
type ReportHandler struct {
	svc    *audit.Service
	logger *zap.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(svc *audit.Service, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{svc: svc, logger: logger}
}

// Register mounts the report routes on the given router group.
func (h *ReportHandler) Register(rg *gin.RouterGroup) {
	r := rg.Group("/reports")
	{
		r.POST("", h.Generate)
		r.GET("", h.List)
		r.GET("/:id", h.Get)
	}
}

type generateReportRequest struct {
	Category    audit.ReportCategory `json:"category"`
	PeriodStart int64                `json:"period_start"`
	PeriodEnd   int64                `json:"period_end"`
}

// Generate handles POST /reports.
func (h *ReportHandler) Generate(c *gin.Context) {
	var req generateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id, err := h.svc.GenerateReport(c.Request.Context(), CallerIdentity(c), req.Category, req.PeriodStart, req.PeriodEnd)
	switch {
	case err == nil:
		reportsGenerated.Inc()
		c.JSON(http.StatusCreated, gin.H{"report_id": id})
	case errors.Is(err, audit.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// List handles GET /reports. Empty list for non-auditors.
func (h *ReportHandler) List(c *gin.Context) {
	reports, err := h.svc.ListReports(c.Request.Context(), CallerIdentity(c))
	if err != nil {
		h.logger.Error("list reports", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// Get handles GET /reports/:id. The body is {"report": null} both for
// unknown ids and for non-auditor callers.
func (h *ReportHandler) Get(c *gin.Context) {
	r, err := h.svc.GetReport(c.Request.Context(), CallerIdentity(c), c.Param("id"))
	if err != nil {
		h.logger.Error("get report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load report"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": r})
}
