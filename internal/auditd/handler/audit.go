package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/custodia-io/audit-trail/internal/audit"
	"github.com/custodia-io/audit-trail/internal/ledger"
)

// AuditHandler exposes the logging, query, and chain verification endpoints.
type AuditHandler struct {
	svc    *audit.Service
	logger *zap.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(svc *audit.Service, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{svc: svc, logger: logger}
}

// Register mounts the audit routes on the given router group.
func (h *AuditHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/events", h.LogEvent)
	rg.GET("/entries", h.QueryEntries)
	rg.GET("/entries/:id", h.GetEntry)
	rg.GET("/chain/verify", h.VerifyChain)
	rg.GET("/statistics", h.Statistics)
}

// LogEvent handles POST /events — records a new audit entry. Open to any
// authenticated caller; the actor is always the caller's own identity.
func (h *AuditHandler) LogEvent(c *gin.Context) {
	var req audit.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id, err := h.svc.LogEvent(c.Request.Context(), CallerIdentity(c), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entriesLogged.Inc()
	c.JSON(http.StatusCreated, gin.H{"entry_id": id})
}

// QueryEntries handles GET /entries. Non-auditors receive an empty list
// with 200, indistinguishable from a query with no matches.
func (h *AuditHandler) QueryEntries(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entries, err := h.svc.QueryEntries(c.Request.Context(), CallerIdentity(c), f)
	if err != nil {
		h.logger.Error("query entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query entries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// GetEntry handles GET /entries/:id. The body is {"entry": null} both for
// unknown ids and for non-auditor callers.
func (h *AuditHandler) GetEntry(c *gin.Context) {
	e, err := h.svc.GetEntry(c.Request.Context(), CallerIdentity(c), c.Param("id"))
	if err != nil {
		h.logger.Error("get entry", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load entry"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": e})
}

// VerifyChain handles GET /chain/verify — replays the full chain. A failed
// verification is reported with 200 and valid=false; it is a result, not a
// transport error.
func (h *AuditHandler) VerifyChain(c *gin.Context) {
	err := h.svc.VerifyChain(c.Request.Context(), CallerIdentity(c))
	switch {
	case err == nil:
		chainVerifications.WithLabelValues("ok").Inc()
		c.JSON(http.StatusOK, gin.H{"valid": true})

	case errors.Is(err, audit.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized"})

	default:
		var verr *ledger.VerifyError
		if errors.As(err, &verr) {
			chainVerifications.WithLabelValues("failed").Inc()
			h.logger.Warn("chain integrity check FAILED",
				zap.String("entry_id", verr.EntryID),
				zap.String("reason", verr.Reason),
			)
			c.JSON(http.StatusOK, gin.H{
				"valid":    false,
				"entry_id": verr.EntryID,
				"reason":   verr.Reason,
			})
			return
		}
		h.logger.Error("verify chain", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify chain"})
	}
}

// Statistics handles GET /statistics.
func (h *AuditHandler) Statistics(c *gin.Context) {
	stats, err := h.svc.Statistics(c.Request.Context(), CallerIdentity(c))
	if err != nil {
		h.logger.Error("statistics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"statistics": stats})
}

// parseFilter builds a ledger.Filter from query parameters. List-valued
// params accept comma-separated values.
func parseFilter(c *gin.Context) (ledger.Filter, error) {
	var f ledger.Filter

	for _, v := range splitParam(c.Query("event_type")) {
		t := ledger.EventType(v)
		if !t.Valid() {
			return f, errors.New("invalid event_type: " + v)
		}
		f.EventTypes = append(f.EventTypes, t)
	}
	for _, v := range splitParam(c.Query("resource_type")) {
		t := ledger.ResourceType(v)
		if !t.Valid() {
			return f, errors.New("invalid resource_type: " + v)
		}
		f.ResourceTypes = append(f.ResourceTypes, t)
	}
	f.Actors = splitParam(c.Query("actor"))
	f.ResourceIDs = splitParam(c.Query("resource_id"))

	var err error
	if f.Start, err = parseInt64(c.Query("start")); err != nil {
		return f, errors.New("start must be a Unix-nanosecond integer")
	}
	if f.End, err = parseInt64(c.Query("end")); err != nil {
		return f, errors.New("end must be a Unix-nanosecond integer")
	}
	f.ComplianceOnly = c.Query("compliance_only") == "true"

	if v := c.Query("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil || f.Offset < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
	}
	if v := c.Query("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
	}
	return f, nil
}

func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
