// Package http is the thin JSON edge over the reconciliation core. It only
// translates core objects to and from JSON; all behavior lives in
// domain/service.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub017/domain/entity"
	"github.com/steiner385/MachShop-sub017/domain/repository"
	"github.com/steiner385/MachShop-sub017/domain/service"
)

// Handler wires the core services into gin routes.
type Handler struct {
	integrationID string
	coordinator   *service.EntityReconciliationCoordinator
	reports       *service.ReconciliationReportBuilder
	scheduler     *service.SyncJobScheduler
	executor      *service.SyncExecutor
	conflicts     *service.ConflictResolutionEngine
	reportStore   repository.ReportStore
	discrepancies repository.DiscrepancyStore
	clock         repository.Clock
	metrics       *Metrics
	logger        *zap.Logger
}

// NewHandler creates the HTTP edge.
func NewHandler(
	integrationID string,
	coordinator *service.EntityReconciliationCoordinator,
	reports *service.ReconciliationReportBuilder,
	scheduler *service.SyncJobScheduler,
	executor *service.SyncExecutor,
	conflicts *service.ConflictResolutionEngine,
	reportStore repository.ReportStore,
	discrepancies repository.DiscrepancyStore,
	clock repository.Clock,
	metrics *Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		integrationID: integrationID,
		coordinator:   coordinator,
		reports:       reports,
		scheduler:     scheduler,
		executor:      executor,
		conflicts:     conflicts,
		reportStore:   reportStore,
		discrepancies: discrepancies,
		clock:         clock,
		metrics:       metrics,
		logger:        logger,
	}
}

// Register attaches all routes to the engine.
func (h *Handler) Register(router *gin.Engine) {
	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.POST("/reconcile", h.reconcile)
		api.GET("/reports/:id", h.getReport)
		api.GET("/reports", h.listReports)
		api.GET("/trends", h.getTrends)
		api.PATCH("/discrepancies/:id", h.updateDiscrepancy)

		api.POST("/jobs", h.createJob)
		api.GET("/jobs/:id", h.getJob)
		api.DELETE("/jobs/:id", h.cancelJob)
		api.GET("/jobs/stats", h.jobStatistics)
		api.GET("/queue", h.queueStatus)

		api.POST("/conflicts/:id/resolve", h.resolveConflict)
		api.POST("/conflicts/:id/approve", h.approveConflict)
		api.POST("/conflicts/:id/reject", h.rejectConflict)
		api.POST("/rules", h.registerRule)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": h.clock.Now()})
}

type reconcileRequest struct {
	EntityType  string     `json:"entity_type" binding:"required"`
	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`
}

// reconcile runs a full reconciliation pass for one entity type and returns
// the finalized report. The report is finalized even when providers fail
// partially; only a total provider outage aborts the run.
func (h *Handler) reconcile(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := h.clock.Now()
	periodStart, periodEnd := now.Add(-24*time.Hour), now
	if req.PeriodStart != nil {
		periodStart = *req.PeriodStart
	}
	if req.PeriodEnd != nil {
		periodEnd = *req.PeriodEnd
	}

	report, err := h.reports.CreateReport(c.Request.Context(), h.integrationID, entity.EntityType(req.EntityType), periodStart, periodEnd)
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.coordinator.Reconcile(c.Request.Context(), entity.EntityType(req.EntityType))
	if err != nil {
		// Nothing was fetched; finalize the report as an empty, degraded run.
		result = &entity.ReconciliationResult{
			EntityType:  entity.EntityType(req.EntityType),
			FetchErrors: []string{err.Error()},
		}
	}

	final, err := h.reports.FinalizeReport(c.Request.Context(), report, result)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if len(final.Discrepancies) > 0 {
		if err := h.discrepancies.SaveDiscrepancies(c.Request.Context(), final.Discrepancies); err != nil {
			h.logger.Warn("Failed to persist discrepancies", zap.String("report_id", final.ID), zap.Error(err))
		}
	}

	h.metrics.ObserveReconciliation(final)
	c.JSON(http.StatusOK, gin.H{
		"report":             final,
		"data_quality_score": h.reports.CalculateDataQualityScore(final),
	})
}

type updateDiscrepancyRequest struct {
	Status      string `json:"status" binding:"required"`
	Description string `json:"description"`
}

// updateDiscrepancy moves a discrepancy out of the detected state, either
// resolved or ignored. Everything else about it stays immutable.
func (h *Handler) updateDiscrepancy(c *gin.Context) {
	var req updateDiscrepancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := entity.DiscrepancyStatus(req.Status)
	if status != entity.DiscrepancyStatusResolved && status != entity.DiscrepancyStatusIgnored {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be resolved or ignored"})
		return
	}

	disc, err := h.discrepancies.GetDiscrepancy(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if disc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "discrepancy not found"})
		return
	}

	disc.Status = status
	if req.Description != "" {
		disc.Description = req.Description
	}
	disc.UpdatedAt = h.clock.Now()
	if err := h.discrepancies.UpdateDiscrepancy(c.Request.Context(), disc); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"discrepancy": disc})
}

func (h *Handler) getReport(c *gin.Context) {
	report, err := h.reportStore.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report":             report,
		"data_quality_score": h.reports.CalculateDataQualityScore(report),
	})
}

func (h *Handler) listReports(c *gin.Context) {
	lookback, _ := time.ParseDuration(c.DefaultQuery("lookback", "720h"))
	reports, err := h.reports.GetHistory(c.Request.Context(), entity.EntityType(c.Query("entity_type")), lookback)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (h *Handler) getTrends(c *gin.Context) {
	lookback, _ := time.ParseDuration(c.DefaultQuery("lookback", "720h"))
	trends, err := h.reports.GetTrends(c.Request.Context(), entity.EntityType(c.Query("entity_type")), lookback)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trends": trends})
}

type createJobRequest struct {
	EntityType    string                 `json:"entity_type" binding:"required"`
	OperationType string                 `json:"operation_type"`
	Priority      string                 `json:"priority"`
	MaxRetries    *int                   `json:"max_retries"`
	Metadata      map[string]interface{} `json:"metadata"`
}

func (h *Handler) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	operationType := entity.OperationType(req.OperationType)
	if operationType == "" {
		operationType = entity.OperationTypeFullSync
	}

	job, err := h.scheduler.CreateSyncJob(c.Request.Context(), h.integrationID, entity.EntityType(req.EntityType), operationType, service.CreateJobOptions{
		Priority:   entity.JobPriority(req.Priority),
		MaxRetries: req.MaxRetries,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.metrics.ObserveJob(job.Status)
	c.JSON(http.StatusCreated, gin.H{"job": job})
}

func (h *Handler) getJob(c *gin.Context) {
	job := h.scheduler.GetJob(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// cancelJob cancels a queued job. Per the scheduler contract, unknown or
// already-started jobs yield a null result rather than an error.
func (h *Handler) cancelJob(c *gin.Context) {
	job, err := h.scheduler.CancelSyncJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if job != nil {
		h.metrics.ObserveJob(job.Status)
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (h *Handler) jobStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"statistics": h.scheduler.GetJobStatistics()})
}

func (h *Handler) queueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"queue": h.scheduler.GetQueueStatus()})
}

type resolveConflictRequest struct {
	Strategy    string      `json:"strategy"`
	CustomValue interface{} `json:"custom_value"`
	ResolvedBy  string      `json:"resolved_by"`
	Notes       string      `json:"notes"`
}

func (h *Handler) resolveConflict(c *gin.Context) {
	var req resolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		conflict *entity.Conflict
		err      error
	)
	if req.Strategy == "" {
		conflict, err = h.conflicts.ResolveWithRules(c.Request.Context(), c.Param("id"))
	} else {
		conflict, err = h.conflicts.ResolveConflict(c.Request.Context(), c.Param("id"), entity.ResolutionStrategy(req.Strategy), service.ResolveOptions{
			CustomValue: req.CustomValue,
			ResolvedBy:  req.ResolvedBy,
			Notes:       req.Notes,
		})
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflict": conflict})
}

type workflowRequest struct {
	ApproverID string `json:"approver_id" binding:"required"`
	Notes      string `json:"notes"`
}

func (h *Handler) approveConflict(c *gin.Context) {
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conflict, err := h.conflicts.ApproveResolution(c.Request.Context(), c.Param("id"), req.ApproverID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflict": conflict})
}

func (h *Handler) rejectConflict(c *gin.Context) {
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conflict, err := h.conflicts.RejectResolution(c.Request.Context(), c.Param("id"), req.ApproverID, req.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conflict": conflict})
}

type registerRuleRequest struct {
	EntityType string `json:"entity_type" binding:"required"`
	FieldName  string `json:"field_name" binding:"required"`
	Strategy   string `json:"strategy" binding:"required"`
	Enabled    bool   `json:"enabled"`
	Priority   int    `json:"priority"`
}

func (h *Handler) registerRule(c *gin.Context) {
	var req registerRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.conflicts.RegisterResolutionRule(entity.ResolutionRule{
		EntityType: entity.EntityType(req.EntityType),
		FieldName:  req.FieldName,
		Strategy:   entity.ResolutionStrategy(req.Strategy),
		Enabled:    req.Enabled,
		Priority:   req.Priority,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"rule": rule})
}

// writeError maps core error types onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch err.(type) {
	case *service.ValidationError:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case *service.NotFoundError:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case *service.ConflictBlockedError:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
