package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atisplatform/approval-engine/internal/application/service"
	"github.com/atisplatform/approval-engine/internal/domain/entity"
)

// actorHeader carries the authenticated user id set by the upstream
// gateway. Authentication itself happens before requests reach this
// service.
const actorHeader = "X-Actor-ID"

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine           service.WorkflowEngine
	workflowService  service.WorkflowService
	bulkCoordinator  service.BulkCoordinator
	analyticsService service.AnalyticsService
	exportService    service.ExportService
	logger           Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine service.WorkflowEngine,
	workflowService service.WorkflowService,
	bulkCoordinator service.BulkCoordinator,
	analyticsService service.AnalyticsService,
	exportService service.ExportService,
	logger Logger,
) *Handlers {
	return &Handlers{
		engine:           engine,
		workflowService:  workflowService,
		bulkCoordinator:  bulkCoordinator,
		analyticsService: analyticsService,
		exportService:    exportService,
		logger:           logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// SubmitRequestBody is the JSON body for creating an approval request
type SubmitRequestBody struct {
	WorkflowID     int64  `json:"workflow_id" binding:"required"`
	InstitutionID  int64  `json:"institution_id" binding:"required"`
	SubmissionData string `json:"submission_data"`
	Priority       string `json:"priority"`
	Deadline       string `json:"deadline"`
}

// ActionBody is the JSON body for acting on a request
type ActionBody struct {
	Action        string `json:"action" binding:"required"`
	Comments      string `json:"comments"`
	ReturnToLevel int    `json:"return_to_level"`
}

// BulkBody is the JSON body for starting a bulk operation
type BulkBody struct {
	RequestIDs []int64 `json:"request_ids"`
	Action     string  `json:"action" binding:"required"`
	Comments   string  `json:"comments"`
}

// BulkStartedResponse carries the id of an accepted bulk job
type BulkStartedResponse struct {
	JobID string `json:"job_id"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// SubmitRequest handles POST /api/approvals
func (h *Handlers) SubmitRequest(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}

	var body SubmitRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	in := service.SubmitInput{
		WorkflowID:     body.WorkflowID,
		SubmitterID:    actorID,
		InstitutionID:  body.InstitutionID,
		SubmissionData: body.SubmissionData,
		Priority:       body.Priority,
	}
	if body.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, body.Deadline)
		if err != nil {
			h.badRequest(c, "deadline must be RFC3339")
			return
		}
		in.Deadline = &deadline
	}

	request, err := h.engine.Submit(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err, "failed to submit request")
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    request,
	})
}

// ActOnRequest handles POST /api/approvals/:id/action
func (h *Handlers) ActOnRequest(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.badRequest(c, "invalid request id")
		return
	}

	var body ActionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	request, err := h.engine.Act(c.Request.Context(), service.ActInput{
		RequestID:     id,
		ActorID:       actorID,
		Action:        body.Action,
		Comments:      body.Comments,
		ReturnToLevel: body.ReturnToLevel,
	})
	if err != nil {
		h.respondError(c, err, "failed to apply action")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    request,
	})
}

// GetRequest handles GET /api/approvals/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.badRequest(c, "invalid request id")
		return
	}

	detail, err := h.engine.Get(c.Request.Context(), id, actorID)
	if err != nil {
		h.respondError(c, err, "failed to retrieve request")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    detail,
	})
}

// ListRequests handles GET /api/approvals
func (h *Handlers) ListRequests(c *gin.Context) {
	in, ok := h.listInput(c)
	if !ok {
		return
	}

	result, err := h.engine.List(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err, "failed to list requests")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// PendingRequests handles GET /api/approvals/pending
func (h *Handlers) PendingRequests(c *gin.Context) {
	in, ok := h.listInput(c)
	if !ok {
		return
	}

	result, err := h.engine.Pending(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err, "failed to list pending requests")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// MyActions handles GET /api/approvals/my-actions
func (h *Handlers) MyActions(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}

	in := service.ActionHistoryInput{
		ActorID: actorID,
		Action:  c.Query("action"),
		Page:    queryInt(c, "page", 1),
		PerPage: queryInt(c, "per_page", 15),
	}
	var parseErr error
	if in.From, parseErr = queryTime(c, "from"); parseErr != nil {
		h.badRequest(c, "from must be RFC3339")
		return
	}
	if in.To, parseErr = queryTime(c, "to"); parseErr != nil {
		h.badRequest(c, "to must be RFC3339")
		return
	}

	actions, err := h.engine.MyActions(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err, "failed to list actions")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    actions,
	})
}

// Analytics handles GET /api/approvals/analytics
func (h *Handlers) Analytics(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}

	in := service.AnalyticsInput{ActorID: actorID}
	var parseErr error
	if in.From, parseErr = queryTime(c, "from"); parseErr != nil {
		h.badRequest(c, "from must be RFC3339")
		return
	}
	if in.To, parseErr = queryTime(c, "to"); parseErr != nil {
		h.badRequest(c, "to must be RFC3339")
		return
	}

	report, err := h.analyticsService.Overview(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err, "failed to build analytics")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    report,
	})
}

// ExportRequests handles GET /api/approvals/export
func (h *Handlers) ExportRequests(c *gin.Context) {
	in, ok := h.listInput(c)
	if !ok {
		return
	}

	workbook, err := h.exportService.ExportRequests(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err, "failed to export requests")
		return
	}

	filename := "approvals_" + time.Now().UTC().Format("20060102_150405") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", workbook)
}

// ListWorkflows handles GET /api/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	workflows, err := h.workflowService.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "failed to list workflows")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    workflows,
	})
}

// GetWorkflow handles GET /api/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.badRequest(c, "invalid workflow id")
		return
	}

	workflow, err := h.workflowService.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "failed to retrieve workflow")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    workflow,
	})
}

// StartBulk handles POST /api/bulk
func (h *Handlers) StartBulk(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}

	var body BulkBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	jobID, err := h.bulkCoordinator.Start(c.Request.Context(), service.BulkInput{
		RequestIDs: body.RequestIDs,
		Action:     body.Action,
		Comments:   body.Comments,
		ActorID:    actorID,
	})
	if err != nil {
		h.respondError(c, err, "failed to start bulk operation")
		return
	}

	c.JSON(http.StatusAccepted, Response{
		Success: true,
		Data:    BulkStartedResponse{JobID: jobID},
	})
}

// BulkProgress handles GET /api/bulk/:jobId/progress
func (h *Handlers) BulkProgress(c *gin.Context) {
	progress, err := h.bulkCoordinator.Progress(c.Param("jobId"))
	if err != nil {
		h.respondError(c, err, "failed to read job progress")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    progress,
	})
}

// BulkResult handles GET /api/bulk/:jobId
func (h *Handlers) BulkResult(c *gin.Context) {
	job, err := h.bulkCoordinator.Result(c.Param("jobId"))
	if err != nil {
		h.respondError(c, err, "failed to read job result")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    job,
	})
}

// CancelBulk handles POST /api/bulk/:jobId/cancel
func (h *Handlers) CancelBulk(c *gin.Context) {
	if err := h.bulkCoordinator.Cancel(c.Param("jobId")); err != nil {
		h.respondError(c, err, "failed to cancel job")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
	})
}

// actor reads the authenticated actor id from the request headers. It
// writes a 403 and returns false when the header is missing.
func (h *Handlers) actor(c *gin.Context) (string, bool) {
	actorID := c.GetHeader(actorHeader)
	if actorID == "" {
		c.JSON(http.StatusForbidden, Response{
			Success: false,
			Error:   "missing actor identity",
		})
		return "", false
	}
	return actorID, true
}

func (h *Handlers) listInput(c *gin.Context) (service.ListInput, bool) {
	actorID, ok := h.actor(c)
	if !ok {
		return service.ListInput{}, false
	}

	in := service.ListInput{
		ActorID:      actorID,
		Status:       c.Query("status"),
		Priority:     c.Query("priority"),
		WorkflowType: c.Query("workflow_type"),
		OverdueOnly:  c.Query("overdue") == "true",
		Page:         queryInt(c, "page", 1),
		PerPage:      queryInt(c, "per_page", 15),
	}
	if raw := c.Query("institution_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.badRequest(c, "invalid institution_id")
			return service.ListInput{}, false
		}
		in.InstitutionID = id
	}
	return in, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
	})
}

// respondError maps domain errors onto HTTP status codes
func (h *Handlers) respondError(c *gin.Context, err error, logMsg string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(logMsg, "error", err)
		c.JSON(status, Response{
			Success: false,
			Error:   logMsg,
		})
		return
	}

	c.JSON(status, Response{
		Success: false,
		Error:   err.Error(),
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, entity.ErrForbidden),
		errors.Is(err, entity.ErrUnknownActor):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrRequestNotFound),
		errors.Is(err, entity.ErrStepNotFound),
		errors.Is(err, entity.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrAlreadyTerminal),
		errors.Is(err, entity.ErrApprovalNotReady),
		errors.Is(err, entity.ErrStaleRequest):
		return http.StatusConflict
	case errors.Is(err, entity.ErrInvalidWorkflow),
		errors.Is(err, entity.ErrCommentRequired),
		errors.Is(err, entity.ErrInvalidReturnLevel),
		errors.Is(err, entity.ErrInvalidAction),
		errors.Is(err, entity.ErrEmptySelection),
		errors.Is(err, entity.ErrTooManyItems):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
