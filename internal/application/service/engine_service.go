package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atisplatform/approval-engine/internal/application/port"
	"github.com/atisplatform/approval-engine/internal/domain/entity"
	domainwf "github.com/atisplatform/approval-engine/internal/domain/workflow"
	"github.com/atisplatform/approval-engine/pkg/utils"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// EngineConfig tunes the engine's conflict handling
type EngineConfig struct {
	// ConflictRetries is how many times a stale-state conflict is retried
	// before surfacing. The whole load-validate-apply cycle reruns each time.
	ConflictRetries int
	RetryBackoff    time.Duration
}

// DefaultEngineConfig returns the default engine configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ConflictRetries: 3,
		RetryBackoff:    50 * time.Millisecond,
	}
}

// SubmitInput carries a new submission into the engine
type SubmitInput struct {
	WorkflowID     int64
	SubmitterID    string
	InstitutionID  int64
	SubmissionData string
	Priority       string
	Deadline       *time.Time
}

// ActInput carries one approver action against one request
type ActInput struct {
	RequestID     int64
	ActorID       string
	Action        string
	Comments      string
	ReturnToLevel int
}

// RequestDetail is a request together with its definition and audit ledger
type RequestDetail struct {
	Request  *entity.ApprovalRequest  `json:"request"`
	Workflow *entity.WorkflowDefinition `json:"workflow"`
	Actions  []*entity.ApprovalAction `json:"actions"`
	Overdue  bool                     `json:"overdue"`
}

// ListInput carries listing filters. The institution filter is always
// intersected with the caller's visible scope.
type ListInput struct {
	ActorID       string
	Status        string
	Priority      string
	WorkflowType  string
	InstitutionID int64
	OverdueOnly   bool
	Page          int
	PerPage       int
}

// ListResult is a paged listing
type ListResult struct {
	Requests []*entity.ApprovalRequest `json:"requests"`
	Total    int64                     `json:"total"`
	Page     int                       `json:"page"`
	PerPage  int                       `json:"per_page"`
}

// ActionHistoryInput filters an approver's own action history
type ActionHistoryInput struct {
	ActorID string
	Action  string
	From    *time.Time
	To      *time.Time
	Page    int
	PerPage int
}

// WorkflowEngine orchestrates submissions through their approval chains:
// it validates transitions, mutates request state atomically with the
// audit ledger, and triggers notification side effects.
type WorkflowEngine interface {
	Submit(ctx context.Context, in SubmitInput) (*entity.ApprovalRequest, error)
	Act(ctx context.Context, in ActInput) (*entity.ApprovalRequest, error)
	Get(ctx context.Context, requestID int64, actorID string) (*RequestDetail, error)
	List(ctx context.Context, in ListInput) (*ListResult, error)
	Pending(ctx context.Context, in ListInput) (*ListResult, error)
	MyActions(ctx context.Context, in ActionHistoryInput) ([]*entity.ApprovalAction, error)
}

type workflowEngine struct {
	workflowRepo port.WorkflowRepository
	requestRepo  port.RequestRepository
	actionRepo   port.ActionRepository
	txManager    port.TransactionManager
	identity     port.IdentityProvider
	hierarchy    port.OrgHierarchy
	gate         AuthorizationGate
	notifier     port.Notifier
	config       EngineConfig
	logger       Logger
}

// NewWorkflowEngine creates the engine facade
func NewWorkflowEngine(
	workflowRepo port.WorkflowRepository,
	requestRepo port.RequestRepository,
	actionRepo port.ActionRepository,
	txManager port.TransactionManager,
	identity port.IdentityProvider,
	hierarchy port.OrgHierarchy,
	gate AuthorizationGate,
	notifier port.Notifier,
	config EngineConfig,
	logger Logger,
) WorkflowEngine {
	return &workflowEngine{
		workflowRepo: workflowRepo,
		requestRepo:  requestRepo,
		actionRepo:   actionRepo,
		txManager:    txManager,
		identity:     identity,
		hierarchy:    hierarchy,
		gate:         gate,
		notifier:     notifier,
		config:       config,
		logger:       logger,
	}
}

// Submit creates a new request at level 1, status pending
func (s *workflowEngine) Submit(ctx context.Context, in SubmitInput) (*entity.ApprovalRequest, error) {
	def, err := s.workflowRepo.GetByID(ctx, in.WorkflowID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: id %d", entity.ErrInvalidWorkflow, in.WorkflowID)
	}

	if !s.hierarchy.Exists(ctx, in.InstitutionID) {
		return nil, fmt.Errorf("%w: unknown institution %d", entity.ErrInvalidWorkflow, in.InstitutionID)
	}

	priority := in.Priority
	if priority == "" {
		priority = entity.PriorityMedium
	}
	if !entity.IsValidPriority(priority) {
		return nil, fmt.Errorf("%w: invalid priority %q", entity.ErrInvalidWorkflow, priority)
	}

	if err := utils.ValidateSubmissionData(in.SubmissionData); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidWorkflow, err)
	}

	req := &entity.ApprovalRequest{
		WorkflowID:     def.ID,
		SubmitterID:    in.SubmitterID,
		InstitutionID:  in.InstitutionID,
		SubmissionData: in.SubmissionData,
		CurrentLevel:   1,
		Status:         entity.StatusPending,
		Priority:       priority,
		Deadline:       in.Deadline,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if err := s.requestRepo.Create(ctx, req); err != nil {
		s.logger.Error("Failed to create approval request", "error", err, "workflow_id", def.ID)
		return nil, err
	}

	s.logger.Info("Approval request submitted",
		"request_id", req.ID,
		"workflow_type", def.WorkflowType,
		"institution_id", req.InstitutionID)

	s.notifyLevel(def, req, entity.EventApprovalRequired)

	return req, nil
}

// Act validates and applies one approver action. The whole
// load-validate-apply cycle reruns on a stale-state conflict, so two
// concurrent actors can never both transition the same request past the
// same level.
func (s *workflowEngine) Act(ctx context.Context, in ActInput) (*entity.ApprovalRequest, error) {
	var req *entity.ApprovalRequest
	var err error

	for attempt := 0; ; attempt++ {
		req, err = s.tryAct(ctx, in)
		if err == nil || !errors.Is(err, entity.ErrStaleRequest) {
			return req, err
		}
		if attempt >= s.config.ConflictRetries {
			s.logger.Error("Giving up on stale request after retries",
				"request_id", in.RequestID, "attempts", attempt+1)
			return nil, err
		}
		// The caller may be a bulk worker on a per-item deadline; do not
		// sleep past a dead context.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.config.RetryBackoff * time.Duration(attempt+1)):
		}
	}
}

func (s *workflowEngine) tryAct(ctx context.Context, in ActInput) (*entity.ApprovalRequest, error) {
	trigger := domainwf.Trigger(in.Action)
	if !trigger.IsValid() {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidAction, in.Action)
	}

	req, err := s.requestRepo.GetByID(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: id %d", entity.ErrRequestNotFound, in.RequestID)
	}

	if req.IsTerminal() {
		return nil, fmt.Errorf("%w: request %d is %s", entity.ErrAlreadyTerminal, req.ID, req.Status)
	}
	if !req.IsActionable() {
		return nil, fmt.Errorf("%w: request %d is %s", entity.ErrApprovalNotReady, req.ID, req.Status)
	}

	def, err := s.workflowRepo.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: id %d", entity.ErrInvalidWorkflow, req.WorkflowID)
	}

	step, err := def.StepAt(req.CurrentLevel)
	if err != nil {
		return nil, err
	}

	actor, err := s.identity.Resolve(ctx, in.ActorID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrForbidden, in.ActorID)
	}

	allowed, err := s.gate.CanAct(ctx, actor, req, step)
	if err != nil {
		return nil, err
	}
	if !allowed {
		s.logger.Info("Approval action denied",
			"request_id", req.ID,
			"actor_id", actor.ID,
			"actor_role", actor.Role.String(),
			"required_role", step.RequiredRole.String(),
			"level", req.CurrentLevel)
		return nil, fmt.Errorf("%w: actor %s at level %d", entity.ErrForbidden, actor.ID, req.CurrentLevel)
	}

	if trigger == domainwf.TriggerReject || trigger == domainwf.TriggerReturn {
		if !utils.HasComment(in.Comments) {
			return nil, fmt.Errorf("%w: %s", entity.ErrCommentRequired, trigger)
		}
	}
	if err := utils.ValidateComment(in.Comments); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidAction, err)
	}
	if trigger == domainwf.TriggerReturn {
		if in.ReturnToLevel < 1 || in.ReturnToLevel >= req.CurrentLevel {
			return nil, fmt.Errorf("%w: target %d from level %d", entity.ErrInvalidReturnLevel, in.ReturnToLevel, req.CurrentLevel)
		}
	}

	machine := domainwf.ForRequest(domainwf.State(req.Status), req.CurrentLevel, def.Length())
	if err := machine.Fire(ctx, trigger); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrApprovalNotReady, err)
	}

	actedLevel := req.CurrentLevel
	newStatus := machine.State().String()
	newLevel := req.CurrentLevel
	var completedAt *time.Time

	switch trigger {
	case domainwf.TriggerApprove:
		if newStatus == entity.StatusApproved {
			now := time.Now()
			completedAt = &now
		} else {
			newLevel = req.CurrentLevel + 1
		}
	case domainwf.TriggerReject:
		now := time.Now()
		completedAt = &now
	case domainwf.TriggerReturn:
		newLevel = in.ReturnToLevel
	}

	action := &entity.ApprovalAction{
		RequestID:  req.ID,
		Level:      actedLevel,
		Action:     actionFor(trigger),
		ApproverID: actor.ID,
		Comments:   utils.SanitizeString(strings.TrimSpace(in.Comments)),
		CreatedAt:  time.Now(),
	}

	// Request row update and ledger append commit together or not at all.
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.requestRepo.UpdateState(txCtx, req.ID, req.Status, req.CurrentLevel, newStatus, newLevel, completedAt); err != nil {
			return err
		}
		return s.actionRepo.Create(txCtx, action)
	})
	if err != nil {
		if !errors.Is(err, entity.ErrStaleRequest) {
			s.logger.Error("Failed to apply approval transition", "error", err, "request_id", req.ID)
		}
		return nil, err
	}

	req.Status = newStatus
	req.CurrentLevel = newLevel
	req.CompletedAt = completedAt
	req.UpdatedAt = time.Now()

	s.logger.Info("Approval transition applied",
		"request_id", req.ID,
		"action", action.Action,
		"actor_id", actor.ID,
		"level", actedLevel,
		"new_status", newStatus,
		"new_level", newLevel)

	s.emitTransitionEvent(def, req, trigger)

	return req, nil
}

// Get returns a request with its workflow and ordered audit ledger,
// subject to the caller's visibility scope.
func (s *workflowEngine) Get(ctx context.Context, requestID int64, actorID string) (*RequestDetail, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: id %d", entity.ErrRequestNotFound, requestID)
	}

	actor, err := s.identity.Resolve(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrForbidden, actorID)
	}

	// Submitters always see their own requests; everyone else must be
	// inside the institution scope.
	if req.SubmitterID != actor.ID {
		scope, err := s.gate.VisibleScope(ctx, actor)
		if err != nil {
			return nil, err
		}
		if !ScopeIncludes(scope, req.InstitutionID) {
			return nil, fmt.Errorf("%w: actor %s for institution %d", entity.ErrForbidden, actor.ID, req.InstitutionID)
		}
	}

	def, err := s.workflowRepo.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	actions, err := s.actionRepo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	return &RequestDetail{
		Request:  req,
		Workflow: def,
		Actions:  actions,
		Overdue:  req.IsOverdue(time.Now()),
	}, nil
}

// List returns requests matching the filter intersected with the
// caller's visible scope.
func (s *workflowEngine) List(ctx context.Context, in ListInput) (*ListResult, error) {
	filter, err := s.scopedFilter(ctx, in)
	if err != nil {
		return nil, err
	}

	if in.OverdueOnly {
		// Deadline classification is a pure function over the row; fetch
		// actionable rows and classify here rather than duplicating the
		// rule in SQL.
		filter.Actionable = true
		filter.Status = ""
		filter.Limit = 0
		requests, err := s.requestRepo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		overdue := FilterOverdue(requests, time.Now())
		return paginate(overdue, in.Page, in.PerPage), nil
	}

	total, err := s.requestRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	requests, err := s.requestRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Requests: requests,
		Total:    total,
		Page:     pageOf(filter.Offset, filter.Limit),
		PerPage:  filter.Limit,
	}, nil
}

// Pending returns the caller's work queue: actionable requests whose
// current step requires the caller's role, ordered by priority then age.
func (s *workflowEngine) Pending(ctx context.Context, in ListInput) (*ListResult, error) {
	actor, err := s.identity.Resolve(ctx, in.ActorID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrForbidden, in.ActorID)
	}

	filter, err := s.scopedFilter(ctx, in)
	if err != nil {
		return nil, err
	}
	filter.Actionable = true
	filter.Status = ""
	filter.Limit = 0
	filter.Offset = 0

	requests, err := s.requestRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	defs := make(map[int64]*entity.WorkflowDefinition)
	queue := make([]*entity.ApprovalRequest, 0, len(requests))
	for _, req := range requests {
		def, ok := defs[req.WorkflowID]
		if !ok {
			def, err = s.workflowRepo.GetByID(ctx, req.WorkflowID)
			if err != nil {
				return nil, err
			}
			defs[req.WorkflowID] = def
		}
		if def == nil {
			continue
		}
		step, err := def.StepAt(req.CurrentLevel)
		if err != nil {
			continue
		}
		if step.RequiredRole == actor.Role {
			queue = append(queue, req)
		}
	}

	sortByPriorityThenAge(queue)
	return paginate(queue, in.Page, in.PerPage), nil
}

// MyActions returns the caller's own action history
func (s *workflowEngine) MyActions(ctx context.Context, in ActionHistoryInput) ([]*entity.ApprovalAction, error) {
	limit, offset := pageBounds(in.Page, in.PerPage)
	return s.actionRepo.ListByApprover(ctx, port.ActionFilter{
		ApproverID: in.ActorID,
		Action:     in.Action,
		From:       in.From,
		To:         in.To,
		Limit:      limit,
		Offset:     offset,
	})
}

// scopedFilter builds a repository filter with the caller's visible
// scope intersected over any client-requested institution.
func (s *workflowEngine) scopedFilter(ctx context.Context, in ListInput) (port.RequestFilter, error) {
	actor, err := s.identity.Resolve(ctx, in.ActorID)
	if err != nil {
		return port.RequestFilter{}, fmt.Errorf("%w: %s", entity.ErrForbidden, in.ActorID)
	}

	scope, err := s.gate.VisibleScope(ctx, actor)
	if err != nil {
		return port.RequestFilter{}, err
	}

	institutions := scope
	if in.InstitutionID != 0 {
		institutions = IntersectScope(scope, in.InstitutionID)
	}

	limit, offset := pageBounds(in.Page, in.PerPage)
	return port.RequestFilter{
		Status:       in.Status,
		Priority:     in.Priority,
		WorkflowType: in.WorkflowType,
		Institutions: institutions,
		Limit:        limit,
		Offset:       offset,
	}, nil
}

// emitTransitionEvent resolves recipients and hands the event to the
// notifier. Dispatch is fire-and-forget; it can never fail a committed
// transition.
func (s *workflowEngine) emitTransitionEvent(def *entity.WorkflowDefinition, req *entity.ApprovalRequest, trigger domainwf.Trigger) {
	switch trigger {
	case domainwf.TriggerApprove:
		if req.Status == entity.StatusApproved {
			s.notifySubmitter(req, entity.EventApprovalApproved)
		} else {
			s.notifyLevel(def, req, entity.EventApprovalRequired)
		}
	case domainwf.TriggerReject:
		s.notifySubmitter(req, entity.EventApprovalRejected)
	case domainwf.TriggerReturn:
		s.notifySubmitter(req, entity.EventApprovalReturned)
	}
}

func (s *workflowEngine) notifyLevel(def *entity.WorkflowDefinition, req *entity.ApprovalRequest, event string) {
	ctx := context.Background()

	step, err := def.StepAt(req.CurrentLevel)
	if err != nil {
		s.logger.Error("No step for notification level", "request_id", req.ID, "level", req.CurrentLevel)
		return
	}

	recipients, err := s.identity.ApproversFor(ctx, step.RequiredRole, req.InstitutionID)
	if err != nil {
		s.logger.Error("Failed to resolve notification recipients", "error", err, "request_id", req.ID)
		return
	}

	s.notifier.Notify(ctx, port.Notification{
		Event:        event,
		RecipientIDs: recipients,
		Payload: map[string]interface{}{
			"request_id":    req.ID,
			"workflow_type": def.WorkflowType,
			"level":         req.CurrentLevel,
			"priority":      req.Priority,
		},
	})
}

func (s *workflowEngine) notifySubmitter(req *entity.ApprovalRequest, event string) {
	s.notifier.Notify(context.Background(), port.Notification{
		Event:        event,
		RecipientIDs: []string{req.SubmitterID},
		Payload: map[string]interface{}{
			"request_id": req.ID,
			"status":     req.Status,
			"level":      req.CurrentLevel,
		},
	})
}

func actionFor(trigger domainwf.Trigger) string {
	switch trigger {
	case domainwf.TriggerApprove:
		return entity.ActionApproved
	case domainwf.TriggerReject:
		return entity.ActionRejected
	default:
		return entity.ActionReturned
	}
}

var priorityRank = map[string]int{
	entity.PriorityHigh:   0,
	entity.PriorityMedium: 1,
	entity.PriorityLow:    2,
}

func sortByPriorityThenAge(requests []*entity.ApprovalRequest) {
	sort.Slice(requests, func(i, j int) bool {
		a, b := requests[i], requests[j]
		if priorityRank[a.Priority] != priorityRank[b.Priority] {
			return priorityRank[a.Priority] < priorityRank[b.Priority]
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func pageBounds(page, perPage int) (limit, offset int) {
	if perPage <= 0 {
		perPage = 15
	}
	if perPage > 100 {
		perPage = 100
	}
	if page < 1 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}

func pageOf(offset, limit int) int {
	if limit <= 0 {
		return 1
	}
	return offset/limit + 1
}

func paginate(requests []*entity.ApprovalRequest, page, perPage int) *ListResult {
	limit, offset := pageBounds(page, perPage)
	total := int64(len(requests))

	if offset >= len(requests) {
		return &ListResult{Requests: []*entity.ApprovalRequest{}, Total: total, Page: pageOf(offset, limit), PerPage: limit}
	}
	end := offset + limit
	if end > len(requests) {
		end = len(requests)
	}

	return &ListResult{
		Requests: requests[offset:end],
		Total:    total,
		Page:     pageOf(offset, limit),
		PerPage:  limit,
	}
}
