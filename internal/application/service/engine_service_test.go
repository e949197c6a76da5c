package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atisplatform/approval-engine/internal/application/port"
	"github.com/atisplatform/approval-engine/internal/domain/entity"
)

// Mock repositories

type mockWorkflowRepo struct {
	createFunc    func(ctx context.Context, def *entity.WorkflowDefinition) error
	getByIDFunc   func(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	getByTypeFunc func(ctx context.Context, workflowType string) (*entity.WorkflowDefinition, error)
	listFunc      func(ctx context.Context) ([]*entity.WorkflowDefinition, error)
}

func (m *mockWorkflowRepo) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, def)
	}
	def.ID = 1
	return nil
}

func (m *mockWorkflowRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return testWorkflow(id), nil
}

func (m *mockWorkflowRepo) GetByType(ctx context.Context, workflowType string) (*entity.WorkflowDefinition, error) {
	if m.getByTypeFunc != nil {
		return m.getByTypeFunc(ctx, workflowType)
	}
	return testWorkflow(1), nil
}

func (m *mockWorkflowRepo) List(ctx context.Context) ([]*entity.WorkflowDefinition, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return []*entity.WorkflowDefinition{testWorkflow(1)}, nil
}

type mockRequestRepo struct {
	createFunc        func(ctx context.Context, req *entity.ApprovalRequest) error
	getByIDFunc       func(ctx context.Context, id int64) (*entity.ApprovalRequest, error)
	updateStateFunc   func(ctx context.Context, id int64, expectStatus string, expectLevel int, newStatus string, newLevel int, completedAt *time.Time) error
	listFunc          func(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error)
	countFunc         func(ctx context.Context, filter port.RequestFilter) (int64, error)
	countByStatusFunc func(ctx context.Context, filter port.RequestFilter) ([]port.StatusCount, error)
	statsByTypeFunc   func(ctx context.Context, filter port.RequestFilter) ([]port.TypeStat, error)
	avgHoursFunc      func(ctx context.Context, filter port.RequestFilter) (float64, error)
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	req.ID = 1
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalRequest, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockRequestRepo) UpdateState(ctx context.Context, id int64, expectStatus string, expectLevel int, newStatus string, newLevel int, completedAt *time.Time) error {
	if m.updateStateFunc != nil {
		return m.updateStateFunc(ctx, id, expectStatus, expectLevel, newStatus, newLevel, completedAt)
	}
	return nil
}

func (m *mockRequestRepo) List(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return []*entity.ApprovalRequest{}, nil
}

func (m *mockRequestRepo) Count(ctx context.Context, filter port.RequestFilter) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx, filter)
	}
	return 0, nil
}

func (m *mockRequestRepo) CountByStatus(ctx context.Context, filter port.RequestFilter) ([]port.StatusCount, error) {
	if m.countByStatusFunc != nil {
		return m.countByStatusFunc(ctx, filter)
	}
	return []port.StatusCount{}, nil
}

func (m *mockRequestRepo) StatsByType(ctx context.Context, filter port.RequestFilter) ([]port.TypeStat, error) {
	if m.statsByTypeFunc != nil {
		return m.statsByTypeFunc(ctx, filter)
	}
	return []port.TypeStat{}, nil
}

func (m *mockRequestRepo) AverageProcessingHours(ctx context.Context, filter port.RequestFilter) (float64, error) {
	if m.avgHoursFunc != nil {
		return m.avgHoursFunc(ctx, filter)
	}
	return 0, nil
}

type mockActionRepo struct {
	mu                 sync.Mutex
	created            []*entity.ApprovalAction
	createFunc         func(ctx context.Context, action *entity.ApprovalAction) error
	getByRequestIDFunc func(ctx context.Context, requestID int64) ([]*entity.ApprovalAction, error)
	listByApproverFunc func(ctx context.Context, filter port.ActionFilter) ([]*entity.ApprovalAction, error)
}

func (m *mockActionRepo) Create(ctx context.Context, action *entity.ApprovalAction) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, action)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	action.ID = int64(len(m.created) + 1)
	m.created = append(m.created, action)
	return nil
}

func (m *mockActionRepo) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalAction, error) {
	if m.getByRequestIDFunc != nil {
		return m.getByRequestIDFunc(ctx, requestID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]*entity.ApprovalAction, 0)
	for _, a := range m.created {
		if a.RequestID == requestID {
			actions = append(actions, a)
		}
	}
	return actions, nil
}

func (m *mockActionRepo) ListByApprover(ctx context.Context, filter port.ActionFilter) ([]*entity.ApprovalAction, error) {
	if m.listByApproverFunc != nil {
		return m.listByApproverFunc(ctx, filter)
	}
	return []*entity.ApprovalAction{}, nil
}

type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockIdentity struct {
	resolveFunc      func(ctx context.Context, actorID string) (port.Actor, error)
	approversForFunc func(ctx context.Context, role entity.RoleID, institutionID int64) ([]string, error)
}

func (m *mockIdentity) Resolve(ctx context.Context, actorID string) (port.Actor, error) {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, actorID)
	}
	return testActors()[actorID], nil
}

func (m *mockIdentity) ApproversFor(ctx context.Context, role entity.RoleID, institutionID int64) ([]string, error) {
	if m.approversForFunc != nil {
		return m.approversForFunc(ctx, role, institutionID)
	}
	return []string{"next-approver"}, nil
}

type mockHierarchy struct {
	subtreeOfFunc func(ctx context.Context, institutionID int64) ([]int64, error)
	existsFunc    func(ctx context.Context, institutionID int64) bool
}

func (m *mockHierarchy) SubtreeOf(ctx context.Context, institutionID int64) ([]int64, error) {
	if m.subtreeOfFunc != nil {
		return m.subtreeOfFunc(ctx, institutionID)
	}
	return []int64{institutionID}, nil
}

func (m *mockHierarchy) Exists(ctx context.Context, institutionID int64) bool {
	if m.existsFunc != nil {
		return m.existsFunc(ctx, institutionID)
	}
	return true
}

type mockGate struct {
	canActFunc       func(ctx context.Context, actor port.Actor, req *entity.ApprovalRequest, step entity.ApprovalStep) (bool, error)
	visibleScopeFunc func(ctx context.Context, actor port.Actor) ([]int64, error)
}

func (m *mockGate) CanAct(ctx context.Context, actor port.Actor, req *entity.ApprovalRequest, step entity.ApprovalStep) (bool, error) {
	if m.canActFunc != nil {
		return m.canActFunc(ctx, actor, req, step)
	}
	return actor.Role == step.RequiredRole, nil
}

func (m *mockGate) VisibleScope(ctx context.Context, actor port.Actor) ([]int64, error) {
	if m.visibleScopeFunc != nil {
		return m.visibleScopeFunc(ctx, actor)
	}
	return nil, nil
}

type mockNotifier struct {
	mu     sync.Mutex
	events []port.Notification
}

func (m *mockNotifier) Notify(ctx context.Context, n port.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, n)
}

func (m *mockNotifier) recorded() []port.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]port.Notification{}, m.events...)
}

type noopLogger struct{}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}

// Fixtures

func testWorkflow(id int64) *entity.WorkflowDefinition {
	return &entity.WorkflowDefinition{
		ID:           id,
		Name:         "Document Approval",
		WorkflowType: entity.WorkflowTypeDocument,
		ApprovalChain: []entity.ApprovalStep{
			{Level: 1, Title: "School Review", RequiredRole: entity.RoleSchoolAdmin, Required: true},
			{Level: 2, Title: "Sector Review", RequiredRole: entity.RoleSektorAdmin, Required: true},
			{Level: 3, Title: "Region Review", RequiredRole: entity.RoleRegionAdmin, Required: true},
		},
	}
}

func testActors() map[string]port.Actor {
	return map[string]port.Actor{
		"school-admin": {ID: "school-admin", Role: entity.RoleSchoolAdmin, InstitutionID: 6},
		"sector-admin": {ID: "sector-admin", Role: entity.RoleSektorAdmin, InstitutionID: 4},
		"region-admin": {ID: "region-admin", Role: entity.RoleRegionAdmin, InstitutionID: 2},
		"teacher":      {ID: "teacher", Role: entity.RoleTeacher, InstitutionID: 6},
	}
}

type engineFixture struct {
	engine       WorkflowEngine
	workflowRepo *mockWorkflowRepo
	requestRepo  *mockRequestRepo
	actionRepo   *mockActionRepo
	notifier     *mockNotifier
}

// newEngineFixture wires an engine over an in-memory request so Act
// cycles read their own writes, the way the real repository behaves.
func newEngineFixture(req *entity.ApprovalRequest) *engineFixture {
	workflowRepo := &mockWorkflowRepo{}
	actionRepo := &mockActionRepo{}
	notifier := &mockNotifier{}

	var mu sync.Mutex
	requestRepo := &mockRequestRepo{}
	requestRepo.getByIDFunc = func(ctx context.Context, id int64) (*entity.ApprovalRequest, error) {
		mu.Lock()
		defer mu.Unlock()
		if req == nil || req.ID != id {
			return nil, nil
		}
		copied := *req
		return &copied, nil
	}
	requestRepo.updateStateFunc = func(ctx context.Context, id int64, expectStatus string, expectLevel int, newStatus string, newLevel int, completedAt *time.Time) error {
		mu.Lock()
		defer mu.Unlock()
		if req == nil || req.ID != id || req.Status != expectStatus || req.CurrentLevel != expectLevel {
			return entity.ErrStaleRequest
		}
		req.Status = newStatus
		req.CurrentLevel = newLevel
		req.CompletedAt = completedAt
		req.UpdatedAt = time.Now()
		return nil
	}

	engine := NewWorkflowEngine(
		workflowRepo,
		requestRepo,
		actionRepo,
		&mockTxManager{},
		&mockIdentity{},
		&mockHierarchy{},
		&mockGate{},
		notifier,
		EngineConfig{ConflictRetries: 3, RetryBackoff: time.Millisecond},
		noopLogger{},
	)

	return &engineFixture{
		engine:       engine,
		workflowRepo: workflowRepo,
		requestRepo:  requestRepo,
		actionRepo:   actionRepo,
		notifier:     notifier,
	}
}

func pendingRequest(level int) *entity.ApprovalRequest {
	return &entity.ApprovalRequest{
		ID:            1,
		WorkflowID:    1,
		SubmitterID:   "teacher",
		InstitutionID: 6,
		CurrentLevel:  level,
		Status:        entity.StatusPending,
		Priority:      entity.PriorityMedium,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

// Tests

func TestWorkflowEngine_Submit(t *testing.T) {
	fx := newEngineFixture(nil)

	req, err := fx.engine.Submit(context.Background(), SubmitInput{
		WorkflowID:    1,
		SubmitterID:   "teacher",
		InstitutionID: 6,
	})
	if err != nil {
		t.Fatalf("Submit() unexpected error: %v", err)
	}

	if req.Status != entity.StatusPending {
		t.Errorf("Status = %q, want %q", req.Status, entity.StatusPending)
	}
	if req.CurrentLevel != 1 {
		t.Errorf("CurrentLevel = %d, want 1", req.CurrentLevel)
	}
	if req.Priority != entity.PriorityMedium {
		t.Errorf("Priority = %q, want default %q", req.Priority, entity.PriorityMedium)
	}

	events := fx.notifier.recorded()
	if len(events) != 1 || events[0].Event != entity.EventApprovalRequired {
		t.Fatalf("recorded events = %+v, want one approval.required", events)
	}

	// Submission itself writes no ledger row
	if len(fx.actionRepo.created) != 0 {
		t.Errorf("submission created %d ledger rows, want 0", len(fx.actionRepo.created))
	}
}

func TestWorkflowEngine_Submit_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		in      SubmitInput
		setup   func(fx *engineFixture)
		wantErr error
	}{
		{
			name: "unknown workflow",
			in:   SubmitInput{WorkflowID: 99, SubmitterID: "teacher", InstitutionID: 6},
			setup: func(fx *engineFixture) {
				fx.workflowRepo.getByIDFunc = func(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
					return nil, nil
				}
			},
			wantErr: entity.ErrInvalidWorkflow,
		},
		{
			name:    "invalid priority",
			in:      SubmitInput{WorkflowID: 1, SubmitterID: "teacher", InstitutionID: 6, Priority: "urgent"},
			wantErr: entity.ErrInvalidWorkflow,
		},
		{
			name:    "submission data not JSON",
			in:      SubmitInput{WorkflowID: 1, SubmitterID: "teacher", InstitutionID: 6, SubmissionData: "{broken"},
			wantErr: entity.ErrInvalidWorkflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newEngineFixture(nil)
			if tt.setup != nil {
				tt.setup(fx)
			}
			_, err := fx.engine.Submit(context.Background(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkflowEngine_Act_FullChainApproval(t *testing.T) {
	req := pendingRequest(1)
	fx := newEngineFixture(req)

	approvers := []string{"school-admin", "sector-admin", "region-admin"}
	var final *entity.ApprovalRequest
	for _, actorID := range approvers {
		var err error
		final, err = fx.engine.Act(context.Background(), ActInput{
			RequestID: 1,
			ActorID:   actorID,
			Action:    "approve",
		})
		if err != nil {
			t.Fatalf("Act(approve) by %s: %v", actorID, err)
		}
	}

	if final.Status != entity.StatusApproved {
		t.Errorf("final Status = %q, want %q", final.Status, entity.StatusApproved)
	}
	if final.CurrentLevel != 3 {
		t.Errorf("final CurrentLevel = %d, want 3 (completion marker)", final.CurrentLevel)
	}
	if final.CompletedAt == nil {
		t.Error("CompletedAt = nil, want set")
	}

	// One ledger row per level, in order
	if len(fx.actionRepo.created) != 3 {
		t.Fatalf("ledger has %d rows, want 3", len(fx.actionRepo.created))
	}
	for i, action := range fx.actionRepo.created {
		if action.Level != i+1 {
			t.Errorf("ledger row %d level = %d, want %d", i, action.Level, i+1)
		}
		if action.Action != entity.ActionApproved {
			t.Errorf("ledger row %d action = %q, want %q", i, action.Action, entity.ActionApproved)
		}
		if action.ApproverID != approvers[i] {
			t.Errorf("ledger row %d approver = %q, want %q", i, action.ApproverID, approvers[i])
		}
	}

	// Two level-advance notifications plus the final approval
	events := fx.notifier.recorded()
	if len(events) != 3 {
		t.Fatalf("recorded %d events, want 3", len(events))
	}
	if events[2].Event != entity.EventApprovalApproved {
		t.Errorf("final event = %q, want %q", events[2].Event, entity.EventApprovalApproved)
	}
	if len(events[2].RecipientIDs) != 1 || events[2].RecipientIDs[0] != "teacher" {
		t.Errorf("final recipients = %v, want submitter only", events[2].RecipientIDs)
	}
}

func TestWorkflowEngine_Act_Reject(t *testing.T) {
	t.Run("without comment", func(t *testing.T) {
		fx := newEngineFixture(pendingRequest(2))
		_, err := fx.engine.Act(context.Background(), ActInput{
			RequestID: 1,
			ActorID:   "sector-admin",
			Action:    "reject",
		})
		if !errors.Is(err, entity.ErrCommentRequired) {
			t.Errorf("Act(reject) error = %v, want ErrCommentRequired", err)
		}
	})

	t.Run("with comment", func(t *testing.T) {
		fx := newEngineFixture(pendingRequest(2))
		req, err := fx.engine.Act(context.Background(), ActInput{
			RequestID: 1,
			ActorID:   "sector-admin",
			Action:    "reject",
			Comments:  "missing attachments",
		})
		if err != nil {
			t.Fatalf("Act(reject) unexpected error: %v", err)
		}
		if req.Status != entity.StatusRejected {
			t.Errorf("Status = %q, want %q", req.Status, entity.StatusRejected)
		}
		if req.CurrentLevel != 2 {
			t.Errorf("CurrentLevel = %d, want unchanged 2", req.CurrentLevel)
		}
		if req.CompletedAt == nil {
			t.Error("CompletedAt = nil, want set")
		}

		events := fx.notifier.recorded()
		if len(events) != 1 || events[0].Event != entity.EventApprovalRejected {
			t.Fatalf("recorded events = %+v, want one approval.rejected", events)
		}
	})
}

func TestWorkflowEngine_Act_Return(t *testing.T) {
	t.Run("to earlier level", func(t *testing.T) {
		fx := newEngineFixture(pendingRequest(3))
		req, err := fx.engine.Act(context.Background(), ActInput{
			RequestID:     1,
			ActorID:       "region-admin",
			Action:        "return",
			Comments:      "rework the budget section",
			ReturnToLevel: 1,
		})
		if err != nil {
			t.Fatalf("Act(return) unexpected error: %v", err)
		}
		if req.Status != entity.StatusReturned {
			t.Errorf("Status = %q, want %q", req.Status, entity.StatusReturned)
		}
		if req.CurrentLevel != 1 {
			t.Errorf("CurrentLevel = %d, want 1", req.CurrentLevel)
		}
	})

	t.Run("invalid targets", func(t *testing.T) {
		for _, target := range []int{0, -1, 3, 4} {
			fx := newEngineFixture(pendingRequest(3))
			_, err := fx.engine.Act(context.Background(), ActInput{
				RequestID:     1,
				ActorID:       "region-admin",
				Action:        "return",
				Comments:      "see notes",
				ReturnToLevel: target,
			})
			if !errors.Is(err, entity.ErrInvalidReturnLevel) {
				t.Errorf("Act(return to %d) error = %v, want ErrInvalidReturnLevel", target, err)
			}
		}
	})

	t.Run("returned request re-walks the chain", func(t *testing.T) {
		req := pendingRequest(3)
		fx := newEngineFixture(req)

		if _, err := fx.engine.Act(context.Background(), ActInput{
			RequestID: 1, ActorID: "region-admin", Action: "return",
			Comments: "fix section 2", ReturnToLevel: 1,
		}); err != nil {
			t.Fatalf("return: %v", err)
		}

		// The level 1 approver acts again on the returned request
		after, err := fx.engine.Act(context.Background(), ActInput{
			RequestID: 1, ActorID: "school-admin", Action: "approve",
		})
		if err != nil {
			t.Fatalf("approve after return: %v", err)
		}
		if after.Status != entity.StatusPending || after.CurrentLevel != 2 {
			t.Errorf("after re-approval status/level = %q/%d, want pending/2", after.Status, after.CurrentLevel)
		}

		// The ledger keeps both the return and the re-approval
		actions, _ := fx.actionRepo.GetByRequestID(context.Background(), 1)
		if len(actions) != 2 {
			t.Errorf("ledger has %d rows, want 2", len(actions))
		}
	})
}

func TestWorkflowEngine_Act_Guards(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		fx := newEngineFixture(nil)
		_, err := fx.engine.Act(context.Background(), ActInput{RequestID: 42, ActorID: "school-admin", Action: "approve"})
		if !errors.Is(err, entity.ErrRequestNotFound) {
			t.Errorf("error = %v, want ErrRequestNotFound", err)
		}
	})

	t.Run("terminal request", func(t *testing.T) {
		req := pendingRequest(3)
		req.Status = entity.StatusApproved
		fx := newEngineFixture(req)
		_, err := fx.engine.Act(context.Background(), ActInput{RequestID: 1, ActorID: "region-admin", Action: "approve"})
		if !errors.Is(err, entity.ErrAlreadyTerminal) {
			t.Errorf("error = %v, want ErrAlreadyTerminal", err)
		}
	})

	t.Run("wrong role", func(t *testing.T) {
		fx := newEngineFixture(pendingRequest(2))
		_, err := fx.engine.Act(context.Background(), ActInput{RequestID: 1, ActorID: "school-admin", Action: "approve"})
		if !errors.Is(err, entity.ErrForbidden) {
			t.Errorf("error = %v, want ErrForbidden", err)
		}
	})

	t.Run("unknown actor", func(t *testing.T) {
		fx := newEngineFixture(pendingRequest(1))
		engine := NewWorkflowEngine(
			fx.workflowRepo, fx.requestRepo, fx.actionRepo, &mockTxManager{},
			&mockIdentity{resolveFunc: func(ctx context.Context, actorID string) (port.Actor, error) {
				return port.Actor{}, entity.ErrUnknownActor
			}},
			&mockHierarchy{}, &mockGate{}, fx.notifier,
			DefaultEngineConfig(), noopLogger{},
		)
		_, err := engine.Act(context.Background(), ActInput{RequestID: 1, ActorID: "ghost", Action: "approve"})
		if !errors.Is(err, entity.ErrForbidden) {
			t.Errorf("error = %v, want ErrForbidden", err)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		fx := newEngineFixture(pendingRequest(1))
		_, err := fx.engine.Act(context.Background(), ActInput{RequestID: 1, ActorID: "school-admin", Action: "escalate"})
		if !errors.Is(err, entity.ErrInvalidAction) {
			t.Errorf("error = %v, want ErrInvalidAction", err)
		}
	})

	t.Run("oversize comment", func(t *testing.T) {
		fx := newEngineFixture(pendingRequest(1))
		_, err := fx.engine.Act(context.Background(), ActInput{
			RequestID: 1, ActorID: "school-admin", Action: "approve",
			Comments: strings.Repeat("x", 3000),
		})
		if !errors.Is(err, entity.ErrInvalidAction) {
			t.Errorf("error = %v, want ErrInvalidAction", err)
		}
	})
}

func TestWorkflowEngine_Act_StaleConflictRetry(t *testing.T) {
	t.Run("succeeds after transient conflicts", func(t *testing.T) {
		req := pendingRequest(1)
		fx := newEngineFixture(req)

		var mu sync.Mutex
		failures := 2
		inner := fx.requestRepo.updateStateFunc
		fx.requestRepo.updateStateFunc = func(ctx context.Context, id int64, expectStatus string, expectLevel int, newStatus string, newLevel int, completedAt *time.Time) error {
			mu.Lock()
			remaining := failures
			if failures > 0 {
				failures--
			}
			mu.Unlock()
			if remaining > 0 {
				return entity.ErrStaleRequest
			}
			return inner(ctx, id, expectStatus, expectLevel, newStatus, newLevel, completedAt)
		}

		result, err := fx.engine.Act(context.Background(), ActInput{RequestID: 1, ActorID: "school-admin", Action: "approve"})
		if err != nil {
			t.Fatalf("Act() unexpected error after retries: %v", err)
		}
		if result.CurrentLevel != 2 {
			t.Errorf("CurrentLevel = %d, want 2", result.CurrentLevel)
		}
	})

	t.Run("gives up past the retry budget", func(t *testing.T) {
		req := pendingRequest(1)
		fx := newEngineFixture(req)

		var mu sync.Mutex
		attempts := 0
		fx.requestRepo.updateStateFunc = func(ctx context.Context, id int64, expectStatus string, expectLevel int, newStatus string, newLevel int, completedAt *time.Time) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return entity.ErrStaleRequest
		}

		_, err := fx.engine.Act(context.Background(), ActInput{RequestID: 1, ActorID: "school-admin", Action: "approve"})
		if !errors.Is(err, entity.ErrStaleRequest) {
			t.Fatalf("error = %v, want ErrStaleRequest", err)
		}
		if attempts != 4 {
			t.Errorf("attempts = %d, want 4 (initial + 3 retries)", attempts)
		}
	})

	t.Run("cancelled context skips the backoff", func(t *testing.T) {
		req := pendingRequest(1)
		fx := newEngineFixture(req)

		var mu sync.Mutex
		attempts := 0
		fx.requestRepo.updateStateFunc = func(ctx context.Context, id int64, expectStatus string, expectLevel int, newStatus string, newLevel int, completedAt *time.Time) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return entity.ErrStaleRequest
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		_, err := fx.engine.Act(ctx, ActInput{RequestID: 1, ActorID: "school-admin", Action: "approve"})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1 with a dead context", attempts)
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("Act() took %v, should not sleep through backoffs on a dead context", elapsed)
		}
	})
}

func TestWorkflowEngine_Get(t *testing.T) {
	req := pendingRequest(2)
	fx := newEngineFixture(req)

	t.Run("submitter sees own request", func(t *testing.T) {
		detail, err := fx.engine.Get(context.Background(), 1, "teacher")
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}
		if detail.Request.ID != 1 || detail.Workflow == nil {
			t.Errorf("detail missing request or workflow: %+v", detail)
		}
	})

	t.Run("out of scope actor is refused", func(t *testing.T) {
		engine := NewWorkflowEngine(
			fx.workflowRepo, fx.requestRepo, fx.actionRepo, &mockTxManager{},
			&mockIdentity{}, &mockHierarchy{},
			&mockGate{visibleScopeFunc: func(ctx context.Context, actor port.Actor) ([]int64, error) {
				return []int64{}, nil
			}},
			fx.notifier, DefaultEngineConfig(), noopLogger{},
		)
		_, err := engine.Get(context.Background(), 1, "school-admin")
		if !errors.Is(err, entity.ErrForbidden) {
			t.Errorf("error = %v, want ErrForbidden", err)
		}
	})
}

func TestWorkflowEngine_Pending(t *testing.T) {
	older := pendingRequest(2)
	older.ID = 1
	older.CreatedAt = time.Now().Add(-2 * time.Hour)

	newerHigh := pendingRequest(2)
	newerHigh.ID = 2
	newerHigh.Priority = entity.PriorityHigh
	newerHigh.CreatedAt = time.Now().Add(-time.Hour)

	wrongLevel := pendingRequest(1)
	wrongLevel.ID = 3

	fx := newEngineFixture(nil)
	fx.requestRepo.listFunc = func(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
		if !filter.Actionable {
			t.Errorf("Pending must query actionable rows, got %+v", filter)
		}
		return []*entity.ApprovalRequest{older, newerHigh, wrongLevel}, nil
	}

	result, err := fx.engine.Pending(context.Background(), ListInput{ActorID: "sector-admin"})
	if err != nil {
		t.Fatalf("Pending() unexpected error: %v", err)
	}

	// Level 1 requires schooladmin, so only the two level 2 rows match;
	// high priority sorts first despite being newer.
	if len(result.Requests) != 2 {
		t.Fatalf("queue has %d rows, want 2", len(result.Requests))
	}
	if result.Requests[0].ID != 2 || result.Requests[1].ID != 1 {
		t.Errorf("queue order = %d, %d, want 2, 1", result.Requests[0].ID, result.Requests[1].ID)
	}
}
