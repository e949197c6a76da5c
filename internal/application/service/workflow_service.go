package service

import (
	"context"
	"fmt"

	"github.com/atisplatform/approval-engine/internal/application/port"
	"github.com/atisplatform/approval-engine/internal/domain/entity"
)

// WorkflowService exposes read-only access to workflow definitions.
// Definitions are seeded by migration and never mutated in place.
type WorkflowService interface {
	Get(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	List(ctx context.Context) ([]*entity.WorkflowDefinition, error)
}

type workflowService struct {
	workflowRepo port.WorkflowRepository
	logger       Logger
}

// NewWorkflowService creates the workflow definition read service
func NewWorkflowService(workflowRepo port.WorkflowRepository, logger Logger) WorkflowService {
	return &workflowService{
		workflowRepo: workflowRepo,
		logger:       logger,
	}
}

// Get retrieves a workflow definition by ID
func (s *workflowService) Get(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	def, err := s.workflowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: id %d", entity.ErrInvalidWorkflow, id)
	}
	return def, nil
}

// List retrieves all workflow definitions
func (s *workflowService) List(ctx context.Context) ([]*entity.WorkflowDefinition, error) {
	return s.workflowRepo.List(ctx)
}
