package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/atisplatform/approval-engine/internal/application/port"
	"github.com/atisplatform/approval-engine/internal/domain/entity"
	"github.com/atisplatform/approval-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// WorkflowRepository implements port.WorkflowRepository. The approval
// chain is stored as a JSON column; definitions are insert-only.
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow definition repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new workflow definition
func (r *WorkflowRepository) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	chain, err := json.Marshal(def.ApprovalChain)
	if err != nil {
		return fmt.Errorf("failed to marshal approval chain: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (name, workflow_type, approval_chain)
		VALUES (?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		def.Name,
		def.WorkflowType,
		string(chain),
	)
	if err != nil {
		r.logger.Error("Failed to create workflow definition", zap.Error(err))
		return fmt.Errorf("failed to create workflow definition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	def.ID = id
	return nil
}

// GetByID retrieves a workflow definition by ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	query := `
		SELECT id, name, workflow_type, approval_chain, created_at
		FROM workflow_definitions
		WHERE id = ?
	`

	return r.scanOne(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
}

// GetByType retrieves the most recent definition for a workflow type
func (r *WorkflowRepository) GetByType(ctx context.Context, workflowType string) (*entity.WorkflowDefinition, error) {
	query := `
		SELECT id, name, workflow_type, approval_chain, created_at
		FROM workflow_definitions
		WHERE workflow_type = ?
		ORDER BY id DESC
		LIMIT 1
	`

	return r.scanOne(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, workflowType))
}

// List retrieves all workflow definitions
func (r *WorkflowRepository) List(ctx context.Context) ([]*entity.WorkflowDefinition, error) {
	query := `
		SELECT id, name, workflow_type, approval_chain, created_at
		FROM workflow_definitions
		ORDER BY id ASC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list workflow definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}
	defer rows.Close()

	var defs []*entity.WorkflowDefinition
	for rows.Next() {
		def, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, rows.Err()
}

func (r *WorkflowRepository) scanOne(row *sql.Row) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	var chain string

	err := row.Scan(&def.ID, &def.Name, &def.WorkflowType, &chain, &def.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow definition", zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow definition: %w", err)
	}

	if err := json.Unmarshal([]byte(chain), &def.ApprovalChain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approval chain: %w", err)
	}

	return &def, nil
}

func (r *WorkflowRepository) scanRow(rows *sql.Rows) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	var chain string

	if err := rows.Scan(&def.ID, &def.Name, &def.WorkflowType, &chain, &def.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
	}

	if err := json.Unmarshal([]byte(chain), &def.ApprovalChain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approval chain: %w", err)
	}

	return &def, nil
}

// Verify interface compliance
var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
