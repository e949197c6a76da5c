package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/atisplatform/approval-engine/internal/application/port"
	"github.com/atisplatform/approval-engine/internal/domain/entity"
	"github.com/atisplatform/approval-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ActionRepository implements port.ActionRepository. The table is an
// append-only ledger; this type deliberately exposes no update or
// delete operations.
type ActionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActionRepository creates a new approval action repository
func NewActionRepository(db *sql.DB, logger *zap.Logger) port.ActionRepository {
	return &ActionRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an approval action to the ledger
func (r *ActionRepository) Create(ctx context.Context, action *entity.ApprovalAction) error {
	query := `
		INSERT INTO approval_actions (request_id, level, action, approver_id, comments)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		action.RequestID,
		action.Level,
		action.Action,
		action.ApproverID,
		action.Comments,
	)
	if err != nil {
		r.logger.Error("Failed to create approval action", zap.Error(err))
		return fmt.Errorf("failed to create approval action: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	action.ID = id
	return nil
}

// GetByRequestID retrieves the full ledger for a request in order
func (r *ActionRepository) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalAction, error) {
	query := `
		SELECT id, request_id, level, action, approver_id, comments, created_at
		FROM approval_actions
		WHERE request_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to get approval actions", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval actions: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// ListByApprover retrieves an approver's action history, newest first
func (r *ActionRepository) ListByApprover(ctx context.Context, filter port.ActionFilter) ([]*entity.ApprovalAction, error) {
	conds := []string{"approver_id = ?"}
	args := []interface{}{filter.ApproverID}

	if filter.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.From != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *filter.To)
	}

	query := fmt.Sprintf(`
		SELECT id, request_id, level, action, approver_id, comments, created_at
		FROM approval_actions
		WHERE %s
		ORDER BY created_at DESC, id DESC
	`, strings.Join(conds, " AND "))

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list approval actions", zap.String("approver_id", filter.ApproverID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approval actions: %w", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

func scanActions(rows *sql.Rows) ([]*entity.ApprovalAction, error) {
	var actions []*entity.ApprovalAction
	for rows.Next() {
		var a entity.ApprovalAction
		var comments sql.NullString

		err := rows.Scan(&a.ID, &a.RequestID, &a.Level, &a.Action, &a.ApproverID, &comments, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval action: %w", err)
		}

		a.Comments = comments.String
		actions = append(actions, &a)
	}

	return actions, rows.Err()
}

// Verify interface compliance
var _ port.ActionRepository = (*ActionRepository)(nil)
