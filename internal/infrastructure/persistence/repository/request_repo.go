package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/atisplatform/approval-engine/internal/application/port"
	"github.com/atisplatform/approval-engine/internal/domain/entity"
	"github.com/atisplatform/approval-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new approval request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

const requestColumns = `
	r.id, r.workflow_id, r.submitter_id, r.institution_id, r.submission_data,
	r.current_level, r.status, r.priority, r.deadline, r.completed_at,
	r.created_at, r.updated_at
`

// Create creates a new approval request
func (r *RequestRepository) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	query := `
		INSERT INTO approval_requests (
			workflow_id, submitter_id, institution_id, submission_data,
			current_level, status, priority, deadline
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		req.WorkflowID,
		req.SubmitterID,
		req.InstitutionID,
		req.SubmissionData,
		req.CurrentLevel,
		req.Status,
		req.Priority,
		req.Deadline,
	)
	if err != nil {
		r.logger.Error("Failed to create approval request", zap.Error(err))
		return fmt.Errorf("failed to create approval request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	return nil
}

// GetByID retrieves an approval request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalRequest, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM approval_requests r
		WHERE r.id = ?
	`, requestColumns)

	var req entity.ApprovalRequest
	var deadline, completedAt sql.NullTime

	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&req.ID,
		&req.WorkflowID,
		&req.SubmitterID,
		&req.InstitutionID,
		&req.SubmissionData,
		&req.CurrentLevel,
		&req.Status,
		&req.Priority,
		&deadline,
		&completedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval request", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}

	if deadline.Valid {
		req.Deadline = &deadline.Time
	}
	if completedAt.Valid {
		req.CompletedAt = &completedAt.Time
	}

	return &req, nil
}

// UpdateState applies a transition guarded by the expected status and
// level. Zero affected rows means a concurrent actor already moved the
// request; that surfaces as entity.ErrStaleRequest so the engine can
// re-read and retry.
func (r *RequestRepository) UpdateState(ctx context.Context, id int64, expectStatus string, expectLevel int, newStatus string, newLevel int, completedAt *time.Time) error {
	query := `
		UPDATE approval_requests
		SET status = ?, current_level = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ? AND current_level = ?
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		newStatus,
		newLevel,
		completedAt,
		id,
		expectStatus,
		expectLevel,
	)
	if err != nil {
		r.logger.Error("Failed to update request state", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update request state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return entity.ErrStaleRequest
	}

	return nil
}

// List retrieves approval requests matching the filter, newest first
func (r *RequestRepository) List(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error) {
	where, args := buildRequestWhere(filter)

	query := fmt.Sprintf(`
		SELECT %s
		FROM approval_requests r
		LEFT JOIN workflow_definitions w ON w.id = r.workflow_id
		%s
		ORDER BY r.created_at DESC, r.id DESC
	`, requestColumns, where)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list approval requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list approval requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.ApprovalRequest
	for rows.Next() {
		var req entity.ApprovalRequest
		var deadline, completedAt sql.NullTime

		err := rows.Scan(
			&req.ID,
			&req.WorkflowID,
			&req.SubmitterID,
			&req.InstitutionID,
			&req.SubmissionData,
			&req.CurrentLevel,
			&req.Status,
			&req.Priority,
			&deadline,
			&completedAt,
			&req.CreatedAt,
			&req.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}

		if deadline.Valid {
			req.Deadline = &deadline.Time
		}
		if completedAt.Valid {
			req.CompletedAt = &completedAt.Time
		}

		requests = append(requests, &req)
	}

	return requests, rows.Err()
}

// Count returns the number of requests matching the filter
func (r *RequestRepository) Count(ctx context.Context, filter port.RequestFilter) (int64, error) {
	where, args := buildRequestWhere(filter)

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM approval_requests r
		LEFT JOIN workflow_definitions w ON w.id = r.workflow_id
		%s
	`, where)

	var count int64
	if err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count approval requests: %w", err)
	}

	return count, nil
}

// CountByStatus returns the status distribution for matching requests
func (r *RequestRepository) CountByStatus(ctx context.Context, filter port.RequestFilter) ([]port.StatusCount, error) {
	where, args := buildRequestWhere(filter)

	query := fmt.Sprintf(`
		SELECT r.status, COUNT(*)
		FROM approval_requests r
		LEFT JOIN workflow_definitions w ON w.id = r.workflow_id
		%s
		GROUP BY r.status
	`, where)

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	defer rows.Close()

	var counts []port.StatusCount
	for rows.Next() {
		var sc port.StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts = append(counts, sc)
	}

	return counts, rows.Err()
}

// StatsByType returns per-workflow-type totals and approved counts
func (r *RequestRepository) StatsByType(ctx context.Context, filter port.RequestFilter) ([]port.TypeStat, error) {
	where, args := buildRequestWhere(filter)

	query := fmt.Sprintf(`
		SELECT w.workflow_type,
			COUNT(*),
			SUM(CASE WHEN r.status = 'approved' THEN 1 ELSE 0 END)
		FROM approval_requests r
		JOIN workflow_definitions w ON w.id = r.workflow_id
		%s
		GROUP BY w.workflow_type
	`, where)

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by workflow type: %w", err)
	}
	defer rows.Close()

	var stats []port.TypeStat
	for rows.Next() {
		var ts port.TypeStat
		if err := rows.Scan(&ts.WorkflowType, &ts.Total, &ts.Approved); err != nil {
			return nil, fmt.Errorf("failed to scan type stat: %w", err)
		}
		stats = append(stats, ts)
	}

	return stats, rows.Err()
}

// AverageProcessingHours returns the mean hours from submission to
// completion over completed matching requests. Zero when none completed.
func (r *RequestRepository) AverageProcessingHours(ctx context.Context, filter port.RequestFilter) (float64, error) {
	where, args := buildRequestWhere(filter)

	cond := "r.completed_at IS NOT NULL"
	if where == "" {
		where = "WHERE " + cond
	} else {
		where += " AND " + cond
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(AVG((julianday(r.completed_at) - julianday(r.created_at)) * 24), 0)
		FROM approval_requests r
		LEFT JOIN workflow_definitions w ON w.id = r.workflow_id
		%s
	`, where)

	var hours float64
	if err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&hours); err != nil {
		return 0, fmt.Errorf("failed to compute average processing time: %w", err)
	}

	return hours, nil
}

// buildRequestWhere assembles the WHERE clause for a filter. A non-nil
// empty institution set must match nothing: the caller's visible scope
// is a hard boundary even when it is empty.
func buildRequestWhere(filter port.RequestFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if filter.Actionable {
		conds = append(conds, "r.status IN ('pending', 'returned')")
	} else if filter.Status != "" {
		conds = append(conds, "r.status = ?")
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		conds = append(conds, "r.priority = ?")
		args = append(args, filter.Priority)
	}
	if filter.WorkflowType != "" {
		conds = append(conds, "w.workflow_type = ?")
		args = append(args, filter.WorkflowType)
	}
	if filter.SubmitterID != "" {
		conds = append(conds, "r.submitter_id = ?")
		args = append(args, filter.SubmitterID)
	}
	if filter.Institutions != nil {
		if len(filter.Institutions) == 0 {
			conds = append(conds, "1 = 0")
		} else {
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.Institutions)), ",")
			conds = append(conds, fmt.Sprintf("r.institution_id IN (%s)", placeholders))
			for _, id := range filter.Institutions {
				args = append(args, id)
			}
		}
	}
	if filter.CreatedAfter != nil {
		conds = append(conds, "r.created_at >= ?")
		args = append(args, *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		conds = append(conds, "r.created_at <= ?")
		args = append(args, *filter.CreatedBefore)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
