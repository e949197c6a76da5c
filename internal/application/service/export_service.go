package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/atisplatform/approval-engine/internal/application/port"
	"github.com/atisplatform/approval-engine/internal/domain/entity"
	"github.com/xuri/excelize/v2"
)

// ExportService renders approval listings as XLSX workbooks. The
// listing honors the same scope intersection as List.
type ExportService interface {
	ExportRequests(ctx context.Context, in ListInput) ([]byte, error)
}

type exportService struct {
	engine       WorkflowEngine
	workflowRepo port.WorkflowRepository
	logger       Logger
}

// NewExportService creates the XLSX export service
func NewExportService(engine WorkflowEngine, workflowRepo port.WorkflowRepository, logger Logger) ExportService {
	return &exportService{
		engine:       engine,
		workflowRepo: workflowRepo,
		logger:       logger,
	}
}

var exportHeaders = []string{
	"ID", "Workflow Type", "Institution", "Submitter", "Status",
	"Priority", "Current Level", "Deadline", "Overdue", "Submitted At",
}

// ExportRequests writes the filtered listing into a single-sheet
// workbook and returns the serialized bytes.
func (s *exportService) ExportRequests(ctx context.Context, in ListInput) ([]byte, error) {
	// Export the full filtered set, not one page.
	in.Page = 1
	in.PerPage = 100
	var all []*entity.ApprovalRequest
	for {
		result, err := s.engine.List(ctx, in)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Requests...)
		if len(result.Requests) < in.PerPage {
			break
		}
		in.Page++
	}

	defs := make(map[int64]*entity.WorkflowDefinition)
	now := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Approvals"
	f.SetSheetName(f.GetSheetName(0), sheetName)

	for col, header := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to compute header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, req := range all {
		def, ok := defs[req.WorkflowID]
		if !ok {
			var err error
			def, err = s.workflowRepo.GetByID(ctx, req.WorkflowID)
			if err != nil {
				return nil, err
			}
			defs[req.WorkflowID] = def
		}

		workflowType := ""
		if def != nil {
			workflowType = def.WorkflowType
		}

		deadline := ""
		if req.Deadline != nil {
			deadline = req.Deadline.Format("2006-01-02 15:04")
		}

		values := []interface{}{
			req.ID,
			workflowType,
			req.InstitutionID,
			req.SubmitterID,
			req.Status,
			req.Priority,
			req.CurrentLevel,
			deadline,
			req.IsOverdue(now),
			req.CreatedAt.Format("2006-01-02 15:04"),
		}

		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("failed to compute cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	s.logger.Info("Exported approval listing", "rows", len(all))
	return buf.Bytes(), nil
}
