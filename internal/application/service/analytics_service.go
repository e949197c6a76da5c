package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/atisplatform/approval-engine/internal/application/port"
	"github.com/atisplatform/approval-engine/internal/domain/entity"
)

// AnalyticsInput scopes an analytics query. The period defaults to the
// last month when unset.
type AnalyticsInput struct {
	ActorID string
	From    *time.Time
	To      *time.Time
}

// TypeRate is the approval rate for one workflow type
type TypeRate struct {
	WorkflowType string  `json:"workflow_type"`
	Total        int64   `json:"total"`
	Approved     int64   `json:"approved"`
	ApprovalRate float64 `json:"approval_rate"`
}

// AnalyticsReport summarizes approval activity within the caller's scope
type AnalyticsReport struct {
	StatusDistribution     map[string]int64 `json:"status_distribution"`
	AverageProcessingHours float64          `json:"average_processing_time_hours"`
	WorkflowStatistics     []TypeRate       `json:"workflow_statistics"`
	TotalRequests          int64            `json:"total_requests"`
	PeriodFrom             time.Time        `json:"period_from"`
	PeriodTo               time.Time        `json:"period_to"`
}

// AnalyticsService aggregates approval statistics. All queries are
// intersected with the caller's visible scope.
type AnalyticsService interface {
	Overview(ctx context.Context, in AnalyticsInput) (*AnalyticsReport, error)
}

type analyticsService struct {
	requestRepo port.RequestRepository
	identity    port.IdentityProvider
	gate        AuthorizationGate
	logger      Logger
}

// NewAnalyticsService creates the analytics service
func NewAnalyticsService(requestRepo port.RequestRepository, identity port.IdentityProvider, gate AuthorizationGate, logger Logger) AnalyticsService {
	return &analyticsService{
		requestRepo: requestRepo,
		identity:    identity,
		gate:        gate,
		logger:      logger,
	}
}

// Overview builds the status distribution, processing-time average and
// per-type approval rates for the period.
func (s *analyticsService) Overview(ctx context.Context, in AnalyticsInput) (*AnalyticsReport, error) {
	actor, err := s.identity.Resolve(ctx, in.ActorID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrForbidden, in.ActorID)
	}

	scope, err := s.gate.VisibleScope(ctx, actor)
	if err != nil {
		return nil, err
	}

	to := time.Now()
	if in.To != nil {
		to = *in.To
	}
	from := to.AddDate(0, -1, 0)
	if in.From != nil {
		from = *in.From
	}

	filter := port.RequestFilter{
		Institutions:  scope,
		CreatedAfter:  &from,
		CreatedBefore: &to,
	}

	statusCounts, err := s.requestRepo.CountByStatus(ctx, filter)
	if err != nil {
		return nil, err
	}

	distribution := make(map[string]int64, len(statusCounts))
	var total int64
	for _, sc := range statusCounts {
		distribution[sc.Status] = sc.Count
		total += sc.Count
	}

	avgHours, err := s.requestRepo.AverageProcessingHours(ctx, filter)
	if err != nil {
		return nil, err
	}

	typeStats, err := s.requestRepo.StatsByType(ctx, filter)
	if err != nil {
		return nil, err
	}

	rates := make([]TypeRate, 0, len(typeStats))
	for _, ts := range typeStats {
		rate := TypeRate{
			WorkflowType: ts.WorkflowType,
			Total:        ts.Total,
			Approved:     ts.Approved,
		}
		if ts.Total > 0 {
			rate.ApprovalRate = math.Round(float64(ts.Approved)/float64(ts.Total)*10000) / 100
		}
		rates = append(rates, rate)
	}

	return &AnalyticsReport{
		StatusDistribution:     distribution,
		AverageProcessingHours: math.Round(avgHours*100) / 100,
		WorkflowStatistics:     rates,
		TotalRequests:          total,
		PeriodFrom:             from,
		PeriodTo:               to,
	}, nil
}
