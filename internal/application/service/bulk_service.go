package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atisplatform/approval-engine/internal/domain/entity"
	domainwf "github.com/atisplatform/approval-engine/internal/domain/workflow"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// BulkConfig bounds bulk operation fan-out
type BulkConfig struct {
	// MaxItems caps the batch size to bound worst-case latency.
	MaxItems int
	// Concurrency is the worker pool size.
	Concurrency int
	// ItemTimeout bounds each per-item act call so one stuck item cannot
	// stall the whole batch.
	ItemTimeout time.Duration
	// JobTTL is how long a finished job stays pollable.
	JobTTL time.Duration
}

// DefaultBulkConfig returns the default bulk configuration
func DefaultBulkConfig() BulkConfig {
	return BulkConfig{
		MaxItems:    500,
		Concurrency: 8,
		ItemTimeout: 5 * time.Second,
		JobTTL:      30 * time.Minute,
	}
}

// BulkInput starts one bulk operation
type BulkInput struct {
	RequestIDs []int64
	Action     string
	Comments   string
	ActorID    string
}

// BulkCoordinator fans one action out across many requests with a
// bounded worker pool, tracking per-item success or failure. A single
// item's failure never aborts the batch.
type BulkCoordinator interface {
	Start(ctx context.Context, in BulkInput) (string, error)
	Progress(jobID string) (*entity.BulkProgress, error)
	Result(jobID string) (*entity.BulkJob, error)
	Cancel(jobID string) error
}

// jobState is the live coordinator state for one job. The mutex guards
// the job struct; workers from different goroutines append results
// concurrently.
type jobState struct {
	mu        sync.Mutex
	job       *entity.BulkJob
	cancelled bool
}

type bulkCoordinator struct {
	engine WorkflowEngine
	jobs   *gocache.Cache
	config BulkConfig
	logger Logger
}

// NewBulkCoordinator creates the bulk operation coordinator. Finished
// jobs expire from the store after the configured TTL.
func NewBulkCoordinator(engine WorkflowEngine, config BulkConfig, logger Logger) BulkCoordinator {
	return &bulkCoordinator{
		engine: engine,
		jobs:   gocache.New(gocache.NoExpiration, 10*time.Minute),
		config: config,
		logger: logger,
	}
}

// Start validates the batch up front and launches the worker pool.
// Input errors (empty selection, oversize batch, missing comments)
// surface before any item is processed, so a batch never partially
// proceeds on a validation failure.
func (c *bulkCoordinator) Start(ctx context.Context, in BulkInput) (string, error) {
	if len(in.RequestIDs) == 0 {
		return "", entity.ErrEmptySelection
	}
	if len(in.RequestIDs) > c.config.MaxItems {
		return "", fmt.Errorf("%w: %d items, limit %d", entity.ErrTooManyItems, len(in.RequestIDs), c.config.MaxItems)
	}

	trigger := domainwf.Trigger(in.Action)
	if !trigger.IsValid() {
		return "", fmt.Errorf("%w: %q", entity.ErrInvalidAction, in.Action)
	}
	if (trigger == domainwf.TriggerReject || trigger == domainwf.TriggerReturn) && strings.TrimSpace(in.Comments) == "" {
		return "", fmt.Errorf("%w: %s", entity.ErrCommentRequired, trigger)
	}

	state := &jobState{
		job: &entity.BulkJob{
			ID:         uuid.NewString(),
			RequestIDs: in.RequestIDs,
			Action:     in.Action,
			Comments:   in.Comments,
			ActorID:    in.ActorID,
			Status:     entity.BulkStatusRunning,
			Results:    make(map[int64]entity.BulkItemResult, len(in.RequestIDs)),
			TotalCount: len(in.RequestIDs),
			StartedAt:  time.Now(),
		},
	}
	c.jobs.Set(state.job.ID, state, gocache.NoExpiration)

	c.logger.Info("Bulk operation started",
		"job_id", state.job.ID,
		"action", in.Action,
		"actor_id", in.ActorID,
		"total", len(in.RequestIDs))

	go c.run(state, in)

	return state.job.ID, nil
}

// run drives the worker pool. Cancellation is cooperative: the flag is
// checked before dispatching each remaining item, and in-flight items
// always finish.
func (c *bulkCoordinator) run(state *jobState, in BulkInput) {
	ids := make(chan int64)
	var wg sync.WaitGroup

	concurrency := c.config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				c.processItem(state, in, id)
			}
		}()
	}

	for _, id := range in.RequestIDs {
		state.mu.Lock()
		cancelled := state.cancelled
		state.mu.Unlock()
		if cancelled {
			break
		}
		ids <- id
	}
	close(ids)
	wg.Wait()

	now := time.Now()
	state.mu.Lock()
	if state.cancelled {
		state.job.Status = entity.BulkStatusCancelled
	} else {
		state.job.Status = entity.BulkStatusCompleted
	}
	state.job.FinishedAt = &now
	jobID := state.job.ID
	status := state.job.Status
	processed := state.job.ProcessedCount
	state.mu.Unlock()

	// Finished jobs stay pollable until the TTL runs out.
	c.jobs.Set(jobID, state, c.config.JobTTL)

	c.logger.Info("Bulk operation finished",
		"job_id", jobID,
		"status", status,
		"processed", processed)
}

func (c *bulkCoordinator) processItem(state *jobState, in BulkInput, requestID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.ItemTimeout)
	defer cancel()

	input := ActInput{
		RequestID: requestID,
		ActorID:   in.ActorID,
		Action:    in.Action,
		Comments:  in.Comments,
	}
	if domainwf.Trigger(in.Action) == domainwf.TriggerReturn {
		// Bulk returns send every item back to the start of its chain.
		// Items already sitting at level 1 fail their own validation and
		// are recorded as per-item failures.
		input.ReturnToLevel = 1
	}

	_, err := c.engine.Act(ctx, input)

	result := entity.BulkItemResult{RequestID: requestID, OK: err == nil}
	if err != nil {
		result.Error = err.Error()
	}

	state.mu.Lock()
	state.job.Results[requestID] = result
	state.job.ProcessedCount++
	state.mu.Unlock()
}

// Progress returns a monotonic snapshot of the job's counters
func (c *bulkCoordinator) Progress(jobID string) (*entity.BulkProgress, error) {
	state, err := c.lookup(jobID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return &entity.BulkProgress{
		JobID:          state.job.ID,
		Status:         state.job.Status,
		ProcessedCount: state.job.ProcessedCount,
		TotalCount:     state.job.TotalCount,
	}, nil
}

// Result returns a copy of the full job including per-item outcomes
func (c *bulkCoordinator) Result(jobID string) (*entity.BulkJob, error) {
	state, err := c.lookup(jobID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	snapshot := *state.job
	snapshot.Results = make(map[int64]entity.BulkItemResult, len(state.job.Results))
	for id, r := range state.job.Results {
		snapshot.Results[id] = r
	}
	return &snapshot, nil
}

// Cancel stops dispatching new items. In-flight items finish and their
// results are retained. Cancelling a finished job is a no-op.
func (c *bulkCoordinator) Cancel(jobID string) error {
	state, err := c.lookup(jobID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.job.Status == entity.BulkStatusRunning {
		state.cancelled = true
	}
	return nil
}

func (c *bulkCoordinator) lookup(jobID string) (*jobState, error) {
	v, found := c.jobs.Get(jobID)
	if !found {
		return nil, fmt.Errorf("%w: %s", entity.ErrJobNotFound, jobID)
	}
	return v.(*jobState), nil
}
