// Package memory keeps run history in process, for deployments without a
// database and for tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/repository"
)

// RunRepository is a mutex-guarded in-memory repository.RunRepository.
type RunRepository struct {
	mu         sync.RWMutex
	executions map[uuid.UUID]domain.Execution
	runs       map[uuid.UUID]domain.OperationRun
	order      []uuid.UUID
}

// NewRunRepository constructs an empty repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{
		executions: make(map[uuid.UUID]domain.Execution),
		runs:       make(map[uuid.UUID]domain.OperationRun),
	}
}

func (r *RunRepository) CreateExecution(_ context.Context, exec *domain.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executions[exec.ID]; ok {
		return fmt.Errorf("execution %s: %w", exec.ID, repository.ErrConflict)
	}
	r.executions[exec.ID] = *exec
	return nil
}

func (r *RunRepository) UpdateExecution(_ context.Context, id uuid.UUID, status domain.ExecutionStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.executions[id]
	if !ok {
		return repository.ErrNotFound
	}
	exec.Status = status
	exec.ErrorMessage = errMsg
	exec.UpdatedAt = time.Now().UTC()
	r.executions[id] = exec
	return nil
}

func (r *RunRepository) GetExecution(_ context.Context, id uuid.UUID) (*domain.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &exec, nil
}

func (r *RunRepository) ListExecutions(_ context.Context, workflow domain.Workflow, limit int) ([]*domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*domain.Execution
	for _, exec := range r.executions {
		if workflow != "" && exec.Workflow != workflow {
			continue
		}
		exec := exec
		results = append(results, &exec)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *RunRepository) RecordRun(_ context.Context, run *domain.OperationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; ok {
		return fmt.Errorf("run %s: %w", run.ID, repository.ErrConflict)
	}
	r.runs[run.ID] = *run
	r.order = append(r.order, run.ID)
	return nil
}

func (r *RunRepository) FinishRun(_ context.Context, id uuid.UUID, state domain.RunState, errMsg string, finishedAt time.Time) error {
	if !state.Terminal() {
		return fmt.Errorf("finish run: %s is not terminal: %w", state, repository.ErrConflict)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if run.State.Terminal() {
		return fmt.Errorf("run %s already %s: %w", id, run.State, repository.ErrConflict)
	}
	run.State = state
	run.ErrorMessage = errMsg
	run.FinishedAt = &finishedAt
	r.runs[id] = run
	return nil
}

func (r *RunRepository) ListRuns(_ context.Context, executionID uuid.UUID) ([]domain.OperationRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var results []domain.OperationRun
	for _, id := range r.order {
		if run := r.runs[id]; run.ExecutionID == executionID {
			results = append(results, run)
		}
	}
	return results, nil
}
