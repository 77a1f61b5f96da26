package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/repository"
)

// RunRepository implements repository.RunRepository using PostgreSQL.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs a new repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateExecution inserts a new workflow execution.
func (r *RunRepository) CreateExecution(ctx context.Context, exec *domain.Execution) error {
	q := `INSERT INTO workflow_executions (
		id, workflow, input, status, error_message, created_at, updated_at
	) VALUES (
		:id, :workflow, :input, :status, :error_message, :created_at, :updated_at
	)`

	if _, err := r.db.NamedExecContext(ctx, q, executionRecordFrom(exec)); err != nil {
		return fmt.Errorf("run repo: insert execution: %w", err)
	}
	return nil
}

// UpdateExecution sets the execution status.
func (r *RunRepository) UpdateExecution(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, errMsg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE workflow_executions SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4`,
		status, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("run repo: update execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("run repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetExecution fetches an execution by id.
func (r *RunRepository) GetExecution(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT id, workflow, input, status, error_message, created_at, updated_at
	  FROM workflow_executions WHERE id = $1`, id)

	var record executionRecord
	if err := row.StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("run repo: get execution: %w", err)
	}
	exec := record.toDomain()
	return &exec, nil
}

// ListExecutions returns the most recent executions of a workflow, or of all
// workflows when workflow is empty.
func (r *RunRepository) ListExecutions(ctx context.Context, workflow domain.Workflow, limit int) ([]*domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT id, workflow, input, status, error_message, created_at, updated_at
		FROM workflow_executions WHERE ($1::text = '' OR workflow = $1::text) ORDER BY created_at DESC LIMIT $2`, workflow, limit)
	if err != nil {
		return nil, fmt.Errorf("run repo: list executions: %w", err)
	}
	defer rows.Close()

	var results []*domain.Execution
	for rows.Next() {
		var record executionRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("run repo: scan execution: %w", err)
		}
		exec := record.toDomain()
		results = append(results, &exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("run repo: rows err: %w", err)
	}
	return results, nil
}

// RecordRun inserts a freshly launched operation run.
func (r *RunRepository) RecordRun(ctx context.Context, run *domain.OperationRun) error {
	q := `INSERT INTO operation_runs (
		id, execution_id, kind, target, token, state, error_message, started_at, finished_at
	) VALUES (
		:id, :execution_id, :kind, :target, :token, :state, :error_message, :started_at, :finished_at
	)`

	if _, err := r.db.NamedExecContext(ctx, q, runRecordFrom(run)); err != nil {
		return fmt.Errorf("run repo: insert run: %w", err)
	}
	return nil
}

// FinishRun records the terminal state of a run exactly once.
func (r *RunRepository) FinishRun(ctx context.Context, id uuid.UUID, state domain.RunState, errMsg string, finishedAt time.Time) error {
	if !state.Terminal() {
		return fmt.Errorf("run repo: finish run: %s is not terminal: %w", state, repository.ErrConflict)
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var current string
		if err := tx.QueryRowxContext(ctx, `SELECT state FROM operation_runs WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repository.ErrNotFound
			}
			return fmt.Errorf("run repo: lock run: %w", err)
		}
		if domain.RunState(current).Terminal() {
			return fmt.Errorf("run repo: run %s already %s: %w", id, current, repository.ErrConflict)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE operation_runs SET state = $1, error_message = $2, finished_at = $3 WHERE id = $4`,
			state, errMsg, finishedAt, id); err != nil {
			return fmt.Errorf("run repo: finish run: %w", err)
		}
		return nil
	})
}

// ListRuns returns the runs of one execution in launch order.
func (r *RunRepository) ListRuns(ctx context.Context, executionID uuid.UUID) ([]domain.OperationRun, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id, execution_id, kind, target, token, state, error_message, started_at, finished_at
		FROM operation_runs WHERE execution_id = $1 ORDER BY started_at ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("run repo: list runs: %w", err)
	}
	defer rows.Close()

	var results []domain.OperationRun
	for rows.Next() {
		var record runRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("run repo: scan run: %w", err)
		}
		results = append(results, record.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("run repo: rows err: %w", err)
	}
	return results, nil
}

type executionRecord struct {
	ID           uuid.UUID `db:"id"`
	Workflow     string    `db:"workflow"`
	Input        string    `db:"input"`
	Status       string    `db:"status"`
	ErrorMessage string    `db:"error_message"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func executionRecordFrom(e *domain.Execution) executionRecord {
	return executionRecord{
		ID:           e.ID,
		Workflow:     string(e.Workflow),
		Input:        e.Input,
		Status:       string(e.Status),
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func (r executionRecord) toDomain() domain.Execution {
	return domain.Execution{
		ID:           r.ID,
		Workflow:     domain.Workflow(r.Workflow),
		Input:        r.Input,
		Status:       domain.ExecutionStatus(r.Status),
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type runRecord struct {
	ID           uuid.UUID  `db:"id"`
	ExecutionID  uuid.UUID  `db:"execution_id"`
	Kind         string     `db:"kind"`
	Target       string     `db:"target"`
	Token        string     `db:"token"`
	State        string     `db:"state"`
	ErrorMessage string     `db:"error_message"`
	StartedAt    time.Time  `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
}

func runRecordFrom(run *domain.OperationRun) runRecord {
	return runRecord{
		ID:           run.ID,
		ExecutionID:  run.ExecutionID,
		Kind:         string(run.Kind),
		Target:       run.Target,
		Token:        run.Token,
		State:        string(run.State),
		ErrorMessage: run.ErrorMessage,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
	}
}

func (r runRecord) toDomain() domain.OperationRun {
	return domain.OperationRun{
		ID:           r.ID,
		ExecutionID:  r.ExecutionID,
		Kind:         domain.OperationKind(r.Kind),
		Target:       r.Target,
		Token:        r.Token,
		State:        domain.RunState(r.State),
		ErrorMessage: r.ErrorMessage,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
}
