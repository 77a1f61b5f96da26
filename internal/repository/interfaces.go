package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	apperrors "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates the write would violate a state transition.
	ErrConflict = apperrors.ErrConflict
)

// RunRepository keeps the history of workflow executions and the operation
// runs each one launched.
type RunRepository interface {
	CreateExecution(ctx context.Context, exec *domain.Execution) error
	UpdateExecution(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, errMsg string) error
	GetExecution(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	// ListExecutions returns newest first; an empty workflow matches all.
	ListExecutions(ctx context.Context, workflow domain.Workflow, limit int) ([]*domain.Execution, error)

	RecordRun(ctx context.Context, run *domain.OperationRun) error
	// FinishRun moves a RUNNING run to its terminal state. A run that is
	// already terminal yields ErrConflict.
	FinishRun(ctx context.Context, id uuid.UUID, state domain.RunState, errMsg string, finishedAt time.Time) error
	ListRuns(ctx context.Context, executionID uuid.UUID) ([]domain.OperationRun, error)
}

// CDRArchive serves archived records by connector and day.
type CDRArchive interface {
	ListByConnector(ctx context.Context, connectorID string, day time.Time, limit int, pagingState []byte) ([]domain.CDR, []byte, error)
}
