package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/repository"
)

func TestRunLifecycleIsMonotonic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRunRepository()
	execID := uuid.New()
	require.NoError(t, repo.CreateExecution(ctx, &domain.Execution{ID: execID, Workflow: domain.WorkflowDaily, Status: domain.ExecutionStatusRunning}))

	run := &domain.OperationRun{ID: uuid.New(), ExecutionID: execID, Kind: domain.OperationETLJob, Target: "X", Token: "jr_1", State: domain.RunStateRunning, StartedAt: time.Now()}
	require.NoError(t, repo.RecordRun(ctx, run))
	assert.ErrorIs(t, repo.RecordRun(ctx, run), repository.ErrConflict)

	assert.ErrorIs(t, repo.FinishRun(ctx, run.ID, domain.RunStateRunning, "", time.Now()), repository.ErrConflict)
	require.NoError(t, repo.FinishRun(ctx, run.ID, domain.RunStateSucceeded, "", time.Now()))
	assert.ErrorIs(t, repo.FinishRun(ctx, run.ID, domain.RunStateFailed, "late", time.Now()), repository.ErrConflict)
	assert.ErrorIs(t, repo.FinishRun(ctx, uuid.New(), domain.RunStateFailed, "", time.Now()), repository.ErrNotFound)

	runs, err := repo.ListRuns(ctx, execID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStateSucceeded, runs[0].State)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestExecutions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRunRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, repo.CreateExecution(ctx, &domain.Execution{
			ID: id, Workflow: domain.WorkflowDaily, Status: domain.ExecutionStatusRunning, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, repo.CreateExecution(ctx, &domain.Execution{ID: uuid.New(), Workflow: domain.WorkflowMonthly}))

	list, err := repo.ListExecutions(ctx, domain.WorkflowDaily, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)

	require.NoError(t, repo.UpdateExecution(ctx, ids[0], domain.ExecutionStatusFailed, "Error in ETL. Status: FAILED"))
	got, err := repo.GetExecution(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, got.Status)

	_, err = repo.GetExecution(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateExecution(ctx, uuid.New(), domain.ExecutionStatusFailed, ""), repository.ErrNotFound)
}
