package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/api/handlers"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/config"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/repository/memory"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/workflow"
	apperrors "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/errors"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

type fakeLauncher struct {
	mu         sync.Mutex
	prepareErr error
	prepared   []workflow.Request
	executed   int
}

func (l *fakeLauncher) Prepare(_ context.Context, req workflow.Request) (*workflow.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.prepareErr != nil {
		return nil, l.prepareErr
	}
	l.prepared = append(l.prepared, req)
	return &workflow.Handle{Execution: &domain.Execution{
		ID:       uuid.New(),
		Workflow: req.Workflow,
		Status:   domain.ExecutionStatusRunning,
	}}, nil
}

func (l *fakeLauncher) Execute(context.Context, *workflow.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.executed++
	return nil
}

type fakeArchive struct {
	records []domain.CDR
	next    []byte
	gotDay  time.Time
}

func (a *fakeArchive) ListByConnector(_ context.Context, _ string, day time.Time, _ int, _ []byte) ([]domain.CDR, []byte, error) {
	a.gotDay = day
	return a.records, a.next, nil
}

func newTestServer(deps handlers.Dependencies) (*Server, *handlers.HandlerSet) {
	if deps.Runs == nil {
		deps.Runs = memory.NewRunRepository()
	}
	if deps.Launcher == nil {
		deps.Launcher = &fakeLauncher{}
	}
	deps.Logger = logger.NewNop()
	hs := handlers.NewHandlerSet(deps)
	return NewServer(config.HTTPConfig{Port: 0}, hs), hs
}

func do(t *testing.T, s *Server, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestStartExecutionAccepted(t *testing.T) {
	launcher := &fakeLauncher{}
	s, hs := newTestServer(handlers.Dependencies{Launcher: launcher})

	code, body := do(t, s, http.MethodPost, "/api/v1/executions", `{"workflow":"daily","date":"2024-02-29"}`)
	hs.Wait()

	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "daily", body["workflow"])
	assert.NotEmpty(t, body["id"])

	require.Len(t, launcher.prepared, 1)
	assert.Equal(t, "2024-02-29", launcher.prepared[0].Date)
	assert.Equal(t, 1, launcher.executed)
}

func TestStartExecutionErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"overlap", apperrors.ErrConflict, http.StatusConflict},
		{"invalid", apperrors.ErrValidation, http.StatusBadRequest},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestServer(handlers.Dependencies{Launcher: &fakeLauncher{prepareErr: tc.err}})
			code, body := do(t, s, http.MethodPost, "/api/v1/executions", `{"workflow":"monthly"}`)
			assert.Equal(t, tc.code, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGetExecutionWithRuns(t *testing.T) {
	repo := memory.NewRunRepository()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	exec := &domain.Execution{ID: uuid.New(), Workflow: domain.WorkflowDaily, Status: domain.ExecutionStatusRunning, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreateExecution(ctx, exec))
	run := &domain.OperationRun{ID: uuid.New(), ExecutionID: exec.ID, Kind: domain.OperationETLJob, Target: "cdr-etl", Token: "jr_1", State: domain.RunStateRunning, StartedAt: now}
	require.NoError(t, repo.RecordRun(ctx, run))
	require.NoError(t, repo.FinishRun(ctx, run.ID, domain.RunStateSucceeded, "", now.Add(time.Minute)))

	s, _ := newTestServer(handlers.Dependencies{Runs: repo})

	code, body := do(t, s, http.MethodGet, "/api/v1/executions/"+exec.ID.String(), "")
	require.Equal(t, http.StatusOK, code)
	runs, ok := body["runs"].([]any)
	require.True(t, ok)
	require.Len(t, runs, 1)
	assert.Equal(t, "SUCCEEDED", runs[0].(map[string]any)["state"])

	code, _ = do(t, s, http.MethodGet, "/api/v1/executions/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, s, http.MethodGet, "/api/v1/executions/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, s, http.MethodGet, "/api/v1/executions?workflow=daily", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["executions"], 1)
}

func TestListCDRs(t *testing.T) {
	s, _ := newTestServer(handlers.Dependencies{})
	code, _ := do(t, s, http.MethodGet, "/api/v1/connectors/vc1/cdrs?date=2024-02-29", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	archive := &fakeArchive{
		records: []domain.CDR{{CallID: "c-1", VoiceConnectorID: "vc1"}},
		next:    []byte{0x01, 0x02},
	}
	s, _ = newTestServer(handlers.Dependencies{Archive: archive})

	code, body := do(t, s, http.MethodGet, "/api/v1/connectors/vc1/cdrs?date=2024-02-29", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "AQI", body["next_page_token"])
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), archive.gotDay)

	code, _ = do(t, s, http.MethodGet, "/api/v1/connectors/vc1/cdrs?date=29-02-2024", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, s, http.MethodGet, "/api/v1/connectors/vc1/cdrs?date=2024-02-29&page_token=***", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(handlers.Dependencies{Checks: map[string]handlers.HealthCheck{
		"postgres": func(context.Context) error { return nil },
	}})
	code, _ := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)

	s, _ = newTestServer(handlers.Dependencies{Checks: map[string]handlers.HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}})
	code, body := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "connection refused", body["errors"].(map[string]any)["redis"])
}
