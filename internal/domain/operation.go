package domain

import (
	"time"

	"github.com/google/uuid"
)

// OperationKind identifies the external long-running task behind a run.
type OperationKind string

const (
	OperationETLJob           OperationKind = "etl_job"
	OperationRawCrawler       OperationKind = "raw_crawler"
	OperationProcessedCrawler OperationKind = "processed_crawler"
	OperationQuery            OperationKind = "query"
)

// RunState is the locally observed lifecycle of an operation run. It moves
// from RUNNING to exactly one terminal value.
type RunState string

const (
	RunStateRunning   RunState = "RUNNING"
	RunStateSucceeded RunState = "SUCCEEDED"
	RunStateFailed    RunState = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s RunState) Terminal() bool {
	return s == RunStateSucceeded || s == RunStateFailed
}

// OperationRun tracks one start/poll/terminal triple.
type OperationRun struct {
	ID           uuid.UUID
	ExecutionID  uuid.UUID
	Kind         OperationKind
	Target       string
	Token        string
	State        RunState
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Workflow names an orchestrated chain of operations.
type Workflow string

const (
	WorkflowDaily   Workflow = "daily"
	WorkflowMonthly Workflow = "monthly"
)

// ExecutionStatus enumerates workflow execution states.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusSucceeded ExecutionStatus = "succeeded"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Execution is one pass through a workflow.
type Execution struct {
	ID           uuid.UUID
	Workflow     Workflow
	Input        string
	Status       ExecutionStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Notification is a subject/message pair with an optional retrieval link.
type Notification struct {
	Subject string
	Message string
	Link    string
}
