// Package model defines the scheduling kernel's entities: the projects, jobs,
// tasks, triggers, and edges users define, and the tokens, task runs, and
// retries the kernel mutates while driving them.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority is the dispatch priority carried on task messages and task runs.
// It maps directly onto the tasks queue's AMQP priority header (0..3).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "normal"
	}
}

// ParsePriority parses the wire representation of a Priority. Unknown values
// default to normal rather than erroring, per the forward-compatibility rule
// in the external interfaces ("unknown fields must be ignored").
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "urgent":
		return PriorityUrgent
	default:
		return PriorityNormal
	}
}

// Project is the top-level namespace a job belongs to.
type Project struct {
	ID          uuid.UUID
	Name        string
	Description string
	Config      []byte // raw JSON blob, opaque to the core
}

// Job is a user-defined DAG of tasks, triggered by one or more Triggers.
type Job struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	Name          string
	Paused        bool
	RawDefinition string
}

// Task is one executable node of a Job's DAG.
type Task struct {
	ID               uuid.UUID
	JobID            uuid.UUID
	Name             string
	Threshold        int // ≥ 1; number of distinct upstream completions required to fire
	RetryMaxAttempts int
	RetryDelaySecs   int
	TimeoutSecs      int
	Image            string // empty ⇒ task has no container, completes immediately
	Args             []string
	Env              []string
}

// CatchupPolicy governs how a trigger's missed firings are replayed at boot.
type CatchupPolicy int

const (
	CatchupNone CatchupPolicy = iota
	CatchupAll
)

// Trigger fires at a cadence of either a fixed period or a cron expression —
// never both (Open Question #3, resolved: enforced here and by a DB CHECK).
type Trigger struct {
	ID            uuid.UUID
	JobID         uuid.UUID
	Name          string
	Start         time.Time
	End           *time.Time
	EarliestFired *time.Time
	LatestFired   *time.Time
	PeriodSecs    *int
	Cron          *string
	OffsetSecs    int
	Catchup       CatchupPolicy
}

// Validate enforces the period-XOR-cron invariant at construction time, the
// Go-level half of Open Question #3's resolution.
func (t *Trigger) Validate() error {
	hasPeriod := t.PeriodSecs != nil
	hasCron := t.Cron != nil && *t.Cron != ""
	if hasPeriod == hasCron {
		return fmt.Errorf("model: trigger %s must set exactly one of period_secs or cron", t.ID)
	}
	if t.EarliestFired != nil && t.LatestFired != nil && t.LatestFired.Before(*t.EarliestFired) {
		return fmt.Errorf("model: trigger %s has latest_fired before earliest_fired", t.ID)
	}
	return nil
}

// EdgeKind is the completion kind a TaskEdge propagates on.
type EdgeKind int

const (
	EdgeSuccess EdgeKind = iota
	EdgeFailure
)

func ParseEdgeKind(s string) (EdgeKind, error) {
	switch s {
	case "success":
		return EdgeSuccess, nil
	case "failure":
		return EdgeFailure, nil
	default:
		return 0, fmt.Errorf("model: unknown edge kind %q", s)
	}
}

func (k EdgeKind) String() string {
	if k == EdgeFailure {
		return "failure"
	}
	return "success"
}

// TaskEdge connects a parent task's completion of a given kind to a child
// task's token.
type TaskEdge struct {
	ParentTaskID   uuid.UUID
	ChildTaskID    uuid.UUID
	Kind           EdgeKind
	EdgeOffsetSecs int
}

// TriggerEdge connects a trigger firing to a task's token.
type TriggerEdge struct {
	TriggerID      uuid.UUID
	TaskID         uuid.UUID
	EdgeOffsetSecs int
}

// TokenState is the lifecycle state of a Token. Transitions are governed by
// TokenState.CanTransitionTo, the explicit allow-list resolving Open
// Question #2.
type TokenState int

const (
	TokenWaiting TokenState = iota
	TokenActive
	TokenRunning
	TokenSuccess
	TokenFailure
	TokenError
)

func (s TokenState) String() string {
	switch s {
	case TokenActive:
		return "active"
	case TokenRunning:
		return "running"
	case TokenSuccess:
		return "success"
	case TokenFailure:
		return "failure"
	case TokenError:
		return "error"
	default:
		return "waiting"
	}
}

func ParseTokenState(s string) (TokenState, error) {
	switch s {
	case "waiting":
		return TokenWaiting, nil
	case "active":
		return TokenActive, nil
	case "running":
		return TokenRunning, nil
	case "success":
		return TokenSuccess, nil
	case "failure":
		return TokenFailure, nil
	case "error":
		return TokenError, nil
	default:
		return 0, fmt.Errorf("model: unknown token state %q", s)
	}
}

// tokenTransitions is the explicit allow-list resolving Open Question #2:
// store.SetTokenState forbids backward moves. Two writes bypass this map
// entirely by updating the row directly: the API's Clear (count=0,
// state=waiting), and store.DispatchToken, which sets state=active from any
// state, including a terminal one when a retry or requeue re-dispatches.
var tokenTransitions = map[TokenState]map[TokenState]bool{
	TokenWaiting: {TokenWaiting: true, TokenActive: true},
	TokenActive:  {TokenActive: true, TokenRunning: true, TokenSuccess: true, TokenFailure: true, TokenError: true},
	TokenRunning: {TokenRunning: true, TokenSuccess: true, TokenFailure: true, TokenError: true},
	// Terminal states only re-affirm themselves; a duplicate progress
	// delivery for an already-terminal token is a no-op, not an error.
	TokenSuccess: {TokenSuccess: true},
	TokenFailure: {TokenFailure: true},
	TokenError:   {TokenError: true},
}

// CanTransitionTo reports whether moving from s to next is permitted.
func (s TokenState) CanTransitionTo(next TokenState) bool {
	allowed, ok := tokenTransitions[s]
	return ok && allowed[next]
}

// Token is the count+state cell at (task_id, trigger_datetime).
type Token struct {
	TaskID         uuid.UUID
	TriggerDatetime time.Time
	Count          int
	State          TokenState
}

// TaskRunState mirrors the terminal/intermediate states a progress message
// carries, plus the dispatcher-only "active" state a run starts in.
type TaskRunState int

const (
	TaskRunActive TaskRunState = iota
	TaskRunRunning
	TaskRunSuccess
	TaskRunFailure
	TaskRunError
)

func (s TaskRunState) String() string {
	switch s {
	case TaskRunRunning:
		return "running"
	case TaskRunSuccess:
		return "success"
	case TaskRunFailure:
		return "failure"
	case TaskRunError:
		return "error"
	default:
		return "active"
	}
}

func ParseTaskRunState(s string) (TaskRunState, error) {
	switch s {
	case "active":
		return TaskRunActive, nil
	case "running":
		return TaskRunRunning, nil
	case "success":
		return TaskRunSuccess, nil
	case "failure":
		return TaskRunFailure, nil
	case "error":
		return TaskRunError, nil
	default:
		return 0, fmt.Errorf("model: unknown task run state %q", s)
	}
}

// IsTerminal reports whether s is one of the states the progress processor
// treats as terminal (propagates along edges, may schedule a retry).
func (s TaskRunState) IsTerminal() bool {
	return s == TaskRunSuccess || s == TaskRunFailure || s == TaskRunError
}

// TaskRun is one execution attempt of a task at a specific trigger_datetime.
type TaskRun struct {
	ID              uuid.UUID
	TaskID          uuid.UUID
	TriggerDatetime time.Time
	Attempt         int
	QueuedAt        time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	WorkerID        *uuid.UUID
	State           TaskRunState
	Priority        Priority
	UpdatedAt       time.Time
}

// Retry is a pending re-dispatch of a failed TaskRun.
type Retry struct {
	TaskRunID uuid.UUID
	RetryAt   time.Time
}

// WorkerHeartbeat is the last-seen row for a worker process.
type WorkerHeartbeat struct {
	ID           uuid.UUID
	Addr         string
	LastSeen     time.Time
	RunningTasks int
	TotalTasks   int
	Version      string
}

// SchedulerHeartbeat is the last-seen row for a scheduler cluster member.
type SchedulerHeartbeat struct {
	ID       uuid.UUID
	Addr     string
	LastSeen time.Time
}
