// Package messages defines the in-process message types the post office
// mailboxes carry between core loops (spec.md §2 components 3, 7-13),
// grounded on original_source/src/messages.rs and original_source/src/tokens.rs.
package messages

import (
	"time"

	"github.com/google/uuid"

	"github.com/waterwheel-project/waterwheel/internal/model"
)

// TokenRef identifies a token by its primary key, embedded in every token
// and execute message per spec.md §6 ("Tokens embed {task_id,
// trigger_datetime}").
type TokenRef struct {
	TaskID          uuid.UUID
	TriggerDatetime time.Time
}

// Increment tells the token processor that a token's count may have crossed
// its threshold. The processor does not write the count and does not read
// Delta: the sender records the increment itself.
type Increment struct {
	Token    TokenRef
	Priority model.Priority
	Delta    int
}

// Activate asks the token processor to bypass the threshold check and emit
// Execute immediately (spec.md §4.4 "Activate" — manual task creation).
type Activate struct {
	Token    TokenRef
	Priority model.Priority
}

// Execute asks the dispatcher to write a TaskRun and publish a task
// message. Attempt is the attempt number the new TaskRun should carry; 0
// unless this Execute originates from a retry or requeue.
type Execute struct {
	Token    TokenRef
	Priority model.Priority
	Attempt  int
}

// TriggerAdd asks the trigger engine to enqueue the next fire instants for
// the given trigger ids — emitted by the cluster module when this node
// gains ownership (spec.md §4.9).
type TriggerAdd struct {
	TriggerIDs []uuid.UUID
}

// TriggerRemove asks the trigger engine to discard heap entries for the
// given trigger ids — emitted when this node loses ownership.
type TriggerRemove struct {
	TriggerIDs []uuid.UUID
}

// SubmitRetry asks the retry scheduler to track a new pending retry,
// keeping its min-heap in sync without losing the current head
// (spec.md §4.7).
type SubmitRetry struct {
	TaskRunID uuid.UUID
	RetryAt   time.Time
}

// TaskMessage is the wire schema published to the tasks exchange
// (spec.md §6).
type TaskMessage struct {
	TaskRunID       uuid.UUID `json:"task_run_id"`
	TaskID          uuid.UUID `json:"task_id"`
	TriggerDatetime time.Time `json:"trigger_datetime"`
	Priority        string    `json:"priority"`
}

// ProgressMessage is the wire schema published to the results exchange
// (spec.md §6). Result is one of running|success|failure|error.
type ProgressMessage struct {
	TaskRunID       uuid.UUID  `json:"task_run_id"`
	TaskID          uuid.UUID  `json:"task_id"`
	TriggerDatetime time.Time  `json:"trigger_datetime"`
	StartedDatetime *time.Time `json:"started_datetime,omitempty"`
	FinishedDatetime *time.Time `json:"finished_datetime,omitempty"`
	Result          string     `json:"result"`
	WorkerID        uuid.UUID  `json:"worker_id"`
	Priority        string     `json:"priority"`
}

// TriggerUpdateMessage is the wire schema published to updates.triggers:
// a set of trigger ids whose definition changed and should be reloaded.
type TriggerUpdateMessage struct {
	UUIDs []uuid.UUID `json:"uuids"`
}

// TokenUpdateMessage is the wire schema published to updates.tokens. Kind
// selects which of the three operations the receiving scheduler should
// apply; exactly one of the payload fields is populated per Kind.
type TokenUpdateMessage struct {
	Kind     string    `json:"kind"` // increment|activate|clear
	TaskID   uuid.UUID `json:"task_id"`
	TriggerDatetime time.Time `json:"trigger_datetime"`
	Priority string    `json:"priority,omitempty"`
}

// ConfigUpdateMessage is the wire schema published to the config fanout
// exchange: a project or task definition changed and worker caches should
// invalidate it.
type ConfigUpdateMessage struct {
	Kind string    `json:"kind"` // project|task_def
	UUID uuid.UUID `json:"uuid"`
}

// WorkerHeartbeatMessage is the int-api heartbeat request/wire body.
type WorkerHeartbeatMessage struct {
	UUID             uuid.UUID `json:"uuid"`
	Addr             string    `json:"addr"`
	LastSeenDatetime time.Time `json:"last_seen_datetime"`
	RunningTasks     int       `json:"running_tasks"`
	TotalTasks       int       `json:"total_tasks"`
	Version          string    `json:"version"`
}
