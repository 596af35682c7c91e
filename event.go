package eventflow

import (
	"time"
)

// EventType identifies the kind of domain event. The set is closed: stores
// persist the string value and reducers switch over it, so new kinds must be
// added here rather than invented at call sites.
type EventType string

const (
	// EventTypeAny is the subscription wildcard. It is never persisted.
	EventTypeAny EventType = "*"

	WorkflowStarted   EventType = "WORKFLOW_STARTED"
	WorkflowCompleted EventType = "WORKFLOW_COMPLETED"
	WorkflowFailed    EventType = "WORKFLOW_FAILED"
	WorkflowCancelled EventType = "WORKFLOW_CANCELLED"
	WorkflowSuspended EventType = "WORKFLOW_SUSPENDED"
	WorkflowResumed   EventType = "WORKFLOW_RESUMED"

	StepStarted   EventType = "STEP_STARTED"
	StepCompleted EventType = "STEP_COMPLETED"
	StepFailed    EventType = "STEP_FAILED"
	StepSkipped   EventType = "STEP_SKIPPED"
	StepRetried   EventType = "STEP_RETRIED"
	StepTimedOut  EventType = "STEP_TIMED_OUT"

	DecisionMade       EventType = "DECISION_MADE"
	DecisionOverridden EventType = "DECISION_OVERRIDDEN"
	ApprovalGranted    EventType = "APPROVAL_GRANTED"
	ApprovalDenied     EventType = "APPROVAL_DENIED"

	TaskAssigned   EventType = "TASK_ASSIGNED"
	TaskReassigned EventType = "TASK_REASSIGNED"
	TaskEscalated  EventType = "TASK_ESCALATED"

	IntegrationCalled    EventType = "INTEGRATION_CALLED"
	IntegrationResponded EventType = "INTEGRATION_RESPONDED"
	IntegrationFailed    EventType = "INTEGRATION_FAILED"

	RuleEvaluated EventType = "RULE_EVALUATED"
	RuleMatched   EventType = "RULE_MATCHED"

	SLAWarning EventType = "SLA_WARNING"
	SLABreach  EventType = "SLA_BREACH"

	UserAction       EventType = "USER_ACTION"
	UserComment      EventType = "USER_COMMENT"
	DocumentUploaded EventType = "DOCUMENT_UPLOADED"

	ConfigurationChanged EventType = "CONFIGURATION_CHANGED"
	ErrorOccurred        EventType = "ERROR_OCCURRED"
	Audit                EventType = "AUDIT"
)

// Event is an immutable fact describing something that happened to one
// workflow instance. Events are grouped into per-instance streams by StreamID
// and ordered within a stream by Version.
//
// Version and GlobalPosition are zero until the event store assigns them at
// append time. Everything else is set by the EventFactory.
type Event struct {
	// ID is the globally unique identifier of this event.
	ID string `json:"id"`

	// StreamID groups events belonging to one workflow instance.
	StreamID string `json:"stream_id"`

	// StepExecutionID optionally scopes the event to one step execution
	// within the stream.
	StepExecutionID string `json:"step_execution_id,omitempty"`

	Type EventType `json:"event_type"`

	// Data is the kind-specific payload, serialised with Marshal. The schema
	// varies per Type and is only interpreted by reducers and projections.
	Data []byte `json:"data,omitempty"`

	// Source names the logical component that emitted the event.
	Source string `json:"source"`

	// UserID is the human actor behind the event, if any.
	UserID string `json:"user_id,omitempty"`

	// CorrelationID ties together all events belonging to one logical
	// business transaction, possibly spanning streams. CausationID is the ID
	// of the event that directly caused this one, forming a causal chain
	// distinct from the correlation grouping.
	CorrelationID string `json:"correlation_id"`
	CausationID   string `json:"causation_id,omitempty"`

	TraceID string `json:"trace_id"`

	CreatedAt time.Time `json:"created_at"`

	// Version is the position of this event within its stream. Within a
	// stream versions are a gapless increasing sequence starting at 1.
	Version int64 `json:"version"`

	// GlobalPosition is the position of this event in the store-wide order
	// used by ListAll for projection catch-up.
	GlobalPosition int64 `json:"global_position"`

	// Meta carries free-form side channel key value data.
	Meta map[string]string `json:"meta,omitempty"`
}
