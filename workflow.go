package eventflow

import (
	"context"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// WorkflowState is the in-memory state of one workflow instance, derived
// purely by folding the stream's events. It is never persisted directly;
// snapshots store a serialised copy as a cache only.
type WorkflowState struct {
	Status            Status         `json:"status"`
	Suspended         bool           `json:"suspended"`
	CurrentStep       string         `json:"current_step"`
	AssignedTo        string         `json:"assigned_to"`
	DefinitionID      string         `json:"definition_id"`
	DefinitionVersion int            `json:"definition_version"`
	EntityType        string         `json:"entity_type"`
	EntityID          string         `json:"entity_id"`
	Variables         map[string]any `json:"variables"`
}

// Payload schemas for the events the workflow reducer interprets. Events of
// other types are valid members of a stream but fold as no-ops.

type WorkflowStartedData struct {
	DefinitionID      string         `json:"definition_id"`
	DefinitionVersion int            `json:"definition_version"`
	EntityType        string         `json:"entity_type"`
	EntityID          string         `json:"entity_id"`
	Input             map[string]any `json:"input,omitempty"`
	Priority          string         `json:"priority,omitempty"`
	AssignedTo        string         `json:"assigned_to,omitempty"`
}

type StepStartedData struct {
	StepID     string         `json:"step_id"`
	StepName   string         `json:"step_name"`
	StepType   string         `json:"step_type"`
	Input      map[string]any `json:"input,omitempty"`
	AssignedTo string         `json:"assigned_to,omitempty"`
	Timeout    time.Duration  `json:"timeout,omitempty"`
}

type DecisionMadeData struct {
	Decision     string   `json:"decision"`
	Rationale    string   `json:"rationale,omitempty"`
	Confidence   float64  `json:"confidence"`
	RulesApplied []string `json:"rules_applied,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	ReviewerID   string   `json:"reviewer_id,omitempty"`
}

type WorkflowCompletedData struct {
	Output map[string]any `json:"output,omitempty"`
}

type WorkflowFailedData struct {
	Reason string `json:"reason"`
}

type WorkflowCancelledData struct {
	Reason string `json:"reason,omitempty"`
}

type WorkflowSuspendedData struct {
	Reason string `json:"reason,omitempty"`
}

type TaskAssignedData struct {
	AssignedTo string `json:"assigned_to"`
}

// ReduceWorkflow folds one event into WorkflowState. It is pure: the incoming
// state value is not mutated and Variables is copied on write, so a state
// captured before the fold stays valid.
func ReduceWorkflow(state WorkflowState, e *Event) (WorkflowState, error) {
	switch e.Type {
	case WorkflowStarted:
		var data WorkflowStartedData
		if err := Unmarshal(e.Data, &data); err != nil {
			return state, errors.Wrap(err, "workflow started payload", j.KV("event_id", e.ID))
		}

		state.Status = StatusRunning
		state.DefinitionID = data.DefinitionID
		state.DefinitionVersion = data.DefinitionVersion
		state.EntityType = data.EntityType
		state.EntityID = data.EntityID
		state.AssignedTo = data.AssignedTo
		state.Variables = mergeVariables(state.Variables, data.Input)

	case StepStarted:
		var data StepStartedData
		if err := Unmarshal(e.Data, &data); err != nil {
			return state, errors.Wrap(err, "step started payload", j.KV("event_id", e.ID))
		}

		state.CurrentStep = data.StepID
		if data.AssignedTo != "" {
			state.AssignedTo = data.AssignedTo
		}

	case DecisionMade, DecisionOverridden:
		var data DecisionMadeData
		if err := Unmarshal(e.Data, &data); err != nil {
			return state, errors.Wrap(err, "decision payload", j.KV("event_id", e.ID))
		}

		state.Variables = mergeVariables(state.Variables, map[string]any{
			"lastDecision": map[string]any{
				"decision":   data.Decision,
				"rationale":  data.Rationale,
				"confidence": data.Confidence,
				"overridden": e.Type == DecisionOverridden,
				"timestamp":  e.CreatedAt,
			},
		})

	case TaskAssigned, TaskReassigned:
		var data TaskAssignedData
		if err := Unmarshal(e.Data, &data); err != nil {
			return state, errors.Wrap(err, "task assigned payload", j.KV("event_id", e.ID))
		}

		state.AssignedTo = data.AssignedTo

	case WorkflowCompleted:
		var data WorkflowCompletedData
		if err := Unmarshal(e.Data, &data); err != nil {
			return state, errors.Wrap(err, "workflow completed payload", j.KV("event_id", e.ID))
		}

		state.Status = StatusCompleted
		state.Suspended = false
		state.Variables = mergeVariables(state.Variables, data.Output)

	case WorkflowFailed:
		var data WorkflowFailedData
		if err := Unmarshal(e.Data, &data); err != nil {
			return state, errors.Wrap(err, "workflow failed payload", j.KV("event_id", e.ID))
		}

		state.Status = StatusFailed
		state.Suspended = false
		state.Variables = mergeVariables(state.Variables, map[string]any{
			"failureReason": data.Reason,
		})

	case WorkflowCancelled:
		state.Status = StatusCancelled
		state.Suspended = false

	case WorkflowSuspended:
		state.Suspended = true

	case WorkflowResumed:
		state.Suspended = false

	default:
		// Audit style events (comments, integrations, SLA, rules) advance the
		// stream version but carry no workflow state.
	}

	return state, nil
}

func mergeVariables(vars map[string]any, updates map[string]any) map[string]any {
	if len(updates) == 0 {
		return vars
	}

	merged := make(map[string]any, len(vars)+len(updates))
	for k, v := range vars {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}

	return merged
}

// Workflow is the concrete aggregate for one workflow instance. Commands
// validate against current state, construct an event via the factory, fold it
// and buffer it as uncommitted; the caller then appends the uncommitted
// events to the store at CommittedVersion and calls MarkCommitted on success.
type Workflow struct {
	*Aggregate[WorkflowState]

	factory *EventFactory
}

// NewWorkflow returns a pending workflow at version 0 with no events.
func NewWorkflow(streamID string, factory *EventFactory) *Workflow {
	return &Workflow{
		Aggregate: NewAggregate(streamID, WorkflowState{Status: StatusPending}, ReduceWorkflow),
		factory:   factory,
	}
}

// WorkflowFromHistory rebuilds a workflow by folding its persisted events.
// It fails with ErrEmptyHistory when history is empty.
func WorkflowFromHistory(streamID string, factory *EventFactory, history []Event) (*Workflow, error) {
	a, err := AggregateFromHistory(streamID, WorkflowState{Status: StatusPending}, ReduceWorkflow, history)
	if err != nil {
		return nil, err
	}

	return &Workflow{Aggregate: a, factory: factory}, nil
}

// LoadWorkflow rebuilds a workflow from the store, seeding from the stream's
// snapshot when one exists and folding only the events after it. Deleting the
// snapshot never changes the result, only the amount of replay work.
func LoadWorkflow(ctx context.Context, store EventStore, streamID string, factory *EventFactory) (*Workflow, error) {
	var (
		state           = WorkflowState{Status: StatusPending}
		snapshotVersion int64
	)

	snap, err := store.LookupSnapshot(ctx, streamID)
	if errors.Is(err, ErrSnapshotNotFound) {
		// NoReturnErr: replay the full stream.
	} else if err != nil {
		return nil, err
	} else {
		if err := Unmarshal(snap.Data, &state); err != nil {
			return nil, errors.Wrap(err, "snapshot state", j.KV("stream_id", streamID))
		}

		snapshotVersion = snap.Version
	}

	tail, err := store.List(ctx, streamID, snapshotVersion)
	if err != nil {
		return nil, err
	}

	a, err := AggregateFromSnapshot(streamID, state, ReduceWorkflow, snapshotVersion, tail)
	if err != nil {
		return nil, err
	}

	return &Workflow{Aggregate: a, factory: factory}, nil
}

func (w *Workflow) Status() Status {
	return w.State().Status
}

func (w *Workflow) Suspended() bool {
	return w.State().Suspended
}

func (w *Workflow) CurrentStep() string {
	return w.State().CurrentStep
}

func (w *Workflow) AssignedTo() string {
	return w.State().AssignedTo
}

func (w *Workflow) DefinitionID() string {
	return w.State().DefinitionID
}

// Variables returns a defensive copy of the accumulated workflow variables.
func (w *Workflow) Variables() map[string]any {
	vars := w.State().Variables
	cp := make(map[string]any, len(vars))
	for k, v := range vars {
		cp[k] = v
	}

	return cp
}

// StartInput carries the arguments of the Start command.
type StartInput struct {
	DefinitionID      string
	DefinitionVersion int
	EntityType        string
	EntityID          string
	Input             map[string]any
	Priority          string
	UserID            string
	AssignedTo        string
}

// Start moves a pending workflow to running. Starting a workflow that has
// already started, or one that has ended, fails with ErrInvalidTransition and
// emits nothing.
func (w *Workflow) Start(in StartInput, opts ...EventOption) error {
	if w.Status() != StatusPending {
		return w.invalidTransition("start")
	}

	data, err := Marshal(&WorkflowStartedData{
		DefinitionID:      in.DefinitionID,
		DefinitionVersion: in.DefinitionVersion,
		EntityType:        in.EntityType,
		EntityID:          in.EntityID,
		Input:             in.Input,
		Priority:          in.Priority,
		AssignedTo:        in.AssignedTo,
	})
	if err != nil {
		return err
	}

	opts = append(opts, WithUserID(in.UserID))
	return w.Apply(w.factory.NewEvent(w.ID(), WorkflowStarted, data, opts...))
}

// StartStepInput carries the arguments of the StartStep command.
type StartStepInput struct {
	StepExecutionID string
	StepID          string
	StepName        string
	StepType        string
	Input           map[string]any
	UserID          string
	AssignedTo      string
	Timeout         time.Duration
}

// StartStep begins a step execution. It is only valid while the workflow is
// running and not suspended.
func (w *Workflow) StartStep(in StartStepInput, opts ...EventOption) error {
	if w.Status() != StatusRunning || w.Suspended() {
		return w.invalidTransition("start_step")
	}

	data, err := Marshal(&StepStartedData{
		StepID:     in.StepID,
		StepName:   in.StepName,
		StepType:   in.StepType,
		Input:      in.Input,
		AssignedTo: in.AssignedTo,
		Timeout:    in.Timeout,
	})
	if err != nil {
		return err
	}

	opts = append(opts, WithUserID(in.UserID), WithStepExecutionID(in.StepExecutionID))
	return w.Apply(w.factory.NewEvent(w.ID(), StepStarted, data, opts...))
}

// DecisionInput carries the arguments of the MakeDecision command.
type DecisionInput struct {
	StepExecutionID string
	Decision        string
	Rationale       string
	Confidence      float64
	RulesApplied    []string
	Alternatives    []string
	UserID          string
	ReviewerID      string
}

// MakeDecision records a decision against the running workflow. Decisions
// remain valid while the workflow is suspended since review activity is what
// typically resumes it.
func (w *Workflow) MakeDecision(in DecisionInput, opts ...EventOption) error {
	if w.Status() != StatusRunning {
		return w.invalidTransition("make_decision")
	}

	data, err := Marshal(&DecisionMadeData{
		Decision:     in.Decision,
		Rationale:    in.Rationale,
		Confidence:   in.Confidence,
		RulesApplied: in.RulesApplied,
		Alternatives: in.Alternatives,
		ReviewerID:   in.ReviewerID,
	})
	if err != nil {
		return err
	}

	opts = append(opts, WithUserID(in.UserID), WithStepExecutionID(in.StepExecutionID))
	return w.Apply(w.factory.NewEvent(w.ID(), DecisionMade, data, opts...))
}

// Complete ends a running workflow successfully.
func (w *Workflow) Complete(output map[string]any, opts ...EventOption) error {
	if w.Status() != StatusRunning {
		return w.invalidTransition("complete")
	}

	data, err := Marshal(&WorkflowCompletedData{Output: output})
	if err != nil {
		return err
	}

	return w.Apply(w.factory.NewEvent(w.ID(), WorkflowCompleted, data, opts...))
}

// Fail ends a running workflow unsuccessfully.
func (w *Workflow) Fail(reason string, opts ...EventOption) error {
	if w.Status() != StatusRunning {
		return w.invalidTransition("fail")
	}

	data, err := Marshal(&WorkflowFailedData{Reason: reason})
	if err != nil {
		return err
	}

	return w.Apply(w.factory.NewEvent(w.ID(), WorkflowFailed, data, opts...))
}

// Cancel ends a running workflow by caller request.
func (w *Workflow) Cancel(reason string, opts ...EventOption) error {
	if w.Status() != StatusRunning {
		return w.invalidTransition("cancel")
	}

	data, err := Marshal(&WorkflowCancelledData{Reason: reason})
	if err != nil {
		return err
	}

	return w.Apply(w.factory.NewEvent(w.ID(), WorkflowCancelled, data, opts...))
}

// Suspend blocks step starts until Resume. Only a running, unsuspended
// workflow can be suspended.
func (w *Workflow) Suspend(reason string, opts ...EventOption) error {
	if w.Status() != StatusRunning || w.Suspended() {
		return w.invalidTransition("suspend")
	}

	data, err := Marshal(&WorkflowSuspendedData{Reason: reason})
	if err != nil {
		return err
	}

	return w.Apply(w.factory.NewEvent(w.ID(), WorkflowSuspended, data, opts...))
}

// Resume lifts a suspension.
func (w *Workflow) Resume(opts ...EventOption) error {
	if w.Status() != StatusRunning || !w.Suspended() {
		return w.invalidTransition("resume")
	}

	return w.Apply(w.factory.NewEvent(w.ID(), WorkflowResumed, nil, opts...))
}

func (w *Workflow) invalidTransition(command string) error {
	return errors.Wrap(ErrInvalidTransition, "", j.MKV{
		"stream_id": w.ID(),
		"status":    w.Status().String(),
		"suspended": w.Suspended(),
		"command":   command,
	})
}
