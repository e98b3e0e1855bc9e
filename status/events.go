// Package status implements the coordinator's non-blocking status fan-out
// (spec §4.5). Event shapes are grounded on the teacher's
// runtime/agent/hooks/events.go (baseEvent embedding + typed constructors),
// narrowed to the four variants spec §3 names.
package status

// EventType identifies which variant of Event a value carries.
type EventType string

const (
	EventWorkflowStarted  EventType = "workflow_started"
	EventStepStarted      EventType = "step_started"
	EventStepFinished     EventType = "step_finished"
	EventWorkflowFinished EventType = "workflow_finished"
)

// ErrorSummary is the brief, secret-free error payload carried by a
// step_finished event that terminated non-ok (spec §4.5's "never full
// parameters" rule).
type ErrorSummary struct {
	Kind    string
	Message string
}

// Event is a single published lifecycle notification. Exactly one of the
// variant-specific fields is meaningful, selected by Type.
type Event struct {
	Type       EventType
	WorkflowID string
	Timestamp  int64 // unix millis, stamped from the coordinator's Clock

	// StepIndex and StepStatus are populated for step_started/step_finished.
	StepIndex  int
	StepAgent  string
	StepAction string
	StepStatus string // "ok" | "failed" | "timeout" | "cancelled" | "skipped"
	StepError  *ErrorSummary

	// WorkflowStatus is populated for workflow_finished.
	WorkflowStatus string
}

// NewWorkflowStarted constructs a workflow_started event.
func NewWorkflowStarted(workflowID string, ts int64) Event {
	return Event{Type: EventWorkflowStarted, WorkflowID: workflowID, Timestamp: ts}
}

// NewStepStarted constructs a step_started event.
func NewStepStarted(workflowID string, ts int64, stepIndex int, agentName, action string) Event {
	return Event{
		Type:       EventStepStarted,
		WorkflowID: workflowID,
		Timestamp:  ts,
		StepIndex:  stepIndex,
		StepAgent:  agentName,
		StepAction: action,
	}
}

// NewStepFinished constructs a step_finished event, with StepError set only
// when the step's terminal status is non-ok.
func NewStepFinished(workflowID string, ts int64, stepIndex int, agentName, action, status string, errSummary *ErrorSummary) Event {
	return Event{
		Type:       EventStepFinished,
		WorkflowID: workflowID,
		Timestamp:  ts,
		StepIndex:  stepIndex,
		StepAgent:  agentName,
		StepAction: action,
		StepStatus: status,
		StepError:  errSummary,
	}
}

// NewWorkflowFinished constructs a workflow_finished event.
func NewWorkflowFinished(workflowID string, ts int64, status string) Event {
	return Event{Type: EventWorkflowFinished, WorkflowID: workflowID, Timestamp: ts, WorkflowStatus: status}
}
