package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Sampling events
	EventSampleRecorded EventType = "sampling.recorded"
	EventSampleFailed   EventType = "sampling.failed"

	// Training events
	EventTrainingStarted   EventType = "training.started"
	EventTrainingCompleted EventType = "training.completed"
	EventTrainingSkipped   EventType = "training.skipped"
	EventTrainingFailed    EventType = "training.failed"

	// Prediction events
	EventPredictionMade    EventType = "prediction.made"
	EventPredictionSkipped EventType = "prediction.skipped"

	// Suggestion events
	EventSuggestionsGenerated EventType = "suggestions.generated"

	// Remediation events
	EventRemediationRequested EventType = "remediation.requested"
	EventRemediationExecuted  EventType = "remediation.executed"
	EventRemediationRefused   EventType = "remediation.refused"

	// Maintenance events
	EventExportCompleted EventType = "maintenance.export_completed"
	EventPurgeCompleted  EventType = "maintenance.purge_completed"

	// Configuration events
	EventConfigLoaded  EventType = "config.loaded"
	EventConfigChanged EventType = "config.changed"

	// System events
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
	ResultDenied  Result = "denied"
)

// Event represents a single audit event
type Event struct {
	// Core fields
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	EventType     EventType `json:"event_type"`
	Result        Result    `json:"result"`

	// Source information
	Component string `json:"component,omitempty"`
	SourceIP  string `json:"source_ip,omitempty"`

	// Target process, for remediation events
	Process string `json:"process,omitempty"`
	PID     int32  `json:"pid,omitempty"`

	// Action details
	Action      string                 `json:"action,omitempty"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Error information
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	// Duration tracking
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]interface{}),
	}
}

// WithCorrelationID sets the correlation ID for event tracking
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithComponent sets the pipeline component that emitted the event
func (e *Event) WithComponent(component string) *Event {
	e.Component = component
	return e
}

// WithProcess sets the process being acted upon
func (e *Event) WithProcess(name string, pid int32) *Event {
	e.Process = name
	e.PID = pid
	return e
}

// WithAction sets the action being performed
func (e *Event) WithAction(action string) *Event {
	e.Action = action
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information
func (e *Event) WithError(err error, code string) *Event {
	if err != nil {
		e.Error = err.Error()
		e.ErrorCode = code
		e.Result = ResultFailure
	}
	return e
}

// WithDuration sets the duration in milliseconds
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}
