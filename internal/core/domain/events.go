package domain

// EventType defines the type of real-time event.
type EventType string

const (
	EventAnalysisCompleted      EventType = "ANALYSIS_COMPLETED"
	EventDepartmentOverburdened EventType = "DEPARTMENT_OVERBURDENED"
)

// Event is the payload sent over WebSocket.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
	Agency  string      `json:"agency,omitempty"` // Routes to an agency room; empty means everyone
}
