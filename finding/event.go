package finding

import "time"

// EventType names a lesson scan event.
type EventType string

const (
	EventLessonScanStarted  EventType = "lessonScanStarted"
	EventLessonScanProgress EventType = "lessonScanProgress"
	EventLessonScanComplete EventType = "lessonScanComplete"
	EventScanError          EventType = "scanError"
)

// Event is one observer notification. Data holds the type-specific
// payload and is delivered to sinks as-is.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Seq       uint64    `json:"seq"`
	At        time.Time `json:"at"`
	Data      any       `json:"data"`
}
