package lessonscan

import "github.com/hazyhaar/a11ywatch/finding"

// Event is an observer notification; Data holds one of the payloads below.
type Event = finding.Event

// EventType names an event.
type EventType = finding.EventType

const (
	EventStarted  = finding.EventLessonScanStarted
	EventProgress = finding.EventLessonScanProgress
	EventComplete = finding.EventLessonScanComplete
	EventError    = finding.EventScanError
)

// StartedEvent is emitted once screen 1 has been scanned.
type StartedEvent struct {
	Message       string           `json:"message"`
	ScreenData    []finding.Screen `json:"screenData"`
	CurrentScreen int              `json:"currentScreen"`
}

// ProgressEvent is emitted after every later screen.
type ProgressEvent struct {
	ScreenNumber int               `json:"screenNumber"`
	IssuesCount  int               `json:"issuesCount"`
	TotalIssues  int               `json:"totalIssues"`
	ScreenData   finding.Screen    `json:"screenData"`
	ScreenInfo   finding.ScreenRef `json:"screenInfo"`
}

// CompleteEvent is emitted when the session completes.
type CompleteEvent struct {
	Results    []finding.Issue  `json:"results"`
	ScreenData []finding.Screen `json:"screenData"`
	Summary    finding.Summary  `json:"summary"`
	EndReason  EndReason        `json:"endReason"`
	Warning    string           `json:"warning,omitempty"`
}

// ErrorEvent reports a failed screen or a session warning.
type ErrorEvent struct {
	Error        string `json:"error"`
	ScreenNumber int    `json:"screenNumber,omitempty"`
	Warning      string `json:"warning,omitempty"`
}
