package lessonscan

import (
	"context"
	"errors"

	"github.com/hazyhaar/a11ywatch/finding"
)

// CommandType names a control command from a UI panel.
type CommandType string

const (
	CmdStart      CommandType = "startLessonScan"
	CmdStop       CommandType = "stopLessonScan"
	CmdState      CommandType = "getLessonScanState"
	CmdSuggestion CommandType = "fetchSuggestion"
)

// Command is a control message.
type Command struct {
	Type    CommandType `json:"type"`
	IssueID string      `json:"issueId,omitempty"`
}

// Response answers a Command. Fields are populated per command type.
type Response struct {
	Success       bool             `json:"success"`
	Error         string           `json:"error,omitempty"`
	ScreenData    []finding.Screen `json:"screenData,omitempty"`
	CurrentScreen int              `json:"currentScreen,omitempty"`
	Results       []finding.Issue  `json:"results,omitempty"`
	TotalScreens  int              `json:"totalScreens,omitempty"`
	Summary       *finding.Summary `json:"summary,omitempty"`
	State         *Snapshot        `json:"state,omitempty"`
	Suggestion    string           `json:"suggestion,omitempty"`
}

// Handle dispatches one command. Errors are reported in the response.
func (c *Coordinator) Handle(ctx context.Context, cmd Command) Response {
	switch cmd.Type {
	case CmdStart:
		snap, err := c.Start(ctx)
		if err != nil {
			return failure(err)
		}
		return Response{Success: true, ScreenData: snap.Screens, CurrentScreen: snap.CurrentScreen}

	case CmdStop:
		snap, err := c.Stop(ctx)
		if err != nil {
			return failure(err)
		}
		return Response{
			Success:      true,
			Results:      snap.Issues(),
			ScreenData:   snap.Screens,
			TotalScreens: len(snap.Screens),
			Summary:      snap.Summary,
		}

	case CmdState:
		snap := c.State()
		return Response{Success: true, State: &snap}

	case CmdSuggestion:
		if cmd.IssueID == "" {
			return Response{Error: "issueId is required"}
		}
		text, err := c.Suggest(ctx, cmd.IssueID)
		if err != nil {
			return failure(err)
		}
		return Response{Success: true, Suggestion: text}
	}
	return Response{Error: "unknown command: " + string(cmd.Type)}
}

func failure(err error) Response {
	msg := err.Error()
	switch {
	case errors.Is(err, ErrSessionAlreadyActive):
		msg = "a lesson scan is already in progress"
	case errors.Is(err, ErrNoAuditorAvailable):
		msg = "accessibility engine is not available on this page"
	case errors.Is(err, ErrIssueNotFound):
		msg = "issue not found"
	}
	return Response{Error: msg}
}
