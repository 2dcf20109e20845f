package lessonscan

import (
	"errors"

	"github.com/hazyhaar/a11ywatch/lessonscan/internal/audit"
)

var (
	// ErrEngineUnavailable is returned when the rule engine cannot run in
	// the current document.
	ErrEngineUnavailable = audit.ErrEngineUnavailable

	// ErrSessionAlreadyActive rejects a start while a session is running.
	ErrSessionAlreadyActive = errors.New("lessonscan: session already active")

	// ErrNoAuditorAvailable rejects a start when the auditor cannot be
	// initialised. No session is created.
	ErrNoAuditorAvailable = errors.New("lessonscan: no auditor available")

	// ErrIssueNotFound is returned by Suggest for an unknown issue id.
	ErrIssueNotFound = errors.New("lessonscan: issue not found")

	// errBudgetExceeded ends a session when the screen budget is spent.
	errBudgetExceeded = errors.New("lessonscan: screen budget exceeded")
)
