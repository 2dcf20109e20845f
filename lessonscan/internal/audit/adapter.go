// Package audit runs accessibility and UI/UX checks against a document.
//
// The Adapter combines two independently failing passes: the rule engine
// (axe-core inside a browser page, or the static HTML engine when there is
// no browser) and the heuristic UI/UX pass. An engine failure fails the
// attempt with ErrEngineUnavailable; a heuristic failure is recorded on the
// result and never hides engine findings.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/a11ywatch/finding"
)

// ErrEngineUnavailable is returned when the rule engine cannot run in the
// current document context (restricted page, script blocked, crash).
var ErrEngineUnavailable = errors.New("audit: rule engine unavailable")

// EngineError carries the underlying cause of an engine failure.
type EngineError struct {
	Cause error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("audit: rule engine unavailable: %v", e.Cause)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrEngineUnavailable) hold for every EngineError.
func (e *EngineError) Is(target error) bool { return target == ErrEngineUnavailable }

// Engine is the rule engine pass.
type Engine interface {
	// Ready reports whether the engine can run in the current document.
	Ready(ctx context.Context) error
	// Run audits the current document.
	Run(ctx context.Context) (*finding.AuditResult, error)
}

// HeuristicPass is the UI/UX pass. It reports in the engine's node shape.
type HeuristicPass interface {
	Run(ctx context.Context) ([]finding.Violation, error)
}

// Adapter is the Auditor Adapter. It holds no session state.
type Adapter struct {
	engine     Engine
	heuristics HeuristicPass
	logger     *slog.Logger
}

// NewAdapter creates an Adapter. heuristics may be nil.
func NewAdapter(engine Engine, heuristics HeuristicPass, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{engine: engine, heuristics: heuristics, logger: logger}
}

// Ready reports whether the rule engine can be initialised.
func (a *Adapter) Ready(ctx context.Context) error {
	if a.engine == nil {
		return &EngineError{Cause: errors.New("no engine configured")}
	}
	if err := a.engine.Ready(ctx); err != nil {
		if errors.Is(err, ErrEngineUnavailable) {
			return err
		}
		return &EngineError{Cause: err}
	}
	return nil
}

// Audit runs the engine pass, then the heuristic pass.
func (a *Adapter) Audit(ctx context.Context) (*finding.AuditResult, error) {
	if a.engine == nil {
		return nil, &EngineError{Cause: errors.New("no engine configured")}
	}

	res, err := a.engine.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("audit: cancelled: %w", ctx.Err())
		}
		if errors.Is(err, ErrEngineUnavailable) {
			return nil, err
		}
		return nil, &EngineError{Cause: err}
	}
	if res == nil {
		res = &finding.AuditResult{}
	}

	if a.heuristics == nil {
		return res, nil
	}

	hv, err := a.heuristics.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("audit: cancelled: %w", ctx.Err())
		}
		a.logger.Warn("audit: heuristic pass failed", "url", res.URL, "error", err)
		res.HeuristicError = err.Error()
		return res, nil
	}
	res.Heuristics = hv
	return res, nil
}
