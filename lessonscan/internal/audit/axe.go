package audit

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/hazyhaar/a11ywatch/finding"
)

//go:embed helpers.js
var helpersJS string

//go:embed axe_run.js
var axeRunJS string

const axeProbeJS = `() => typeof window.axe !== 'undefined' && typeof window.axe.run === 'function'`

// AxeConfig configures the axe-core engine.
type AxeConfig struct {
	// ScriptPath is the axe-core bundle injected when the page lacks axe.
	ScriptPath string
	// Tags restricts the rules run (e.g. "wcag2a", "wcag2aa"). Empty runs all.
	Tags   []string
	Logger *slog.Logger
}

// AxeEngine runs axe-core inside a browser page.
type AxeEngine struct {
	page   Page
	cfg    AxeConfig
	logger *slog.Logger

	srcOnce sync.Once
	src     string
	srcErr  error
}

// NewAxeEngine creates an engine evaluating against page.
func NewAxeEngine(page Page, cfg AxeConfig) *AxeEngine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AxeEngine{page: page, cfg: cfg, logger: cfg.Logger}
}

// Ready makes sure axe-core and the location helpers are present in the
// current document, injecting them if needed.
func (e *AxeEngine) Ready(ctx context.Context) error {
	if _, err := e.page.Eval(ctx, helpersJS); err != nil {
		return &EngineError{Cause: fmt.Errorf("install helpers: %w", err)}
	}

	ok, err := e.loaded(ctx)
	if err != nil {
		return &EngineError{Cause: err}
	}
	if ok {
		return nil
	}

	src, err := e.source()
	if err != nil {
		return &EngineError{Cause: err}
	}
	if err := e.page.AddScript(ctx, src); err != nil {
		return &EngineError{Cause: fmt.Errorf("inject axe: %w", err)}
	}
	e.logger.Debug("audit: axe injected", "path", e.cfg.ScriptPath)

	ok, err = e.loaded(ctx)
	if err != nil {
		return &EngineError{Cause: err}
	}
	if !ok {
		return &EngineError{Cause: errors.New("axe missing after injection")}
	}
	return nil
}

// Run executes axe.run on the document. The page may have navigated since
// the last call, so Ready runs first every time.
func (e *AxeEngine) Run(ctx context.Context) (*finding.AuditResult, error) {
	if err := e.Ready(ctx); err != nil {
		return nil, err
	}

	opts := map[string]any{"resultTypes": []string{"violations"}}
	if len(e.cfg.Tags) > 0 {
		opts["runOnly"] = map[string]any{"type": "tag", "values": e.cfg.Tags}
	}

	raw, err := e.page.Eval(ctx, axeRunJS, opts)
	if err != nil {
		return nil, &EngineError{Cause: fmt.Errorf("axe.run: %w", err)}
	}

	var res finding.AuditResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, &EngineError{Cause: fmt.Errorf("decode axe result: %w", err)}
	}
	return &res, nil
}

func (e *AxeEngine) loaded(ctx context.Context) (bool, error) {
	raw, err := e.page.Eval(ctx, axeProbeJS)
	if err != nil {
		return false, fmt.Errorf("probe axe: %w", err)
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, fmt.Errorf("probe axe: %w", err)
	}
	return ok, nil
}

func (e *AxeEngine) source() (string, error) {
	e.srcOnce.Do(func() {
		if e.cfg.ScriptPath == "" {
			e.srcErr = errors.New("no axe script configured")
			return
		}
		b, err := os.ReadFile(e.cfg.ScriptPath)
		if err != nil {
			e.srcErr = fmt.Errorf("read axe script: %w", err)
			return
		}
		e.src = string(b)
	})
	return e.src, e.srcErr
}
