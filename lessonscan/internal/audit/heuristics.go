package audit

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/a11ywatch/finding"
)

//go:embed heuristics.js
var heuristicsJS string

// Thresholds are the limits of the UI/UX checks.
type Thresholds struct {
	MinTouchTarget float64       // CSS px, both dimensions
	MinFontSize    float64       // CSS px, body computed size
	MaxCLS         float64       // cumulative layout shift
	MaxLCP         time.Duration // largest contentful paint
	MaxINP         time.Duration // slowest interaction
	MaxNodes       int           // per check
	Settle         time.Duration // wait for buffered performance entries
}

// DefaultThresholds returns the standard mobile-oriented limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTouchTarget: 44,
		MinFontSize:    16,
		MaxCLS:         0.1,
		MaxLCP:         2500 * time.Millisecond,
		MaxINP:         200 * time.Millisecond,
		MaxNodes:       25,
		Settle:         50 * time.Millisecond,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.MinTouchTarget <= 0 {
		t.MinTouchTarget = d.MinTouchTarget
	}
	if t.MinFontSize <= 0 {
		t.MinFontSize = d.MinFontSize
	}
	if t.MaxCLS <= 0 {
		t.MaxCLS = d.MaxCLS
	}
	if t.MaxLCP <= 0 {
		t.MaxLCP = d.MaxLCP
	}
	if t.MaxINP <= 0 {
		t.MaxINP = d.MaxINP
	}
	if t.MaxNodes <= 0 {
		t.MaxNodes = d.MaxNodes
	}
	if t.Settle <= 0 {
		t.Settle = d.Settle
	}
	return t
}

// Heuristics is the in-page UI/UX pass.
type Heuristics struct {
	page Page
	t    Thresholds
}

// NewHeuristics creates the pass. Zero thresholds take defaults.
func NewHeuristics(page Page, t Thresholds) *Heuristics {
	return &Heuristics{page: page, t: t.withDefaults()}
}

// Run evaluates every check and returns one violation per failing check.
func (h *Heuristics) Run(ctx context.Context) ([]finding.Violation, error) {
	if _, err := h.page.Eval(ctx, helpersJS); err != nil {
		return nil, fmt.Errorf("heuristics: install helpers: %w", err)
	}

	args := map[string]any{
		"minTouchTarget": h.t.MinTouchTarget,
		"minFontSize":    h.t.MinFontSize,
		"maxCLS":         h.t.MaxCLS,
		"maxLCPMs":       h.t.MaxLCP.Milliseconds(),
		"maxINPMs":       h.t.MaxINP.Milliseconds(),
		"maxNodes":       h.t.MaxNodes,
		"settleMs":       h.t.Settle.Milliseconds(),
	}
	raw, err := h.page.Eval(ctx, heuristicsJS, args)
	if err != nil {
		return nil, fmt.Errorf("heuristics: eval: %w", err)
	}

	var out []finding.Violation
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("heuristics: decode: %w", err)
	}
	return out, nil
}
