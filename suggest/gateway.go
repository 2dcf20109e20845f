// Package suggest fetches remediation text for issues from the suggestion
// backend. FetchSuggestion never fails: every error path resolves to a
// deterministic fallback.
package suggest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/a11ywatch/advisor"
	"github.com/hazyhaar/a11ywatch/finding"
)

var (
	errBreakerOpen     = errors.New("suggest: breaker open")
	errEmptySuggestion = errors.New("suggest: empty suggestion")
)

// Config configures a Gateway.
type Config struct {
	Transport Transport

	// Context fields sent with every request.
	Platform            string
	PageType            string
	SpecialInstructions string

	// Timeout bounds one shared backend round trip. Default 10s.
	Timeout time.Duration

	BreakerThreshold int
	BreakerReset     time.Duration
	Clock            clockwork.Clock
	Logger           *slog.Logger
}

// Gateway is the Suggestion Gateway. Concurrent requests for the same
// issue id share one backend round trip.
type Gateway struct {
	cfg     Config
	breaker *Breaker
	red     *redactor
	group   singleflight.Group
	logger  *slog.Logger
}

// New creates a Gateway.
func New(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Platform == "" {
		cfg.Platform = "web"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gateway{
		cfg:     cfg,
		breaker: NewBreaker(cfg.BreakerThreshold, cfg.BreakerReset, cfg.Clock),
		red:     newRedactor(),
		logger:  cfg.Logger,
	}
}

// Breaker exposes the circuit breaker state.
func (g *Gateway) Breaker() *Breaker { return g.breaker }

// FetchSuggestion returns remediation text for iss. It never fails. A
// caller that gives up gets the fallback; the shared round trip keeps
// running for the callers still waiting on it.
func (g *Gateway) FetchSuggestion(ctx context.Context, iss finding.Issue) string {
	key := iss.ID
	if key == "" {
		key = iss.RuleID + "\x1f" + iss.Selector
	}

	shared := context.WithoutCancel(ctx)
	ch := g.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(shared, g.cfg.Timeout)
		defer cancel()
		return g.fetch(fctx, iss)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			g.logger.Warn("suggest: using fallback", "issue", iss.ID, "rule", iss.RuleID, "error", res.Err)
			return Fallback(iss)
		}
		return res.Val.(string)
	case <-ctx.Done():
		return Fallback(iss)
	}
}

func (g *Gateway) fetch(ctx context.Context, iss finding.Issue) (string, error) {
	if g.cfg.Transport == nil {
		return "", errors.New("suggest: no transport")
	}
	if !g.breaker.Allow() {
		return "", errBreakerOpen
	}

	resp, err := g.cfg.Transport.Suggest(ctx, g.request(iss))
	if err != nil {
		g.breaker.Failure()
		return "", err
	}
	text := strings.TrimSpace(resp.Suggestion)
	if text == "" {
		g.breaker.Failure()
		return "", errEmptySuggestion
	}
	g.breaker.Success()
	return text, nil
}

// request builds the outbound payload with a sanitized element.
func (g *Gateway) request(iss finding.Issue) advisor.SuggestRequest {
	return advisor.SuggestRequest{
		IssueType:        iss.RuleID,
		IssueDescription: g.red.description(iss.Description),
		Element:          g.red.element(iss.ElementSnapshot),
		Severity:         string(iss.Severity),
		Category:         advisor.WireCategory(string(iss.Category)),
		Context: &advisor.RequestContext{
			Platform:            g.cfg.Platform,
			PageType:            g.cfg.PageType,
			ScreenInfo:          iss.ScreenContext,
			SpecialInstructions: g.cfg.SpecialInstructions,
		},
	}
}
