// Package normalize maps raw audit output into canonical finding.Issue
// records. It is the only place issues are constructed.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/a11ywatch/finding"
)

// DefaultSnapshotLimit bounds the stored element markup, in runes.
const DefaultSnapshotLimit = 120

// heuristicSeverity is the fixed severity table for UI/UX checks.
var heuristicSeverity = map[string]finding.Severity{
	"touch-target-size":   finding.SeveritySerious,
	"font-size-too-small": finding.SeverityModerate,
	"viewport-width":      finding.SeveritySerious,
	"layout-shift":        finding.SeverityModerate,
	"lcp":                 finding.SeverityModerate,
	"inp":                 finding.SeverityModerate,
}

// HeuristicSeverity returns the table severity for a heuristic rule id.
// Unknown heuristics are minor.
func HeuristicSeverity(ruleID string) finding.Severity {
	if s, ok := heuristicSeverity[ruleID]; ok {
		return s
	}
	return finding.SeverityMinor
}

// Normalizer converts audit results. The zero value is not usable; use New.
type Normalizer struct {
	snapshotLimit int
	logger        *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithSnapshotLimit sets the element snapshot bound in runes.
func WithSnapshotLimit(n int) Option {
	return func(nz *Normalizer) {
		if n > 0 {
			nz.snapshotLimit = n
		}
	}
}

// WithLogger sets the logger used for dropped-entry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(nz *Normalizer) { nz.logger = l }
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	nz := &Normalizer{
		snapshotLimit: DefaultSnapshotLimit,
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(nz)
	}
	return nz
}

// Normalize converts one audit result into issues, engine violations first,
// then heuristics, each in reported order. screen may be nil for single-page
// scans. Malformed entries are logged and skipped. Issues sharing an id
// within the result keep the first occurrence.
func (nz *Normalizer) Normalize(res *finding.AuditResult, screen *finding.ScreenRef) []finding.Issue {
	if res == nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []finding.Issue

	add := func(v finding.Violation, cat finding.Category) {
		if strings.TrimSpace(v.ID) == "" {
			nz.logger.Warn("normalize: dropping violation without rule id", "impact", v.Impact)
			return
		}

		var sev finding.Severity
		if cat == finding.CategoryUIUX {
			sev = HeuristicSeverity(v.ID)
			if v.Impact != "" {
				if parsed, ok := finding.ParseSeverity(v.Impact); ok {
					sev = parsed
				}
			}
		} else {
			parsed, ok := finding.ParseSeverity(v.Impact)
			if !ok {
				nz.logger.Warn("normalize: dropping violation with unknown impact",
					"rule", v.ID, "impact", v.Impact)
				return
			}
			sev = parsed
		}

		for _, node := range v.Nodes {
			selector := joinTargets(node.Target)
			if selector == "" {
				nz.logger.Warn("normalize: dropping node without target", "rule", v.ID)
				continue
			}

			id := IssueID(v.ID, selector, screenNumber(screen))
			if seen[id] {
				continue
			}
			seen[id] = true

			desc := strings.TrimSpace(node.FailureSummary)
			if desc == "" {
				desc = v.Description
			}
			title := v.Help
			if title == "" {
				title = v.ID
			}

			iss := finding.Issue{
				ID:              id,
				RuleID:          v.ID,
				Category:        cat,
				Severity:        sev,
				Title:           title,
				Description:     desc,
				HelpURL:         v.HelpURL,
				ElementSnapshot: Truncate(strings.TrimSpace(node.HTML), nz.snapshotLimit),
				Selector:        selector,
				Location:        node.Location,
			}
			if screen != nil {
				ref := *screen
				iss.ScreenContext = &ref
			}
			out = append(out, iss)
		}
	}

	for _, v := range res.Violations {
		add(v, finding.CategoryAccessibility)
	}
	for _, v := range res.Heuristics {
		add(v, finding.CategoryUIUX)
	}
	return out
}

// IssueID derives the stable issue identity from (rule, selector, screen).
// Screen number 0 denotes a single-page scan.
func IssueID(ruleID, selector string, screenNumber int) string {
	h := sha256.New()
	h.Write([]byte(ruleID))
	h.Write([]byte{0x1f})
	h.Write([]byte(selector))
	h.Write([]byte{0x1f})
	h.Write([]byte(strconv.Itoa(screenNumber)))
	return "iss_" + hex.EncodeToString(h.Sum(nil))[:16]
}

// Cap keeps at most limit issues, preferring higher severity, and returns
// them in their original detection order with the number dropped. limit <= 0
// means unlimited.
func Cap(issues []finding.Issue, limit int) ([]finding.Issue, int) {
	if limit <= 0 || len(issues) <= limit {
		return issues, 0
	}

	idx := make([]int, len(issues))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return issues[idx[a]].Severity.Rank() > issues[idx[b]].Severity.Rank()
	})

	keep := idx[:limit]
	sort.Ints(keep)

	out := make([]finding.Issue, 0, limit)
	for _, i := range keep {
		out = append(out, issues[i])
	}
	return out, len(issues) - limit
}

// Truncate bounds s to limit runes, appending an ellipsis when cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "…"
}

func joinTargets(targets []string) string {
	parts := make([]string, 0, len(targets))
	for _, t := range targets {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func screenNumber(ref *finding.ScreenRef) int {
	if ref == nil {
		return 0
	}
	return ref.ScreenNumber
}
