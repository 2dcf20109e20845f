package finding

import "strings"

// Severity is the ordered impact level of an issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeveritySerious  Severity = "serious"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// Severities lists all levels from highest to lowest.
var Severities = []Severity{SeverityCritical, SeveritySerious, SeverityModerate, SeverityMinor}

// Rank returns 4 for critical down to 1 for minor, 0 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeveritySerious:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMinor:
		return 1
	}
	return 0
}

// ParseSeverity maps an engine impact string to a Severity.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	return sev, sev.Rank() > 0
}

// Category separates rule-engine findings from UI/UX heuristics.
type Category string

const (
	CategoryAccessibility Category = "accessibility"
	CategoryUIUX          Category = "ui-ux"
)

// ScreenRef identifies the lesson screen an issue was found on.
type ScreenRef struct {
	ScreenNumber int    `json:"screenNumber"`
	Title        string `json:"title"`
	URL          string `json:"url"`
}

// Issue is one detected problem. Issues are built by the normalizer only;
// the ID is stable for a given (rule, selector, screen number).
type Issue struct {
	ID              string     `json:"id"`
	RuleID          string     `json:"ruleId"`
	Category        Category   `json:"category"`
	Severity        Severity   `json:"severity"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	HelpURL         string     `json:"helpUrl,omitempty"`
	ElementSnapshot string     `json:"elementSnapshot"`
	Selector        string     `json:"selector"`
	Location        string     `json:"location,omitempty"`
	ScreenContext   *ScreenRef `json:"screenContext,omitempty"`
	Suggestion      string     `json:"suggestion,omitempty"`
}
