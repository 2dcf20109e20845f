// Package advisor is the remediation suggestion backend: a static
// suggestion table with an in-process cache, an LLM-backed suggestion
// endpoint through OpenRouter, and a page analysis endpoint.
package advisor

import "github.com/hazyhaar/a11ywatch/finding"

// Wire categories. The backend also accepts the finding.Category names.
const (
	CategoryA11y = "a11y"
	CategoryUIUX = "uiux"
)

// SuggestRequest is the body of /api/suggest and /api/ai_suggest.
type SuggestRequest struct {
	IssueType        string          `json:"issueType"`
	IssueDescription string          `json:"issueDescription"`
	Element          string          `json:"element"`
	Severity         string          `json:"severity"`
	Category         string          `json:"category"`
	Context          *RequestContext `json:"context,omitempty"`
}

// RequestContext describes where the issue was found.
type RequestContext struct {
	Platform            string             `json:"platform,omitempty"`
	PageType            string             `json:"pageType,omitempty"`
	ScreenInfo          *finding.ScreenRef `json:"screenInfo,omitempty"`
	SpecialInstructions string             `json:"specialInstructions,omitempty"`
	URL                 string             `json:"url,omitempty"`
}

// SuggestResponse is the success body of the suggest endpoints.
type SuggestResponse struct {
	Suggestion string `json:"suggestion"`
	Timestamp  string `json:"timestamp"`
}

// AnalyzeIssue is one loosely typed issue in an analyze request.
type AnalyzeIssue struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Element     string `json:"element"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
}

// AnalyzeRequest is the body of /api/analyze.
type AnalyzeRequest struct {
	URL      string         `json:"url"`
	HTML     string         `json:"html"`
	Issues   []AnalyzeIssue `json:"issues"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AnalyzeResponse maps "issue-N" (1-based) to a suggestion.
type AnalyzeResponse struct {
	Suggestions map[string]string `json:"suggestions"`
	Summary     string            `json:"summary"`
	// Outline lists the page headings as Markdown, when HTML was sent.
	Outline     string            `json:"outline,omitempty"`
	Timestamp   string            `json:"timestamp"`
}

// WireCategory maps a finding category or wire alias to the backend's
// vocabulary. Unknown values pass through unchanged.
func WireCategory(c string) string {
	switch c {
	case string(finding.CategoryAccessibility), CategoryA11y:
		return CategoryA11y
	case string(finding.CategoryUIUX), CategoryUIUX, "ui/ux":
		return CategoryUIUX
	}
	return c
}
