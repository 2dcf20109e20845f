// Package finding defines the structured types produced by a11ywatch scans.
// These are the public contract: the coordinator, the suggestion gateway and
// any external consumer (UI panel, webhook receiver) exchange these types.
package finding

// Node is one offending element reported by a check. The shape follows the
// rule engine's node format so that engine and heuristic results share it.
type Node struct {
	HTML           string   `json:"html"`
	Target         []string `json:"target"`
	FailureSummary string   `json:"failureSummary,omitempty"`
	Location       string   `json:"location,omitempty"` // nearest landmark/heading, best effort
}

// Violation is a single rule that fired, with every node it fired on.
type Violation struct {
	ID          string `json:"id"`
	Impact      string `json:"impact"`
	Help        string `json:"help,omitempty"`
	Description string `json:"description,omitempty"`
	HelpURL     string `json:"helpUrl,omitempty"`
	Nodes       []Node `json:"nodes"`
}

// AuditResult is the raw output of one audit pass over a document.
// Violations come from the rule engine, Heuristics from the UI/UX pass.
type AuditResult struct {
	URL            string      `json:"url,omitempty"`
	Title          string      `json:"title,omitempty"`
	Violations     []Violation `json:"violations"`
	Heuristics     []Violation `json:"heuristics,omitempty"`
	HeuristicError string      `json:"heuristicError,omitempty"`
}
