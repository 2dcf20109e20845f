package suggest

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	maxElementRunes     = 120
	maxDescriptionRunes = 300
)

// structuralPolicy keeps element structure and accessibility-relevant
// attributes. Values that may carry user data (href, src, value, data-*,
// id, class, style) are stripped.
func structuralPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	tags := []string{
		"a", "button", "img", "input", "select", "option", "textarea", "label",
		"form", "fieldset", "legend", "div", "span", "p", "section", "article",
		"main", "nav", "header", "footer", "aside", "ul", "ol", "li",
		"h1", "h2", "h3", "h4", "h5", "h6", "table", "tr", "td", "th",
		"figure", "figcaption", "video", "audio", "iframe", "svg",
	}
	p.AllowElements(tags...)
	p.AllowNoAttrs().OnElements(tags...)
	p.AllowAttrs("role", "type", "tabindex", "scope", "lang", "for",
		"aria-hidden", "aria-expanded", "aria-haspopup", "aria-live",
		"aria-modal", "aria-required", "aria-invalid", "aria-level",
		"disabled", "required", "readonly", "multiple").Globally()
	return p
}

// redactor sanitizes outbound element snapshots.
type redactor struct {
	policy *bluemonday.Policy
}

func newRedactor() *redactor {
	return &redactor{policy: structuralPolicy()}
}

func (r *redactor) element(html string) string {
	return truncate(strings.TrimSpace(r.policy.Sanitize(html)), maxElementRunes)
}

func (r *redactor) description(s string) string {
	return truncate(strings.TrimSpace(s), maxDescriptionRunes)
}

// truncate bounds s to limit runes, appending an ellipsis when cut.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "…"
}
