package suggest

import "github.com/hazyhaar/a11ywatch/finding"

// DefaultFallback is the last-resort suggestion.
const DefaultFallback = "Review this element against WCAG 2.2 and platform UI guidelines, then retest."

var ruleFallback = map[string]string{
	"color-contrast":      "Increase the contrast ratio between text and background to at least 4.5:1 (3:1 for large text).",
	"image-alt":           "Add an alt attribute describing the image's purpose, or alt=\"\" if it is decorative.",
	"link-name":           "Give the link visible text or an aria-label that describes where it goes.",
	"button-name":         "Give the button visible text or an aria-label that describes its action.",
	"label":               "Associate a visible <label> with the form field, or add an aria-label.",
	"input-label":         "Associate a visible <label> with the form field, or add an aria-label.",
	"html-has-lang":       "Add a lang attribute to the <html> element, e.g. lang=\"en\".",
	"document-title":      "Add a short, descriptive <title> to the document.",
	"heading-order":       "Use heading levels in sequence without skipping levels.",
	"region":              "Place all content inside landmarks such as <main>, <nav> and <footer>.",
	"aria-allowed-attr":   "Remove ARIA attributes that are not allowed on this element's role.",
	"list":                "Only place <li>, <script> or <template> elements directly inside lists.",
	"touch-target-size":   "Increase the touch target to at least 44×44 px, using padding if the visual size must stay small.",
	"font-size-too-small": "Raise body text to at least 16 px for readability on mobile.",
	"viewport-width":      "Make content fit the viewport: constrain widths with max-width: 100% and avoid fixed-width containers.",
	"layout-shift":        "Reserve space for images and embeds with width/height or aspect-ratio to avoid layout shifts.",
	"lcp":                 "Speed up the largest contentful paint: preload the hero image and defer non-critical CSS and JS.",
	"inp":                 "Shorten event handlers and break up long tasks so interactions respond within 200 ms.",
}

var categoryFallback = map[finding.Category]string{
	finding.CategoryAccessibility: "Review WCAG guidelines for this element and make sure it is perceivable, operable and understandable with assistive technology.",
	finding.CategoryUIUX:          "Review mobile UI guidelines for this element: size, spacing, readability and responsiveness.",
}

// Fallback returns the deterministic suggestion for an issue: by rule id,
// then by category, then the global default.
func Fallback(iss finding.Issue) string {
	if s, ok := ruleFallback[iss.RuleID]; ok {
		return s
	}
	if s, ok := categoryFallback[iss.Category]; ok {
		return s
	}
	return DefaultFallback
}
