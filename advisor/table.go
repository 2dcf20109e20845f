package advisor

// DefaultSuggestion is used when neither the issue type nor its category
// is known.
const DefaultSuggestion = "Review accessibility and UI/UX best practices."

var suggestions = map[string]map[string]string{
	CategoryA11y: {
		"color-contrast": "Increase the contrast ratio. Try using a darker text or lighter background.",
		"image-alt":      "Add alt text to images describing their function.",
		"link-name":      "Give the link visible text or an aria-label that describes its destination.",
		"button-name":    "Give the button visible text or an aria-label that describes its action.",
		"label":          "Associate a <label> with the form field, or add an aria-label.",
		"input-label":    "Associate a <label> with the form field, or add an aria-label.",
		"html-has-lang":  "Add a lang attribute to the <html> element, e.g. lang=\"en\".",
		"document-title": "Add a short, descriptive <title> to the document.",
		"heading-order":  "Use heading levels in order without skipping levels.",
		"region":         "Place page content inside landmarks such as <main> and <nav>.",
		"default":        "Review WCAG guidelines for accessibility compliance.",
	},
	CategoryUIUX: {
		"touch-target-size":   "Increase touch target to at least 44×44 px so users can tap easily.",
		"font-size-too-small": "Boost text size to at least 16 px for readability.",
		"viewport-width":      "Ensure content fits within the viewport to avoid horizontal scrolling.",
		"layout-shift":        "Reduce layout shifts by reserving image space and avoiding late DOM changes.",
		"lcp":                 "Optimize largest contentful paint by deferring unused CSS and images.",
		"inp":                 "Improve interactivity by reducing JavaScript blocking time below 200 ms.",
		"default":             "Follow UI/UX guidelines to ensure a smooth user experience.",
	},
}

// Lookup returns the static suggestion for an issue type, falling back to
// the category default, then the global default.
func Lookup(category, issueType string) string {
	byType, ok := suggestions[WireCategory(category)]
	if !ok {
		return DefaultSuggestion
	}
	if s, ok := byType[issueType]; ok {
		return s
	}
	return byType["default"]
}
