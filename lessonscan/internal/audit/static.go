package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/a11ywatch/finding"
)

const ruleHelpBase = "https://dequeuniversity.com/rules/axe/4.10/"

// DefaultMaxDocument bounds a fetched document for the static engine.
const DefaultMaxDocument = 10 << 20

type staticRule struct {
	id, impact, help, description string
}

var (
	ruleHTMLLang = staticRule{"html-has-lang", "serious",
		"<html> element must have a lang attribute",
		"Ensures every HTML document has a lang attribute"}
	ruleTitle = staticRule{"document-title", "serious",
		"Documents must have <title> element to aid in navigation",
		"Ensures each HTML document contains a non-empty <title> element"}
	ruleImageAlt = staticRule{"image-alt", "critical",
		"Images must have alternative text",
		"Ensures <img> elements have alternate text or a role of none or presentation"}
	ruleLinkName = staticRule{"link-name", "serious",
		"Links must have discernible text",
		"Ensures links have discernible text"}
	ruleButtonName = staticRule{"button-name", "critical",
		"Buttons must have discernible text",
		"Ensures buttons have discernible text"}
	ruleInputLabel = staticRule{"input-label", "critical",
		"Form elements must have labels",
		"Ensures every form element has a label"}
)

// StaticEngine checks raw HTML without a browser. It covers a small subset
// of the axe rules and reports in the same shape.
type StaticEngine struct {
	url  string
	load func(ctx context.Context) ([]byte, error)
}

// NewStaticEngine audits an in-memory document.
func NewStaticEngine(pageURL string, doc []byte) *StaticEngine {
	return &StaticEngine{
		url:  pageURL,
		load: func(context.Context) ([]byte, error) { return doc, nil },
	}
}

// NewStaticFetcher audits the document fetched from pageURL on each Run.
func NewStaticFetcher(pageURL string, client *http.Client, maxBytes int64) *StaticEngine {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocument
	}
	return &StaticEngine{
		url: pageURL,
		load: func(ctx context.Context) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "text/html,application/xhtml+xml")
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
			}
			b, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
			if err != nil {
				return nil, err
			}
			if int64(len(b)) > maxBytes {
				return nil, fmt.Errorf("fetch %s: document exceeds %d bytes", pageURL, maxBytes)
			}
			return b, nil
		},
	}
}

// Ready always succeeds; the static engine needs no page context.
func (s *StaticEngine) Ready(context.Context) error { return nil }

// Run loads and checks the document.
func (s *StaticEngine) Run(ctx context.Context) (*finding.AuditResult, error) {
	data, err := s.load(ctx)
	if err != nil {
		return nil, &EngineError{Cause: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &EngineError{Cause: errors.New("empty document")}
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &EngineError{Cause: fmt.Errorf("parse: %w", err)}
	}

	c := newChecker(doc)
	c.run()

	return &finding.AuditResult{
		URL:        s.url,
		Title:      c.title,
		Violations: c.violations(),
	}, nil
}

type checker struct {
	doc      *html.Node
	root     *html.Node
	title    string
	hasTitle bool
	labelFor map[string]bool
	byID     map[string]*html.Node
	heading  string

	order []staticRule
	nodes map[string][]finding.Node
}

func newChecker(doc *html.Node) *checker {
	c := &checker{
		doc:      doc,
		labelFor: make(map[string]bool),
		byID:     make(map[string]*html.Node),
		nodes:    make(map[string][]finding.Node),
	}
	c.index(doc)
	return c
}

// index collects ids, label targets and the title before the rule walk.
func (c *checker) index(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Html:
			if c.root == nil {
				c.root = n
			}
		case atom.Title:
			if !c.hasTitle {
				c.hasTitle = true
				c.title = strings.TrimSpace(textOf(n))
			}
		case atom.Label:
			if f := attr(n, "for"); f != "" {
				c.labelFor[f] = true
			}
		}
		if id := attr(n, "id"); id != "" {
			if _, dup := c.byID[id]; !dup {
				c.byID[id] = n
			}
		}
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.index(ch)
	}
}

func (c *checker) run() {
	if c.root != nil && strings.TrimSpace(attr(c.root, "lang")) == "" {
		c.report(ruleHTMLLang, c.root, "Fix any of the following:\n  The <html> element does not have a lang attribute")
	}
	if c.title == "" && c.root != nil {
		c.report(ruleTitle, c.root, "Fix any of the following:\n  Document does not have a non-empty <title> element")
	}
	c.walk(c.doc)
}

func (c *checker) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Template, atom.Noscript, atom.Head:
			return
		}
		if ariaHidden(n) {
			return
		}
		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			// Elements inside a heading are not "under" it.
			defer func(text string) { c.heading = text }(truncateRunes(textOf(n), 60))
		}
		c.checkElement(n)
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.walk(ch)
	}
}

func (c *checker) checkElement(n *html.Node) {
	switch n.DataAtom {
	case atom.Img:
		if _, ok := attrOK(n, "alt"); ok {
			return
		}
		if role := attr(n, "role"); role == "presentation" || role == "none" {
			return
		}
		if c.ariaName(n) != "" {
			return
		}
		c.report(ruleImageAlt, n, "Fix any of the following:\n  Element does not have an alt attribute")

	case atom.A:
		if _, ok := attrOK(n, "href"); !ok {
			return
		}
		if c.accessibleName(n) == "" {
			c.report(ruleLinkName, n, "Fix all of the following:\n  Element does not have text that is visible to screen readers")
		}

	case atom.Button:
		if c.accessibleName(n) == "" {
			c.report(ruleButtonName, n, "Fix any of the following:\n  Element does not have inner text that is visible to screen readers")
		}

	case atom.Input:
		typ := strings.ToLower(attr(n, "type"))
		switch typ {
		case "hidden":
			return
		case "submit", "reset":
			// Browsers supply a default label.
			return
		case "button":
			if strings.TrimSpace(attr(n, "value")) == "" && c.ariaName(n) == "" {
				c.report(ruleButtonName, n, "Fix any of the following:\n  Element has no value attribute or the value attribute is empty")
			}
			return
		case "image":
			if strings.TrimSpace(attr(n, "alt")) == "" && c.ariaName(n) == "" {
				c.report(ruleButtonName, n, "Fix any of the following:\n  Element has no alt attribute")
			}
			return
		}
		c.checkLabel(n)

	case atom.Select, atom.Textarea:
		c.checkLabel(n)
	}
}

func (c *checker) checkLabel(n *html.Node) {
	if id := attr(n, "id"); id != "" && c.labelFor[id] {
		return
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Label {
			return
		}
	}
	if c.ariaName(n) != "" || strings.TrimSpace(attr(n, "title")) != "" {
		return
	}
	c.report(ruleInputLabel, n, "Fix any of the following:\n  Form element does not have an implicit (wrapped) <label>\n  Form element does not have an explicit <label>")
}

// ariaName resolves aria-label and aria-labelledby.
func (c *checker) ariaName(n *html.Node) string {
	if v := strings.TrimSpace(attr(n, "aria-label")); v != "" {
		return v
	}
	var parts []string
	for _, id := range strings.Fields(attr(n, "aria-labelledby")) {
		if ref, ok := c.byID[id]; ok {
			if t := textOf(ref); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}

// accessibleName approximates the name of links and buttons: aria, visible
// text, alt text of contained images, then title.
func (c *checker) accessibleName(n *html.Node) string {
	if v := c.ariaName(n); v != "" {
		return v
	}
	if t := textOf(n); t != "" {
		return t
	}
	var alt string
	var find func(*html.Node)
	find = func(m *html.Node) {
		if alt != "" {
			return
		}
		if m.Type == html.ElementNode && m.DataAtom == atom.Img {
			alt = strings.TrimSpace(attr(m, "alt"))
		}
		for ch := m.FirstChild; ch != nil; ch = ch.NextSibling {
			find(ch)
		}
	}
	find(n)
	if alt != "" {
		return alt
	}
	return strings.TrimSpace(attr(n, "title"))
}

func (c *checker) report(r staticRule, n *html.Node, summary string) {
	if _, ok := c.nodes[r.id]; !ok {
		c.order = append(c.order, r)
	}
	c.nodes[r.id] = append(c.nodes[r.id], finding.Node{
		HTML:           snapshot(n),
		Target:         []string{cssPath(n)},
		FailureSummary: summary,
		Location:       c.locate(n),
	})
}

func (c *checker) violations() []finding.Violation {
	out := make([]finding.Violation, 0, len(c.order))
	for _, r := range c.order {
		out = append(out, finding.Violation{
			ID:          r.id,
			Impact:      r.impact,
			Help:        r.help,
			Description: r.description,
			HelpURL:     ruleHelpBase + r.id,
			Nodes:       c.nodes[r.id],
		})
	}
	return out
}

// locate names the closest landmark and the heading preceding n in
// document order.
func (c *checker) locate(n *html.Node) string {
	var parts []string
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if name := landmark(p); name != "" {
			parts = append(parts, name)
			break
		}
	}
	if c.heading != "" {
		parts = append(parts, `under "`+c.heading+`"`)
	}
	return strings.Join(parts, " ")
}

var landmarkRoles = map[string]bool{
	"main": true, "navigation": true, "banner": true, "contentinfo": true,
	"complementary": true, "region": true, "dialog": true,
}

func landmark(n *html.Node) string {
	if label := strings.TrimSpace(attr(n, "aria-label")); label != "" {
		if n.DataAtom == atom.Section || landmarkRoles[attr(n, "role")] || isLandmarkTag(n) {
			return label
		}
	}
	if role := attr(n, "role"); landmarkRoles[role] {
		return role
	}
	if isLandmarkTag(n) {
		return n.Data
	}
	return ""
}

func isLandmarkTag(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Main, atom.Nav, atom.Header, atom.Footer, atom.Aside, atom.Form:
		return true
	}
	return false
}

// cssPath builds a selector from the nearest id or from html/body.
func cssPath(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if id := attr(cur, "id"); id != "" {
			parts = append(parts, "#"+id)
			break
		}
		if cur.DataAtom == atom.Html || cur.DataAtom == atom.Body {
			parts = append(parts, cur.Data)
			break
		}
		idx := 1
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode && sib.Data == cur.Data {
				idx++
			}
		}
		parts = append(parts, cur.Data+":nth-of-type("+strconv.Itoa(idx)+")")
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

// snapshot renders the element; the document root renders its start tag only.
func snapshot(n *html.Node) string {
	if n.DataAtom == atom.Html || n.DataAtom == atom.Body {
		var sb strings.Builder
		sb.WriteString("<" + n.Data)
		for _, a := range n.Attr {
			sb.WriteString(" " + a.Key + `="` + html.EscapeString(a.Val) + `"`)
		}
		sb.WriteString(">")
		return sb.String()
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "<" + n.Data + ">"
	}
	return buf.String()
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func ariaHidden(n *html.Node) bool {
	return attr(n, "aria-hidden") == "true"
}

// textOf collects visible text, skipping script and style.
func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(m *html.Node) {
		switch m.Type {
		case html.TextNode:
			if t := strings.TrimSpace(m.Data); t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		case html.ElementNode:
			switch m.DataAtom {
			case atom.Script, atom.Style, atom.Template:
				return
			}
			if ariaHidden(m) {
				return
			}
		}
		for ch := m.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return sb.String()
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
