package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/a11ywatch/lessonscan/internal/detector"
)

//go:embed probe.js
var probeJS string

const bindingName = "__lessonscan_binding"

// probeMessage is what probe.js posts through the binding.
type probeMessage struct {
	Kind     string `json:"kind"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Inserted int    `json:"inserted"`
}

// Probe forwards page signals (SPA navigation, title changes, significant
// DOM insertions) to a detector. It keeps no state beyond the binding
// subscription.
type Probe struct {
	tab    *Tab
	det    *detector.Detector
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// StartProbe installs the probe on the tab's current and future documents
// and primes the detector with the current location.
func StartProbe(ctx context.Context, tab *Tab, det *detector.Detector, logger *slog.Logger) (*Probe, error) {
	if logger == nil {
		logger = slog.Default()
	}
	page := tab.Page

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		logger.Warn("browser: add binding failed (may already exist)", "error", err)
	}
	if _, err := page.EvalOnNewDocument("(" + probeJS + ")()"); err != nil {
		return nil, fmt.Errorf("browser: register probe: %w", err)
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &Probe{tab: tab, det: det, logger: logger, cancel: cancel, done: make(chan struct{})}

	wait := page.Context(pctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name == bindingName {
				p.handle(e.Payload)
			}
		},
		func(e *proto.PageFrameNavigated) {
			// Full navigations replace the document; the url signal covers them.
			if e.Frame.ParentID == "" {
				det.Observe(detector.Signal{Kind: detector.KindURL, URL: e.Frame.URL})
			}
		},
	)
	go func() {
		defer close(p.done)
		wait()
	}()

	if _, err := page.Context(ctx).Eval(probeJS); err != nil {
		p.Stop()
		return nil, fmt.Errorf("browser: inject probe: %w", err)
	}

	if url, title, err := tab.Location(ctx); err == nil {
		det.Prime(url, title)
	}
	return p, nil
}

func (p *Probe) handle(payload string) {
	var m probeMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		p.logger.Warn("browser: bad probe payload", "error", err)
		return
	}
	sig, ok := toSignal(m)
	if !ok {
		return
	}
	p.det.Observe(sig)
}

func toSignal(m probeMessage) (detector.Signal, bool) {
	var k detector.Kind
	switch m.Kind {
	case "url":
		k = detector.KindURL
	case "title":
		k = detector.KindTitle
	case "dom":
		k = detector.KindDOM
	default:
		return detector.Signal{}, false
	}
	return detector.Signal{Kind: k, URL: m.URL, Title: m.Title, Inserted: m.Inserted}, true
}

// Stop ends the binding subscription.
func (p *Probe) Stop() {
	p.cancel()
	<-p.done
}
