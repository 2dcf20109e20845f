package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is one page under scan. It satisfies the audit package's page
// contract (Eval, AddScript).
type Tab struct {
	Page *rod.Page

	mgr    *Manager
	router *rod.HijackRouter
}

// OpenTab creates a stealth tab with the configured viewport and CSP
// bypass, then navigates to pageURL. An empty pageURL leaves the tab on
// about:blank.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b, err := mgr.acquire()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		mgr.release()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	t := &Tab{Page: page, mgr: mgr}

	cfg := mgr.cfg
	if err := (proto.PageSetBypassCSP{Enabled: true}).Call(page); err != nil {
		cfg.Logger.Warn("browser: bypass CSP failed", "error", err)
	}
	vp := cfg.Viewport
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: vp.ScaleFactor,
		Mobile:            vp.Mobile,
	}); err != nil {
		cfg.Logger.Warn("browser: set viewport failed", "error", err)
	}
	if len(cfg.ResourceBlocking) > 0 {
		t.router = blockResources(page, cfg.ResourceBlocking)
	}

	if pageURL != "" {
		if err := t.Navigate(ctx, pageURL); err != nil {
			t.Close()
			return nil, err
		}
	}
	return t, nil
}

// Navigate loads pageURL and waits for the load event. A load timeout is
// logged, not returned: SPAs often never go idle.
func (t *Tab) Navigate(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, t.mgr.cfg.NavTimeout)
	defer cancel()

	p := t.Page.Context(navCtx)
	if err := p.Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		t.mgr.cfg.Logger.Warn("browser: wait load", "url", pageURL, "error", err)
	}
	return nil
}

// Eval runs js (a function expression) with args, awaiting a returned
// promise, and returns the JSON encoding of the result.
func (t *Tab) Eval(ctx context.Context, js string, args ...any) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, fmt.Errorf("browser: eval: %w", err)
	}
	b, err := json.Marshal(res.Value)
	if err != nil {
		return nil, fmt.Errorf("browser: eval result: %w", err)
	}
	return b, nil
}

// AddScript injects a classic script into the current document.
func (t *Tab) AddScript(ctx context.Context, source string) error {
	if err := t.Page.Context(ctx).AddScriptTag("", source); err != nil {
		return fmt.Errorf("browser: add script: %w", err)
	}
	return nil
}

// Location returns the current URL and document title.
func (t *Tab) Location(ctx context.Context) (url, title string, err error) {
	info, err := t.Page.Context(ctx).Info()
	if err != nil {
		return "", "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, info.Title, nil
}

// HTML serialises the current document.
func (t *Tab) HTML(ctx context.Context) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

// Close closes the page and releases it from the manager.
func (t *Tab) Close() error {
	if t.Page == nil {
		return nil
	}
	if t.router != nil {
		t.router.Stop()
	}
	err := t.Page.Close()
	t.Page = nil
	t.mgr.release()
	return err
}
