package lessonscan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/hazyhaar/a11ywatch/advisor"
	"github.com/hazyhaar/a11ywatch/finding"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/audit"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/browser"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/config"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/detector"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/normalize"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/sink"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/store"
	"github.com/hazyhaar/a11ywatch/suggest"
)

// Runner wires a browser, the suggestion gateway, session history and
// event sinks from a Config, and attaches coordinators to lesson tabs.
type Runner struct {
	cfg    *Config
	logger *slog.Logger

	mgr     *browser.Manager
	hub     *sink.Hub
	router  *sink.Router
	store   *store.Store
	gateway *suggest.Gateway

	mu     sync.Mutex
	lesson *lesson
}

// lesson is one attached tab and the coordinator driving it.
type lesson struct {
	tab   *browser.Tab
	det   *detector.Detector
	probe *browser.Probe
	coord *Coordinator
}

// New creates a Runner. Extra sinks receive every event alongside the
// configured ones.
func New(cfg *Config, logger *slog.Logger, extra ...Sink) (*Runner, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("lessonscan: open history: %w", err)
	}

	hub := sink.NewHub(logger)
	router := sink.NewRouter(logger, hub)
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			router.Add(sink.NewStdout(os.Stdout))
		case "webhook":
			router.Add(sink.NewWebhook(sc.URL,
				sink.WithWebhookRetries(sc.Retries),
				sink.WithWebhookLogger(logger)))
		}
	}
	for _, s := range extra {
		router.Add(s)
	}

	r := &Runner{
		cfg:     cfg,
		logger:  logger,
		hub:     hub,
		router:  router,
		store:   st,
		gateway: newGateway(cfg.Suggest, logger),
		mgr: browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			MemoryLimit:      cfg.Browser.MemoryLimit,
			RecycleInterval:  cfg.Browser.RecycleInterval,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Mode:             browser.ParseMode(cfg.Browser.Mode),
			XvfbDisplay:      cfg.Browser.XvfbDisplay,
			NavTimeout:       cfg.Browser.NavTimeout,
			Viewport: browser.Viewport{
				Width:       cfg.Browser.Viewport.Width,
				Height:      cfg.Browser.Viewport.Height,
				ScaleFactor: cfg.Browser.Viewport.ScaleFactor,
				Mobile:      cfg.Browser.Viewport.Mobile,
			},
			Logger: logger,
		}),
	}
	return r, nil
}

func newGateway(sc config.SuggestConfig, logger *slog.Logger) *suggest.Gateway {
	var tr suggest.Transport
	if strings.EqualFold(sc.URL, "local") {
		tr = suggest.NewLocalTransport(advisor.New(advisor.Config{Logger: logger}))
	} else {
		tr = suggest.NewHTTPTransport(sc.URL, sc.Timeout)
	}
	return suggest.New(suggest.Config{
		Transport:           tr,
		Platform:            sc.Platform,
		PageType:            sc.PageType,
		SpecialInstructions: sc.SpecialInstructions,
		Timeout:             sc.Timeout,
		BreakerThreshold:    sc.BreakerThreshold,
		BreakerReset:        sc.BreakerReset,
		Logger:              logger,
	})
}

// Start launches (or connects to) Chrome.
func (r *Runner) Start(ctx context.Context) error {
	return r.mgr.Start(ctx)
}

// Hub returns the live event hub used by streaming endpoints.
func (r *Runner) Hub() *Hub { return r.hub }

// Suggester returns the suggestion gateway.
func (r *Runner) Suggester() *suggest.Gateway { return r.gateway }

// History returns the session history store.
func (r *Runner) History() *store.Store { return r.store }

// OpenLesson opens pageURL in a new tab, starts screen-change detection on
// it and returns an idle coordinator bound to it. A previously opened
// lesson is stopped and closed first.
func (r *Runner) OpenLesson(ctx context.Context, pageURL string) (*Coordinator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lesson != nil {
		r.closeLesson(ctx, r.lesson)
		r.lesson = nil
	}

	tab, err := browser.OpenTab(ctx, r.mgr, pageURL)
	if err != nil {
		return nil, fmt.Errorf("lessonscan: open lesson: %w", err)
	}

	dc := r.cfg.Detector
	det := detector.New(detector.Config{
		URLDelay:    dc.URLDelay,
		TitleDelay:  dc.TitleDelay,
		DOMDelay:    dc.DOMDelay,
		MinInserted: dc.MinInserted,
		Logger:      r.logger,
	})
	probe, err := browser.StartProbe(ctx, tab, det, r.logger)
	if err != nil {
		det.Close()
		tab.Close()
		return nil, err
	}

	coord := NewCoordinator(Options{
		Auditor:   r.auditor(tab),
		Changes:   det,
		Suggester: r.gateway,
		History:   r.store,
		Sink:      r.router,
		Budget: Budget{
			MaxScreens:         r.cfg.Budget.MaxScreens,
			MaxIssuesPerScreen: r.cfg.Budget.MaxIssuesPerScreen,
		},
		Locate: tab.Location,
		Logger: r.logger,
	})
	r.lesson = &lesson{tab: tab, det: det, probe: probe, coord: coord}
	r.logger.Info("lessonscan: lesson attached", "url", pageURL)
	return coord, nil
}

// Coordinator returns the coordinator of the attached lesson, or nil.
func (r *Runner) Coordinator() *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lesson == nil {
		return nil
	}
	return r.lesson.coord
}

// ScanPage audits a single page in a fresh tab and returns it as screen 1.
func (r *Runner) ScanPage(ctx context.Context, pageURL string) (*finding.Screen, error) {
	tab, err := browser.OpenTab(ctx, r.mgr, pageURL)
	if err != nil {
		return nil, err
	}
	defer tab.Close()
	return scanOnce(ctx, r.auditor(tab), r.cfg.Budget.MaxIssuesPerScreen)
}

// ScanStatic fetches pageURL over plain HTTP and runs the static rule set
// on the returned document. No browser is involved.
func ScanStatic(ctx context.Context, pageURL string, client *http.Client, maxIssues int) (*finding.Screen, error) {
	eng := audit.NewStaticFetcher(pageURL, client, audit.DefaultMaxDocument)
	return scanOnce(ctx, audit.NewAdapter(eng, nil, nil), maxIssues)
}

func scanOnce(ctx context.Context, a Auditor, maxIssues int) (*finding.Screen, error) {
	if err := a.Ready(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAuditorAvailable, err)
	}
	res, err := a.Audit(ctx)
	if err != nil {
		return nil, err
	}
	sc := &finding.Screen{ScreenNumber: 1, URL: res.URL, Title: res.Title}
	issues := normalize.New().Normalize(res, sc.Ref())
	sc.Issues, sc.DroppedIssues = normalize.Cap(issues, maxIssues)
	return sc, nil
}

func (r *Runner) auditor(tab *browser.Tab) *audit.Adapter {
	eng := audit.NewAxeEngine(tab, audit.AxeConfig{
		ScriptPath: r.cfg.Axe.Script,
		Tags:       r.cfg.Axe.Tags,
		Logger:     r.logger,
	})
	hc := r.cfg.Heuristics
	if hc.Disabled {
		return audit.NewAdapter(eng, nil, r.logger)
	}
	return audit.NewAdapter(eng, audit.NewHeuristics(tab, audit.Thresholds{
		MinTouchTarget: hc.MinTouchTarget,
		MinFontSize:    hc.MinFontSize,
		MaxCLS:         hc.MaxCLS,
		MaxLCP:         hc.MaxLCP,
		MaxINP:         hc.MaxINP,
		MaxNodes:       hc.MaxNodes,
	}), r.logger)
}

func (r *Runner) closeLesson(ctx context.Context, l *lesson) {
	if err := l.coord.Close(ctx); err != nil {
		r.logger.Warn("lessonscan: close session", "error", err)
	}
	l.probe.Stop()
	l.det.Close()
	if err := l.tab.Close(); err != nil {
		r.logger.Warn("lessonscan: close tab", "error", err)
	}
}

// Close stops the attached lesson and releases every resource.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.lesson != nil {
		r.closeLesson(ctx, r.lesson)
		r.lesson = nil
	}
	r.mu.Unlock()

	var errs []error
	if err := r.router.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.mgr.Close(); err != nil && !errors.Is(err, browser.ErrClosed) {
		errs = append(errs, err)
	}
	if err := r.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
