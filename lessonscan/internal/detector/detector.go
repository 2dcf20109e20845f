// Package detector turns raw page signals (URL, title, bulk DOM insertion)
// into debounced "screen changed" notifications.
//
// The detector is a two-state machine. Stable: nothing pending. Pending: a
// qualifying signal was seen and the settle timer is running. Every further
// qualifying signal re-arms the timer, so a burst of SPA navigation noise
// yields exactly one Change once the page has been quiet for the delay of
// the last trigger. The detector knows nothing about scans or sessions.
package detector

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Kind is the type of page signal.
type Kind string

const (
	KindURL   Kind = "url"
	KindTitle Kind = "title"
	KindDOM   Kind = "dom"
)

// Signal is one raw observation from the page probe.
type Signal struct {
	Kind     Kind   `json:"kind"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Inserted int    `json:"inserted,omitempty"` // significant elements inserted (dom only)
}

// Change is emitted once per settled screen transition.
type Change struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Triggers []Kind    `json:"triggers"`
	At       time.Time `json:"at"`
}

// State is the detector state.
type State int

const (
	Stable State = iota
	Pending
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "stable"
}

// Config controls debounce delays and the DOM threshold.
type Config struct {
	// URLDelay is the settle time after a URL change. Default: 1s.
	URLDelay time.Duration
	// TitleDelay is the settle time after a title change. Default: 1s.
	TitleDelay time.Duration
	// DOMDelay is the settle time after a bulk insertion. Default: 1.5s.
	DOMDelay time.Duration
	// MinInserted is the number of significant elements one mutation batch
	// must insert to count as a screen change. Default: 3.
	MinInserted int

	Clock  clockwork.Clock
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.URLDelay <= 0 {
		c.URLDelay = time.Second
	}
	if c.TitleDelay <= 0 {
		c.TitleDelay = time.Second
	}
	if c.DOMDelay <= 0 {
		c.DOMDelay = 1500 * time.Millisecond
	}
	if c.MinInserted <= 0 {
		c.MinInserted = 3
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Detector debounces page signals into Changes. Safe for concurrent use.
type Detector struct {
	cfg Config

	mu       sync.Mutex
	state    State
	url      string
	title    string
	timer    clockwork.Timer
	gen      uint64 // bumped on every re-arm; stale timer callbacks compare against it
	triggers []Kind
	subs     map[uint64]func(Change)
	nextSub  uint64
	closed   bool
}

// New creates a Detector in the Stable state.
func New(cfg Config) *Detector {
	cfg.defaults()
	return &Detector{
		cfg:  cfg,
		subs: make(map[uint64]func(Change)),
	}
}

// Prime sets the baseline URL and title without triggering anything.
func (d *Detector) Prime(url, title string) {
	d.mu.Lock()
	d.url, d.title = url, title
	d.mu.Unlock()
}

// Subscribe registers fn for every emitted Change. A change still pending
// when the first subscriber arrives belongs to no one and is dropped. The
// returned function removes the subscription; when the last subscriber
// leaves, any pending timer is cancelled.
func (d *Detector) Subscribe(fn func(Change)) (unsubscribe func()) {
	d.mu.Lock()
	if len(d.subs) == 0 {
		d.cancelLocked()
	}
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			if len(d.subs) == 0 {
				d.cancelLocked()
			}
			d.mu.Unlock()
		})
	}
}

// Observe feeds one signal. It reports whether the signal qualified as a
// screen-change trigger (and therefore (re)armed the timer).
func (d *Detector) Observe(sig Signal) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	var delay time.Duration
	switch sig.Kind {
	case KindURL:
		if sig.URL == "" || sig.URL == d.url {
			return false
		}
		d.url = sig.URL
		delay = d.cfg.URLDelay
	case KindTitle:
		if sig.Title == d.title {
			return false
		}
		d.title = sig.Title
		delay = d.cfg.TitleDelay
	case KindDOM:
		if sig.Inserted < d.cfg.MinInserted {
			return false
		}
		delay = d.cfg.DOMDelay
	default:
		d.cfg.Logger.Debug("detector: unknown signal kind", "kind", sig.Kind)
		return false
	}

	if !containsKind(d.triggers, sig.Kind) {
		d.triggers = append(d.triggers, sig.Kind)
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.cfg.Clock.AfterFunc(delay, func() { d.fire(gen) })
	d.state = Pending
	return true
}

// State returns the current state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Reset cancels any pending change and returns to Stable.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.cancelLocked()
	d.mu.Unlock()
}

// Close cancels the pending timer and ignores all further signals.
func (d *Detector) Close() {
	d.mu.Lock()
	d.closed = true
	d.cancelLocked()
	d.subs = make(map[uint64]func(Change))
	d.mu.Unlock()
}

func (d *Detector) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.triggers = nil
	d.state = Stable
}

func (d *Detector) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen || d.state != Pending {
		d.mu.Unlock()
		return
	}
	change := Change{
		URL:      d.url,
		Title:    d.title,
		Triggers: d.triggers,
		At:       d.cfg.Clock.Now(),
	}
	d.triggers = nil
	d.timer = nil
	d.state = Stable
	subs := make([]func(Change), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()

	d.cfg.Logger.Debug("detector: screen changed",
		"url", change.URL, "title", change.Title, "triggers", change.Triggers)
	for _, fn := range subs {
		fn(change)
	}
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}
