// Package lessonscan runs lesson scan sessions: it audits every distinct
// screen a learner visits, collects normalized issues per screen, and
// reports progress to observers until the session is stopped or its screen
// budget is spent.
//
// Usage:
//
//	c := lessonscan.NewCoordinator(lessonscan.Options{
//		Auditor: auditor,
//		Changes: det,
//		Sink:    sinks,
//	})
//	snap, err := c.Start(ctx)
//	// ... learner navigates ...
//	snap, err = c.Stop(ctx)
package lessonscan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/hazyhaar/a11ywatch/finding"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/detector"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/normalize"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/sink"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/store"
	"github.com/hazyhaar/a11ywatch/suggest"
)

// failureWarnAfter is the consecutive failed-screen count that raises the
// session warning.
const failureWarnAfter = 3

// persistTimeout bounds the history write at session end.
const persistTimeout = 10 * time.Second

// ScreenChange is a debounced screen change from the detector.
type ScreenChange = detector.Change

// HistoryRecord is one persisted session.
type HistoryRecord = store.Record

// Auditor audits the current document.
type Auditor interface {
	Ready(ctx context.Context) error
	Audit(ctx context.Context) (*finding.AuditResult, error)
}

// ChangeSource delivers screen changes to a subscriber.
type ChangeSource interface {
	Subscribe(fn func(ScreenChange)) (unsubscribe func())
}

// Suggester produces remediation text. It never fails; unavailable
// backends yield fallback text.
type Suggester interface {
	FetchSuggestion(ctx context.Context, iss finding.Issue) string
}

// History persists completed sessions.
type History interface {
	Save(ctx context.Context, r store.Record) error
	List(ctx context.Context, limit int) ([]store.Record, error)
}

// Options configures a Coordinator. Auditor and Changes are required.
type Options struct {
	Auditor   Auditor
	Changes   ChangeSource
	Suggester Suggester
	History   History
	Sink      sink.Sink
	Budget    Budget

	// Locate reports the current page location. It names screen 1 when
	// the audit itself fails.
	Locate func(ctx context.Context) (url, title string, err error)

	SnapshotLimit int
	Clock         clockwork.Clock
	Logger        *slog.Logger
}

// Coordinator owns at most one session at a time.
type Coordinator struct {
	opts Options
	norm *normalize.Normalizer
	seq  atomic.Uint64

	mu       sync.Mutex
	sess     *session
	starting bool
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Budget = opts.Budget.withDefaults()
	return &Coordinator{
		opts: opts,
		norm: normalize.New(
			normalize.WithSnapshotLimit(opts.SnapshotLimit),
			normalize.WithLogger(opts.Logger),
		),
	}
}

// Start begins a session and scans screen 1 before returning. A previous
// completed session is discarded (after being persisted).
func (c *Coordinator) Start(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.starting || (c.sess != nil && (c.sess.state == StateActive || c.sess.state == StateStopping)) {
		c.mu.Unlock()
		return Snapshot{}, ErrSessionAlreadyActive
	}
	c.starting = true
	prev := c.sess
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	if err := c.opts.Auditor.Ready(ctx); err != nil {
		c.opts.Logger.Warn("lessonscan: auditor not ready", "error", err)
		return Snapshot{}, fmt.Errorf("%w: %v", ErrNoAuditorAvailable, err)
	}

	if prev != nil {
		c.persist(prev)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:          newSessionID(),
		state:       StateActive,
		startedAt:   c.opts.Clock.Now(),
		budget:      c.opts.Budget,
		suggestions: make(map[string]string),
		ctx:         sctx,
		cancel:      cancel,
		wake:        make(chan struct{}, 1),
		first:       make(chan struct{}),
		done:        make(chan struct{}),
	}

	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()

	s.unsubscribe = c.opts.Changes.Subscribe(func(ch ScreenChange) { c.enqueue(s, ch) })
	c.opts.Logger.Info("lessonscan: session started", "session", s.id,
		"max_screens", s.budget.MaxScreens)

	go c.loop(s)

	select {
	case <-s.first:
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
	return c.State(), nil
}

// Stop ends the active session and returns its final snapshot. Stopping
// an idle or completed coordinator returns the current snapshot
// unchanged.
func (c *Coordinator) Stop(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	s := c.sess
	if s == nil || s.state == StateIdle || s.state == StateCompleted {
		c.mu.Unlock()
		return c.State(), nil
	}
	if s.state == StateActive {
		s.state = StateStopping
		s.endReason = EndStopped
		s.queue = nil
		s.cancel()
	}
	c.mu.Unlock()

	s.unsubscribeOnce()
	select {
	case <-s.done:
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
	return c.State(), nil
}

// State returns a deep copy of the current session.
func (c *Coordinator) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return Snapshot{State: StateIdle, Screens: []finding.Screen{}, Budget: c.opts.Budget}
	}
	return c.sess.snapshot()
}

func (c *Coordinator) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.id
}

// Suggest fetches remediation text for an issue of the current session
// and records it on the issue.
func (c *Coordinator) Suggest(ctx context.Context, issueID string) (string, error) {
	c.mu.Lock()
	s := c.sess
	iss, ok := findIssue(s, issueID)
	c.mu.Unlock()
	if !ok {
		return "", ErrIssueNotFound
	}

	var text string
	if c.opts.Suggester != nil {
		text = c.opts.Suggester.FetchSuggestion(ctx, iss)
	} else {
		text = suggest.Fallback(iss)
	}

	c.mu.Lock()
	if c.sess == s {
		s.suggestions[issueID] = text
		setSuggestion(s, issueID, text)
	}
	c.mu.Unlock()
	return text, nil
}

// History lists persisted sessions, newest first.
func (c *Coordinator) History(ctx context.Context, limit int) ([]HistoryRecord, error) {
	if c.opts.History == nil {
		return nil, nil
	}
	return c.opts.History.List(ctx, limit)
}

// Close stops any active session and persists the last completed one.
func (c *Coordinator) Close(ctx context.Context) error {
	if _, err := c.Stop(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s != nil {
		c.persist(s)
	}
	return nil
}

func (c *Coordinator) loop(s *session) {
	defer close(s.done)

	err := c.scan(s, nil)
	c.mu.Lock()
	started := StartedEvent{
		Message:       "lesson scan started",
		ScreenData:    copyScreens(s.screens),
		CurrentScreen: len(s.screens),
	}
	announce := s.state == StateActive || s.endReason == EndBudgetExceeded
	c.mu.Unlock()
	close(s.first)
	if announce {
		c.emit(s, EventStarted, started)
	}

	for err == nil {
		ch, ok := c.next(s)
		if !ok {
			break
		}
		err = c.scan(s, &ch)
	}
	if err != nil {
		c.opts.Logger.Info("lessonscan: auto-stop", "session", s.id, "reason", err)
	}
	c.finish(s)
}

// next pops the oldest queued change, blocking until one arrives or the
// session leaves the active state.
func (c *Coordinator) next(s *session) (ScreenChange, bool) {
	for {
		c.mu.Lock()
		if s.state != StateActive {
			c.mu.Unlock()
			return ScreenChange{}, false
		}
		if len(s.queue) > 0 {
			ch := s.queue[0]
			s.queue = s.queue[1:]
			c.mu.Unlock()
			return ch, true
		}
		c.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.ctx.Done():
			return ScreenChange{}, false
		}
	}
}

func (c *Coordinator) enqueue(s *session, ch ScreenChange) {
	c.mu.Lock()
	if c.sess != s || s.state != StateActive {
		c.mu.Unlock()
		c.opts.Logger.Debug("lessonscan: screen change ignored", "session", s.id, "url", ch.URL)
		return
	}
	s.queue = append(s.queue, ch)
	c.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// scan audits the current document and appends one screen. A scan
// interrupted by Stop leaves the session untouched. The screen that spends
// the budget ends the session with errBudgetExceeded.
func (c *Coordinator) scan(s *session, ch *ScreenChange) error {
	c.mu.Lock()
	num := len(s.screens) + 1
	c.mu.Unlock()

	res, err := c.opts.Auditor.Audit(s.ctx)
	if s.ctx.Err() != nil {
		return nil
	}

	screen := finding.Screen{ScreenNumber: num, ScannedAt: c.opts.Clock.Now(), Issues: []finding.Issue{}}
	if ch != nil {
		screen.URL, screen.Title = ch.URL, ch.Title
	}
	if err != nil {
		screen.ScanFailed = true
		screen.Error = err.Error()
		if ch == nil && c.opts.Locate != nil {
			if url, title, lerr := c.opts.Locate(s.ctx); lerr == nil {
				screen.URL, screen.Title = url, title
			}
		}
		c.opts.Logger.Warn("lessonscan: screen scan failed", "session", s.id, "screen", num, "error", err)
	} else {
		if res.URL != "" {
			screen.URL = res.URL
		}
		if res.Title != "" {
			screen.Title = res.Title
		}
		if res.HeuristicError != "" {
			c.opts.Logger.Warn("lessonscan: heuristics failed", "session", s.id, "screen", num, "error", res.HeuristicError)
		}
		issues := c.norm.Normalize(res, screen.Ref())
		kept, dropped := normalize.Cap(issues, s.budget.MaxIssuesPerScreen)
		if kept != nil {
			screen.Issues = kept
		}
		screen.DroppedIssues = dropped
		if dropped > 0 {
			c.opts.Logger.Info("lessonscan: issues capped", "session", s.id, "screen", num, "dropped", dropped)
		}
	}

	c.mu.Lock()
	if s.state != StateActive {
		c.mu.Unlock()
		return nil
	}
	s.screens = append(s.screens, screen)
	var warn string
	if screen.ScanFailed {
		s.failStreak++
		if s.failStreak == failureWarnAfter {
			s.warning = fmt.Sprintf("%d consecutive screens failed to scan", failureWarnAfter)
			warn = s.warning
		}
	} else {
		s.failStreak = 0
	}
	total := 0
	for _, sc := range s.screens {
		total += len(sc.Issues)
	}
	progress := ProgressEvent{
		ScreenNumber: num,
		IssuesCount:  len(screen.Issues),
		TotalIssues:  total,
		ScreenData:   copyScreen(screen),
		ScreenInfo:   *screen.Ref(),
	}
	full := len(s.screens) >= s.budget.MaxScreens
	dropped := 0
	if full {
		s.state = StateStopping
		s.endReason = EndBudgetExceeded
		dropped = len(s.queue)
		s.queue = nil
	}
	c.mu.Unlock()

	if full {
		s.unsubscribeOnce()
		if dropped > 0 {
			c.opts.Logger.Info("lessonscan: queued changes dropped", "session", s.id, "count", dropped)
		}
	}

	if screen.ScanFailed {
		c.emit(s, EventError, ErrorEvent{Error: screen.Error, ScreenNumber: num})
		if warn != "" {
			c.emit(s, EventError, ErrorEvent{Error: warn, Warning: warn})
		}
	}
	if num > 1 {
		c.emit(s, EventProgress, progress)
	}
	c.opts.Logger.Debug("lessonscan: screen scanned", "session", s.id, "screen", num,
		"issues", len(screen.Issues), "failed", screen.ScanFailed)
	if full {
		return errBudgetExceeded
	}
	return nil
}

// finish completes the session, emits the summary and persists it.
func (c *Coordinator) finish(s *session) {
	s.unsubscribeOnce()
	s.cancel()

	c.mu.Lock()
	if s.endReason == "" {
		s.endReason = EndStopped
	}
	s.state = StateCompleted
	s.endedAt = c.opts.Clock.Now()
	sum := finding.Summarize(s.screens)
	s.summary = &sum
	snap := s.snapshot()
	c.mu.Unlock()

	c.emit(s, EventComplete, CompleteEvent{
		Results:    snap.Issues(),
		ScreenData: snap.Screens,
		Summary:    *snap.Summary,
		EndReason:  snap.EndReason,
		Warning:    snap.Warning,
	})
	c.opts.Logger.Info("lessonscan: session completed", "session", s.id,
		"screens", sum.TotalScreens, "issues", sum.TotalIssues, "reason", s.endReason)
	c.persist(s)
}

// persist saves a completed session once. Failures are logged and retried
// at the next boundary.
func (c *Coordinator) persist(s *session) {
	if c.opts.History == nil {
		return
	}
	c.mu.Lock()
	if s.state != StateCompleted || s.persisted {
		c.mu.Unlock()
		return
	}
	rec := store.Record{
		SessionID: s.id,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
		EndReason: string(s.endReason),
		Warning:   s.warning,
		Summary:   copySummary(*s.summary),
		Screens:   make([]finding.ScreenRef, len(s.screens)),
	}
	for i, sc := range s.screens {
		rec.Screens[i] = *sc.Ref()
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.opts.History.Save(ctx, rec); err != nil {
		c.opts.Logger.Error("lessonscan: persist session", "session", s.id, "error", err)
		return
	}
	c.mu.Lock()
	s.persisted = true
	c.mu.Unlock()
}

func (c *Coordinator) emit(s *session, typ EventType, data any) {
	if c.opts.Sink == nil {
		return
	}
	ev := Event{
		Type:      typ,
		SessionID: s.id,
		Seq:       c.seq.Add(1),
		At:        c.opts.Clock.Now(),
		Data:      data,
	}
	if err := c.opts.Sink.Send(context.Background(), ev); err != nil {
		c.opts.Logger.Warn("lessonscan: event delivery failed", "type", typ, "error", err)
	}
}

func findIssue(s *session, id string) (finding.Issue, bool) {
	if s == nil {
		return finding.Issue{}, false
	}
	for _, sc := range s.screens {
		for _, iss := range sc.Issues {
			if iss.ID == id {
				return iss, true
			}
		}
	}
	return finding.Issue{}, false
}

func setSuggestion(s *session, id, text string) {
	for i := range s.screens {
		for j := range s.screens[i].Issues {
			if s.screens[i].Issues[j].ID == id {
				s.screens[i].Issues[j].Suggestion = text
			}
		}
	}
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
