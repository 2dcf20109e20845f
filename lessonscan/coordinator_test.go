package lessonscan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/goleak"

	"github.com/hazyhaar/a11ywatch/finding"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/detector"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/sink"
	"github.com/hazyhaar/a11ywatch/lessonscan/internal/store"
)

// fakeAuditor returns one image-alt violation per call unless fail is set.
// When block is set, Audit waits for it to close or for cancellation.
// Anonymous results carry no URL or title, so screens keep the change's.
type fakeAuditor struct {
	mu        sync.Mutex
	readyErr  error
	fail      error
	block     chan struct{}
	calls     int
	perCall   int
	anonymous bool

	inFlight    int
	maxInFlight int
}

func (a *fakeAuditor) Ready(context.Context) error { return a.readyErr }

func (a *fakeAuditor) Audit(ctx context.Context) (*finding.AuditResult, error) {
	a.mu.Lock()
	a.calls++
	n := a.calls
	fail, block, per, anon := a.fail, a.block, a.perCall, a.anonymous
	a.inFlight++
	a.maxInFlight = max(a.maxInFlight, a.inFlight)
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.inFlight--
		a.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}
	if per == 0 {
		per = 1
	}
	v := finding.Violation{ID: "image-alt", Impact: "critical", Help: "Images must have alternate text"}
	for i := 0; i < per; i++ {
		v.Nodes = append(v.Nodes, finding.Node{
			HTML:   fmt.Sprintf(`<img src="%d.png">`, i),
			Target: []string{fmt.Sprintf("img:nth-of-type(%d)", i+1)},
		})
	}
	res := &finding.AuditResult{Violations: []finding.Violation{v}}
	if !anon {
		res.URL = fmt.Sprintf("https://lms.example/lesson#%d", n)
		res.Title = fmt.Sprintf("Screen %d", n)
	}
	return res, nil
}

func (a *fakeAuditor) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *fakeAuditor) setFail(err error) {
	a.mu.Lock()
	a.fail = err
	a.mu.Unlock()
}

// fakeChanges lets a test push screen changes.
type fakeChanges struct {
	mu sync.Mutex
	fn func(ScreenChange)
}

func (f *fakeChanges) Subscribe(fn func(ScreenChange)) func() {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.fn = nil
		f.mu.Unlock()
	}
}

func (f *fakeChanges) push(url, title string) bool {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(ScreenChange{URL: url, Title: title})
	return true
}

type fakeSuggester struct {
	mu    sync.Mutex
	calls []string
}

func (s *fakeSuggester) FetchSuggestion(_ context.Context, iss finding.Issue) string {
	s.mu.Lock()
	s.calls = append(s.calls, iss.ID)
	s.mu.Unlock()
	return "add alt text to " + iss.Selector
}

type harness struct {
	c       *Coordinator
	auditor *fakeAuditor
	changes *fakeChanges
	events  chan Event
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		auditor: &fakeAuditor{},
		changes: &fakeChanges{},
		events:  make(chan Event, 256),
	}
	if opts.Auditor == nil {
		opts.Auditor = h.auditor
	}
	opts.Changes = h.changes
	opts.Sink = sink.NewCallback(func(_ context.Context, ev finding.Event) error {
		h.events <- ev
		return nil
	})
	h.c = NewCoordinator(opts)
	t.Cleanup(func() { h.c.Close(context.Background()) })
	return h
}

// waitEvent returns the next event of type typ, skipping others.
func (h *harness) waitEvent(t *testing.T, typ EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func (h *harness) waitProgress(t *testing.T, screen int) {
	t.Helper()
	for {
		ev := h.waitEvent(t, EventProgress)
		if ev.Data.(ProgressEvent).ScreenNumber == screen {
			return
		}
	}
}

func TestStartScansFirstScreen(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Options{})

	snap, err := h.c.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != StateActive {
		t.Fatalf("state: got %s, want active", snap.State)
	}
	if len(snap.Screens) != 1 || snap.CurrentScreen != 1 {
		t.Fatalf("screens: got %d (current %d), want 1", len(snap.Screens), snap.CurrentScreen)
	}
	sc := snap.Screens[0]
	if sc.ScreenNumber != 1 || sc.Title != "Screen 1" || len(sc.Issues) != 1 {
		t.Fatalf("screen 1: %+v", sc)
	}
	if sc.Issues[0].ScreenContext == nil || sc.Issues[0].ScreenContext.ScreenNumber != 1 {
		t.Errorf("issue screen context: %+v", sc.Issues[0].ScreenContext)
	}

	ev := h.waitEvent(t, EventStarted)
	started := ev.Data.(StartedEvent)
	if started.CurrentScreen != 1 || ev.SessionID != snap.SessionID {
		t.Errorf("started event: %+v (session %s)", started, ev.SessionID)
	}

	if _, err := h.c.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestScreensAreNumberedWithoutGaps(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Options{})

	if _, err := h.c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 2; i <= 4; i++ {
		if !h.changes.push(fmt.Sprintf("https://lms.example/lesson#%d", i), fmt.Sprintf("Change %d", i)) {
			t.Fatal("coordinator is not subscribed")
		}
	}
	h.waitProgress(t, 4)

	snap, err := h.c.Stop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != StateCompleted || snap.EndReason != EndStopped {
		t.Fatalf("final state: %s reason %q", snap.State, snap.EndReason)
	}
	if len(snap.Screens) != 4 {
		t.Fatalf("screens: got %d, want 4", len(snap.Screens))
	}
	seen := make(map[string]bool)
	for i, sc := range snap.Screens {
		if sc.ScreenNumber != i+1 {
			t.Errorf("screen[%d].ScreenNumber = %d", i, sc.ScreenNumber)
		}
		for _, iss := range sc.Issues {
			if seen[iss.ID] {
				t.Errorf("duplicate issue id %s", iss.ID)
			}
			seen[iss.ID] = true
		}
	}
	if snap.Summary == nil || snap.Summary.TotalScreens != 4 || snap.Summary.TotalIssues != 4 {
		t.Fatalf("summary: %+v", snap.Summary)
	}

	ev := h.waitEvent(t, EventComplete)
	done := ev.Data.(CompleteEvent)
	if len(done.Results) != 4 || done.EndReason != EndStopped {
		t.Errorf("complete event: %d results, reason %q", len(done.Results), done.EndReason)
	}
}

func TestStartWhileActiveIsRejected(t *testing.T) {
	h := newHarness(t, Options{})

	first, err := h.c.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.c.Start(context.Background()); !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("second Start: got %v, want ErrSessionAlreadyActive", err)
	}
	if got := h.c.State(); got.SessionID != first.SessionID || got.State != StateActive {
		t.Errorf("session changed after rejected start: %s %s", got.SessionID, got.State)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Options{})

	idle, err := h.c.Stop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if idle.State != StateIdle || len(idle.Screens) != 0 {
		t.Fatalf("stop while idle: %+v", idle)
	}

	if _, err := h.c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	a, err := h.c.Stop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.c.Stop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !a.EndedAt.Equal(b.EndedAt) || len(a.Screens) != len(b.Screens) || a.SessionID != b.SessionID {
		t.Fatalf("second stop changed the session: %+v vs %+v", a, b)
	}

	h.waitEvent(t, EventComplete)
	select {
	case ev := <-h.events:
		if ev.Type == EventComplete {
			t.Fatal("second stop emitted another completion")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChangesAfterStopAreIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	if _, err := h.c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.c.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.changes.push("https://lms.example/late", "Late") {
		t.Fatal("coordinator still subscribed after stop")
	}
	if n := len(h.c.State().Screens); n != 1 {
		t.Fatalf("screens after stop: %d", n)
	}
}

func TestBudgetExceededAutoStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Options{Budget: Budget{MaxScreens: 3}})

	if _, err := h.c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 2; i <= 6; i++ {
		h.changes.push(fmt.Sprintf("https://lms.example/#%d", i), "")
	}

	ev := h.waitEvent(t, EventComplete)
	if got := ev.Data.(CompleteEvent).EndReason; got != EndBudgetExceeded {
		t.Fatalf("end reason: got %q, want %q", got, EndBudgetExceeded)
	}

	snap := h.c.State()
	if snap.State != StateCompleted {
		t.Fatalf("state: %s", snap.State)
	}
	if len(snap.Screens) != 3 {
		t.Fatalf("screens: got %d, want 3", len(snap.Screens))
	}
	if _, err := h.c.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestBudgetReachedCompletesWithoutFurtherChange(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Options{Budget: Budget{MaxScreens: 2}})

	if _, err := h.c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.changes.push("https://lms.example/#2", "Two")

	ev := h.waitEvent(t, EventComplete)
	if got := ev.Data.(CompleteEvent).EndReason; got != EndBudgetExceeded {
		t.Fatalf("end reason: got %q, want %q", got, EndBudgetExceeded)
	}
	snap := h.c.State()
	if snap.State != StateCompleted || len(snap.Screens) != 2 {
		t.Fatalf("after budget: state %s, %d screens", snap.State, len(snap.Screens))
	}
	if h.changes.push("https://lms.example/#3", "Three") {
		t.Error("coordinator still subscribed after the budget was spent")
	}
}

func TestSingleScreenBudget(t *testing.T) {
	h := newHarness(t, Options{Budget: Budget{MaxScreens: 1}})

	if _, err := h.c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.waitEvent(t, EventStarted)
	ev := h.waitEvent(t, EventComplete)
	done := ev.Data.(CompleteEvent)
	if done.EndReason != EndBudgetExceeded || len(done.ScreenData) != 1 {
		t.Fatalf("complete: reason %q, %d screens", done.EndReason, len(done.ScreenData))
	}
}

func TestChangesDuringScanQueueInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Options{})
	h.auditor.anonymous = true

	if _, err := h.c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	h.auditor.mu.Lock()
	h.auditor.block = release
	h.auditor.mu.Unlock()

	h.changes.push("https://lms.example/#a", "A")
	deadline := time.Now().Add(2 * time.Second)
	for h.auditor.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second audit never started")
		}
		time.Sleep(time.Millisecond)
	}

	// Screen 2 is held; these must wait for it.
	h.changes.push("https://lms.example/#b", "B")
	h.changes.push("https://lms.example/#c", "C")
	time.Sleep(20 * time.Millisecond)
	if n := h.auditor.callCount(); n != 2 {
		t.Fatalf("audits started while screen 2 was held: %d", n)
	}
	if n := len(h.c.State().Screens); n != 1 {
		t.Fatalf("screens while screen 2 is held: %d", n)
	}

	close(release)
	h.waitProgress(t, 4)

	snap, err := h.c.Stop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"A", "B", "C"}
	if len(snap.Screens) != 4 {
		t.Fatalf("screens: got %d, want 4", len(snap.Screens))
	}
	for i, title := range want {
		sc := snap.Screens[i+1]
		if sc.ScreenNumber != i+2 || sc.Title != title {
			t.Errorf("screen %d: number %d title %q, want %q", i+2, sc.ScreenNumber, sc.Title, title)
		}
	}
	h.auditor.mu.Lock()
	peak := h.auditor.maxInFlight
	h.auditor.mu.Unlock()
	if peak != 1 {
		t.Errorf("concurrent audits: %d, want 1", peak)
	}
}

func TestPendingChangeBeforeStartIsDropped(t *testing.T) {
	fc := clockwork.NewFakeClock()
	det := detector.New(detector.Config{Clock: fc, TitleDelay: time.Second})
	defer det.Close()
	det.Prime("https://lms.example/lesson", "Intro")

	events := make(chan Event, 64)
	c := NewCoordinator(Options{
		Auditor: &fakeAuditor{},
		Changes: det,
		Sink: sink.NewCallback(func(_ context.Context, ev finding.Event) error {
			events <- ev
			return nil
		}),
	})
	defer c.Close(context.Background())

	// The page settles on screen 1 just before the session starts.
	det.Observe(detector.Signal{Kind: detector.KindTitle, Title: "Screen 1"})
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	fc.Advance(time.Second)
	time.Sleep(50 * time.Millisecond)
	if n := len(c.State().Screens); n != 1 {
		t.Fatalf("screens with no navigation: %d, want 1", n)
	}

	det.Observe(detector.Signal{Kind: detector.KindTitle, Title: "Screen 2"})
	fc.Advance(time.Second)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventProgress && ev.Data.(ProgressEvent).ScreenNumber == 2 {
				if n := len(c.State().Screens); n != 2 {
					t.Fatalf("screens after navigation: %d, want 2", n)
				}
				return
			}
		case <-deadline:
			t.Fatal("navigation after start produced no screen")
		}
	}
}

func TestIssuesAreCappedPerScreen(t *testing.T) {
	h := newHarness(t, Options{Budget: Budget{MaxIssuesPerScreen: 2}})
	h.auditor.perCall = 5

	snap, err := h.c.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	sc := snap.Screens[0]
	if len(sc.Issues) != 2 || sc.DroppedIssues != 3 {
		t.Fatalf("cap: kept %d dropped %d", len(sc.Issues), sc.DroppedIssues)
	}
}

func TestConsecutiveFailuresRaiseWarning(t *testing.T) {
	h := newHarness(t, Options{})
	if _, err := h.c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.auditor.setFail(errors.New("axe crashed"))

	for i := 2; i <= 4; i++ {
		h.changes.push(fmt.Sprintf("https://lms.example/#%d", i), fmt.Sprintf("Broken %d", i))
	}
	h.waitProgress(t, 4)

	snap := h.c.State()
	if snap.Warning == "" {
		t.Fatal("warning not set after three failed screens")
	}
	for _, sc := range snap.Screens[1:] {
		if !sc.ScanFailed || sc.Error != "axe crashed" || len(sc.Issues) != 0 {
			t.Errorf("screen %d: failed=%v error=%q issues=%d", sc.ScreenNumber, sc.ScanFailed, sc.Error, len(sc.Issues))
		}
	}
	if snap.Screens[1].Title != "Broken 2" {
		t.Errorf("failed screen keeps the change title, got %q", snap.Screens[1].Title)
	}

	stopped, err := h.c.Stop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stopped.Summary.FailedScreens != 3 || stopped.Warning == "" {
		t.Errorf("summary failed=%d warning=%q", stopped.Summary.FailedScreens, stopped.Warning)
	}
}

func TestFailureStreakResetsOnSuccess(t *testing.T) {
	h := newHarness(t, Options{})
	if _, err := h.c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.auditor.setFail(errors.New("boom"))
	h.changes.push("https://lms.example/#2", "")
	h.changes.push("https://lms.example/#3", "")
	h.waitProgress(t, 3)
	h.auditor.setFail(nil)
	h.changes.push("https://lms.example/#4", "")
	h.waitProgress(t, 4)
	h.auditor.setFail(errors.New("boom"))
	h.changes.push("https://lms.example/#5", "")
	h.waitProgress(t, 5)

	if w := h.c.State().Warning; w != "" {
		t.Fatalf("warning set without three consecutive failures: %q", w)
	}
}

func TestStartWithoutAuditor(t *testing.T) {
	h := newHarness(t, Options{})
	h.auditor.readyErr = errors.New("axe missing")

	_, err := h.c.Start(context.Background())
	if !errors.Is(err, ErrNoAuditorAvailable) {
		t.Fatalf("got %v, want ErrNoAuditorAvailable", err)
	}
	if st := h.c.State(); st.State != StateIdle || st.SessionID != "" {
		t.Fatalf("a session was created: %+v", st)
	}
}

func TestStopDuringScanDiscardsPartialScreen(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t, Options{})
	if _, err := h.c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.auditor.mu.Lock()
	h.auditor.block = make(chan struct{})
	h.auditor.mu.Unlock()
	h.changes.push("https://lms.example/#2", "")

	// Let the loop enter the blocking audit.
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.auditor.mu.Lock()
		calls := h.auditor.calls
		h.auditor.mu.Unlock()
		if calls >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("second audit never started")
		}
		time.Sleep(time.Millisecond)
	}

	snap, err := h.c.Stop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Screens) != 1 || snap.State != StateCompleted {
		t.Fatalf("after stop mid-scan: %d screens, state %s", len(snap.Screens), snap.State)
	}
}

func TestSuggest(t *testing.T) {
	sug := &fakeSuggester{}
	h := newHarness(t, Options{Suggester: sug})

	if _, err := h.c.Suggest(context.Background(), "iss_missing"); !errors.Is(err, ErrIssueNotFound) {
		t.Fatalf("idle suggest: got %v", err)
	}

	snap, err := h.c.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	iss := snap.Screens[0].Issues[0]

	text, err := h.c.Suggest(context.Background(), iss.ID)
	if err != nil {
		t.Fatal(err)
	}
	if text != "add alt text to "+iss.Selector {
		t.Fatalf("suggestion: %q", text)
	}
	after := h.c.State()
	if after.Suggestions[iss.ID] != text || after.Screens[0].Issues[0].Suggestion != text {
		t.Errorf("suggestion not recorded: %+v", after.Suggestions)
	}
	if _, err := h.c.Suggest(context.Background(), "iss_unknown"); !errors.Is(err, ErrIssueNotFound) {
		t.Errorf("unknown id: got %v", err)
	}
}

func TestSuggestWithoutBackendUsesFallback(t *testing.T) {
	h := newHarness(t, Options{})
	snap, err := h.c.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	text, err := h.c.Suggest(context.Background(), snap.Screens[0].Issues[0].ID)
	if err != nil || text == "" {
		t.Fatalf("fallback suggestion: %q, %v", text, err)
	}
}

func TestStateIsADeepCopy(t *testing.T) {
	h := newHarness(t, Options{})
	snap, err := h.c.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	snap.Screens[0].Issues[0].Title = "mutated"
	snap.Screens[0].Issues[0].ScreenContext.Title = "mutated"
	snap.Screens = append(snap.Screens, finding.Screen{})

	again := h.c.State()
	if len(again.Screens) != 1 {
		t.Fatalf("screens leaked: %d", len(again.Screens))
	}
	if again.Screens[0].Issues[0].Title == "mutated" || again.Screens[0].Issues[0].ScreenContext.Title == "mutated" {
		t.Fatal("snapshot shares memory with the session")
	}
}

func TestCompletedSessionIsPersisted(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	h := newHarness(t, Options{History: st})

	first, err := h.c.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	h.changes.push("https://lms.example/#2", "Two")
	h.waitProgress(t, 2)
	if _, err := h.c.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	recs, err := h.c.History(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].SessionID != first.SessionID {
		t.Fatalf("history: %+v", recs)
	}
	if recs[0].Summary.TotalScreens != 2 || len(recs[0].Screens) != 2 || recs[0].EndReason != string(EndStopped) {
		t.Errorf("record: %+v", recs[0])
	}

	// A new session replaces the completed one; history keeps both.
	second, err := h.c.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second.SessionID == first.SessionID || len(second.Screens) != 1 {
		t.Fatalf("second session: %+v", second)
	}
	if _, err := h.c.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	recs, _ = h.c.History(context.Background(), 10)
	if len(recs) != 2 {
		t.Fatalf("history after second session: %d records", len(recs))
	}
}

func TestHandleCommands(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	if r := h.c.Handle(ctx, Command{Type: "bogus"}); r.Success || r.Error == "" {
		t.Fatalf("unknown command: %+v", r)
	}

	r := h.c.Handle(ctx, Command{Type: CmdStart})
	if !r.Success || r.CurrentScreen != 1 || len(r.ScreenData) != 1 {
		t.Fatalf("start: %+v", r)
	}
	if r := h.c.Handle(ctx, Command{Type: CmdStart}); r.Success || r.Error == "" {
		t.Fatalf("second start: %+v", r)
	}

	r = h.c.Handle(ctx, Command{Type: CmdState})
	if !r.Success || r.State == nil || r.State.State != StateActive {
		t.Fatalf("state: %+v", r)
	}

	id := r.State.Screens[0].Issues[0].ID
	if r := h.c.Handle(ctx, Command{Type: CmdSuggestion}); r.Success {
		t.Fatalf("suggestion without id: %+v", r)
	}
	if r := h.c.Handle(ctx, Command{Type: CmdSuggestion, IssueID: id}); !r.Success || r.Suggestion == "" {
		t.Fatalf("suggestion: %+v", r)
	}

	r = h.c.Handle(ctx, Command{Type: CmdStop})
	if !r.Success || r.TotalScreens != 1 || r.Summary == nil || len(r.Results) != 1 {
		t.Fatalf("stop: %+v", r)
	}
}
