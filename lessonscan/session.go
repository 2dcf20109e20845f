package lessonscan

import (
	"context"
	"sync"
	"time"

	"github.com/hazyhaar/a11ywatch/finding"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateActive    State = "active"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
)

// EndReason records why a session completed.
type EndReason string

const (
	EndStopped        EndReason = "stopped"
	EndBudgetExceeded EndReason = "budget_exceeded"
)

// Budget bounds one session.
type Budget struct {
	MaxScreens         int `json:"maxScreens"`
	MaxIssuesPerScreen int `json:"maxIssuesPerScreen"`
}

// DefaultBudget is used for zero budget fields.
var DefaultBudget = Budget{MaxScreens: 50, MaxIssuesPerScreen: 100}

func (b Budget) withDefaults() Budget {
	if b.MaxScreens <= 0 {
		b.MaxScreens = DefaultBudget.MaxScreens
	}
	if b.MaxIssuesPerScreen <= 0 {
		b.MaxIssuesPerScreen = DefaultBudget.MaxIssuesPerScreen
	}
	return b
}

// Snapshot is a read-only deep copy of a session.
type Snapshot struct {
	SessionID     string            `json:"sessionId,omitempty"`
	State         State             `json:"state"`
	Screens       []finding.Screen  `json:"screens"`
	CurrentScreen int               `json:"currentScreen"`
	StartedAt     time.Time         `json:"startedAt,omitzero"`
	EndedAt       time.Time         `json:"endedAt,omitzero"`
	Budget        Budget            `json:"budget"`
	Warning       string            `json:"warning,omitempty"`
	EndReason     EndReason         `json:"endReason,omitempty"`
	Summary       *finding.Summary  `json:"summary,omitempty"`
	Suggestions   map[string]string `json:"suggestions,omitempty"`
}

// Issues flattens every screen's issues in screen order.
func (s Snapshot) Issues() []finding.Issue {
	var out []finding.Issue
	for _, sc := range s.Screens {
		out = append(out, sc.Issues...)
	}
	return out
}

// session is owned by the Coordinator. Fields below the blank line are
// loop plumbing; everything else is guarded by Coordinator.mu.
type session struct {
	id          string
	state       State
	screens     []finding.Screen
	startedAt   time.Time
	endedAt     time.Time
	budget      Budget
	warning     string
	endReason   EndReason
	summary     *finding.Summary
	suggestions map[string]string
	failStreak  int
	persisted   bool
	queue       []ScreenChange

	ctx         context.Context
	cancel      context.CancelFunc
	wake        chan struct{}
	first       chan struct{}
	done        chan struct{}
	unsubscribe func()
	unsubOnce   sync.Once
}

func (s *session) unsubscribeOnce() {
	s.unsubOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

// snapshot deep-copies s. Caller holds the coordinator lock.
func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:     s.id,
		State:         s.state,
		Screens:       copyScreens(s.screens),
		CurrentScreen: len(s.screens),
		StartedAt:     s.startedAt,
		EndedAt:       s.endedAt,
		Budget:        s.budget,
		Warning:       s.warning,
		EndReason:     s.endReason,
	}
	if s.summary != nil {
		sum := copySummary(*s.summary)
		snap.Summary = &sum
	}
	if len(s.suggestions) > 0 {
		snap.Suggestions = make(map[string]string, len(s.suggestions))
		for k, v := range s.suggestions {
			snap.Suggestions[k] = v
		}
	}
	return snap
}

func copyScreens(in []finding.Screen) []finding.Screen {
	out := make([]finding.Screen, len(in))
	for i, sc := range in {
		out[i] = copyScreen(sc)
	}
	return out
}

func copyScreen(sc finding.Screen) finding.Screen {
	if sc.Issues != nil {
		issues := make([]finding.Issue, len(sc.Issues))
		for j, iss := range sc.Issues {
			if iss.ScreenContext != nil {
				ref := *iss.ScreenContext
				iss.ScreenContext = &ref
			}
			issues[j] = iss
		}
		sc.Issues = issues
	}
	return sc
}

func copySummary(s finding.Summary) finding.Summary {
	bs := make(map[finding.Severity]int, len(s.BySeverity))
	for k, v := range s.BySeverity {
		bs[k] = v
	}
	bc := make(map[finding.Category]int, len(s.ByCategory))
	for k, v := range s.ByCategory {
		bc[k] = v
	}
	s.BySeverity, s.ByCategory = bs, bc
	return s
}
