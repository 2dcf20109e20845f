package finding

import "time"

// Screen is one distinct navigational state visited during a lesson scan.
type Screen struct {
	ScreenNumber  int       `json:"screenNumber"`
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	Issues        []Issue   `json:"issues"`
	ScanFailed    bool      `json:"scanFailed,omitempty"`
	Error         string    `json:"error,omitempty"`
	DroppedIssues int       `json:"droppedIssues,omitempty"`
	ScannedAt     time.Time `json:"scannedAt"`
}

// Ref returns the screen's identity for embedding in issues.
func (s Screen) Ref() *ScreenRef {
	return &ScreenRef{ScreenNumber: s.ScreenNumber, Title: s.Title, URL: s.URL}
}

// Summary aggregates a finished set of screens.
type Summary struct {
	TotalScreens           int              `json:"totalScreens"`
	TotalIssues            int              `json:"totalIssues"`
	BySeverity             map[Severity]int `json:"bySeverity"`
	ByCategory             map[Category]int `json:"byCategory"`
	AverageIssuesPerScreen float64          `json:"averageIssuesPerScreen"`
	FailedScreens          int              `json:"failedScreens"`
}

// Summarize computes the aggregate counts over screens.
func Summarize(screens []Screen) Summary {
	sum := Summary{
		TotalScreens: len(screens),
		BySeverity:   make(map[Severity]int, len(Severities)),
		ByCategory:   make(map[Category]int, 2),
	}
	for _, sev := range Severities {
		sum.BySeverity[sev] = 0
	}
	for _, sc := range screens {
		if sc.ScanFailed {
			sum.FailedScreens++
		}
		for _, iss := range sc.Issues {
			sum.TotalIssues++
			sum.BySeverity[iss.Severity]++
			sum.ByCategory[iss.Category]++
		}
	}
	if sum.TotalScreens > 0 {
		sum.AverageIssuesPerScreen = float64(sum.TotalIssues) / float64(sum.TotalScreens)
	}
	return sum
}
