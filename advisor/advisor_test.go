package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

func TestLookup(t *testing.T) {
	cases := []struct {
		category, issueType, want string
	}{
		{"a11y", "image-alt", "Add alt text to images describing their function."},
		{"accessibility", "image-alt", "Add alt text to images describing their function."},
		{"ui-ux", "touch-target-size", "Increase touch target to at least 44×44 px so users can tap easily."},
		{"a11y", "unknown-rule", "Review WCAG guidelines for accessibility compliance."},
		{"seo", "meta", DefaultSuggestion},
	}
	for _, c := range cases {
		if got := Lookup(c.category, c.issueType); got != c.want {
			t.Errorf("Lookup(%q, %q) = %q, want %q", c.category, c.issueType, got, c.want)
		}
	}
}

func TestSuggest_Caches(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))
	s := New(Config{Clock: clock})
	req := SuggestRequest{IssueType: "image-alt", Category: "a11y", Element: `<img src="a.png">`}

	first := s.Suggest(context.Background(), req)
	second := s.Suggest(context.Background(), req)
	if first.Suggestion != second.Suggestion {
		t.Errorf("cached suggestion differs: %q vs %q", first.Suggestion, second.Suggestion)
	}
	if s.CacheLen() != 1 {
		t.Errorf("CacheLen = %d, want 1", s.CacheLen())
	}
	if first.Timestamp != "2026-10-16T12:00:00Z" {
		t.Errorf("timestamp = %q", first.Timestamp)
	}

	req.Element = `<img src="b.png">`
	s.Suggest(context.Background(), req)
	if s.CacheLen() != 2 {
		t.Errorf("CacheLen = %d, want 2", s.CacheLen())
	}
}

func TestAnalyze(t *testing.T) {
	s := New(Config{})
	resp := s.Analyze(context.Background(), AnalyzeRequest{
		URL: "https://lms.example/l/1",
		Issues: []AnalyzeIssue{
			{Type: "color-contrast", Category: "a11y"},
			{Type: "lcp", Category: "uiux"},
			{},
		},
	})
	if len(resp.Suggestions) != 3 {
		t.Fatalf("suggestions = %v", resp.Suggestions)
	}
	if !strings.HasPrefix(resp.Suggestions["issue-1"], "Increase the contrast") {
		t.Errorf("issue-1 = %q", resp.Suggestions["issue-1"])
	}
	if resp.Suggestions["issue-3"] != "Review WCAG guidelines for accessibility compliance." {
		t.Errorf("issue-3 = %q", resp.Suggestions["issue-3"])
	}
	if resp.Summary != "Analysis completed for https://lms.example/l/1. Found 3 issues." {
		t.Errorf("summary = %q", resp.Summary)
	}
	if resp.Outline != "" {
		t.Errorf("outline without HTML = %q", resp.Outline)
	}
}

func TestAnalyzeOutline(t *testing.T) {
	s := New(Config{})
	resp := s.Analyze(context.Background(), AnalyzeRequest{
		URL:  "https://lms.example/l/1",
		HTML: `<html><body><h1>Fractions</h1><p>Intro text.</p><h2>Halves</h2><img src="x.png"><h2>Quarters</h2></body></html>`,
	})
	want := "# Fractions\n## Halves\n## Quarters"
	if resp.Outline != want {
		t.Errorf("outline = %q, want %q", resp.Outline, want)
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("héllo", 10); got != "héllo" {
		t.Errorf("short string changed: %q", got)
	}
	if got := shorten(strings.Repeat("é", 90), 80); got != strings.Repeat("é", 80)+"…" {
		t.Errorf("shorten = %q", got)
	}
	if got := ParseKeys(" a, ,b ,"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("ParseKeys = %v", got)
	}
}

func postJSON(t *testing.T, h http.Handler, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Routes(t *testing.T) {
	h := New(Config{}).Handler(HandlerConfig{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var root map[string]string
	json.NewDecoder(rec.Body).Decode(&root)
	if rec.Code != 200 || root["status"] != "operational" {
		t.Errorf("root: %d %v", rec.Code, root)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health: %d %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, h, "/api/suggest", SuggestRequest{IssueType: "inp", Category: "uiux"}, nil)
	var sr SuggestResponse
	json.NewDecoder(rec.Body).Decode(&sr)
	if rec.Code != 200 || !strings.HasPrefix(sr.Suggestion, "Improve interactivity") {
		t.Errorf("suggest: %d %+v", rec.Code, sr)
	}

	rec = postJSON(t, h, "/api/ai_suggest", SuggestRequest{IssueType: "inp"}, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("ai_suggest without keys: %d, want 500", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/suggest", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: %d, want 400", rec.Code)
	}
}

func TestHandler_CORSPreflight(t *testing.T) {
	h := New(Config{}).Handler(HandlerConfig{})
	req := httptest.NewRequest(http.MethodOptions, "/api/suggest", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "chrome-extension://abc" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestHandler_APIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	h := New(Config{}).Handler(HandlerConfig{APIKeyHash: hash})
	body := SuggestRequest{IssueType: "image-alt", Category: "a11y"}

	if rec := postJSON(t, h, "/api/suggest", body, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: %d, want 401", rec.Code)
	}
	if rec := postJSON(t, h, "/api/suggest", body, http.Header{"X-Api-Key": {"wrong"}}); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: %d, want 401", rec.Code)
	}
	if rec := postJSON(t, h, "/api/suggest", body, http.Header{"X-Api-Key": {"s3cret"}}); rec.Code != http.StatusOK {
		t.Errorf("good key: %d, want 200", rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health must stay public: %d", rec.Code)
	}
}

// openRouterStub accepts only the "good" key.
func openRouterStub(t *testing.T, content string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"invalid key","type":"auth"}}`))
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != DefaultModel {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "under 30 words") {
			t.Errorf("messages = %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		choices := `[]`
		if content != "" {
			choices = `[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":` + jsonString(content) + `}}]`
		}
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":` + choices + `}`))
	}))
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestAIClient_KeyRotation(t *testing.T) {
	var calls atomic.Int32
	srv := openRouterStub(t, "  Add a descriptive alt attribute.  ", &calls)
	defer srv.Close()

	ai := NewAIClient(AIConfig{Keys: []string{"bad", "good"}, BaseURL: srv.URL + "/api/v1/", HTTPClient: srv.Client()})
	s := New(Config{AI: ai})

	resp, err := s.AISuggest(context.Background(), SuggestRequest{IssueType: "image-alt", Severity: "critical"})
	if err != nil {
		t.Fatalf("AISuggest: %v", err)
	}
	if resp.Suggestion != "Add a descriptive alt attribute." {
		t.Errorf("suggestion = %q", resp.Suggestion)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestAIClient_AllKeysFail(t *testing.T) {
	var calls atomic.Int32
	srv := openRouterStub(t, "x", &calls)
	defer srv.Close()

	ai := NewAIClient(AIConfig{Keys: []string{"bad1", "bad2"}, BaseURL: srv.URL + "/api/v1/", HTTPClient: srv.Client()})
	_, err := ai.Suggest(context.Background(), SuggestRequest{})
	if !errors.Is(err, ErrAllKeysFailed) {
		t.Fatalf("err = %v, want ErrAllKeysFailed", err)
	}

	h := New(Config{AI: ai}).Handler(HandlerConfig{})
	if rec := postJSON(t, h, "/api/ai_suggest", SuggestRequest{}, nil); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestAIClient_NoChoices(t *testing.T) {
	var calls atomic.Int32
	srv := openRouterStub(t, "", &calls)
	defer srv.Close()

	ai := NewAIClient(AIConfig{Keys: []string{"good"}, BaseURL: srv.URL + "/api/v1/", HTTPClient: srv.Client()})
	got, err := ai.Suggest(context.Background(), SuggestRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if got != noAISuggestion {
		t.Errorf("got %q", got)
	}
}
