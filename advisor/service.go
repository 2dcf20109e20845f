package advisor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/jonboulle/clockwork"
)

// Name and Version are reported by the root endpoint.
const (
	Name    = "a11ywatch suggestion advisor"
	Version = "1.0.0"
)

// Config configures a Service.
type Config struct {
	// AI is optional; without it /api/ai_suggest answers 500.
	AI     *AIClient
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Service produces suggestions. Safe for concurrent use.
type Service struct {
	ai     *AIClient
	clock  clockwork.Clock
	logger *slog.Logger
	md     *converter.Converter

	mu    sync.RWMutex
	cache map[string]string
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		ai:     cfg.AI,
		clock:  cfg.Clock,
		logger: cfg.Logger,
		md:     newMarkdownConverter(),
		cache:  make(map[string]string),
	}
}

// redact is the hook applied to page-derived text before use. Content is
// passed through unchanged.
func redact(s string) string { return s }

func cacheKey(category, issueType, element string) string {
	sum := md5.Sum([]byte(element))
	return category + ":" + issueType + ":" + hex.EncodeToString(sum[:])
}

// Suggest answers from the static table, caching by category, issue type
// and element.
func (s *Service) Suggest(_ context.Context, req SuggestRequest) SuggestResponse {
	elem := redact(req.Element)
	key := cacheKey(req.Category, req.IssueType, elem)

	s.mu.RLock()
	text, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		s.logger.Debug("advisor: cache hit", "key", key)
		return s.response(text)
	}

	text = Lookup(req.Category, req.IssueType)
	s.mu.Lock()
	s.cache[key] = text
	s.mu.Unlock()
	return s.response(text)
}

// CacheLen returns the number of cached suggestions.
func (s *Service) CacheLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// AISuggest asks the LLM. It is never cached.
func (s *Service) AISuggest(ctx context.Context, req SuggestRequest) (SuggestResponse, error) {
	if s.ai == nil {
		return SuggestResponse{}, ErrNoKeys
	}
	req.Element = redact(req.Element)
	req.IssueDescription = redact(req.IssueDescription)

	text, err := s.ai.Suggest(ctx, req)
	if err != nil {
		return SuggestResponse{}, err
	}
	return s.response(text), nil
}

// Analyze suggests for every issue of a page through the static path.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) AnalyzeResponse {
	out := make(map[string]string, len(req.Issues))
	for i, iss := range req.Issues {
		sr := SuggestRequest{
			IssueType:        orDefault(iss.Type, "unknown"),
			IssueDescription: redact(iss.Description),
			Element:          redact(iss.Element),
			Severity:         orDefault(iss.Severity, "moderate"),
			Category:         orDefault(iss.Category, CategoryA11y),
			Context:          &RequestContext{URL: req.URL},
		}
		out[fmt.Sprintf("issue-%d", i+1)] = s.Suggest(ctx, sr).Suggestion
	}
	return AnalyzeResponse{
		Suggestions: out,
		Summary:     fmt.Sprintf("Analysis completed for %s. Found %d issues.", req.URL, len(req.Issues)),
		Outline:     s.outline(req.HTML, req.URL),
		Timestamp:   s.timestamp(),
	}
}

func (s *Service) response(text string) SuggestResponse {
	return SuggestResponse{Suggestion: text, Timestamp: s.timestamp()}
}

func (s *Service) timestamp() string {
	return s.clock.Now().Format(time.RFC3339Nano)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
