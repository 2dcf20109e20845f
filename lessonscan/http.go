package lessonscan

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/a11ywatch/kit"
)

const (
	maxCommandBody = 64 << 10
	ssePing        = 15 * time.Second
)

// HandlerConfig configures the HTTP surface of a Coordinator.
type HandlerConfig struct {
	// Hub feeds GET /lesson/events. Without it the route answers 404.
	Hub *Hub
	// EventBuffer is the per-stream event buffer. Default 64.
	EventBuffer int
	// MCP, when set, is served at /mcp over streamable HTTP.
	MCP    *mcp.Server
	Logger *slog.Logger
}

// Handler returns the chi router serving the lesson scan API.
func (c *Coordinator) Handler(cfg HandlerConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = c.opts.Logger
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(c.kitContext)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "state": string(c.State().State)})
	})

	r.Route("/lesson", func(r chi.Router) {
		r.Post("/command", func(w http.ResponseWriter, r *http.Request) {
			var cmd Command
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody)).Decode(&cmd); err != nil {
				writeJSON(w, http.StatusBadRequest, Response{Error: err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, c.Handle(r.Context(), cmd))
		})

		r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
			snap, err := c.Start(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})

		r.Post("/stop", func(w http.ResponseWriter, r *http.Request) {
			snap, err := c.Stop(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})

		r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, c.State())
		})

		r.Post("/suggest/{issueID}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "issueID")
			text, err := c.Suggest(r.Context(), id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"issueId": id, "suggestion": text})
		})

		r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
			limit := 20
			if v := r.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
					return
				}
				limit = n
			}
			recs, err := c.History(r.Context(), limit)
			if err != nil {
				writeError(w, err)
				return
			}
			if recs == nil {
				recs = []HistoryRecord{}
			}
			writeJSON(w, http.StatusOK, recs)
		})

		if cfg.Hub != nil {
			r.Get("/events", serveEvents(cfg.Hub, cfg.EventBuffer, cfg.Logger))
		}
	})

	if cfg.MCP != nil {
		srv := cfg.MCP
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}

	return r
}

// serveEvents streams hub events as server-sent events until the client
// disconnects or the hub closes.
func serveEvents(hub *Hub, buffer int, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, cancel := hub.Subscribe(buffer)
		defer cancel()

		rc := http.NewResponseController(w)
		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			logger.Warn("lessonscan: event stream not flushable", "error", err)
			return
		}

		ping := time.NewTicker(ssePing)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ping.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
			case ev, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					logger.Error("lessonscan: marshal event", "type", ev.Type, "error", err)
					continue
				}
				if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (c *Coordinator) kitContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithTransport(r.Context(), "http")
		ctx = kit.WithRequestID(ctx, middleware.GetReqID(ctx))
		if id := c.sessionID(); id != "" {
			ctx = kit.WithSessionID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("lessonscan: request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", kit.GetRequestID(r.Context()),
				"session_id", kit.GetSessionID(r.Context()))
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrSessionAlreadyActive):
		code = http.StatusConflict
	case errors.Is(err, ErrNoAuditorAvailable):
		code = http.StatusServiceUnavailable
	case errors.Is(err, ErrIssueNotFound):
		code = http.StatusNotFound
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
