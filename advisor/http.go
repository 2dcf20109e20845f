package advisor

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"
)

// maxBody bounds request bodies (analyze requests carry page HTML).
const maxBody = 4 << 20

// HandlerConfig configures the HTTP surface.
type HandlerConfig struct {
	// APIKeyHash is a bcrypt hash. When set, suggest and analyze routes
	// require a matching X-API-Key header.
	APIKeyHash []byte
	Logger     *slog.Logger
}

// Handler returns the chi router serving the backend API.
func (s *Service) Handler(cfg HandlerConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(allowAllCORS)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"name": Name, "version": Version, "status": "operational"})
	})
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "timestamp": s.timestamp()})
	})

	r.Group(func(r chi.Router) {
		if len(cfg.APIKeyHash) > 0 {
			r.Use(requireAPIKey(cfg.APIKeyHash))
		}

		r.Post("/api/suggest", func(w http.ResponseWriter, r *http.Request) {
			var req SuggestRequest
			if !decode(w, r, &req) {
				return
			}
			writeJSON(w, http.StatusOK, s.Suggest(r.Context(), req))
		})

		r.Post("/api/ai_suggest", func(w http.ResponseWriter, r *http.Request) {
			var req SuggestRequest
			if !decode(w, r, &req) {
				return
			}
			resp, err := s.AISuggest(r.Context(), req)
			if err != nil {
				s.logger.Error("advisor: ai_suggest", "error", err)
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Post("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
			var req AnalyzeRequest
			if !decode(w, r, &req) {
				return
			}
			writeJSON(w, http.StatusOK, s.Analyze(r.Context(), req))
		})
	})

	return r
}

// HashAPIKey returns the bcrypt hash to configure for key.
func HashAPIKey(key string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
}

func requireAPIKey(hash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" || bcrypt.CompareHashAndPassword(hash, []byte(key)) != nil {
				writeError(w, http.StatusUnauthorized, errors.New("invalid API key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowAllCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization")
		h.Add("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("advisor: request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"detail": err.Error()})
}
