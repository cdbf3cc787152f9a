package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openclaw/memberqr/metrics"
	"github.com/openclaw/memberqr/qr"
	"github.com/openclaw/memberqr/registry"
)

// Server holds the dependencies for all HTTP handlers.
type Server struct {
	Members   *registry.Service
	Composer  *qr.Composer
	BaseURL   string // optional; derived from the request when empty
	SecretKey string
	Debug     bool
	Log       *slog.Logger
	Version   string
	StartTime time.Time
}

// NewRouter returns a fully configured chi router with all routes.
func NewRouter(s *Server) http.Handler {
	if s.StartTime.IsZero() {
		s.StartTime = time.Now()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.Log))

	// Admin pages
	r.Get("/", s.handleIndex)
	r.Group(func(r chi.Router) {
		r.Use(s.csrfProtect())
		r.Get("/register", s.handleRegisterForm)
		r.Post("/register", s.handleRegister)
	})
	r.Get("/member/{memberID}", s.handleMemberDetails)

	// Public, reached by scanning the code
	r.Get("/profile/{memberID}", s.handlePublicProfile)
	r.Get("/qr/{memberID}", s.handleQR)

	// JSON API
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/members", s.handleListMembers)
		r.Post("/members", s.handleCreateMember)
		r.Get("/members/{memberID}", s.handleGetMember)
	})

	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", metrics.Handler())

	return r
}

// --- helpers ----------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// internalError logs err and answers 500. The error text is only exposed in
// debug mode.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error, asJSON bool) {
	s.Log.Error("request failed", "method", r.Method, "path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()), "error", err)

	msg := "internal server error"
	if s.Debug {
		msg = err.Error()
	}
	if asJSON {
		writeError(w, http.StatusInternalServerError, msg)
		return
	}
	http.Error(w, msg, http.StatusInternalServerError)
}

// --- middleware --------------------------------------------------------------

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
