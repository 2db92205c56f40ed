package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Server is the Kestrel HTTP API.
type Server struct {
	router chi.Router
	http   *http.Server
}

// NewServer wires the handler behind the middleware stack and binds it to
// cfg.Host:cfg.Port. Nothing listens until Start.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	router := newRouter(NewHandler(deps), cfg.AllowedOrigins, logger)

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           router,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

func newRouter(h *Handler, origins []string, logger *slog.Logger) chi.Router {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(
		cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", RequestIDHeader, TraceIDHeader},
			ExposedHeaders: []string{RequestIDHeader, TraceIDHeader},
			MaxAge:         int((24 * time.Hour).Seconds()),
		}),
		withRequestScope(logger),
		recoverPanics,
		middleware.RealIP,
		middleware.Compress(5),
	)

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Route("/policy", func(r chi.Router) {
		r.Get("/", h.GetPolicy)
		r.Put("/", h.PutPolicy)
		r.Post("/reset", h.ResetPolicy)
		r.Put("/minimum", h.SetMinimum)
		r.Post("/triggers", h.AddTrigger)
		r.Put("/triggers/{id}", h.UpdateTrigger)
		r.Delete("/triggers/{id}", h.DeleteTrigger)
	})

	r.Route("/cases", func(r chi.Router) {
		r.Get("/", h.ListCases)
		r.Post("/", h.CreateCase)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetCase)
			r.Get("/facts", h.GetCaseFacts)
			r.Get("/decisions", h.ListCaseDecisions)
			r.Post("/evaluate", h.EvaluateCase)
			r.Post("/escalate", h.EscalateCase)
			r.Post("/dismiss", h.DismissCase)
		})
	})

	r.Get("/decisions/{id}", h.GetDecision)
	r.Post("/evaluate", h.Evaluate)
	return r
}

func (s *Server) Addr() string {
	return s.http.Addr
}

// Start blocks serving requests. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Router exposes the routed handler so tests can serve requests in process.
func (s *Server) Router() http.Handler {
	return s.router
}
