// Package web provides the HTTP server and JSON API for the budget tracker.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gagan2k22/OPEX-Manager/internal/config"
	"github.com/gagan2k22/OPEX-Manager/internal/core"
	appmw "github.com/gagan2k22/OPEX-Manager/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server for the budget tracker API.
type Server struct {
	cfg     *config.Config
	service *core.Service
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server wired to the given service and configuration.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(appmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(appmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(s.securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := core.NewRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute, time.Now)
		s.router.Use(appmw.RateLimit(limiter))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Tracker grid and record CRUD
		r.Get("/tracker", s.handleTracker)
		r.Get("/tracker/export", s.handleExportTracker)
		r.Post("/records", s.handleCreateRecord)
		r.Get("/records/{id}", s.handleGetRecord)
		r.Put("/records/{id}", s.handleUpdateRecord)
		r.Delete("/records/{id}", s.handleDeleteRecord)

		// Upload endpoints carry their own tighter rate budget
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				limiter := core.NewRateLimiter(s.cfg.Rate.ImportLimit, time.Minute, time.Now)
				r.Use(appmw.RateLimit(limiter))
			}
			r.Post("/import", s.handleImport)
			r.Post("/reupload", s.handleStageUpload)
			r.Post("/allocations/import", s.handleImportAllocations)
		})

		// Direct import history and queue state
		r.Get("/import/logs", s.handleImportLogs)
		r.Get("/import/queue", s.handleImportQueue)

		// Staged re-upload lifecycle
		r.Get("/reupload/batches", s.handleListBatches)
		r.Get("/reupload/{batchID}", s.handleGetBatch)
		r.Get("/reupload/{batchID}/changes", s.handleBatchChanges)
		r.Get("/reupload/{batchID}/export", s.handleExportBatchDiff)
		r.Post("/reupload/{batchID}/confirm", s.handleConfirmBatch)
		r.Post("/reupload/{batchID}/cancel", s.handleCancelBatch)

		// Basis-of-allocation splits
		r.Get("/allocations", s.handleListAllocations)
		r.Get("/allocations/{serviceID}", s.handleGetAllocation)

		// Audit trail and activity
		r.Get("/audit", s.handleAuditLog)
		r.Post("/audit/{id}/restore", s.handleRestoreAudit)
		r.Get("/activity", s.handleActivity)

		// Master-data lookups
		r.Get("/lookups/{kind}", s.handleListLookups)
		r.Post("/lookups/{kind}", s.handleCreateLookup)
		r.Delete("/lookups/{kind}/{id}", s.handleDeleteLookup)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]string{"status": "ok"})
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			w.Header().Set("Content-Security-Policy", "default-src 'self'")
		}
		next.ServeHTTP(w, r)
	})
}
