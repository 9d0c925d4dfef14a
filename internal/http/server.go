// Package http exposes the JSON API and the embedded dashboard frontend.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/services"
	"fintrack/internal/storage"
	appweb "fintrack/web"
)

type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyUser      contextKey = "user"
)

func contextWithUser(ctx context.Context, user *core.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

// userFromContext returns the authenticated user. Only reachable behind
// requireAuth, so a missing value is a programming error.
func userFromContext(ctx context.Context) *core.User {
	user, _ := ctx.Value(ctxKeyUser).(*core.User)
	return user
}

// Server wires the API routes, the dashboard pages, and the middleware
// chain on top of the stdlib http.Server.
type Server struct {
	http.Server
	cfg         *config.Config
	expenses    *services.ExpenseService
	users       *storage.SQLiteRepository
	templates   *template.Template
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(cfg *config.Config, expenses *services.ExpenseService, users *storage.SQLiteRepository) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		cfg:         cfg,
		expenses:    expenses,
		users:       users,
		rateLimiter: newRateLimiter(cfg.RateLimitPerMinute),
	}

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	// Pages
	mux.HandleFunc("GET /{$}", s.withMiddleware(s.handleIndex))
	mux.HandleFunc("GET /login", s.withMiddleware(s.handleLoginPage))

	// Auth API
	mux.HandleFunc("POST /api/auth/register", s.withMiddleware(s.handleRegister))
	mux.HandleFunc("POST /api/auth/login", s.withMiddleware(s.handleLogin))
	mux.HandleFunc("GET /api/auth/me", s.withMiddleware(s.requireAuth(s.handleMe)))
	mux.HandleFunc("POST /api/auth/logout", s.withMiddleware(s.requireAuth(s.handleLogout)))

	// Expense API
	mux.HandleFunc("GET /api/expenses", s.withMiddleware(s.requireAuth(s.handleListExpenses)))
	mux.HandleFunc("POST /api/expenses", s.withMiddleware(s.requireAuth(s.handleCreateExpense)))
	mux.HandleFunc("GET /api/expenses/stats", s.withMiddleware(s.requireAuth(s.handleStats)))
	mux.HandleFunc("GET /api/expenses/{id}", s.withMiddleware(s.requireAuth(s.handleGetExpense)))
	mux.HandleFunc("PUT /api/expenses/{id}", s.withMiddleware(s.requireAuth(s.handleUpdateExpense)))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.withMiddleware(s.requireAuth(s.handleDeleteExpense)))

	return s
}

// Shutdown stops the server and its background cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withMiddleware adds security headers, rate limiting on mutating methods,
// request-ID tracing, request logging, and panic recovery.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := clientIP(r)

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		defer func() {
			if rec := recover(); rec != nil {
				slog.ErrorContext(ctx, "Panic recovered",
					"request_id", requestID,
					"panic", rec,
					"url", r.URL.Path)
				if !s.cfg.IsProduction() {
					slog.ErrorContext(ctx, "Panic stack", "stack", string(debug.Stack()))
				}
				respondError(rw, http.StatusInternalServerError, "Internal server error")
			}

			duration := time.Since(start)
			slog.InfoContext(ctx, "Request completed",
				"request_id", requestID,
				"method", r.Method,
				"url", r.URL.Path,
				"status", rw.statusCode,
				"duration_ms", duration.Milliseconds(),
				"client_ip", clientIP)
		}()

		next(rw, r)
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

// clientIP extracts the caller address, trusting proxy headers when present.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Ping(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "dashboard.html")
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "login.html")
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, name string) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, nil); err != nil {
		slog.ErrorContext(r.Context(), "Template execution failed", "error", err, "template", name)
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}
