// Package web provides the HTTP server and handlers for the DBF
// conversion UI and API.
package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/r4inX/dbf-to-csv-converter/internal/config"
	ownmw "github.com/r4inX/dbf-to-csv-converter/internal/web/middleware"
)

//go:embed static
var staticFiles embed.FS

// Server is the HTTP server for the DBF to CSV conversion application.
type Server struct {
	cfg      *config.Config
	sessions *sessionStore
	router   *chi.Mux
	server   *http.Server

	// convertSem bounds concurrent conversions so a burst of large
	// tables cannot exhaust the host.
	convertSem chan struct{}

	// uploadLimiter throttles POST /api/upload separately from the
	// global limiter; uploads are far more expensive than API reads.
	uploadLimiter *rateLimiter
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config) (*Server, error) {
	sessions, err := newSessionStore(cfg.Upload.Dir, cfg.Upload.SessionTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		sessions:   sessions,
		router:     chi.NewRouter(),
		convertSem: make(chan struct{}, cfg.Upload.MaxConcurrent),
	}
	if cfg.Rate.Enabled {
		s.uploadLimiter = newRateLimiter(cfg.Rate.UploadLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(ownmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(ownmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err) // embed is broken at build time, not recoverable
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.router.Get("/", s.handleIndex)
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/encodings", s.handleListEncodings)

		if s.uploadLimiter != nil {
			r.With(s.uploadLimiter.middleware).Post("/upload", s.handleUpload)
		} else {
			r.Post("/upload", s.handleUpload)
		}

		r.Route("/session/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleSessionInfo)
			r.Get("/preview", s.handlePreview)
			r.Post("/convert", s.handleConvert)
			r.Get("/validate", s.handleValidate)
			r.Delete("/", s.handleDeleteSession)
		})
	})
}

// Start begins listening for HTTP requests and launches the session
// cleanup sweep. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start(ctx context.Context) error {
	s.sessions.StartCleanup(ctx, s.cfg.Upload.CleanupInterval)

	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
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

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME type sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking
			w.Header().Set("X-Frame-Options", "DENY")

			if enableCSP {
				w.Header().Set("Content-Security-Policy",
					"default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}

			// Control referrer information
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	// Start cleanup goroutine
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1, // consume one token
			lastReset: time.Now(),
		}
		return true
	}

	// Reset tokens if window has passed
	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, `{"error":"rate limit exceeded","code":"RATE001"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// acquireConvertSlot reserves a conversion slot or fails fast when the
// server is saturated.
func (s *Server) acquireConvertSlot() (release func(), err error) {
	select {
	case s.convertSem <- struct{}{}:
		return func() { <-s.convertSem }, nil
	default:
		return nil, fmt.Errorf("too many concurrent conversions, rate limit reached")
	}
}
