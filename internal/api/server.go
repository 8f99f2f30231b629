// Package api provides the sefer HTTP and websocket lookup server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/FocuswithJustin/sefer/internal/cache"
	"github.com/FocuswithJustin/sefer/internal/logging"
	"github.com/FocuswithJustin/sefer/internal/lookup"
)

// Server serves passage lookups over HTTP.
type Server struct {
	cfg      Config
	lookups  *lookup.Service
	passages *cache.TTLCache[string, *lookup.Passage]
	metrics  *metrics
	clients  atomic.Int64
	started  time.Time

	// Set by Handler. base bounds websocket lookups; limiter is nil when
	// rate limiting is off.
	base    context.Context
	limiter *RateLimiter
}

// NewServer creates a server answering with svc.
func NewServer(cfg Config, svc *lookup.Service) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return &Server{
		cfg:      cfg,
		lookups:  svc,
		passages: cache.New[string, *lookup.Passage](cfg.CacheTTL, cfg.CacheEntries),
		metrics:  newMetrics(),
		started:  time.Now(),
	}, nil
}

// Router returns the route table without the outer middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.metrics.middleware)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/parse", s.handleParse).Methods(http.MethodGet)
	v1.HandleFunc("/texts", s.handleTexts).Methods(http.MethodGet)
	v1.HandleFunc("/texts/{ref}", s.handleText).Methods(http.MethodGet)
	v1.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	// Subrouters answer their own mismatches.
	for _, router := range []*mux.Router{r, v1} {
		router.NotFoundHandler = http.HandlerFunc(notFound)
		router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	}
	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// Handler builds the full middleware chain. Background work stops when ctx
// is cancelled.
func (s *Server) Handler(ctx context.Context) http.Handler {
	s.base = ctx
	var handler http.Handler = s.Router()

	if s.cfg.Auth.Enabled {
		handler = AuthMiddleware(s.cfg.Auth, handler)
	}

	if s.cfg.RateLimitRequests > 0 {
		rl := NewRateLimiter(ctx, RateLimiterConfig{
			RequestsPerMinute: s.cfg.RateLimitRequests,
			BurstSize:         s.cfg.RateLimitBurst,
		})
		rl.onReject = s.metrics.rateLimited.Inc
		s.limiter = rl
		handler = rl.Middleware(handler)
	}

	handler = securityHeaders(handler)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-API-Key", "X-Request-ID"}),
		handlers.ExposedHeaders([]string{"X-Request-ID", "X-Cache", "X-RateLimit-Remaining"}),
	)(handler)

	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(true),
	)(handler)

	return logging.CombinedMiddleware(handler)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	logging.ServerStartup("rest_api", "http", s.cfg.Port,
		"websocket_path", "/api/v1/ws",
		"rate_limit", s.cfg.RateLimitRequests,
		"auth", s.cfg.Auth.Enabled)

	if s.cfg.CacheTTL > 0 {
		go s.sweep(ctx, s.cfg.CacheTTL)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		logging.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

// sweep drops expired passages every interval until ctx ends.
func (s *Server) sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.passages.Purge(); n > 0 {
				s.metrics.cacheEvents.WithLabelValues("expired").Add(float64(n))
				logging.CacheEvent("purge", "passages", "removed", n)
			}
		}
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// recoveryLogger routes recovered panics to the structured logger.
type recoveryLogger struct{}

func (recoveryLogger) Println(v ...any) {
	logging.Error("handler panic", "panic", fmt.Sprint(v...))
}
