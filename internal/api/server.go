package api

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/star/corridor/internal/auth"
	"github.com/star/corridor/internal/clock"
	"github.com/star/corridor/internal/control"
	"github.com/star/corridor/internal/forecast"
	"github.com/star/corridor/internal/health"
	"github.com/star/corridor/internal/history"
	"github.com/star/corridor/internal/metrics"
	"github.com/star/corridor/internal/stream"
)

// Deps are the components the HTTP surface is built on.
type Deps struct {
	Center     *control.Center
	History    *history.History
	Forecaster *forecast.Forecaster
	Stream     *stream.Handler
	Readiness  *health.Readiness
	// Driver delivers externally supplied times, keeping a simulated clock in step
	// and notifying the same observers as its own ticks.
	Driver *clock.Driver
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	s := &Server{deps: deps, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", deps.Readiness.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/v1/airplanes", s.handleAddAirplane)
	mux.HandleFunc("POST /api/v1/airplanes/check", s.handleCheckAirplane)
	mux.HandleFunc("GET /api/v1/airplanes/{id}", s.handleGetAirplane)
	mux.HandleFunc("GET /api/v1/positions", s.handlePositions)
	mux.HandleFunc("POST /api/v1/advance", s.handleAdvance)
	mux.HandleFunc("GET /api/v1/grid", s.handleGrid)
	mux.HandleFunc("GET /api/v1/forecast", s.handleForecast)
	mux.HandleFunc("GET /api/v1/history/stats", s.handleHistoryStats)

	mux.HandleFunc("GET /api/v1/stream/positions", deps.Stream.HandlePositions)
	mux.HandleFunc("GET /api/v1/ws/positions", deps.Stream.HandleWebsocket)

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) Flush() {
	http.NewResponseController(sr.ResponseWriter).Flush()
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	sr.statusCode = http.StatusSwitchingProtocols
	return http.NewResponseController(sr.ResponseWriter).Hijack()
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
