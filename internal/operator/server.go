package operator

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/rma-receiver/internal/history"
	"github.com/zombor/rma-receiver/internal/metrics"
	"github.com/zombor/rma-receiver/internal/session"
)

const shutdownTimeout = 10 * time.Second

// Controller runs the RMA session the operator drives
type Controller interface {
	Start(ctx context.Context, rma string, damaged bool) (session.Status, error)
	Advance(ctx context.Context) (*session.ItemResult, session.Status, error)
	SetDamaged(ctx context.Context, damaged bool) (session.Status, error)
	Abort(ctx context.Context) (session.Status, error)
	Status(ctx context.Context) (session.Status, error)
}

// History reads past sessions
type History interface {
	ListSessions() ([]*history.Session, error)
	GetSession(id string) (*history.Session, error)
	ListItems(sessionID string) ([]*history.Item, error)
}

// Server handles HTTP requests from the operator page
type Server struct {
	controller Controller
	history    History
	basicAuth  BasicAuth
	mux        *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(controller Controller, hist History, basicAuth BasicAuth) *Server {
	return NewServerWithMux(controller, hist, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(controller Controller, hist History, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		controller: controller,
		history:    hist,
		basicAuth:  basicAuth,
		mux:        mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="RMA Receiver"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	// Session control
	s.mux.HandleFunc("GET /api/session", s.requireAuth(s.handleGetSession))
	s.mux.HandleFunc("POST /api/session", s.requireAuth(s.handleStartSession))
	s.mux.HandleFunc("DELETE /api/session", s.requireAuth(s.handleAbortSession))
	s.mux.HandleFunc("POST /api/session/advance", s.requireAuth(s.handleAdvance))
	s.mux.HandleFunc("PUT /api/session/damaged", s.requireAuth(s.handleSetDamaged))

	// History
	s.mux.HandleFunc("GET /api/history/sessions/{id}", s.requireAuth(s.handleGetHistorySession))
	s.mux.HandleFunc("GET /api/history/sessions", s.requireAuth(s.handleListHistorySessions))

	// Operations
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthcheck", s.handleHealthcheck)

	// Static HTML interface (register last as it's the catch-all)
	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
}

// Handler returns the mux wrapped with CORS and request metrics
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(metrics.Middleware(s.mux))
}

// Serve runs the HTTP server on addr until ctx is cancelled
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Stopping server", "address", addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
