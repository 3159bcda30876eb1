package httpx

import (
	"bufio"
	"context"
	"errors"
	"html/template"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/todo/internal/service/auth"
	"github.com/splax/todo/internal/service/todo"
	"github.com/splax/todo/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	auth         auth.Service
	todos        todo.Service
	hub          *ws.Hub
	upgrader     websocket.Upgrader
	limiter      RateLimiter
	templates    *template.Template
	csrfSecret   string
	cookieName   string
	cookieSecure bool
	dbHealth     func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	todoEvents         *prometheus.CounterVec
}

// Options carries the non-service settings of a Router.
type Options struct {
	CSRFSecret   string
	CookieName   string
	CookieSecure bool
	DBHealth     func(context.Context) error
}

const (
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 25 * time.Second
	defaultCookieName  = "todo_session"
)

// NewRouter assembles routes with dependencies. A nil limiter selects the
// in-memory limiter; a nil hub disables live updates.
func NewRouter(logger *slog.Logger, authSvc auth.Service, todoSvc todo.Service, hub *ws.Hub, limiter RateLimiter, opts Options) (*Router, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	cookieName := strings.TrimSpace(opts.CookieName)
	if cookieName == "" {
		cookieName = defaultCookieName
	}
	r := &Router{
		mux:          http.NewServeMux(),
		logger:       logger,
		auth:         authSvc,
		todos:        todoSvc,
		hub:          hub,
		limiter:      limiter,
		templates:    templates,
		csrfSecret:   opts.CSRFSecret,
		cookieName:   cookieName,
		cookieSecure: opts.CookieSecure,
		dbHealth:     opts.DBHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r, nil
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/", r.audit("/", r.optionalAuth(r.handleIndex)))
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/csrf", r.audit("/csrf", r.handleCSRF))
	r.mux.HandleFunc("/signup", r.audit("/signup", r.optionalAuth(r.handleSignupPage)))
	r.mux.HandleFunc("/login", r.audit("/login", r.optionalAuth(r.handleLoginPage)))
	r.mux.HandleFunc("/users", r.audit("/users", r.perIP("/users", signupBudget, r.csrfProtect(r.handleSignup))))
	r.mux.HandleFunc("/session", r.audit("/session", r.perIP("/session", loginBudget, r.csrfProtect(r.handleLogin))))
	r.mux.HandleFunc("/signout", r.audit("/signout", r.optionalAuth(r.handleSignout)))
	r.mux.HandleFunc("/todos", r.audit("/todos", r.todoBudget("/todos", r.csrfProtect(r.handleTodos))))
	r.mux.HandleFunc("/todos/events", r.audit("/todos/events", r.perUser("/todos/events", liveFeedBudget, r.handleTodoEvents)))
	r.mux.HandleFunc("/todos/", r.audit("/todos/{id}", r.todoBudget("/todos/{id}", r.csrfProtect(r.handleTodoByID))))
	r.mux.HandleFunc("/ws/todos", r.audit("/ws/todos", r.perUser("/ws/todos", liveFeedBudget, r.handleTodosWS)))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// audit logs each request and records it under the route label.
func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
			if info.Bearer {
				actor = "api"
			}
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
