package httpx

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateBudget is the number of requests a key may make per fixed window.
type RateBudget struct {
	Limit  int
	Window time.Duration
}

// Budgets applied by the router. Anonymous routes are keyed by client IP,
// authenticated ones by user.
var (
	signupBudget    = RateBudget{Limit: 5, Window: time.Minute}
	loginBudget     = RateBudget{Limit: 12, Window: time.Minute}
	todoReadBudget  = RateBudget{Limit: 120, Window: time.Minute}
	todoWriteBudget = RateBudget{Limit: 60, Window: time.Minute}
	liveFeedBudget  = RateBudget{Limit: 30, Window: 30 * time.Second}
)

func (b RateBudget) unlimited() bool { return b.Limit <= 0 }

func (b RateBudget) window() time.Duration {
	if b.Window <= 0 {
		return time.Minute
	}
	return b.Window
}

// RateLimiter spends one unit of budget for key per call.
type RateLimiter interface {
	Allow(key string, budget RateBudget) rateDecision
	Close()
}

type rateDecision struct {
	allowed bool
	used    int
	resetAt time.Time
}

// windowLimiter keeps fixed windows in process memory. Expired windows are
// pruned on the way through Allow, at most once per prune interval.
type windowLimiter struct {
	mu        sync.Mutex
	now       func() time.Time
	windows   map[string]window
	nextPrune time.Time
}

type window struct {
	used    int
	resetAt time.Time
}

const windowPruneInterval = 5 * time.Minute

// NewMemoryRateLimiter returns a limiter local to this process.
func NewMemoryRateLimiter() RateLimiter {
	return newWindowLimiter(time.Now)
}

func newWindowLimiter(now func() time.Time) *windowLimiter {
	return &windowLimiter{now: now, windows: make(map[string]window)}
}

func (l *windowLimiter) Allow(key string, budget RateBudget) rateDecision {
	if budget.unlimited() {
		return rateDecision{allowed: true}
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = window{resetAt: now.Add(budget.window())}
	}
	if w.used >= budget.Limit {
		return rateDecision{allowed: false, used: w.used, resetAt: w.resetAt}
	}
	w.used++
	l.windows[key] = w
	return rateDecision{allowed: true, used: w.used, resetAt: w.resetAt}
}

func (l *windowLimiter) prune(now time.Time) {
	if now.Before(l.nextPrune) {
		return
	}
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
	l.nextPrune = now.Add(windowPruneInterval)
}

func (l *windowLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *windowLimiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string]window)
}

// throttle spends budget for the key keyFn derives and answers 429 once it
// is exhausted.
func (r *Router) throttle(route string, budget RateBudget, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if budget.unlimited() || r.limiter == nil {
			next(w, req)
			return
		}
		key := keyFn(req)
		if key == "" {
			key = rateLimitKeyIP(req)
		}
		decision := r.limiter.Allow(key, budget)
		writeRateHeaders(w, budget, decision)
		if !decision.allowed {
			r.recordRateLimitHit(route, rateMetricKey(key))
			if !decision.resetAt.IsZero() {
				secs := math.Ceil(time.Until(decision.resetAt).Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Max(secs, 1))))
			}
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

// perIP guards the anonymous signup and login endpoints.
func (r *Router) perIP(route string, budget RateBudget, next http.HandlerFunc) http.HandlerFunc {
	return r.throttle(route, budget, rateLimitKeyIP, next)
}

// perUser authenticates first so the budget is charged to the caller.
func (r *Router) perUser(route string, budget RateBudget, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.throttle(route, budget, r.rateLimitKeyUser, next))
}

// todoBudget charges reads and writes on the todo routes separately.
func (r *Router) todoBudget(route string, next http.HandlerFunc) http.HandlerFunc {
	read := r.throttle(route, todoReadBudget, r.rateLimitKeyUser, next)
	write := r.throttle(route, todoWriteBudget, r.rateLimitKeyUser, next)
	return r.requireAuth(func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodGet || req.Method == http.MethodHead {
			read(w, req)
			return
		}
		write(w, req)
	})
}

func writeRateHeaders(w http.ResponseWriter, budget RateBudget, decision rateDecision) {
	remaining := budget.Limit - decision.used
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(budget.Limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.resetAt.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.resetAt.Unix(), 10))
	}
}

func (r *Router) rateLimitKeyUser(req *http.Request) string {
	if info, ok := authInfoFromContext(req.Context()); ok && info.UserID != "" {
		return "user:" + info.UserID
	}
	return ""
}

func rateLimitKeyIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

// rateMetricKey keeps metric cardinality low: "user:42" becomes "user".
func rateMetricKey(key string) string {
	kind, _, found := strings.Cut(key, ":")
	if !found || kind == "" {
		return "unknown"
	}
	return kind
}
