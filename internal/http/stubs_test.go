package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/splax/todo/internal/domain"
	"github.com/splax/todo/internal/repository"
	"github.com/splax/todo/internal/service/auth"
	"github.com/splax/todo/internal/service/todo"
	"github.com/splax/todo/internal/ws"
	"github.com/splax/todo/pkg/config"
	"github.com/splax/todo/pkg/crypto"
	jwtpkg "github.com/splax/todo/pkg/jwt"
)

const (
	testSessionSecret = "test-session-secret"
	testCSRFSecret    = "test-csrf-secret"
	testCSRFNonce     = "nonce-123"
)

var fixedNow = time.Date(2024, time.June, 15, 14, 30, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []rateLimitCall
	allowFn func(key string, budget RateBudget) rateDecision
}

type rateLimitCall struct {
	key    string
	budget RateBudget
}

func newRateLimiterStub() *rateLimiterStub {
	return &rateLimiterStub{}
}

func (rl *rateLimiterStub) Allow(key string, budget RateBudget) rateDecision {
	rl.mu.Lock()
	rl.calls = append(rl.calls, rateLimitCall{key: key, budget: budget})
	fn := rl.allowFn
	rl.mu.Unlock()
	if fn != nil {
		return fn(key, budget)
	}
	return rateDecision{allowed: true, used: 1, resetAt: time.Now().Add(budget.Window)}
}

func (rl *rateLimiterStub) Close() {}

func (rl *rateLimiterStub) lastCall() (rateLimitCall, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.calls) == 0 {
		return rateLimitCall{}, false
	}
	return rl.calls[len(rl.calls)-1], true
}

type userRepoStub struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{users: make(map[string]*domain.User)}
}

func (u *userRepoStub) CreateUser(_ context.Context, user *domain.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.users {
		if existing.Email == user.Email {
			return repository.ErrConflict
		}
	}
	copy := *user
	u.users[user.ID] = &copy
	return nil
}

func (u *userRepoStub) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if user.Email == email {
			copy := *user
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (u *userRepoStub) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if user, ok := u.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

type todoRepoStub struct {
	mu    sync.Mutex
	todos map[string]domain.Todo
	order []string
}

func newTodoRepoStub(todos ...domain.Todo) *todoRepoStub {
	repo := &todoRepoStub{todos: make(map[string]domain.Todo)}
	for _, t := range todos {
		repo.todos[t.ID] = t
		repo.order = append(repo.order, t.ID)
	}
	return repo
}

func (s *todoRepoStub) CreateTodo(_ context.Context, t *domain.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos[t.ID] = *t
	s.order = append(s.order, t.ID)
	return nil
}

func (s *todoRepoStub) GetTodoByID(_ context.Context, id string) (*domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.todos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (s *todoRepoStub) ListTodosByOwner(_ context.Context, ownerID string) ([]domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Todo
	for _, id := range s.order {
		if t, ok := s.todos[id]; ok && t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *todoRepoStub) SetTodoCompleted(_ context.Context, id string, completed bool, updatedAt time.Time) (*domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.todos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.Completed = completed
	t.UpdatedAt = updatedAt
	s.todos[id] = t
	return &t, nil
}

func (s *todoRepoStub) DeleteTodo(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.todos[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.todos, id)
	return nil
}

func (s *todoRepoStub) get(id string) (domain.Todo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.todos[id]
	return t, ok
}

func (s *todoRepoStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.todos)
}

type revocationStub struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func newRevocationStub() *revocationStub {
	return &revocationStub{revoked: make(map[string]time.Duration)}
}

func (r *revocationStub) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[sessionID] = ttl
	return nil
}

func (r *revocationStub) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[sessionID]
	return ok, nil
}

type recordingSubscriber struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *recordingSubscriber) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, append([]byte(nil), payload...))
	return nil
}

func (s *recordingSubscriber) Close() {}

func (s *recordingSubscriber) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.payloads...)
}

type testEnv struct {
	router  *Router
	users   *userRepoStub
	todos   *todoRepoStub
	revoked *revocationStub
	limiter *rateLimiterStub
	hub     *ws.Hub
}

func newTestEnv(t *testing.T, todos ...domain.Todo) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		users:   newUserRepoStub(),
		todos:   newTodoRepoStub(todos...),
		revoked: newRevocationStub(),
		limiter: newRateLimiterStub(),
		hub:     ws.NewHub(),
	}
	t.Cleanup(env.hub.Close)
	env.users.users["user-1"] = &domain.User{ID: "user-1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	env.users.users["user-2"] = &domain.User{ID: "user-2", FirstName: "Alan", Email: "alan@example.com"}

	cfg := config.AppConfig{SessionSecret: testSessionSecret, SessionTTL: time.Hour}
	authSvc := auth.New(env.users, env.revoked, logger, cfg)
	todoSvc := todo.New(env.todos, logger, time.UTC).WithClock(func() time.Time { return fixedNow })

	router, err := NewRouter(logger, authSvc, todoSvc, env.hub, env.limiter, Options{CSRFSecret: testCSRFSecret})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	env.router = router
	return env
}

func sessionToken(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := jwtpkg.GenerateToken(userID, testSessionSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func bearerRequest(t *testing.T, method, target, userID, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+sessionToken(t, userID))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// browserRequest builds a cookie-authenticated form request. An empty userID
// sends no session cookie; withCSRF attaches a valid token.
func browserRequest(t *testing.T, method, target, userID string, form map[string]string, withCSRF bool) *http.Request {
	t.Helper()
	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	if withCSRF {
		values.Set(csrfField, crypto.SignToken(testCSRFSecret, testCSRFNonce))
	}
	req, err := http.NewRequest(method, target, strings.NewReader(values.Encode()))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRFNonce})
	if userID != "" {
		req.AddCookie(&http.Cookie{Name: defaultCookieName, Value: sessionToken(t, userID)})
	}
	return req
}

// cookieJSONRequest builds a session-cookie request carrying a JSON body and
// the CSRF token in the header, without an Accept header.
func cookieJSONRequest(t *testing.T, method, target, userID, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(csrfHeader, crypto.SignToken(testCSRFSecret, testCSRFNonce))
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRFNonce})
	req.AddCookie(&http.Cookie{Name: defaultCookieName, Value: sessionToken(t, userID)})
	return req
}

// stalledSubscriber never finishes a Send until release is closed.
type stalledSubscriber struct {
	release chan struct{}
}

func (s *stalledSubscriber) Send([]byte) error {
	<-s.release
	return nil
}

func (s *stalledSubscriber) Close() {}
