package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/splax/todo/internal/domain"
	"github.com/splax/todo/internal/repository"
	"github.com/splax/todo/pkg/config"
	jwtpkg "github.com/splax/todo/pkg/jwt"
)

type stubUserRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newStubUserRepository() *stubUserRepository {
	return &stubUserRepository{byID: map[string]*domain.User{}, byEmail: map[string]*domain.User{}}
}

func (s *stubUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[user.Email]; exists {
		return repository.ErrConflict
	}
	copied := *user
	s.byID[user.ID] = &copied
	s.byEmail[user.Email] = &copied
	return nil
}

func (s *stubUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.byEmail[email]; ok {
		return user, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubUserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.byID[id]; ok {
		return user, nil
	}
	return nil, repository.ErrNotFound
}

type memoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func (m *memoryRevocations) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[sessionID] = ttl
	return nil
}

func (m *memoryRevocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[sessionID]
	return ok, nil
}

func newTestService(users repository.UserRepository, revocations repository.SessionRevocations) Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.AppConfig{SessionSecret: "test-secret", SessionTTL: time.Hour}
	return New(users, revocations, log, cfg)
}

func validSignup() SignupInput {
	return SignupInput{FirstName: "Test", LastName: "User A", Email: " User.A@Test.com ", Password: "12345678"}
}

func TestSignupHashesPasswordAndIssuesSession(t *testing.T) {
	repo := newStubUserRepository()
	svc := newTestService(repo, nil)

	user, session, err := svc.Signup(context.Background(), validSignup())
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	if user.Email != "user.a@test.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if string(user.PasswordHash) == "12345678" || !svc.VerifyPassword(user, "12345678") {
		t.Fatalf("password must be stored as a verifiable hash")
	}
	if session.Token == "" || !session.ExpiresAt.After(time.Now()) {
		t.Fatalf("unexpected session %+v", session)
	}

	authed, claims, err := svc.Authorize(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if authed.ID != user.ID || claims.UserID != user.ID {
		t.Fatalf("session resolved to wrong user: %s / %s", authed.ID, claims.UserID)
	}
}

func TestSignupValidation(t *testing.T) {
	svc := newTestService(newStubUserRepository(), nil)
	cases := []struct {
		name  string
		edit  func(*SignupInput)
		field string
		rule  string
	}{
		{name: "missing first name", edit: func(in *SignupInput) { in.FirstName = " " }, field: "firstName", rule: "required"},
		{name: "missing email", edit: func(in *SignupInput) { in.Email = "" }, field: "email", rule: "required"},
		{name: "bad email", edit: func(in *SignupInput) { in.Email = "user.a" }, field: "email", rule: "email"},
		{name: "short password", edit: func(in *SignupInput) { in.Password = "1234" }, field: "password", rule: "min"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validSignup()
			tc.edit(&input)
			_, _, err := svc.Signup(context.Background(), input)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) || !verr.Has(tc.field, tc.rule) {
				t.Fatalf("expected %s/%s failure, got %v", tc.field, tc.rule, err)
			}
		})
	}
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	svc := newTestService(newStubUserRepository(), nil)
	if _, _, err := svc.Signup(context.Background(), validSignup()); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	_, _, err := svc.Signup(context.Background(), validSignup())
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || !verr.Has("email", "unique") {
		t.Fatalf("expected email/unique failure, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestService(newStubUserRepository(), nil)
	created, _, err := svc.Signup(context.Background(), validSignup())
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	user, session, err := svc.Login(context.Background(), "USER.A@test.com", "12345678")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if user.ID != created.ID || session.Token == "" {
		t.Fatalf("unexpected login result %+v %+v", user, session)
	}

	if _, _, err := svc.Login(context.Background(), "user.a@test.com", "wrong-password"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "nobody@test.com", "12345678"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestAuthorizeRejectsBadTokens(t *testing.T) {
	svc := newTestService(newStubUserRepository(), nil)

	if _, _, err := svc.Authorize(context.Background(), " "); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for empty token, got %v", err)
	}
	if _, _, err := svc.Authorize(context.Background(), "garbage"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for garbage token, got %v", err)
	}
	token, _, err := jwtpkg.GenerateToken("ghost", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, _, err := svc.Authorize(context.Background(), token); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for unknown user, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	revocations := &memoryRevocations{revoked: map[string]time.Duration{}}
	svc := newTestService(newStubUserRepository(), revocations)

	_, session, err := svc.Signup(context.Background(), validSignup())
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	_, claims, err := svc.Authorize(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := svc.Logout(context.Background(), claims); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if ttl := revocations.revoked[claims.SessionID()]; ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected revocation ttl %s", ttl)
	}
	if _, _, err := svc.Authorize(context.Background(), session.Token); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected revoked session to be rejected, got %v", err)
	}
}
