package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/todo/internal/domain"
	"github.com/splax/todo/internal/repository"
	"github.com/splax/todo/internal/validation"
	"github.com/splax/todo/pkg/config"
	"github.com/splax/todo/pkg/crypto"
	jwtpkg "github.com/splax/todo/pkg/jwt"
)

// Service handles registration, login and session validation.
type Service struct {
	users       repository.UserRepository
	revocations repository.SessionRevocations
	logger      *slog.Logger
	cfg         config.AppConfig
}

// New constructs a Service. revocations may be nil, in which case signing out
// only discards the client-side session.
func New(users repository.UserRepository, revocations repository.SessionRevocations, logger *slog.Logger, cfg config.AppConfig) Service {
	return Service{users: users, revocations: revocations, logger: logger, cfg: cfg}
}

// SignupInput carries registration fields.
type SignupInput struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
}

// Session is a signed token identifying a logged-in user.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Signup registers a new user.
func (s Service) Signup(ctx context.Context, input SignupInput) (*domain.User, Session, error) {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = normalizeEmail(input.Email)
	if err := validation.Struct(input); err != nil {
		return nil, Session{}, err
	}
	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, Session{}, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, Session{}, validation.Fail("email", "unique")
		}
		return nil, Session{}, domain.WrapStore("create user", err)
	}
	session, err := s.issueSession(user.ID)
	if err != nil {
		return nil, Session{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, session, nil
}

// Login authenticates a user and returns a session.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, Session, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("login for unknown email")
			return nil, Session{}, domain.ErrInvalidCredentials
		}
		return nil, Session{}, err
	}
	if !s.VerifyPassword(user, password) {
		s.logger.Warn("login password mismatch", "user_id", user.ID)
		return nil, Session{}, domain.ErrInvalidCredentials
	}
	session, err := s.issueSession(user.ID)
	if err != nil {
		return nil, Session{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, session, nil
}

// FindByEmail looks a user up by normalized email.
func (s Service) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, domain.ErrNotFound
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.WrapStore("get user by email", err)
	}
	return user, nil
}

// VerifyPassword reports whether plaintext matches the user's stored hash.
func (s Service) VerifyPassword(user *domain.User, plaintext string) bool {
	if user == nil || len(user.PasswordHash) == 0 {
		return false
	}
	return crypto.ComparePassword(user.PasswordHash, plaintext) == nil
}

// Authorize validates a session token and returns the associated user and claims.
// Every rejection wraps domain.ErrUnauthenticated; store failures are returned
// as StoreError.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, fmt.Errorf("%w: token required", domain.ErrUnauthenticated)
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.SessionSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.SessionID())
		if err != nil {
			return nil, nil, domain.WrapStore("check session revocation", err)
		}
		if revoked {
			return nil, nil, fmt.Errorf("%w: session signed out", domain.ErrUnauthenticated)
		}
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: unknown user", domain.ErrUnauthenticated)
		}
		return nil, nil, domain.WrapStore("get user", err)
	}
	return user, claims, nil
}

// Logout revokes the session for the rest of its lifetime.
func (s Service) Logout(ctx context.Context, claims *jwtpkg.Claims) error {
	if claims == nil || s.revocations == nil {
		return nil
	}
	if err := s.revocations.Revoke(ctx, claims.SessionID(), claims.Remaining(time.Now())); err != nil {
		return domain.WrapStore("revoke session", err)
	}
	s.logger.Info("user signed out", "user_id", claims.UserID)
	return nil
}

func (s Service) issueSession(userID string) (Session, error) {
	ttl := s.cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, claims, err := jwtpkg.GenerateToken(userID, s.cfg.SessionSecret, ttl)
	if err != nil {
		return Session{}, fmt.Errorf("issue session: %w", err)
	}
	return Session{Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
