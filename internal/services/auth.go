package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"piiquante/internal/models"
	"piiquante/internal/store"
	"piiquante/internal/utils"
	"strings"
	"time"
)

const minPasswordLength = 6

// UserStore is implemented by *store.UserStore.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
}

// AuthService registers users and issues and checks their tokens.
type AuthService struct {
	users      UserStore
	secret     string
	tokenTTL   time.Duration
	bcryptCost int
	logger     *slog.Logger
}

func NewAuthService(users UserStore, secret string, tokenTTL time.Duration, bcryptCost int, logger *slog.Logger) (*AuthService, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:      users,
		secret:     secret,
		tokenTTL:   tokenTTL,
		bcryptCost: bcryptCost,
		logger:     logger,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates an account. The email is stored lower-cased.
func (s *AuthService) Signup(ctx context.Context, email, password string) (models.User, error) {
	email = normalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return models.User{}, fmt.Errorf("%w: email is not valid", ErrValidation)
	}
	if len(password) < minPasswordLength {
		return models.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	hash, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{Email: email, Password: hash}
	if err := s.users.Create(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}

	s.logger.Info("user registered", "event", "user_signup", "user_id", user.ID)
	return user, nil
}

// Login checks the credentials and returns the user id with a fresh token.
// Unknown email and wrong password fail the same way.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, string, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}
	if !utils.CheckPasswordHash(password, user.Password) {
		s.logger.Info("login rejected", "event", "user_login_failed", "user_id", user.ID)
		return "", "", ErrInvalidCredentials
	}

	token, err := utils.GenerateToken(s.secret, user.ID, s.tokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return user.ID, token, nil
}

// Authenticate resolves a token to the id of an existing user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	claims, err := utils.ParseToken(s.secret, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if _, err := s.users.FindByID(ctx, claims.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: unknown user", ErrUnauthorized)
		}
		return "", err
	}
	return claims.UserID, nil
}
