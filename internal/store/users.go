package store

import (
	"context"
	"errors"
	"log/slog"
	"piiquante/internal/models"

	"gorm.io/gorm"
)

type UserStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewUserStore(db *gorm.DB, logger *slog.Logger) *UserStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserStore{db: db, logger: logger}
}

// Create inserts u; a taken email yields ErrDuplicate.
func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return logError(s.logger, "user_create_failed", err)
	}
	return nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return s.first(ctx, "email = ?", email)
}

func (s *UserStore) FindByID(ctx context.Context, id string) (models.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *UserStore) first(ctx context.Context, query string, arg string) (models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where(query, arg).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, logError(s.logger, "user_lookup_failed", err)
	}
	return u, nil
}
