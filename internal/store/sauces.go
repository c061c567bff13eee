package store

import (
	"context"
	"errors"
	"log/slog"
	"piiquante/internal/ledger"
	"piiquante/internal/models"
	"time"

	"gorm.io/gorm"
)

const listOrder = "created_at DESC, id"

var voteColumns = []string{"likes", "dislikes", "users_liked", "users_disliked", "version", "updated_at"}

type SauceStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewSauceStore(db *gorm.DB, logger *slog.Logger) *SauceStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SauceStore{db: db, logger: logger}
}

// SauceVersion is a sauce id with the version its row is at.
type SauceVersion struct {
	ID      string
	Version int64
}

// List returns every sauce, newest first.
func (s *SauceStore) List(ctx context.Context) ([]models.Sauce, error) {
	var rows []models.Sauce
	if err := s.db.WithContext(ctx).Order(listOrder).Find(&rows).Error; err != nil {
		return nil, logError(s.logger, "sauce_list_failed", err)
	}
	return rows, nil
}

func (s *SauceStore) Get(ctx context.Context, id string) (models.Sauce, error) {
	var row models.Sauce
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Sauce{}, ErrNotFound
		}
		return models.Sauce{}, logError(s.logger, "sauce_get_failed", err, "sauce_id", id)
	}
	return row, nil
}

// Version returns the current version of one sauce.
func (s *SauceStore) Version(ctx context.Context, id string) (int64, error) {
	var versions []int64
	err := s.db.WithContext(ctx).Model(&models.Sauce{}).
		Where("id = ?", id).
		Limit(1).
		Pluck("version", &versions).Error
	if err != nil {
		return 0, logError(s.logger, "sauce_version_failed", err, "sauce_id", id)
	}
	if len(versions) == 0 {
		return 0, ErrNotFound
	}
	return versions[0], nil
}

// Versions returns the id and version of every sauce in List order.
func (s *SauceStore) Versions(ctx context.Context) ([]SauceVersion, error) {
	var rows []SauceVersion
	err := s.db.WithContext(ctx).Model(&models.Sauce{}).
		Select("id", "version").
		Order(listOrder).
		Scan(&rows).Error
	if err != nil {
		return nil, logError(s.logger, "sauce_versions_failed", err)
	}
	return rows, nil
}

// Create inserts a new sauce. Its vote state is reset to empty whatever the
// caller passed.
func (s *SauceStore) Create(ctx context.Context, sauce *models.Sauce) error {
	sauce.SetVoteState(ledger.Empty())
	sauce.Version = 1
	if err := s.db.WithContext(ctx).Create(sauce).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return logError(s.logger, "sauce_create_failed", err, "owner_id", sauce.UserID)
	}
	return nil
}

// UpdateDetails writes the descriptive fields of sauce if the row is still
// at expectedVersion. Owner and vote columns are never touched.
func (s *SauceStore) UpdateDetails(ctx context.Context, sauce models.Sauce, expectedVersion int64) error {
	res := s.db.WithContext(ctx).Model(&models.Sauce{}).
		Where("id = ? AND version = ?", sauce.ID, expectedVersion).
		Updates(map[string]any{
			"name":         sauce.Name,
			"manufacturer": sauce.Manufacturer,
			"description":  sauce.Description,
			"main_pepper":  sauce.MainPepper,
			"heat":         sauce.Heat,
			"image_url":    sauce.ImageURL,
			"version":      gorm.Expr("version + 1"),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return logError(s.logger, "sauce_update_failed", res.Error, "sauce_id", sauce.ID)
	}
	if res.RowsAffected == 0 {
		return s.missingOrConflict(ctx, sauce.ID)
	}
	return nil
}

// LoadVoteState returns the vote state of a sauce along with the version it
// was read at.
func (s *SauceStore) LoadVoteState(ctx context.Context, id string) (ledger.State, int64, error) {
	var row models.Sauce
	err := s.db.WithContext(ctx).
		Select("id", "likes", "dislikes", "users_liked", "users_disliked", "version").
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.State{}, 0, ErrNotFound
		}
		return ledger.State{}, 0, logError(s.logger, "sauce_load_votes_failed", err, "sauce_id", id)
	}
	return row.VoteState(), row.Version, nil
}

// SaveVoteState writes st only if the sauce is still at expectedVersion.
// It returns ErrConflict when another write got there first and ErrNotFound
// when the sauce is gone.
func (s *SauceStore) SaveVoteState(ctx context.Context, id string, st ledger.State, expectedVersion int64) error {
	if err := ledger.Check(st); err != nil {
		return logError(s.logger, "sauce_save_votes_rejected", err, "sauce_id", id)
	}

	row := models.Sauce{Version: expectedVersion + 1, UpdatedAt: time.Now()}
	row.SetVoteState(st)

	res := s.db.WithContext(ctx).Model(&models.Sauce{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Select(voteColumns).
		Updates(&row)
	if res.Error != nil {
		return logError(s.logger, "sauce_save_votes_failed", res.Error, "sauce_id", id)
	}
	if res.RowsAffected == 0 {
		return s.missingOrConflict(ctx, id)
	}
	return nil
}

// Delete removes a sauce inside a transaction. guard runs after the row is
// deleted and before commit; an error from it rolls the delete back and is
// returned unchanged.
func (s *SauceStore) Delete(ctx context.Context, id string, guard func(models.Sauce) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Sauce
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return logError(s.logger, "sauce_delete_lookup_failed", err, "sauce_id", id)
		}
		res := tx.Where("id = ?", id).Delete(&models.Sauce{})
		if res.Error != nil {
			return logError(s.logger, "sauce_delete_failed", res.Error, "sauce_id", id)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if guard != nil {
			return guard(row)
		}
		return nil
	})
}

func (s *SauceStore) missingOrConflict(ctx context.Context, id string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Sauce{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return logError(s.logger, "sauce_count_failed", err, "sauce_id", id)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}
