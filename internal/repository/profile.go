package repository

import (
	"context"
	"errors"
	"strings"

	"parley/internal/models"

	"gorm.io/gorm"
)

// ProfileRepository defines the interface for user profile persistence.
type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	GetByAuthID(ctx context.Context, authID string) (*models.Profile, error)
	GetByUsername(ctx context.Context, username string) (*models.Profile, error)
	Update(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, term string, limit, offset int) ([]*models.Profile, error)
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a GORM-backed profile repository.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	err := r.db.WithContext(ctx).Create(profile).Error
	if err != nil && isUniqueViolation(err) {
		return models.NewConflictError("Username already taken")
	}
	return err
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Profile", id)
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) GetByAuthID(ctx context.Context, authID string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).First(&profile, "auth_id = ?", authID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Profile", authID)
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).First(&profile, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Profile", username)
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) Update(ctx context.Context, profile *models.Profile) error {
	return r.db.WithContext(ctx).Save(profile).Error
}

func (r *profileRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Profile{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Profile", id)
	}
	return nil
}

func (r *profileRepository) Search(ctx context.Context, term string, limit, offset int) ([]*models.Profile, error) {
	var profiles []*models.Profile
	pattern := "%" + strings.ToLower(term) + "%"
	err := r.db.WithContext(ctx).
		Where("LOWER(username) LIKE ? OR LOWER(display_name) LIKE ?", pattern, pattern).
		Order("username ASC").
		Limit(limit).
		Offset(offset).
		Find(&profiles).Error
	return profiles, err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
