package adapters

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"go-storefront/internal/users/domain"
	"go-storefront/pkg/db"
	apperrors "go-storefront/pkg/errors"
)

// UserModel is the GORM model for users (persistence layer)
type UserModel struct {
	ID               uint   `gorm:"primaryKey"`
	Name             string `gorm:"size:100;not null"`
	Email            string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash     string `gorm:"size:60;not null"`
	IsAdmin          bool   `gorm:"not null;default:false"`
	ResetTokenDigest string `gorm:"size:64"`
	ResetExpiresAt   *time.Time
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "users"
}

// GormUserRepository implements UserRepository on any gorm dialect
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new user repository
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Migrate runs auto-migration for the user model
func (r *GormUserRepository) Migrate() error {
	return r.db.AutoMigrate(&UserModel{})
}

// Create creates a new user
func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	model := toModel(user)

	result := db.Conn(ctx, r.db).Create(model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrEmailExists
		}
		return apperrors.NewInternal("failed to create user", result.Error)
	}

	// Update domain entity with generated ID
	user.ID = model.ID
	user.CreatedAt = model.CreatedAt
	user.UpdatedAt = model.UpdatedAt

	return nil
}

// GetByID retrieves a user by ID
func (r *GormUserRepository) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	var model UserModel

	result := db.Conn(ctx, r.db).First(&model, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.NewUserNotFound(id)
		}
		return nil, apperrors.NewInternal("failed to get user", result.Error)
	}

	return toDomain(&model), nil
}

// GetByEmail retrieves a user by email
func (r *GormUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var model UserModel

	result := db.Conn(ctx, r.db).Where("email = ?", email).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.NewEmailNotFound(email)
		}
		return nil, apperrors.NewInternal("failed to get user by email", result.Error)
	}

	return toDomain(&model), nil
}

// List retrieves every user, oldest first
func (r *GormUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	var models []UserModel

	if err := db.Conn(ctx, r.db).Order("id").Find(&models).Error; err != nil {
		return nil, apperrors.NewInternal("failed to list users", err)
	}

	users := make([]*domain.User, len(models))
	for i := range models {
		users[i] = toDomain(&models[i])
	}
	return users, nil
}

// Update updates an existing user
func (r *GormUserRepository) Update(ctx context.Context, user *domain.User) error {
	model := toModel(user)

	result := db.Conn(ctx, r.db).Save(model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrEmailExists
		}
		return apperrors.NewInternal("failed to update user", result.Error)
	}

	user.UpdatedAt = model.UpdatedAt
	return nil
}

// Delete deletes a user by ID
func (r *GormUserRepository) Delete(ctx context.Context, id uint) error {
	result := db.Conn(ctx, r.db).Delete(&UserModel{}, id)
	if result.Error != nil {
		return apperrors.NewInternal("failed to delete user", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewUserNotFound(id)
	}
	return nil
}

// toModel converts a domain entity to a GORM model
func toModel(user *domain.User) *UserModel {
	return &UserModel{
		ID:               user.ID,
		Name:             user.Name,
		Email:            user.Email,
		PasswordHash:     user.PasswordHash,
		IsAdmin:          user.IsAdmin,
		ResetTokenDigest: user.ResetTokenDigest,
		ResetExpiresAt:   user.ResetExpiresAt,
		CreatedAt:        user.CreatedAt,
		UpdatedAt:        user.UpdatedAt,
	}
}

// toDomain converts a GORM model to a domain entity
func toDomain(model *UserModel) *domain.User {
	return &domain.User{
		ID:               model.ID,
		Name:             model.Name,
		Email:            model.Email,
		PasswordHash:     model.PasswordHash,
		IsAdmin:          model.IsAdmin,
		ResetTokenDigest: model.ResetTokenDigest,
		ResetExpiresAt:   model.ResetExpiresAt,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}
