package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PhilHem/gamepanel/backend/models"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// Users is the gorm-backed user store.
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

func (u *Users) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := u.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// FindByEmail looks a user up by email, ignoring case and surrounding space.
func (u *Users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := u.db.WithContext(ctx).
		Where("lower(email) = ?", NormalizeEmail(email)).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (u *Users) Create(ctx context.Context, user *models.User) error {
	user.Email = NormalizeEmail(user.Email)
	if _, err := u.FindByEmail(ctx, user.Email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	return u.db.WithContext(ctx).Create(user).Error
}

// Save writes every column of the user row. Concurrent writers targeting the
// same state are last-writer-wins.
func (u *Users) Save(ctx context.Context, user *models.User) error {
	if user.ID == 0 {
		return fmt.Errorf("save user: %w", ErrUserNotFound)
	}
	return u.db.WithContext(ctx).Save(user).Error
}

// SaveTwoFactor writes only the two-factor columns, so a stale copy of the
// row cannot undo a concurrent role change.
func (u *Users) SaveTwoFactor(ctx context.Context, user *models.User) error {
	if user.ID == 0 {
		return fmt.Errorf("save two-factor: %w", ErrUserNotFound)
	}
	res := u.db.WithContext(ctx).Model(user).
		Select("two_factor_enabled", "two_factor_secret").
		Updates(user)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("save two-factor: %w", ErrUserNotFound)
	}
	return nil
}

// SetRole changes the role of the user with the given email.
func (u *Users) SetRole(ctx context.Context, email, role string) (*models.User, error) {
	user, err := u.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	user.Role = role
	if err := u.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// TwoFactorStats summarizes how many users have enabled two-factor authentication.
type TwoFactorStats struct {
	Total      int64   `json:"total"`
	Enabled    int64   `json:"enabled"`
	Percentage float64 `json:"percentage"`
}

func (u *Users) TwoFactorStats(ctx context.Context) (TwoFactorStats, error) {
	var stats TwoFactorStats
	db := u.db.WithContext(ctx).Model(&models.User{})
	if err := db.Count(&stats.Total).Error; err != nil {
		return stats, err
	}
	if err := u.db.WithContext(ctx).Model(&models.User{}).
		Where("two_factor_enabled = ?", true).
		Count(&stats.Enabled).Error; err != nil {
		return stats, err
	}
	if stats.Total > 0 {
		pct := float64(stats.Enabled) / float64(stats.Total) * 100
		stats.Percentage = float64(int64(pct*100+0.5)) / 100
	}
	return stats, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	return err
}
