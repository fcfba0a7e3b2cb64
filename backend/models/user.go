package models

import "gorm.io/gorm"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	gorm.Model
	Email            string  `json:"email" gorm:"uniqueIndex"`
	Password         string  `json:"-"` // hashed, never serialize
	Role             string  `json:"role" gorm:"default:user"`
	TwoFactorEnabled bool    `json:"two_factor_enabled" gorm:"default:false"`
	TwoFactorSecret  *string `json:"-"` // encrypted TOTP secret, never serialize
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// HasTwoFactorSecret reports whether an encrypted secret is stored for the user.
func (u *User) HasTwoFactorSecret() bool {
	return u != nil && u.TwoFactorSecret != nil && *u.TwoFactorSecret != ""
}
