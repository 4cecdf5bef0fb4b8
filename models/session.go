package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Role names a permission level. Administrators manage backend API keys.
type Role struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string `gorm:"size:32;uniqueIndex;not null"`
	Description string `gorm:"size:255"`
}

// RefreshToken is the sha256 of an issued refresh token. Tokens are single use:
// a refresh revokes the presented token and issues a new one.
type RefreshToken struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    uint      `gorm:"index;not null"`
	TokenHash string    `gorm:"size:128;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"index;not null"`
	Revoked   bool      `gorm:"default:false"`
}

// Usable reports whether the token can still be exchanged at now.
func (rt *RefreshToken) Usable(now time.Time) bool {
	return rt != nil && !rt.Revoked && now.Before(rt.ExpiresAt)
}

// ErrTokenRevoked is returned by RevokeToken when the token was already revoked.
var ErrTokenRevoked = errors.New("refresh token already revoked")

// RevokeToken marks the token with id revoked. Only one caller can win: a token
// that another request revoked first yields ErrTokenRevoked.
func RevokeToken(db *gorm.DB, id uint) error {
	res := db.Model(&RefreshToken{}).Where("id = ? AND revoked = ?", id, false).Update("revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTokenRevoked
	}
	return nil
}

// RevokeUserTokens revokes every outstanding refresh token of userID.
func RevokeUserTokens(db *gorm.DB, userID uint) error {
	return db.Model(&RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
}
