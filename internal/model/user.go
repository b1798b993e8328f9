package model

import (
	"time"
)

// User user model
type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"username"`
	Email        *string   `gorm:"type:varchar(100);uniqueIndex" json:"email,omitempty"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	Role         string    `gorm:"type:varchar(20);not null;default:'user';index" json:"role"`
	Status       int8      `gorm:"type:tinyint;not null;default:1;index" json:"status"`
	LastLoginAt  *time.Time `gorm:"type:timestamp" json:"last_login_at,omitempty"`
	LastLoginIP  *string   `gorm:"type:varchar(45)" json:"-"`
	CreatedAt    time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (User) TableName() string {
	return "users"
}

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// UserStatus user status const
const (
	UserStatusActive  = 1
	UserStatusBlocked = 2
)

// IsActive check if user is active
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// IsAdmin check if user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
