package models

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	ID           uint     `gorm:"column:id;primaryKey" json:"id"`
	Email        string   `gorm:"column:email;type:text;uniqueIndex" json:"email"`
	PasswordHash string   `gorm:"column:password_hash;type:text" json:"-"`
	Role         UserRole `gorm:"column:role;type:text;default:user" json:"role"`

	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	LastSignInAt *time.Time `gorm:"column:last_sign_in_at;type:timestamptz" json:"last_sign_in_at,omitempty"`
}

func (User) TableName() string { return "users" }
