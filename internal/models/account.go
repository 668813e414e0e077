// Package models contains data structures for the application's domain models.
package models

import (
	"slices"
	"time"

	"gorm.io/gorm"
)

// Role is a capability flag carried by an account.
type Role string

const (
	// RoleMember is the default role for community members.
	RoleMember Role = "member"
	// RoleAdmin can read every request and record.
	RoleAdmin Role = "admin"
)

// Account is a community member. Registration and profiles live elsewhere;
// this service only reads accounts.
type Account struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"unique;not null" json:"username"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Role      Role           `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for GORM
func (Account) TableName() string {
	return "accounts"
}

// Identity is the resolved caller of an operation.
type Identity struct {
	AccountID uint
	Email     string
	Roles     []Role
}

// Authenticated reports whether the identity refers to an account.
func (i Identity) Authenticated() bool {
	return i.AccountID != 0
}

// HasRole reports whether the identity carries role r.
func (i Identity) HasRole(r Role) bool {
	return slices.Contains(i.Roles, r)
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}
