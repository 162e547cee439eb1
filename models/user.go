package models

import "gorm.io/gorm"

// User represents a dashboard user (agent or admin)
type User struct {
	gorm.Model
	TeamID uint `gorm:"index" json:"team_id"`

	Name         string `gorm:"not null" json:"name"`
	Email        string `gorm:"not null;uniqueIndex" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	Role     string `gorm:"default:'agent'" json:"role"` // admin, supervisor, agent
	IsActive bool   `gorm:"default:true" json:"is_active"`

	// Invalidate outstanding tokens by bumping this
	TokenVersion int `gorm:"default:0" json:"-"`
}
