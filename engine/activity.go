package engine

import (
	"time"

	"calldeck/models"

	"gorm.io/gorm"
)

// ActivityChecker answers whether a contact has been reached since a given
// moment, used by the skip-if-contacted gate
type ActivityChecker interface {
	HasSuccessfulContactSince(contactID uint, since time.Time) (bool, error)
}

type gormActivityChecker struct {
	db *gorm.DB
}

// NewActivityChecker returns the default checker backed by the calls table
func NewActivityChecker(db *gorm.DB) ActivityChecker {
	return &gormActivityChecker{db: db}
}

func (c *gormActivityChecker) HasSuccessfulContactSince(contactID uint, since time.Time) (bool, error) {
	var count int64
	err := c.db.Model(&models.Call{}).
		Where("contact_id = ? AND status IN ? AND created_at >= ?",
			contactID, []string{"completed", "answered"}, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
