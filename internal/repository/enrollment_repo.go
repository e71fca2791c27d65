package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coursepay/internal/models"
)

// EnrollmentRepository grants course access for purchased items.
type EnrollmentRepository struct {
	db *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// GrantHook returns an ItemHook that enrolls the order's user in the item's
// course. An existing enrollment is left as is.
func (r *EnrollmentRepository) GrantHook() ItemHook {
	return func(tx *gorm.DB, order *models.Order, item *models.OrderItem) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Enrollment{
			UserID:      order.UserID,
			CourseID:    item.CourseID,
			OrderItemID: item.ID,
		}).Error
	}
}

// FindByUser lists the courses a user is enrolled in.
func (r *EnrollmentRepository) FindByUser(ctx context.Context, userID int64) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&enrollments).Error
	return enrollments, err
}
