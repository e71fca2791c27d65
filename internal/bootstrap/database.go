package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"coursepay/internal/models"
)

// Migrate ensures the order, order item, callback log and enrollment tables exist.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		&models.Order{},
		&models.OrderItem{},
		&models.CallbackLog{},
		&models.Enrollment{},
	}
}
