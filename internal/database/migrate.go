package database

import (
	"fmt"

	"urbansprout/internal/model"
	"urbansprout/pkg/log"
)

// AutoMigrate runs schema migrations for all models
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	err := DB.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Discount{},
		&model.Notification{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}

	log.Info("Database migration completed")
	return nil
}
