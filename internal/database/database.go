package database

import (
	"fmt"

	"whatsapp-admin/internal/config"
	"whatsapp-admin/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the configured database. Postgres is the production driver;
// sqlite covers local development and tests.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.DBDriver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.DBDriver, err)
	}

	return db, nil
}

// Migrate runs the schema auto-migration for all entities.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Role{},
		&models.WhatsappUser{},
		&models.Conversation{},
		&models.Message{},
	)
}

// SeedRoles ensures the WhatsApp user roles exist, including the configured
// default role for auto-registered users.
func SeedRoles(db *gorm.DB, defaultRole string) error {
	names := []string{"guest", "basic", "premium", "vip"}

	seen := false
	for _, name := range names {
		if name == defaultRole {
			seen = true
		}
	}
	if !seen && defaultRole != "" {
		names = append(names, defaultRole)
	}

	for _, name := range names {
		var role models.Role
		if err := db.Where("name = ?", name).FirstOrCreate(&role, models.Role{Name: name}).Error; err != nil {
			return fmt.Errorf("failed to seed role %s: %w", name, err)
		}
	}

	logrus.WithField("roles", names).Debug("Roles seeded")
	return nil
}
