package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/gorm"

	"github.com/dwarvesf/settlement-backend/internal/store"
	"github.com/dwarvesf/settlement-backend/internal/utils/config"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

func runMigrations(db *gorm.DB, down bool, logger *logger.Logger) error {
	// Open database connection
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	// Create migrate instance
	migrationPath := fmt.Sprintf("file://%s", filepath.Join("migrations", "schema"))
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrationPath,
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Migrations completed successfully", map[string]string{
		"version": fmt.Sprintf("%d", version),
		"dirty":   fmt.Sprintf("%t", dirty),
	})
	return nil
}

func main() {
	appConfig := config.New()
	logger := logger.New(appConfig.Environment)

	db, err := store.Open(appConfig, logger)
	if err != nil {
		logger.Error("[main][store.Open] failed to connect database", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	// sqlite is only used for local runs; its schema comes from the models
	if strings.EqualFold(appConfig.Database.Driver, store.DriverSQLite) {
		if err := store.AutoMigrate(db); err != nil {
			logger.Error("[main][AutoMigrate] failed to migrate sqlite", map[string]string{
				"error": err.Error(),
			})
			os.Exit(1)
		}
		logger.Info("Migrations completed successfully")
		return
	}

	down := len(os.Args) > 1 && os.Args[1] == "down"
	if err := runMigrations(db, down, logger); err != nil {
		logger.Error("[main][runMigrations] failed to run migrations", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}
