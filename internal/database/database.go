package database

import (
	"fmt"
	"os"

	"github.com/sgoodman/tradecopy-api/internal/database/migrations"
	"github.com/sgoodman/tradecopy-api/internal/trading"
	"github.com/sgoodman/tradecopy-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase() (*gorm.DB, error) {
	path := os.Getenv("DATABASE_PATH")
	if path == "" {
		path = "tradecopy.db"
	}
	return Open(path)
}

// Open connects to the given sqlite database and runs all migrations
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate applies the schema and seed migrations
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&types.User{},
		&types.Asset{},
		&types.Trade{},
		&types.Trader{},
		&types.CopyRelationship{},
		&types.Transaction{},
		&types.InvestmentPlan{},
		&types.Investment{},
		&types.KycDocument{},
		&trading.IdempotencyRecord{},
	)
	if err != nil {
		return err
	}

	if err := migrations.SeedAssets(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.SeedInvestmentPlans(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.SeedAdminUser(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
