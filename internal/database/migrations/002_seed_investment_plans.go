package migrations

import (
	"github.com/shopspring/decimal"
	"github.com/sgoodman/tradecopy-api/internal/types"
	"gorm.io/gorm"
)

// SeedInvestmentPlans inserts the default plan catalog if the table is empty
func SeedInvestmentPlans(db *gorm.DB) error {
	var count int64
	if err := db.Model(&types.InvestmentPlan{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	plans := []types.InvestmentPlan{
		{
			Name:         "Starter",
			MinAmount:    decimal.NewFromInt(100),
			MaxAmount:    decimal.NewFromInt(999),
			DurationDays: 30,
			ReturnRate:   decimal.NewFromFloat(2.5),
		},
		{
			Name:         "Growth",
			MinAmount:    decimal.NewFromInt(1000),
			MaxAmount:    decimal.NewFromInt(9999),
			DurationDays: 90,
			ReturnRate:   decimal.NewFromFloat(9.0),
		},
		{
			Name:         "Premium",
			MinAmount:    decimal.NewFromInt(10000),
			MaxAmount:    decimal.NewFromInt(250000),
			DurationDays: 180,
			ReturnRate:   decimal.NewFromFloat(21.0),
		},
	}

	return db.Create(&plans).Error
}
