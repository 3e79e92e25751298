package investments

import (
	"time"

	"github.com/sgoodman/tradecopy-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetPlan(planID uint) (*types.InvestmentPlan, error) {
	var plan types.InvestmentPlan
	if err := d.db.First(&plan, planID).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (d *Database) ListPlans() ([]types.InvestmentPlan, error) {
	var plans []types.InvestmentPlan
	if err := d.db.Order("min_amount ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (d *Database) GetUserInvestments(userID uint) ([]types.Investment, error) {
	var investments []types.Investment
	if err := d.db.Where("user_id = ?", userID).Order("created_at DESC").
		Find(&investments).Error; err != nil {
		return nil, err
	}
	return investments, nil
}

// GetMaturedInvestments returns active investments whose term has ended
func (d *Database) GetMaturedInvestments(now time.Time) ([]types.Investment, error) {
	var investments []types.Investment
	if err := d.db.Where("status = ? AND ends_at <= ?", types.InvestmentActive, now).
		Find(&investments).Error; err != nil {
		return nil, err
	}
	return investments, nil
}
