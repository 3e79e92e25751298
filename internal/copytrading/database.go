package copytrading

import (
	"errors"

	"github.com/sgoodman/tradecopy-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetTrader(traderID uint) (*types.Trader, error) {
	var trader types.Trader
	if err := d.db.First(&trader, traderID).Error; err != nil {
		return nil, err
	}
	return &trader, nil
}

func (d *Database) GetTraderByUserID(userID uint) (*types.Trader, error) {
	var trader types.Trader
	if err := d.db.Where("user_id = ?", userID).First(&trader).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trader, nil
}

func (d *Database) ListTraders() ([]types.Trader, error) {
	var traders []types.Trader
	if err := d.db.Order("followers DESC").Find(&traders).Error; err != nil {
		return nil, err
	}
	return traders, nil
}

func (d *Database) CreateTrader(trader *types.Trader) error {
	return d.db.Create(trader).Error
}

// GetActiveRelationship returns the follower's active relationship with a
// trader, or nil if there is none.
func (d *Database) GetActiveRelationship(followerID, traderID uint) (*types.CopyRelationship, error) {
	var rel types.CopyRelationship
	err := d.db.Where("follower_id = ? AND trader_id = ? AND status = ?",
		followerID, traderID, types.CopyActive).First(&rel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rel, nil
}

func (d *Database) GetRelationshipByIDAndFollower(relationshipID, followerID uint) (*types.CopyRelationship, error) {
	var rel types.CopyRelationship
	if err := d.db.Where("id = ? AND follower_id = ?", relationshipID, followerID).
		First(&rel).Error; err != nil {
		return nil, err
	}
	return &rel, nil
}

func (d *Database) ListFollowing(followerID uint) ([]types.CopyRelationship, error) {
	var rels []types.CopyRelationship
	if err := d.db.Where("follower_id = ? AND status = ?", followerID, types.CopyActive).
		Order("created_at DESC").Find(&rels).Error; err != nil {
		return nil, err
	}
	return rels, nil
}
