package trading

import (
	"errors"
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

func (d *Database) GetTrade(tradeID uint) (*types.Trade, error) {
	var trade types.Trade
	if err := d.db.First(&trade, tradeID).Error; err != nil {
		return nil, err
	}
	return &trade, nil
}

func (d *Database) GetTradeByIDAndUserID(tradeID, userID uint) (*types.Trade, error) {
	var trade types.Trade
	if err := d.db.Where("id = ? AND user_id = ?", tradeID, userID).First(&trade).Error; err != nil {
		return nil, err
	}
	return &trade, nil
}

func (d *Database) GetUserTrades(userID uint) ([]types.Trade, error) {
	var trades []types.Trade
	if err := d.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (d *Database) GetAsset(assetID uint) (*types.Asset, error) {
	var asset types.Asset
	if err := d.db.First(&asset, assetID).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

func (d *Database) CreateTrade(trade *types.Trade) error {
	return d.db.Create(trade).Error
}

// GetTraderByUserID returns the trader profile for a user, or nil if the
// user has not opted in to be copied.
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

// GetActiveRelationships enumerates the active copy relationships naming a
// trader. Read-only here; mutation belongs to the copytrading service.
func (d *Database) GetActiveRelationships(traderID uint) ([]types.CopyRelationship, error) {
	var rels []types.CopyRelationship
	if err := d.db.Where("trader_id = ? AND status = ?", traderID, types.CopyActive).
		Find(&rels).Error; err != nil {
		return nil, err
	}
	return rels, nil
}

// CreateTradeWithIdempotency creates a new trade and idempotency record in a transaction
func (d *Database) CreateTradeWithIdempotency(trade *types.Trade, idempotencyKey string) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(trade).Error; err != nil {
		tx.Rollback()
		return err
	}

	record := IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		ResourceID:     trade.ID,
		ResourceType:   "trade",
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}

	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GetIdempotencyRecord retrieves an idempotency record by key, or nil if
// none exists.
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
