package migrations

import (
	"github.com/shopspring/decimal"
	"github.com/sgoodman/tradecopy-api/internal/types"
	"gorm.io/gorm"
)

// SeedAssets inserts the simulated market assets if the table is empty.
// Prices are starting values only; the price feed moves them afterwards.
func SeedAssets(db *gorm.DB) error {
	var count int64
	if err := db.Model(&types.Asset{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	assets := []types.Asset{
		{Symbol: "AAPL", Name: "Apple Inc.", Type: types.AssetStock, Price: decimal.NewFromFloat(182.50)},
		{Symbol: "TSLA", Name: "Tesla Inc.", Type: types.AssetStock, Price: decimal.NewFromFloat(244.10)},
		{Symbol: "AMZN", Name: "Amazon.com Inc.", Type: types.AssetStock, Price: decimal.NewFromFloat(178.35)},
		{Symbol: "BTC", Name: "Bitcoin", Type: types.AssetCrypto, Price: decimal.NewFromFloat(64250)},
		{Symbol: "ETH", Name: "Ethereum", Type: types.AssetCrypto, Price: decimal.NewFromFloat(3120.75)},
		{Symbol: "SOL", Name: "Solana", Type: types.AssetCrypto, Price: decimal.NewFromFloat(146.20)},
		{Symbol: "EURUSD", Name: "Euro / US Dollar", Type: types.AssetForex, Price: decimal.NewFromFloat(1.0842)},
		{Symbol: "GBPUSD", Name: "British Pound / US Dollar", Type: types.AssetForex, Price: decimal.NewFromFloat(1.2675)},
	}

	return db.Create(&assets).Error
}
