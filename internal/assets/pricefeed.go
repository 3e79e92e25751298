package assets

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sgoodman/tradecopy-api/internal/types"
	"gorm.io/gorm"
)

// PriceFeed applies a bounded random walk to asset prices, standing in for
// a real market-data integration.
type PriceFeed struct {
	db           *gorm.DB
	tickInterval time.Duration
	maxMovePct   float64
}

func NewPriceFeed(db *gorm.DB) *PriceFeed {
	return &PriceFeed{
		db:           db,
		tickInterval: 10 * time.Second,
		maxMovePct:   0.02, // ±2% per tick
	}
}

// Start begins the price update loop
func (f *PriceFeed) Start(ctx context.Context) {
	logger := log.With().Str("component", "price_feed").Logger()
	logger.Info().Msg("starting simulated price feed")

	ticker := time.NewTicker(f.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down price feed")
			return
		case <-ticker.C:
			if err := f.tick(); err != nil {
				logger.Error().Err(err).Msg("price update pass failed")
			}
		}
	}
}

func (f *PriceFeed) tick() error {
	var assets []types.Asset
	if err := f.db.Find(&assets).Error; err != nil {
		return err
	}

	for _, asset := range assets {
		move := (rand.Float64()*2 - 1) * f.maxMovePct
		factor := decimal.NewFromFloat(1 + move)
		newPrice := asset.Price.Mul(factor).Round(8)
		if !newPrice.IsPositive() {
			continue
		}

		if err := f.db.Model(&types.Asset{}).Where("id = ?", asset.ID).
			Update("price", newPrice).Error; err != nil {
			log.Error().Err(err).Str("symbol", asset.Symbol).Msg("failed to update price")
			continue
		}

		log.Debug().
			Str("symbol", asset.Symbol).
			Str("old_price", asset.Price.String()).
			Str("new_price", newPrice.String()).
			Msg("price updated")
	}

	return nil
}
