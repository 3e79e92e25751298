package trading

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     uint      `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// PlaceOrderRequest is the payload for order entry. Price is optional; a
// zero price means the order is priced at the asset's current quote.
type PlaceOrderRequest struct {
	AssetID uint            `json:"asset_id" binding:"required"`
	Side    string          `json:"side" binding:"required"`
	Amount  decimal.Decimal `json:"amount" binding:"required"`
	Price   decimal.Decimal `json:"price"`
}
