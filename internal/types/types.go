package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// KYC statuses for a user account
const (
	KycUnverified = "unverified"
	KycPending    = "pending"
	KycVerified   = "verified"
)

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Asset types
const (
	AssetStock  = "stock"
	AssetCrypto = "crypto"
	AssetForex  = "forex"
)

// Trade sides
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade statuses
const (
	TradePending  = "pending"
	TradeExecuted = "executed"
	TradeCanceled = "canceled"
)

// Copy relationship statuses
const (
	CopyActive  = "active"
	CopyPaused  = "paused"
	CopyStopped = "stopped"
)

// Transaction types
const (
	TransactionDeposit    = "deposit"
	TransactionWithdrawal = "withdrawal"
)

// Transaction statuses
const (
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionFailed    = "failed"
)

// Investment statuses
const (
	InvestmentActive    = "active"
	InvestmentCompleted = "completed"
)

// KYC document verification statuses
const (
	DocumentPending  = "pending"
	DocumentApproved = "approved"
	DocumentRejected = "rejected"
)

type User struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Email        string          `gorm:"uniqueIndex" json:"email"`
	PasswordHash string          `json:"-"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Balance      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	KycStatus    string          `gorm:"default:unverified" json:"kyc_status"`
	Role         string          `gorm:"default:user" json:"role"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Asset struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Symbol    string          `gorm:"uniqueIndex" json:"symbol"`
	Name      string          `json:"name"`
	Type      string          `json:"type"` // stock, crypto, forex
	Price     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Trade struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	UserID            uint            `gorm:"not null;index" json:"user_id"`
	AssetID           uint            `gorm:"not null;index" json:"asset_id"`
	Side              string          `json:"side"` // buy or sell
	Amount            decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Price             decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"price"`
	Status            string          `gorm:"index" json:"status"` // pending, executed, canceled
	CopiedFromTradeID *uint           `gorm:"index" json:"copied_from_trade_id,omitempty"`
	ExecutedAt        *time.Time      `json:"executed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Trader is a user opted in to be copied. Followers is a denormalized count
// of active copy relationships, maintained by the copytrading service only.
type Trader struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	DisplayName string    `json:"display_name"`
	Strategy    string    `json:"strategy"`
	Followers   int       `gorm:"not null;default:0" json:"followers"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CopyRelationship struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	FollowerID           uint            `gorm:"not null;index" json:"follower_id"`
	TraderID             uint            `gorm:"not null;index" json:"trader_id"`
	AllocationPercentage decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"allocation_percentage"`
	Status               string          `gorm:"index" json:"status"` // active, paused, stopped
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Transaction is a deposit or withdrawal request. Amount is always positive;
// the balance effect's sign comes from Type.
type Transaction struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Reference   string          `gorm:"uniqueIndex" json:"reference"`
	UserID      uint            `gorm:"not null;index" json:"user_id"`
	Type        string          `json:"type"` // deposit or withdrawal
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Method      string          `json:"method"`
	Status      string          `gorm:"index" json:"status"` // pending, completed, failed
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type InvestmentPlan struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"uniqueIndex" json:"name"`
	MinAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"min_amount"`
	MaxAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"max_amount"`
	DurationDays int             `gorm:"not null" json:"duration_days"`
	ReturnRate   decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"return_rate"` // percent over the full term
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Investment struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         uint            `gorm:"not null;index" json:"user_id"`
	PlanID         uint            `gorm:"not null;index" json:"plan_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	ExpectedReturn decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"expected_return"`
	Status         string          `gorm:"index" json:"status"` // active, completed
	EndsAt         time.Time       `json:"ends_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type KycDocument struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             uint       `gorm:"not null;index" json:"user_id"`
	DocumentType       string     `json:"document_type"`
	DocumentRef        string     `json:"document_ref"`
	VerificationStatus string     `gorm:"index" json:"verification_status"` // pending, approved, rejected
	Notes              string     `json:"notes,omitempty"`
	ReviewedAt         *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
