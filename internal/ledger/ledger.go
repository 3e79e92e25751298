package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sgoodman/tradecopy-api/internal/types"
	"gorm.io/gorm"
)

// Direction of a balance adjustment
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

var (
	// ErrInsufficientBalance is returned when a debit would drive a user's
	// balance below zero. The caller must roll back its unit of work.
	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrInvalidAmount = errors.New("adjustment amount must be positive")
)

// Service is the single entry point for balance mutation. Every settlement
// path (trade execution, transaction completion, investment creation and
// maturity) goes through Adjust so the non-negative invariant is enforced
// in one place.
type Service struct {
	db    *gorm.DB
	locks sync.Map // map[uint]*sync.Mutex
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Lock serializes balance writers for a single user. Different users never
// contend on the same lock. Returns the unlock function.
func (s *Service) Lock(userID uint) func() {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Adjust applies a credit or debit to the user's balance inside the given
// transaction. A debit that would produce a negative balance fails with
// ErrInsufficientBalance and writes nothing.
func (s *Service) Adjust(tx *gorm.DB, userID uint, amount decimal.Decimal, direction Direction) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	var user types.User
	if err := tx.First(&user, userID).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	newBalance := user.Balance
	switch direction {
	case Credit:
		newBalance = newBalance.Add(amount)
	case Debit:
		newBalance = newBalance.Sub(amount)
		if newBalance.IsNegative() {
			log.Debug().
				Uint("user_id", userID).
				Str("balance", user.Balance.String()).
				Str("debit", amount.String()).
				Msg("debit rejected, would drive balance negative")
			return decimal.Zero, ErrInsufficientBalance
		}
	default:
		return decimal.Zero, fmt.Errorf("unknown adjustment direction %q", direction)
	}

	if err := tx.Model(&types.User{}).Where("id = ?", userID).
		Update("balance", newBalance).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to persist balance for user %d: %w", userID, err)
	}

	return newBalance, nil
}

// Balance returns the user's current balance.
func (s *Service) Balance(userID uint) (decimal.Decimal, error) {
	var user types.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return user.Balance, nil
}

// DB exposes the underlying connection for callers that open their own
// transactions around Adjust.
func (s *Service) DB() *gorm.DB {
	return s.db
}
