package transactions

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sgoodman/tradecopy-api/internal/ledger"
	"github.com/sgoodman/tradecopy-api/internal/types"
	"github.com/sgoodman/tradecopy-api/pkg/middleware"
	"github.com/sgoodman/tradecopy-api/pkg/response"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidTransactionID = errors.New("invalid transaction id")
	ErrNotPending           = errors.New("transaction is not pending")
)

// Service handles deposit and withdrawal requests and their completion
type Service struct {
	db     *Database
	ledger *ledger.Service
}

func NewService(gormDB *gorm.DB, ledgerService *ledger.Service) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		ledger: ledgerService,
	}
}

// TransactionRequest is the payload for deposit and withdrawal requests
type TransactionRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Method string          `json:"method"`
}

// Request creates a pending deposit or withdrawal. No balance effect
// happens here; money only moves at completion.
func (s *Service) Request(userID uint, txType string, req TransactionRequest) (*types.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	txn := &types.Transaction{
		Reference: "TXN_" + uuid.New().String(),
		UserID:    userID,
		Type:      txType,
		Amount:    req.Amount,
		Method:    req.Method,
		Status:    types.TransactionPending,
	}

	if err := s.db.CreateTransaction(txn); err != nil {
		return nil, err
	}

	log.Info().
		Uint("transaction_id", txn.ID).
		Uint("user_id", userID).
		Str("type", txType).
		Str("amount", req.Amount.String()).
		Msg("transaction requested")

	return txn, nil
}

// Complete settles a pending transaction: deposits credit the balance,
// withdrawals debit it.
//
// Completing a non-pending transaction is an idempotent no-op returning the
// current record. A withdrawal the balance cannot cover fails with
// InsufficientBalance and leaves the transaction pending so an admin can
// decide the next step.
func (s *Service) Complete(transactionID uint) (*types.Transaction, error) {
	logger := log.With().
		Uint("transaction_id", transactionID).
		Str("service", "transactions").
		Logger()

	txn, err := s.db.GetTransaction(transactionID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch transaction")
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}

	if txn.Status != types.TransactionPending {
		logger.Info().Str("status", txn.Status).Msg("transaction not pending, nothing to do")
		return txn, nil
	}

	unlock := s.ledger.Lock(txn.UserID)
	defer unlock()

	tx := s.ledger.DB().Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// Pending guard re-checked inside the transaction
	if err := tx.First(txn, transactionID).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	if txn.Status != types.TransactionPending {
		tx.Rollback()
		logger.Info().Str("status", txn.Status).Msg("transaction not pending, nothing to do")
		return txn, nil
	}

	direction := ledger.Credit
	if txn.Type == types.TransactionWithdrawal {
		direction = ledger.Debit
	}

	newBalance, err := s.ledger.Adjust(tx, txn.UserID, txn.Amount, direction)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			logger.Info().
				Str("amount", txn.Amount.String()).
				Msg("withdrawal rejected, insufficient balance, transaction stays pending")
			return nil, fmt.Errorf("transaction %d: %w", transactionID, err)
		}
		logger.Error().Err(err).Msg("balance adjustment failed")
		return nil, err
	}

	now := time.Now()
	txn.Status = types.TransactionCompleted
	txn.CompletedAt = &now
	txn.UpdatedAt = now
	if err := tx.Save(txn).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to mark transaction completed: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	logger.Info().
		Uint("user_id", txn.UserID).
		Str("type", txn.Type).
		Str("amount", txn.Amount.String()).
		Str("new_balance", newBalance.String()).
		Msg("transaction completed")

	return txn, nil
}

// Fail transitions a pending transaction to failed with no balance effect.
// Admin-driven.
func (s *Service) Fail(transactionID uint) (*types.Transaction, error) {
	txn, err := s.db.GetTransaction(transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}

	if txn.Status != types.TransactionPending {
		return nil, ErrNotPending
	}

	txn.Status = types.TransactionFailed
	txn.UpdatedAt = time.Now()
	if err := s.ledger.DB().Save(txn).Error; err != nil {
		return nil, err
	}

	log.Info().Uint("transaction_id", txn.ID).Msg("transaction marked failed")
	return txn, nil
}

// ListUserTransactions retrieves a user's transaction history, newest first
func (s *Service) ListUserTransactions(userID uint) ([]types.Transaction, error) {
	return s.db.GetUserTransactions(userID)
}

// ListPending retrieves all pending transactions for admin review
func (s *Service) ListPending() ([]types.Transaction, error) {
	return s.db.GetPendingTransactions()
}

// GinHandlers contains HTTP handlers for transaction endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// DepositHandler handles POST requests to request a deposit
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return h.requestHandler(types.TransactionDeposit)
}

// WithdrawHandler handles POST requests to request a withdrawal
func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return h.requestHandler(types.TransactionWithdrawal)
}

func (h *GinHandlers) requestHandler(txType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		var req TransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.Request(userID, txType, req)
		if errors.Is(err, ErrInvalidAmount) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, txn, err)
	}
}

// ListTransactionsHandler handles GET requests for the user's history
func (h *GinHandlers) ListTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		txns, err := h.service.ListUserTransactions(userID)
		response.Handle(c, txns, err)
	}
}

// ListPendingHandler handles GET requests for pending transactions
// Admin-only endpoint
func (h *GinHandlers) ListPendingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		txns, err := h.service.ListPending()
		response.Handle(c, txns, err)
	}
}

// CompleteTransactionHandler handles POST requests to complete transactions
// Admin-only endpoint
// URL parameter: transaction_id
func (h *GinHandlers) CompleteTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		transactionID, err := parseID(c.Param("transaction_id"))
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.Complete(transactionID)
		response.Handle(c, txn, err)
	}
}

// FailTransactionHandler handles POST requests to mark transactions failed
// Admin-only endpoint
// URL parameter: transaction_id
func (h *GinHandlers) FailTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		transactionID, err := parseID(c.Param("transaction_id"))
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.Fail(transactionID)
		if errors.Is(err, ErrNotPending) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, txn, err)
	}
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, ErrInvalidTransactionID
	}
	return uint(id), nil
}
