package trading

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sgoodman/tradecopy-api/internal/ledger"
	"github.com/sgoodman/tradecopy-api/internal/types"
	"github.com/sgoodman/tradecopy-api/pkg/middleware"
	"github.com/sgoodman/tradecopy-api/pkg/response"
	"gorm.io/gorm"
)

var (
	ErrInvalidSide     = errors.New("side must be buy or sell")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrAlreadyExecuted = errors.New("trade already executed")
	ErrInvalidTradeID  = errors.New("invalid trade id")
)

var oneHundred = decimal.NewFromInt(100)

// Service handles order entry and trade execution
type Service struct {
	db     *Database
	ledger *ledger.Service
}

// NewService creates a new trading service with the given database
// connection and ledger.
func NewService(gormDB *gorm.DB, ledgerService *ledger.Service) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		ledger: ledgerService,
	}
}

// PlaceOrder creates a new pending trade priced at order time, with
// idempotency support. An existing unexpired idempotency record returns the
// previously created trade.
func (s *Service) PlaceOrder(userID uint, req PlaceOrderRequest, idempotencyKey string) (*types.Trade, error) {
	record, err := s.db.GetIdempotencyRecord(idempotencyKey)
	if err != nil {
		return nil, err
	}
	if record != nil && record.ExpiresAt.After(time.Now()) {
		return s.db.GetTrade(record.ResourceID)
	}

	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return nil, ErrInvalidSide
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	asset, err := s.db.GetAsset(req.AssetID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset: %w", err)
	}

	// Limit orders carry their own price; market orders lock in the
	// current quote. Either way the trade settles at the recorded price.
	price := req.Price
	if price.IsZero() {
		price = asset.Price
	}
	if price.IsNegative() {
		return nil, ErrInvalidPrice
	}

	trade := &types.Trade{
		UserID:  userID,
		AssetID: asset.ID,
		Side:    req.Side,
		Amount:  req.Amount,
		Price:   price,
		Status:  types.TradePending,
	}

	if err := s.db.CreateTradeWithIdempotency(trade, idempotencyKey); err != nil {
		return nil, err
	}

	log.Info().
		Uint("trade_id", trade.ID).
		Uint("user_id", userID).
		Str("symbol", asset.Symbol).
		Str("side", trade.Side).
		Str("amount", trade.Amount.String()).
		Str("price", trade.Price.String()).
		Msg("order placed")

	return trade, nil
}

// ExecuteTrade settles a pending trade and fans it out to followers.
//
// Executing a trade that is no longer pending is an idempotent no-op that
// returns the current record, so duplicate invocations apply the balance
// effect at most once. A buy debits amount*price at the trade's recorded
// price; insufficient balance aborts the whole operation with no fan-out.
// Fan-out only happens for original trades and is best-effort per follower.
func (s *Service) ExecuteTrade(tradeID uint) (*types.Trade, error) {
	logger := log.With().
		Uint("trade_id", tradeID).
		Str("service", "trading").
		Logger()

	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch trade")
		return nil, fmt.Errorf("failed to fetch trade: %w", err)
	}

	if trade.Status != types.TradePending {
		logger.Info().Str("status", trade.Status).Msg("trade not pending, nothing to do")
		return trade, nil
	}

	// Serialize balance writers for this user; other users' trades are
	// unaffected.
	unlock := s.ledger.Lock(trade.UserID)
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

	// Re-check the pending guard inside the transaction so two concurrent
	// executions of the same trade settle exactly once.
	if err := tx.First(trade, tradeID).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to fetch trade: %w", err)
	}
	if trade.Status != types.TradePending {
		tx.Rollback()
		logger.Info().Str("status", trade.Status).Msg("trade not pending, nothing to do")
		return trade, nil
	}

	var asset types.Asset
	if err := tx.First(&asset, trade.AssetID).Error; err != nil {
		tx.Rollback()
		logger.Error().Err(err).Uint("asset_id", trade.AssetID).Msg("failed to fetch asset")
		return nil, fmt.Errorf("failed to fetch asset: %w", err)
	}

	// Settlement uses the recorded order-time price, not the live quote
	totalCost := trade.Amount.Mul(trade.Price)

	direction := ledger.Debit
	if trade.Side == types.SideSell {
		direction = ledger.Credit
	}

	newBalance, err := s.ledger.Adjust(tx, trade.UserID, totalCost, direction)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			logger.Info().
				Str("total_cost", totalCost.String()).
				Msg("execution rejected, insufficient balance")
			return nil, fmt.Errorf("trade %d: %w", tradeID, err)
		}
		logger.Error().Err(err).Msg("balance adjustment failed")
		return nil, err
	}

	now := time.Now()
	trade.Status = types.TradeExecuted
	trade.ExecutedAt = &now
	trade.UpdatedAt = now
	if err := tx.Save(trade).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to mark trade executed: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	logger.Info().
		Uint("user_id", trade.UserID).
		Str("symbol", asset.Symbol).
		Str("side", trade.Side).
		Str("total_cost", totalCost.String()).
		Str("new_balance", newBalance.String()).
		Msg("trade executed")

	// Copies never spawn further copies: only first-generation trades fan
	// out.
	if trade.CopiedFromTradeID == nil {
		s.fanOut(trade)
	}

	return trade, nil
}

// fanOut mirrors an executed original trade into pending trades for every
// active follower of the trade's owner. Each copy stays pending until a
// later execution pass; follower failures are logged and skipped so one
// bad copy never blocks the rest.
func (s *Service) fanOut(original *types.Trade) {
	logger := log.With().
		Uint("trade_id", original.ID).
		Uint("trader_user_id", original.UserID).
		Str("service", "trading").
		Logger()

	trader, err := s.db.GetTraderByUserID(original.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to look up trader profile")
		return
	}
	if trader == nil {
		return
	}

	rels, err := s.db.GetActiveRelationships(trader.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to enumerate followers")
		return
	}

	created := 0
	for _, rel := range rels {
		followerAmount := original.Amount.Mul(rel.AllocationPercentage).Div(oneHundred)
		if !followerAmount.IsPositive() {
			logger.Warn().
				Uint("relationship_id", rel.ID).
				Str("allocation", rel.AllocationPercentage.String()).
				Msg("skipping follower with non-positive copy amount")
			continue
		}

		originalID := original.ID
		copyTrade := &types.Trade{
			UserID:            rel.FollowerID,
			AssetID:           original.AssetID,
			Side:              original.Side,
			Amount:            followerAmount,
			Price:             original.Price,
			Status:            types.TradePending,
			CopiedFromTradeID: &originalID,
		}

		if err := s.db.CreateTrade(copyTrade); err != nil {
			logger.Error().Err(err).
				Uint("follower_id", rel.FollowerID).
				Msg("failed to create copy trade, skipping follower")
			continue
		}
		created++
	}

	if len(rels) > 0 {
		logger.Info().
			Int("followers", len(rels)).
			Int("copies_created", created).
			Msg("fan-out completed")
	}
}

// CancelTrade transitions a user's pending trade to canceled. Canceling an
// already canceled trade is a no-op; an executed trade cannot be canceled.
func (s *Service) CancelTrade(tradeID, userID uint) (*types.Trade, error) {
	trade, err := s.db.GetTradeByIDAndUserID(tradeID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trade: %w", err)
	}

	switch trade.Status {
	case types.TradeCanceled:
		return trade, nil
	case types.TradeExecuted:
		return nil, ErrAlreadyExecuted
	}

	trade.Status = types.TradeCanceled
	trade.UpdatedAt = time.Now()
	if err := s.ledger.DB().Save(trade).Error; err != nil {
		return nil, err
	}

	log.Info().Uint("trade_id", trade.ID).Uint("user_id", userID).Msg("trade canceled")
	return trade, nil
}

// GetTrade retrieves a trade scoped to its owner
func (s *Service) GetTrade(tradeID, userID uint) (*types.Trade, error) {
	return s.db.GetTradeByIDAndUserID(tradeID, userID)
}

// ListUserTrades retrieves all trades for a user, newest first
func (s *Service) ListUserTrades(userID uint) ([]types.Trade, error) {
	return s.db.GetUserTrades(userID)
}

// GinHandlers contains HTTP handlers for trading endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// PlaceOrderHandler handles POST requests to create new trades
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) PlaceOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		var req PlaceOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.PlaceOrder(userID, req, idempotencyKey)
		if errors.Is(err, ErrInvalidSide) || errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrInvalidPrice) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, trade, err)
	}
}

// GetTradeHandler handles GET requests for a single trade
// URL parameter: trade_id
func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		tradeID, err := parseID(c.Param("trade_id"))
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.GetTrade(tradeID, userID)
		response.Handle(c, trade, err)
	}
}

// ListTradesHandler handles GET requests for the user's trade history
func (h *GinHandlers) ListTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		trades, err := h.service.ListUserTrades(userID)
		response.Handle(c, trades, err)
	}
}

// CancelTradeHandler handles POST requests to cancel a pending trade
// URL parameter: trade_id
func (h *GinHandlers) CancelTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		tradeID, err := parseID(c.Param("trade_id"))
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.CancelTrade(tradeID, userID)
		if errors.Is(err, ErrAlreadyExecuted) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, trade, err)
	}
}

// ExecuteTradeHandler handles POST requests to execute trades
// Admin-only endpoint
// URL parameter: trade_id
func (h *GinHandlers) ExecuteTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID, err := parseID(c.Param("trade_id"))
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.ExecuteTrade(tradeID)
		response.Handle(c, trade, err)
	}
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, ErrInvalidTradeID
	}
	return uint(id), nil
}
