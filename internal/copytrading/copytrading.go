package copytrading

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sgoodman/tradecopy-api/internal/types"
	"github.com/sgoodman/tradecopy-api/pkg/middleware"
	"github.com/sgoodman/tradecopy-api/pkg/response"
	"gorm.io/gorm"
)

var (
	ErrAlreadyCopying        = errors.New("already copying this trader")
	ErrAlreadyTrader         = errors.New("user is already a trader")
	ErrCannotCopySelf        = errors.New("cannot copy yourself")
	ErrInvalidAllocation     = errors.New("allocation percentage must be in (0, 100]")
	ErrInvalidRelationshipID = errors.New("invalid relationship id")
)

var oneHundred = decimal.NewFromInt(100)

// Service manages trader profiles and copy relationships. The trader's
// followers count is a cache over active relationships; every create and
// stop goes through here so the count stays consistent with the rows the
// fan-out enumerates.
type Service struct {
	gormDB *gorm.DB
	db     *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		gormDB: gormDB,
		db:     NewDatabase(gormDB),
	}
}

// BecomeTraderRequest is the payload for opting in to be copied
type BecomeTraderRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Strategy    string `json:"strategy"`
}

// StartCopyingRequest is the payload for following a trader. A zero
// allocation defaults to 100%.
type StartCopyingRequest struct {
	TraderID             uint            `json:"trader_id" binding:"required"`
	AllocationPercentage decimal.Decimal `json:"allocation_percentage"`
}

// BecomeTrader opts a user in to be copied
func (s *Service) BecomeTrader(userID uint, req BecomeTraderRequest) (*types.Trader, error) {
	existing, err := s.db.GetTraderByUserID(userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyTrader
	}

	trader := &types.Trader{
		UserID:      userID,
		DisplayName: req.DisplayName,
		Strategy:    req.Strategy,
	}
	if err := s.db.CreateTrader(trader); err != nil {
		return nil, err
	}

	log.Info().Uint("trader_id", trader.ID).Uint("user_id", userID).Msg("trader profile created")
	return trader, nil
}

// StartCopying creates an active relationship between follower and trader
// and increments the trader's follower count in the same transaction.
func (s *Service) StartCopying(followerID uint, req StartCopyingRequest) (*types.CopyRelationship, error) {
	logger := log.With().
		Uint("follower_id", followerID).
		Uint("trader_id", req.TraderID).
		Str("service", "copytrading").
		Logger()

	allocation := req.AllocationPercentage
	if allocation.IsZero() {
		allocation = oneHundred
	}
	if !allocation.IsPositive() || allocation.GreaterThan(oneHundred) {
		return nil, ErrInvalidAllocation
	}

	trader, err := s.db.GetTrader(req.TraderID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch trader")
		return nil, fmt.Errorf("failed to fetch trader: %w", err)
	}

	if trader.UserID == followerID {
		return nil, ErrCannotCopySelf
	}

	existing, err := s.db.GetActiveRelationship(followerID, trader.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyCopying
	}

	rel := &types.CopyRelationship{
		FollowerID:           followerID,
		TraderID:             trader.ID,
		AllocationPercentage: allocation,
		Status:               types.CopyActive,
	}

	tx := s.gormDB.Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(rel).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(&types.Trader{}).Where("id = ?", trader.ID).
		Update("followers", gorm.Expr("followers + 1")).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	logger.Info().
		Uint("relationship_id", rel.ID).
		Str("allocation", allocation.String()).
		Msg("copy relationship started")

	return rel, nil
}

// StopCopying marks the relationship stopped and decrements the trader's
// follower count, floored at zero. Stopping an already stopped relationship
// leaves the count alone.
func (s *Service) StopCopying(relationshipID, followerID uint) error {
	logger := log.With().
		Uint("relationship_id", relationshipID).
		Uint("follower_id", followerID).
		Str("service", "copytrading").
		Logger()

	rel, err := s.db.GetRelationshipByIDAndFollower(relationshipID, followerID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch relationship")
		return fmt.Errorf("failed to fetch relationship: %w", err)
	}

	if rel.Status == types.CopyStopped {
		return nil
	}

	wasActive := rel.Status == types.CopyActive

	tx := s.gormDB.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Model(&types.CopyRelationship{}).Where("id = ?", rel.ID).
		Updates(map[string]interface{}{
			"status":     types.CopyStopped,
			"updated_at": time.Now(),
		}).Error; err != nil {
		tx.Rollback()
		return err
	}

	if wasActive {
		var trader types.Trader
		if err := tx.First(&trader, rel.TraderID).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to fetch trader: %w", err)
		}

		followers := trader.Followers - 1
		if followers < 0 {
			followers = 0
		}
		if err := tx.Model(&types.Trader{}).Where("id = ?", trader.ID).
			Update("followers", followers).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return err
	}

	logger.Info().Msg("copy relationship stopped")
	return nil
}

// ListTraders returns all trader profiles, most followed first
func (s *Service) ListTraders() ([]types.Trader, error) {
	return s.db.ListTraders()
}

// ListFollowing returns the follower's active relationships
func (s *Service) ListFollowing(followerID uint) ([]types.CopyRelationship, error) {
	return s.db.ListFollowing(followerID)
}

// GinHandlers contains HTTP handlers for copy-trading endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListTradersHandler handles GET requests for the trader leaderboard
func (h *GinHandlers) ListTradersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		traders, err := h.service.ListTraders()
		response.Handle(c, traders, err)
	}
}

// BecomeTraderHandler handles POST requests to create a trader profile
func (h *GinHandlers) BecomeTraderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		var req BecomeTraderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trader, err := h.service.BecomeTrader(userID, req)
		if errors.Is(err, ErrAlreadyTrader) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, trader, err)
	}
}

// StartCopyingHandler handles POST requests to follow a trader
func (h *GinHandlers) StartCopyingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		var req StartCopyingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		rel, err := h.service.StartCopying(userID, req)
		switch {
		case errors.Is(err, ErrAlreadyCopying):
			response.Conflict(c, err.Error())
			return
		case errors.Is(err, ErrCannotCopySelf), errors.Is(err, ErrInvalidAllocation):
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, rel, err)
	}
}

// StopCopyingHandler handles DELETE requests to stop following a trader
// URL parameter: relationship_id
func (h *GinHandlers) StopCopyingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		relationshipID, err := strconv.ParseUint(c.Param("relationship_id"), 10, 32)
		if err != nil || relationshipID == 0 {
			response.BadRequest(c, ErrInvalidRelationshipID.Error())
			return
		}

		if err := h.service.StopCopying(uint(relationshipID), userID); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"stopped": true})
	}
}

// ListFollowingHandler handles GET requests for the user's active copies
func (h *GinHandlers) ListFollowingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		rels, err := h.service.ListFollowing(userID)
		response.Handle(c, rels, err)
	}
}
