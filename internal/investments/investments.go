package investments

import (
	"errors"
	"fmt"
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
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrAmountOutOfRange = errors.New("amount outside plan limits")
)

var oneHundred = decimal.NewFromInt(100)

// Service handles investment plans and stakes
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

// CreateInvestmentRequest is the payload for staking into a plan
type CreateInvestmentRequest struct {
	PlanID uint            `json:"plan_id" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// CreateInvestment stakes an amount into a plan. The balance is debited
// immediately at creation, unlike deposits and withdrawals which settle at
// completion; the displayed balance drops as soon as the investment exists.
// A failed debit means no investment row is written at all.
func (s *Service) CreateInvestment(userID uint, req CreateInvestmentRequest) (*types.Investment, error) {
	logger := log.With().
		Uint("user_id", userID).
		Uint("plan_id", req.PlanID).
		Str("service", "investments").
		Logger()

	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	plan, err := s.db.GetPlan(req.PlanID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch plan")
		return nil, fmt.Errorf("failed to fetch plan: %w", err)
	}

	if req.Amount.LessThan(plan.MinAmount) || req.Amount.GreaterThan(plan.MaxAmount) {
		return nil, fmt.Errorf("%w: %s allows %s to %s", ErrAmountOutOfRange,
			plan.Name, plan.MinAmount.String(), plan.MaxAmount.String())
	}

	unlock := s.ledger.Lock(userID)
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

	newBalance, err := s.ledger.Adjust(tx, userID, req.Amount, ledger.Debit)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			logger.Info().
				Str("amount", req.Amount.String()).
				Msg("investment rejected, insufficient balance")
			return nil, fmt.Errorf("investment in plan %d: %w", req.PlanID, err)
		}
		return nil, err
	}

	investment := &types.Investment{
		UserID:         userID,
		PlanID:         plan.ID,
		Amount:         req.Amount,
		ExpectedReturn: req.Amount.Mul(plan.ReturnRate).Div(oneHundred).Round(2),
		Status:         types.InvestmentActive,
		EndsAt:         time.Now().AddDate(0, 0, plan.DurationDays),
	}

	if err := tx.Create(investment).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create investment: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	logger.Info().
		Uint("investment_id", investment.ID).
		Str("amount", investment.Amount.String()).
		Str("expected_return", investment.ExpectedReturn.String()).
		Str("new_balance", newBalance.String()).
		Time("ends_at", investment.EndsAt).
		Msg("investment created")

	return investment, nil
}

// CompleteMatured settles every active investment whose term has ended,
// crediting principal plus expected return. Returns the number completed.
func (s *Service) CompleteMatured(now time.Time) (int, error) {
	matured, err := s.db.GetMaturedInvestments(now)
	if err != nil {
		return 0, err
	}

	completed := 0
	for i := range matured {
		if err := s.completeOne(&matured[i], now); err != nil {
			log.Error().Err(err).
				Uint("investment_id", matured[i].ID).
				Msg("failed to complete matured investment")
			continue
		}
		completed++
	}

	return completed, nil
}

func (s *Service) completeOne(investment *types.Investment, now time.Time) error {
	unlock := s.ledger.Lock(investment.UserID)
	defer unlock()

	tx := s.ledger.DB().Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// Guard against a concurrent maturity pass
	if err := tx.First(investment, investment.ID).Error; err != nil {
		tx.Rollback()
		return err
	}
	if investment.Status != types.InvestmentActive {
		tx.Rollback()
		return nil
	}

	payout := investment.Amount.Add(investment.ExpectedReturn)
	if _, err := s.ledger.Adjust(tx, investment.UserID, payout, ledger.Credit); err != nil {
		tx.Rollback()
		return err
	}

	investment.Status = types.InvestmentCompleted
	investment.CompletedAt = &now
	investment.UpdatedAt = now
	if err := tx.Save(investment).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return err
	}

	log.Info().
		Uint("investment_id", investment.ID).
		Uint("user_id", investment.UserID).
		Str("payout", payout.String()).
		Msg("investment matured and settled")

	return nil
}

// ListPlans returns the plan catalog
func (s *Service) ListPlans() ([]types.InvestmentPlan, error) {
	return s.db.ListPlans()
}

// ListUserInvestments returns a user's investments, newest first
func (s *Service) ListUserInvestments(userID uint) ([]types.Investment, error) {
	return s.db.GetUserInvestments(userID)
}

// GinHandlers contains HTTP handlers for investment endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListPlansHandler handles GET requests for the plan catalog
func (h *GinHandlers) ListPlansHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := h.service.ListPlans()
		response.Handle(c, plans, err)
	}
}

// CreateInvestmentHandler handles POST requests to stake into a plan
func (h *GinHandlers) CreateInvestmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		var req CreateInvestmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		investment, err := h.service.CreateInvestment(userID, req)
		if errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrAmountOutOfRange) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, investment, err)
	}
}

// ListInvestmentsHandler handles GET requests for the user's investments
func (h *GinHandlers) ListInvestmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "Missing authentication")
			return
		}

		investments, err := h.service.ListUserInvestments(userID)
		response.Handle(c, investments, err)
	}
}
