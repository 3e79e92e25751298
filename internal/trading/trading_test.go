package trading

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sgoodman/tradecopy-api/internal/ledger"
	"github.com/sgoodman/tradecopy-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	err = db.AutoMigrate(
		&types.User{},
		&types.Asset{},
		&types.Trade{},
		&types.Trader{},
		&types.CopyRelationship{},
		&IdempotencyRecord{},
	)
	if err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, email string, balance decimal.Decimal) *types.User {
	t.Helper()

	user := &types.User{Email: email, Balance: balance, Role: types.RoleUser}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func createAsset(t *testing.T, db *gorm.DB, symbol string, price decimal.Decimal) *types.Asset {
	t.Helper()

	asset := &types.Asset{Symbol: symbol, Name: symbol, Type: types.AssetCrypto, Price: price}
	if err := db.Create(asset).Error; err != nil {
		t.Fatalf("failed to create asset: %v", err)
	}
	return asset
}

func createPendingTrade(t *testing.T, db *gorm.DB, userID, assetID uint, side string, amount, price decimal.Decimal) *types.Trade {
	t.Helper()

	trade := &types.Trade{
		UserID:  userID,
		AssetID: assetID,
		Side:    side,
		Amount:  amount,
		Price:   price,
		Status:  types.TradePending,
	}
	if err := db.Create(trade).Error; err != nil {
		t.Fatalf("failed to create trade: %v", err)
	}
	return trade
}

func balanceOf(t *testing.T, db *gorm.DB, userID uint) decimal.Decimal {
	t.Helper()

	var user types.User
	if err := db.First(&user, userID).Error; err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	return user.Balance
}

func TestPlaceOrder_CreatesPendingTrade(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))
	user := createUser(t, db, "buyer@example.com", decimal.NewFromInt(1000))
	asset := createAsset(t, db, "BTC", decimal.NewFromInt(100))

	trade, err := service.PlaceOrder(user.ID, PlaceOrderRequest{
		AssetID: asset.ID,
		Side:    types.SideBuy,
		Amount:  decimal.NewFromInt(5),
		Price:   decimal.NewFromInt(95),
	}, "key-1")
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	if trade.Status != types.TradePending {
		t.Errorf("expected pending status, got %s", trade.Status)
	}
	if !trade.Price.Equal(decimal.NewFromInt(95)) {
		t.Errorf("expected recorded price 95, got %s", trade.Price.String())
	}
	// Order entry moves no money
	if !balanceOf(t, db, user.ID).Equal(decimal.NewFromInt(1000)) {
		t.Error("balance changed at order entry")
	}
}

func TestPlaceOrder_MarketOrderUsesCurrentQuote(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))
	user := createUser(t, db, "buyer@example.com", decimal.NewFromInt(1000))
	asset := createAsset(t, db, "ETH", decimal.NewFromFloat(250.5))

	trade, err := service.PlaceOrder(user.ID, PlaceOrderRequest{
		AssetID: asset.ID,
		Side:    types.SideBuy,
		Amount:  decimal.NewFromInt(1),
	}, "key-1")
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if !trade.Price.Equal(decimal.NewFromFloat(250.5)) {
		t.Errorf("expected quote price 250.5, got %s", trade.Price.String())
	}
}

func TestPlaceOrder_Validation(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))
	user := createUser(t, db, "buyer@example.com", decimal.NewFromInt(1000))
	asset := createAsset(t, db, "BTC", decimal.NewFromInt(100))

	cases := []struct {
		name string
		req  PlaceOrderRequest
		want error
	}{
		{"bad side", PlaceOrderRequest{AssetID: asset.ID, Side: "short", Amount: decimal.NewFromInt(1)}, ErrInvalidSide},
		{"zero amount", PlaceOrderRequest{AssetID: asset.ID, Side: types.SideBuy, Amount: decimal.Zero}, ErrInvalidAmount},
		{"negative amount", PlaceOrderRequest{AssetID: asset.ID, Side: types.SideBuy, Amount: decimal.NewFromInt(-1)}, ErrInvalidAmount},
		{"negative price", PlaceOrderRequest{AssetID: asset.ID, Side: types.SideBuy, Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(-5)}, ErrInvalidPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := service.PlaceOrder(user.ID, tc.req, "key-"+tc.name); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	_, err := service.PlaceOrder(user.ID, PlaceOrderRequest{
		AssetID: 999,
		Side:    types.SideBuy,
		Amount:  decimal.NewFromInt(1),
	}, "key-missing-asset")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found for missing asset, got %v", err)
	}
}

func TestPlaceOrder_Idempotency(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))
	user := createUser(t, db, "buyer@example.com", decimal.NewFromInt(1000))
	asset := createAsset(t, db, "BTC", decimal.NewFromInt(100))

	req := PlaceOrderRequest{
		AssetID: asset.ID,
		Side:    types.SideBuy,
		Amount:  decimal.NewFromInt(5),
	}
	first, err := service.PlaceOrder(user.ID, req, "same-key")
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	second, err := service.PlaceOrder(user.ID, req, "same-key")
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected same trade for duplicate key, got %d and %d", first.ID, second.ID)
	}

	var count int64
	db.Model(&types.Trade{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 trade, got %d", count)
	}
}

func TestExecuteTrade_BuyDebitsBalance(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))
	user := createUser(t, db, "buyer@example.com", decimal.NewFromInt(1000))
	asset := createAsset(t, db, "BTC", decimal.NewFromInt(100))
	trade := createPendingTrade(t, db, user.ID, asset.ID, types.SideBuy,
		decimal.NewFromInt(5), decimal.NewFromInt(100))

	executed, err := service.ExecuteTrade(trade.ID)
	if err != nil {
		t.Fatalf("ExecuteTrade failed: %v", err)
	}

	if executed.Status != types.TradeExecuted {
		t.Errorf("expected executed status, got %s", executed.Status)
	}
	if executed.ExecutedAt == nil {
		t.Error("expected executed_at to be set")
	}
	if !balanceOf(t, db, user.ID).Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected balance 500, got %s", balanceOf(t, db, user.ID).String())
	}
}

func TestExecuteTrade_SellCreditsBalance(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))
	user := createUser(t, db, "seller@example.com", decimal.NewFromInt(100))
	asset := createAsset(t, db, "BTC", decimal.NewFromInt(100))
	trade := createPendingTrade(t, db, user.ID, asset.ID, types.SideSell,
		decimal.NewFromInt(3), decimal.NewFromInt(200))

	if _, err := service.ExecuteTrade(trade.ID); err != nil {
		t.Fatalf("ExecuteTrade failed: %v", err)
	}
	if !balanceOf(t, db, user.ID).Equal(decimal.NewFromInt(700)) {
		t.Errorf("expected balance 700, got %s", balanceOf(t, db, user.ID).String())
	}
}

func TestExecuteTrade_UsesRecordedPriceNotLiveQuote(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))
	user := createUser(t, db, "buyer@example.com", decimal.NewFromInt(1000))
	asset := createAsset(t, db, "BTC", decimal.NewFromInt(100))
	trade := createPendingTrade(t, db, user.ID, asset.ID, types.SideBuy,
		decimal.NewFromInt(2), decimal.NewFromInt(50))

	// Quote moves after the order was priced
	if err := db.Model(&types.Asset{}).Where("id = ?", asset.ID).
		Update("price", decimal.NewFromInt(400)).Error; err != nil {
		t.Fatalf("failed to move quote: %v", err)
	}

	if _, err := service.ExecuteTrade(trade.ID); err != nil {
		t.Fatalf("ExecuteTrade failed: %v", err)
	}
	// 2 * 50 = 100 debited, not 2 * 400
	if !balanceOf(t, db, user.ID).Equal(decimal.NewFromInt(900)) {
		t.Errorf("expected balance 900, got %s", balanceOf(t, db, user.ID).String())
	}
}

func TestExecuteTrade_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))
	user := createUser(t, db, "buyer@example.com", decimal.NewFromInt(1000))
	asset := createAsset(t, db, "BTC", decimal.NewFromInt(100))
	trade := createPendingTrade(t, db, user.ID, asset.ID, types.SideBuy,
		decimal.NewFromInt(5), decimal.NewFromInt(100))

	if _, err := service.ExecuteTrade(trade.ID); err != nil {
		t.Fatalf("first ExecuteTrade failed: %v", err)
	}
	second, err := service.ExecuteTrade(trade.ID)
	if err != nil {
		t.Fatalf("second ExecuteTrade failed: %v", err)
	}

	if second.Status != types.TradeExecuted {
		t.Errorf("expected executed status, got %s", second.Status)
	}
	// Balance effect applied exactly once
	if !balanceOf(t, db, user.ID).Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected balance 500 after duplicate execution, got %s",
			balanceOf(t, db, user.ID).String())
	}
}

func TestExecuteTrade_InsufficientBalance(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))
	user := createUser(t, db, "buyer@example.com", decimal.NewFromInt(100))
	asset := createAsset(t, db, "BTC", decimal.NewFromInt(100))
	trade := createPendingTrade(t, db, user.ID, asset.ID, types.SideBuy,
		decimal.NewFromInt(5), decimal.NewFromInt(100))

	// Give the user a trader profile with an active follower so a partial
	// failure would be visible as stray copy trades.
	trader := &types.Trader{UserID: user.ID, DisplayName: "t"}
	if err := db.Create(trader).Error; err != nil {
		t.Fatalf("failed to create trader: %v", err)
	}
	follower := createUser(t, db, "follower@example.com", decimal.NewFromInt(1000))
	rel := &types.CopyRelationship{
		FollowerID:           follower.ID,
		TraderID:             trader.ID,
		AllocationPercentage: decimal.NewFromInt(100),
		Status:               types.CopyActive,
	}
	if err := db.Create(rel).Error; err != nil {
		t.Fatalf("failed to create relationship: %v", err)
	}

	_, err := service.ExecuteTrade(trade.ID)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// No partial effects: trade still pending, balance unchanged, no fan-out
	var reloaded types.Trade
	if err := db.First(&reloaded, trade.ID).Error; err != nil {
		t.Fatalf("failed to reload trade: %v", err)
	}
	if reloaded.Status != types.TradePending {
		t.Errorf("expected trade to stay pending, got %s", reloaded.Status)
	}
	if !balanceOf(t, db, user.ID).Equal(decimal.NewFromInt(100)) {
		t.Error("balance changed on rejected execution")
	}
	var copies int64
	db.Model(&types.Trade{}).Where("copied_from_trade_id = ?", trade.ID).Count(&copies)
	if copies != 0 {
		t.Errorf("expected no copy trades after rejected execution, got %d", copies)
	}
}

func TestExecuteTrade_FanOutAllocations(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))

	traderUser := createUser(t, db, "trader@example.com", decimal.NewFromInt(10000))
	asset := createAsset(t, db, "BTC", decimal.NewFromInt(100))
	trader := &types.Trader{UserID: traderUser.ID, DisplayName: "t", Followers: 2}
	if err := db.Create(trader).Error; err != nil {
		t.Fatalf("failed to create trader: %v", err)
	}

	f1 := createUser(t, db, "f1@example.com", decimal.NewFromInt(1000))
	f2 := createUser(t, db, "f2@example.com", decimal.NewFromInt(1000))
	rels := []types.CopyRelationship{
		{FollowerID: f1.ID, TraderID: trader.ID, AllocationPercentage: decimal.NewFromInt(50), Status: types.CopyActive},
		{FollowerID: f2.ID, TraderID: trader.ID, AllocationPercentage: decimal.NewFromInt(25), Status: types.CopyActive},
	}
	if err := db.Create(&rels).Error; err != nil {
		t.Fatalf("failed to create relationships: %v", err)
	}

	trade := createPendingTrade(t, db, traderUser.ID, asset.ID, types.SideBuy,
		decimal.NewFromInt(10), decimal.NewFromInt(100))

	if _, err := service.ExecuteTrade(trade.ID); err != nil {
		t.Fatalf("ExecuteTrade failed: %v", err)
	}

	var copies []types.Trade
	if err := db.Where("copied_from_trade_id = ?", trade.ID).Order("user_id ASC").
		Find(&copies).Error; err != nil {
		t.Fatalf("failed to load copies: %v", err)
	}
	if len(copies) != 2 {
		t.Fatalf("expected 2 copy trades, got %d", len(copies))
	}

	byUser := map[uint]types.Trade{}
	for _, c := range copies {
		byUser[c.UserID] = c
	}

	if !byUser[f1.ID].Amount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected 50%% copy amount 5, got %s", byUser[f1.ID].Amount.String())
	}
	if !byUser[f2.ID].Amount.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("expected 25%% copy amount 2.5, got %s", byUser[f2.ID].Amount.String())
	}

	for _, c := range copies {
		if c.Status != types.TradePending {
			t.Errorf("copy trade %d auto-executed: %s", c.ID, c.Status)
		}
		if c.Side != types.SideBuy {
			t.Errorf("copy trade %d side mismatch: %s", c.ID, c.Side)
		}
		if !c.Price.Equal(trade.Price) {
			t.Errorf("copy trade %d price mismatch: %s", c.ID, c.Price.String())
		}
	}

	// Follower balances untouched until their copies execute
	if !balanceOf(t, db, f1.ID).Equal(decimal.NewFromInt(1000)) {
		t.Error("follower balance changed during fan-out")
	}
}

func TestExecuteTrade_CopyDoesNotFanOutAgain(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))

	traderUser := createUser(t, db, "trader@example.com", decimal.NewFromInt(10000))
	asset := createAsset(t, db, "BTC", decimal.NewFromInt(100))
	trader := &types.Trader{UserID: traderUser.ID, DisplayName: "t"}
	if err := db.Create(trader).Error; err != nil {
		t.Fatalf("failed to create trader: %v", err)
	}

	// The follower is itself a trader with its own follower: a copy trade
	// executing for them must still not propagate.
	followerUser := createUser(t, db, "follower@example.com", decimal.NewFromInt(10000))
	followerTrader := &types.Trader{UserID: followerUser.ID, DisplayName: "ft"}
	if err := db.Create(followerTrader).Error; err != nil {
		t.Fatalf("failed to create follower trader: %v", err)
	}
	secondGen := createUser(t, db, "second@example.com", decimal.NewFromInt(10000))
	rels := []types.CopyRelationship{
		{FollowerID: followerUser.ID, TraderID: trader.ID, AllocationPercentage: decimal.NewFromInt(100), Status: types.CopyActive},
		{FollowerID: secondGen.ID, TraderID: followerTrader.ID, AllocationPercentage: decimal.NewFromInt(100), Status: types.CopyActive},
	}
	if err := db.Create(&rels).Error; err != nil {
		t.Fatalf("failed to create relationships: %v", err)
	}

	original := createPendingTrade(t, db, traderUser.ID, asset.ID, types.SideBuy,
		decimal.NewFromInt(4), decimal.NewFromInt(100))
	if _, err := service.ExecuteTrade(original.ID); err != nil {
		t.Fatalf("ExecuteTrade failed: %v", err)
	}

	var copyTrade types.Trade
	if err := db.Where("copied_from_trade_id = ?", original.ID).First(&copyTrade).Error; err != nil {
		t.Fatalf("expected a first-generation copy: %v", err)
	}

	if _, err := service.ExecuteTrade(copyTrade.ID); err != nil {
		t.Fatalf("copy ExecuteTrade failed: %v", err)
	}

	var secondGenCopies int64
	db.Model(&types.Trade{}).Where("copied_from_trade_id = ?", copyTrade.ID).Count(&secondGenCopies)
	if secondGenCopies != 0 {
		t.Errorf("expected no second-generation copies, got %d", secondGenCopies)
	}
}

func TestExecuteTrade_SkipsInactiveRelationships(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))

	traderUser := createUser(t, db, "trader@example.com", decimal.NewFromInt(10000))
	asset := createAsset(t, db, "BTC", decimal.NewFromInt(100))
	trader := &types.Trader{UserID: traderUser.ID, DisplayName: "t"}
	if err := db.Create(trader).Error; err != nil {
		t.Fatalf("failed to create trader: %v", err)
	}

	f1 := createUser(t, db, "f1@example.com", decimal.NewFromInt(1000))
	rel := &types.CopyRelationship{
		FollowerID:           f1.ID,
		TraderID:             trader.ID,
		AllocationPercentage: decimal.NewFromInt(100),
		Status:               types.CopyStopped,
	}
	if err := db.Create(rel).Error; err != nil {
		t.Fatalf("failed to create relationship: %v", err)
	}

	trade := createPendingTrade(t, db, traderUser.ID, asset.ID, types.SideBuy,
		decimal.NewFromInt(1), decimal.NewFromInt(10))
	if _, err := service.ExecuteTrade(trade.ID); err != nil {
		t.Fatalf("ExecuteTrade failed: %v", err)
	}

	var copies int64
	db.Model(&types.Trade{}).Where("copied_from_trade_id = ?", trade.ID).Count(&copies)
	if copies != 0 {
		t.Errorf("expected no copies for stopped relationship, got %d", copies)
	}
}

func TestExecuteTrade_MissingTrade(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))

	if _, err := service.ExecuteTrade(12345); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestExecuteTrade_MissingAsset(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))
	user := createUser(t, db, "buyer@example.com", decimal.NewFromInt(1000))
	trade := createPendingTrade(t, db, user.ID, 999, types.SideBuy,
		decimal.NewFromInt(1), decimal.NewFromInt(10))

	if _, err := service.ExecuteTrade(trade.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found for missing asset, got %v", err)
	}
}

func TestCancelTrade(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))
	user := createUser(t, db, "buyer@example.com", decimal.NewFromInt(1000))
	asset := createAsset(t, db, "BTC", decimal.NewFromInt(100))
	trade := createPendingTrade(t, db, user.ID, asset.ID, types.SideBuy,
		decimal.NewFromInt(1), decimal.NewFromInt(10))

	canceled, err := service.CancelTrade(trade.ID, user.ID)
	if err != nil {
		t.Fatalf("CancelTrade failed: %v", err)
	}
	if canceled.Status != types.TradeCanceled {
		t.Errorf("expected canceled status, got %s", canceled.Status)
	}

	// Canceling again is a no-op
	if _, err := service.CancelTrade(trade.ID, user.ID); err != nil {
		t.Fatalf("second CancelTrade failed: %v", err)
	}
}

func TestCancelTrade_ExecutedTradeRejected(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, ledger.NewService(db))
	user := createUser(t, db, "buyer@example.com", decimal.NewFromInt(1000))
	asset := createAsset(t, db, "BTC", decimal.NewFromInt(100))
	trade := createPendingTrade(t, db, user.ID, asset.ID, types.SideBuy,
		decimal.NewFromInt(1), decimal.NewFromInt(10))

	if _, err := service.ExecuteTrade(trade.ID); err != nil {
		t.Fatalf("ExecuteTrade failed: %v", err)
	}
	if _, err := service.CancelTrade(trade.ID, user.ID); !errors.Is(err, ErrAlreadyExecuted) {
		t.Fatalf("expected ErrAlreadyExecuted, got %v", err)
	}
}
