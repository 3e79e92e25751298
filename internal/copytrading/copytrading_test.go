package copytrading

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
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
	err = db.AutoMigrate(&types.User{}, &types.Trader{}, &types.CopyRelationship{})
	if err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, email string) *types.User {
	t.Helper()

	user := &types.User{Email: email, Balance: decimal.NewFromInt(1000), Role: types.RoleUser}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func followerCount(t *testing.T, db *gorm.DB, traderID uint) int {
	t.Helper()

	var trader types.Trader
	if err := db.First(&trader, traderID).Error; err != nil {
		t.Fatalf("failed to load trader: %v", err)
	}
	return trader.Followers
}

func TestBecomeTrader(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	user := createUser(t, db, "trader@example.com")

	trader, err := service.BecomeTrader(user.ID, BecomeTraderRequest{
		DisplayName: "Alpha",
		Strategy:    "momentum",
	})
	if err != nil {
		t.Fatalf("BecomeTrader failed: %v", err)
	}
	if trader.Followers != 0 {
		t.Errorf("expected new trader with 0 followers, got %d", trader.Followers)
	}

	if _, err := service.BecomeTrader(user.ID, BecomeTraderRequest{DisplayName: "Alpha"}); !errors.Is(err, ErrAlreadyTrader) {
		t.Fatalf("expected ErrAlreadyTrader, got %v", err)
	}
}

func TestStartCopying_IncrementsFollowerCount(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	traderUser := createUser(t, db, "trader@example.com")
	trader, err := service.BecomeTrader(traderUser.ID, BecomeTraderRequest{DisplayName: "Alpha"})
	if err != nil {
		t.Fatalf("BecomeTrader failed: %v", err)
	}

	f1 := createUser(t, db, "f1@example.com")
	f2 := createUser(t, db, "f2@example.com")

	rel, err := service.StartCopying(f1.ID, StartCopyingRequest{
		TraderID:             trader.ID,
		AllocationPercentage: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("StartCopying failed: %v", err)
	}
	if rel.Status != types.CopyActive {
		t.Errorf("expected active relationship, got %s", rel.Status)
	}
	if !rel.AllocationPercentage.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected allocation 50, got %s", rel.AllocationPercentage.String())
	}

	if _, err := service.StartCopying(f2.ID, StartCopyingRequest{TraderID: trader.ID}); err != nil {
		t.Fatalf("StartCopying failed: %v", err)
	}

	if got := followerCount(t, db, trader.ID); got != 2 {
		t.Errorf("expected 2 followers, got %d", got)
	}
}

func TestStartCopying_ZeroAllocationDefaultsToFull(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	traderUser := createUser(t, db, "trader@example.com")
	trader, _ := service.BecomeTrader(traderUser.ID, BecomeTraderRequest{DisplayName: "Alpha"})
	follower := createUser(t, db, "f@example.com")

	rel, err := service.StartCopying(follower.ID, StartCopyingRequest{TraderID: trader.ID})
	if err != nil {
		t.Fatalf("StartCopying failed: %v", err)
	}
	if !rel.AllocationPercentage.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected default allocation 100, got %s", rel.AllocationPercentage.String())
	}
}

func TestStartCopying_InvalidAllocation(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	traderUser := createUser(t, db, "trader@example.com")
	trader, _ := service.BecomeTrader(traderUser.ID, BecomeTraderRequest{DisplayName: "Alpha"})
	follower := createUser(t, db, "f@example.com")

	for _, allocation := range []decimal.Decimal{
		decimal.NewFromInt(-10),
		decimal.NewFromInt(101),
	} {
		_, err := service.StartCopying(follower.ID, StartCopyingRequest{
			TraderID:             trader.ID,
			AllocationPercentage: allocation,
		})
		if !errors.Is(err, ErrInvalidAllocation) {
			t.Errorf("allocation %s: expected ErrInvalidAllocation, got %v", allocation.String(), err)
		}
	}
}

func TestStartCopying_SelfCopyRejected(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	traderUser := createUser(t, db, "trader@example.com")
	trader, _ := service.BecomeTrader(traderUser.ID, BecomeTraderRequest{DisplayName: "Alpha"})

	_, err := service.StartCopying(traderUser.ID, StartCopyingRequest{TraderID: trader.ID})
	if !errors.Is(err, ErrCannotCopySelf) {
		t.Fatalf("expected ErrCannotCopySelf, got %v", err)
	}
}

func TestStartCopying_DuplicateActiveRejected(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	traderUser := createUser(t, db, "trader@example.com")
	trader, _ := service.BecomeTrader(traderUser.ID, BecomeTraderRequest{DisplayName: "Alpha"})
	follower := createUser(t, db, "f@example.com")

	if _, err := service.StartCopying(follower.ID, StartCopyingRequest{TraderID: trader.ID}); err != nil {
		t.Fatalf("StartCopying failed: %v", err)
	}
	_, err := service.StartCopying(follower.ID, StartCopyingRequest{TraderID: trader.ID})
	if !errors.Is(err, ErrAlreadyCopying) {
		t.Fatalf("expected ErrAlreadyCopying, got %v", err)
	}
	if got := followerCount(t, db, trader.ID); got != 1 {
		t.Errorf("expected follower count to stay 1, got %d", got)
	}
}

func TestStartCopying_MissingTrader(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	follower := createUser(t, db, "f@example.com")

	_, err := service.StartCopying(follower.ID, StartCopyingRequest{TraderID: 999})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestStopCopying_DecrementsFollowerCount(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	traderUser := createUser(t, db, "trader@example.com")
	trader, _ := service.BecomeTrader(traderUser.ID, BecomeTraderRequest{DisplayName: "Alpha"})
	follower := createUser(t, db, "f@example.com")

	rel, err := service.StartCopying(follower.ID, StartCopyingRequest{TraderID: trader.ID})
	if err != nil {
		t.Fatalf("StartCopying failed: %v", err)
	}

	if err := service.StopCopying(rel.ID, follower.ID); err != nil {
		t.Fatalf("StopCopying failed: %v", err)
	}
	if got := followerCount(t, db, trader.ID); got != 0 {
		t.Errorf("expected 0 followers after stop, got %d", got)
	}

	var reloaded types.CopyRelationship
	if err := db.First(&reloaded, rel.ID).Error; err != nil {
		t.Fatalf("failed to reload relationship: %v", err)
	}
	if reloaded.Status != types.CopyStopped {
		t.Errorf("expected stopped status, got %s", reloaded.Status)
	}

	// Stopping again is a no-op and the count stays floored at zero
	if err := service.StopCopying(rel.ID, follower.ID); err != nil {
		t.Fatalf("second StopCopying failed: %v", err)
	}
	if got := followerCount(t, db, trader.ID); got != 0 {
		t.Errorf("expected follower count to stay 0, got %d", got)
	}
}

func TestStopCopying_WrongFollower(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	traderUser := createUser(t, db, "trader@example.com")
	trader, _ := service.BecomeTrader(traderUser.ID, BecomeTraderRequest{DisplayName: "Alpha"})
	follower := createUser(t, db, "f@example.com")
	other := createUser(t, db, "other@example.com")

	rel, err := service.StartCopying(follower.ID, StartCopyingRequest{TraderID: trader.ID})
	if err != nil {
		t.Fatalf("StartCopying failed: %v", err)
	}

	if err := service.StopCopying(rel.ID, other.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found for foreign relationship, got %v", err)
	}
}

func TestRefollowAfterStop(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	traderUser := createUser(t, db, "trader@example.com")
	trader, _ := service.BecomeTrader(traderUser.ID, BecomeTraderRequest{DisplayName: "Alpha"})
	follower := createUser(t, db, "f@example.com")

	rel, err := service.StartCopying(follower.ID, StartCopyingRequest{TraderID: trader.ID})
	if err != nil {
		t.Fatalf("StartCopying failed: %v", err)
	}
	if err := service.StopCopying(rel.ID, follower.ID); err != nil {
		t.Fatalf("StopCopying failed: %v", err)
	}

	// A stopped relationship does not block a new one
	if _, err := service.StartCopying(follower.ID, StartCopyingRequest{TraderID: trader.ID}); err != nil {
		t.Fatalf("refollow failed: %v", err)
	}
	if got := followerCount(t, db, trader.ID); got != 1 {
		t.Errorf("expected 1 follower after refollow, got %d", got)
	}
}

func TestListTraders_OrderedByFollowers(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)

	u1 := createUser(t, db, "t1@example.com")
	u2 := createUser(t, db, "t2@example.com")
	t1, _ := service.BecomeTrader(u1.ID, BecomeTraderRequest{DisplayName: "One"})
	t2, _ := service.BecomeTrader(u2.ID, BecomeTraderRequest{DisplayName: "Two"})

	f1 := createUser(t, db, "f1@example.com")
	f2 := createUser(t, db, "f2@example.com")
	if _, err := service.StartCopying(f1.ID, StartCopyingRequest{TraderID: t2.ID}); err != nil {
		t.Fatalf("StartCopying failed: %v", err)
	}
	if _, err := service.StartCopying(f2.ID, StartCopyingRequest{TraderID: t2.ID}); err != nil {
		t.Fatalf("StartCopying failed: %v", err)
	}

	traders, err := service.ListTraders()
	if err != nil {
		t.Fatalf("ListTraders failed: %v", err)
	}
	if len(traders) != 2 {
		t.Fatalf("expected 2 traders, got %d", len(traders))
	}
	if traders[0].ID != t2.ID {
		t.Errorf("expected most-followed trader first, got trader %d", traders[0].ID)
	}
	if traders[1].ID != t1.ID {
		t.Errorf("expected least-followed trader last, got trader %d", traders[1].ID)
	}
}

func TestListFollowing(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	traderUser := createUser(t, db, "trader@example.com")
	trader, _ := service.BecomeTrader(traderUser.ID, BecomeTraderRequest{DisplayName: "Alpha"})
	follower := createUser(t, db, "f@example.com")

	if _, err := service.StartCopying(follower.ID, StartCopyingRequest{TraderID: trader.ID}); err != nil {
		t.Fatalf("StartCopying failed: %v", err)
	}

	rels, err := service.ListFollowing(follower.ID)
	if err != nil {
		t.Fatalf("ListFollowing failed: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(rels))
	}
	if rels[0].TraderID != trader.ID {
		t.Errorf("expected relationship with trader %d, got %d", trader.ID, rels[0].TraderID)
	}
}
