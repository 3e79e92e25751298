package transactions

import (
	"github.com/sgoodman/tradecopy-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateTransaction(txn *types.Transaction) error {
	return d.db.Create(txn).Error
}

func (d *Database) GetTransaction(transactionID uint) (*types.Transaction, error) {
	var txn types.Transaction
	if err := d.db.First(&txn, transactionID).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (d *Database) GetUserTransactions(userID uint) ([]types.Transaction, error) {
	var txns []types.Transaction
	if err := d.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (d *Database) GetPendingTransactions() ([]types.Transaction, error) {
	var txns []types.Transaction
	if err := d.db.Where("status = ?", types.TransactionPending).
		Order("created_at ASC").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
