package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type WalletStatus string

const (
	WalletActive    WalletStatus = "Active"
	WalletNonActive WalletStatus = "NonActive"
)

// Wallet is a per-user balance. ID is zero until the store persists it;
// values handed out by the store are snapshots.
type Wallet struct {
	ID      uint64          `gorm:"primaryKey;column:id" json:"id"`
	Norek   string          `gorm:"column:norek;size:32;not null;uniqueIndex" json:"norek"`
	UserID  int64           `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	Balance decimal.Decimal `gorm:"column:balance;type:numeric(20,8);not null;default:0;check:balance >= 0" json:"balance"`
	Status  WalletStatus    `gorm:"column:status;size:16;not null;default:'Active'" json:"status"`
	Audit   `gorm:"embedded"`
}

func (Wallet) TableName() string { return "wallet" }

// NewWallet returns an unsaved Active wallet.
func NewWallet(norek string, userID int64, initial decimal.Decimal) *Wallet {
	return &Wallet{
		Norek:   norek,
		UserID:  userID,
		Balance: initial,
		Status:  WalletActive,
		Audit:   NewAudit(),
	}
}

// AccountNumber derives the norek of the wallet owned by userID.
func AccountNumber(prefix string, userID int64) string {
	return fmt.Sprintf("%s%010d", prefix, userID)
}

// Credit adds amount to the balance.
func (w *Wallet) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	w.Balance = w.Balance.Add(amount)
	w.Touch()
	return nil
}

// Debit subtracts amount, refusing to go below zero. The balance is left
// untouched on error.
func (w *Wallet) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	if w.Balance.LessThan(amount) {
		return NewInsufficientBalance(amount, w.Balance)
	}
	w.Balance = w.Balance.Sub(amount)
	w.Touch()
	return nil
}

func (w *Wallet) IsActive() bool { return w.Status == WalletActive }

// Snapshot returns a deep copy that shares no memory with w.
func (w *Wallet) Snapshot() *Wallet {
	c := *w
	c.Audit = w.Audit.clone()
	return &c
}
