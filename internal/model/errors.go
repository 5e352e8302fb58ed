package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("invalid amount: must be positive")
	// ErrInsufficientBalance matches every *InsufficientBalanceError.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletInactive      = errors.New("wallet is not active")
	ErrSelfTransfer        = errors.New("cannot transfer to the same wallet")
	ErrTransferNotFound    = errors.New("transfer not found")
	// ErrStorageConflict signals a uniqueness violation in the ledger store.
	ErrStorageConflict = errors.New("storage conflict")
	// ErrStorageUnavailable wraps connection, timeout and transport failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// InsufficientBalanceError carries the requested amount and the balance that was available.
type InsufficientBalanceError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("Insufficient balance: attempted to debit %s, but only %s available",
		e.Requested.String(), e.Available.String())
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// NewInsufficientBalance builds an *InsufficientBalanceError.
func NewInsufficientBalance(requested, available decimal.Decimal) error {
	return &InsufficientBalanceError{Requested: requested, Available: available}
}
