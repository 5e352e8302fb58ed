package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is the read-only report of a completed transfer.
type Receipt struct {
	TransactionID string          `json:"transaction_id"`
	UserEmail     string          `json:"user_email"`
	AccountDebit  string          `json:"account_debit"`
	AccountCredit string          `json:"account_credit"`
	Amount        decimal.Decimal `json:"amount"`
	Status        TransferStatus  `json:"status"`
	ExecutionTime string          `json:"execution_time"`
}

func NewReceipt(t *Transfer) *Receipt {
	executed := t.CreatedAt
	if t.UpdatedAt != nil {
		executed = *t.UpdatedAt
	}
	return &Receipt{
		TransactionID: t.Reference,
		UserEmail:     t.UserEmail,
		AccountDebit:  t.AccountDebit,
		AccountCredit: t.AccountCredit,
		Amount:        t.Amount,
		Status:        t.Status,
		ExecutionTime: executed.Format(time.RFC3339),
	}
}
