package model

import (
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferPending TransferStatus = "Pending"
	TransferSuccess TransferStatus = "Success"
	TransferFailed  TransferStatus = "Failed"
)

// Transfer is the audit record of one requested money movement.
type Transfer struct {
	ID            uint64          `gorm:"primaryKey;column:id" json:"id"`
	Reference     string          `gorm:"column:reference;size:36;not null;uniqueIndex" json:"reference"`
	DebitUserID   int64           `gorm:"column:debit_user_id;not null;index" json:"debit_user_id"`
	CreditUserID  int64           `gorm:"column:credit_user_id;not null;index" json:"credit_user_id"`
	AccountDebit  string          `gorm:"column:account_debit;size:32" json:"account_debit"`
	AccountCredit string          `gorm:"column:account_credit;size:32" json:"account_credit"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(20,8);not null;check:amount > 0" json:"amount"`
	Status        TransferStatus  `gorm:"column:status;size:16;not null" json:"status"`
	FailureReason string          `gorm:"column:failure_reason;size:255" json:"failure_reason,omitempty"`
	UserEmail     string          `gorm:"column:user_email;size:255" json:"user_email,omitempty"`
	Audit         `gorm:"embedded"`
}

func (Transfer) TableName() string { return "transfer" }

// NewTransfer builds a Pending transfer with a fresh reference.
func NewTransfer(debitUserID, creditUserID int64, amount decimal.Decimal) *Transfer {
	return &Transfer{
		Reference:    uuid.NewString(),
		DebitUserID:  debitUserID,
		CreditUserID: creditUserID,
		Amount:       amount,
		Status:       TransferPending,
		Audit:        NewAudit(),
	}
}

func (t *Transfer) MarkSuccess() {
	t.Status = TransferSuccess
	t.FailureReason = ""
	t.Touch()
}

func (t *Transfer) MarkFailed(reason string) {
	t.Status = TransferFailed
	t.FailureReason = truncate(reason, 255)
	t.Touch()
}

func (t *Transfer) MarkPending() {
	t.Status = TransferPending
	t.Touch()
}

// IsTerminal reports whether the transfer reached Success or Failed.
func (t *Transfer) IsTerminal() bool {
	return t.Status == TransferSuccess || t.Status == TransferFailed
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
