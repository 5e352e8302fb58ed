package repo

import (
	"context"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/shopspring/decimal"
)

// Store is the ledger's persistence contract. It is the only writer of
// durable balances. Wallets it returns are snapshots.
type Store interface {
	// FindByUser returns model.ErrWalletNotFound when the user has no wallet.
	FindByUser(ctx context.Context, userID int64) (*model.Wallet, error)
	// Create inserts an Active wallet; model.ErrStorageConflict if one exists.
	Create(ctx context.Context, userID int64, initial decimal.Decimal) (*model.Wallet, error)
	// AdjustBalance applies a signed delta in one conditional statement.
	AdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal) error
	// Transfer moves t.Amount from t.DebitUserID to t.CreditUserID in one
	// unit of work, records t as Success with its outbox event, and returns
	// both post-balances as read by that unit of work.
	Transfer(ctx context.Context, t *model.Transfer) (sender, receiver decimal.Decimal, err error)
	SetStatus(ctx context.Context, userID int64, status model.WalletStatus) error
	// SaveTransfer inserts or updates an audit record.
	SaveTransfer(ctx context.Context, t *model.Transfer) error
	FindTransfer(ctx context.Context, reference string) (*model.Transfer, error)
	ListTransfers(ctx context.Context, userID int64, limit int, since time.Time) ([]model.Transfer, error)
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
