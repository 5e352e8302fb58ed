package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	debitLegSQL = `UPDATE wallet SET balance = balance - ?, updated_date = ? ` +
		`WHERE user_id = ? AND status = ? AND balance >= ? RETURNING balance, norek`
	creditLegSQL = `UPDATE wallet SET balance = balance + ?, updated_date = ? ` +
		`WHERE user_id = ? AND status = ? RETURNING balance, norek`
	adjustSQL = `UPDATE wallet SET balance = balance + ?, updated_date = ? ` +
		`WHERE user_id = ? AND status = ? AND balance + ? >= 0`
)

// Repository is the gorm backed Store. It also owns the transfer outbox
// and the Kafka writer the poller publishes through.
type Repository struct {
	db     *gorm.DB
	writer MessageWriter
	log    *zap.SugaredLogger
	prefix string
}

// NewRepository constructs repo. w may be nil for processes that never publish.
func NewRepository(db *gorm.DB, w MessageWriter, logger *zap.SugaredLogger, accountPrefix string) *Repository {
	return &Repository{db: db, writer: w, log: logger, prefix: accountPrefix}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

func (r *Repository) FindByUser(ctx context.Context, userID int64) (*model.Wallet, error) {
	var w model.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&w).Error; err != nil {
		return nil, translate(err, model.ErrWalletNotFound)
	}
	return &w, nil
}

func (r *Repository) Create(ctx context.Context, userID int64, initial decimal.Decimal) (*model.Wallet, error) {
	w := model.NewWallet(model.AccountNumber(r.prefix, userID), userID, initial)
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		return nil, translate(err, model.ErrWalletNotFound)
	}
	return w, nil
}

// AdjustBalance never reads then writes: the guard lives in the UPDATE.
func (r *Repository) AdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(adjustSQL, delta, time.Now().UTC(), userID, model.WalletActive, delta)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return explainMiss(tx, userID, delta.Neg())
		}
		return nil
	})
	return translate(err, model.ErrWalletNotFound)
}

type leg struct {
	Balance decimal.Decimal
	Norek   string
}

// Transfer applies both legs in one transaction. The legs lock their rows
// in ascending user id order so opposite transfers between the same pair
// queue instead of deadlocking.
func (r *Repository) Transfer(ctx context.Context, t *model.Transfer) (sender, receiver decimal.Decimal, err error) {
	rec := *t
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ts := time.Now().UTC()

		var debit, credit leg
		debitStep := func() error {
			res := tx.Raw(debitLegSQL, rec.Amount, ts, rec.DebitUserID, model.WalletActive, rec.Amount).Scan(&debit)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return explainMiss(tx, rec.DebitUserID, rec.Amount)
			}
			return nil
		}
		creditStep := func() error {
			res := tx.Raw(creditLegSQL, rec.Amount, ts, rec.CreditUserID, model.WalletActive).Scan(&credit)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return explainMiss(tx, rec.CreditUserID, decimal.Zero)
			}
			return nil
		}
		steps := []func() error{debitStep, creditStep}
		if rec.CreditUserID < rec.DebitUserID {
			steps[0], steps[1] = creditStep, debitStep
		}
		for _, apply := range steps {
			if err := apply(); err != nil {
				return err
			}
		}

		rec.AccountDebit = debit.Norek
		rec.AccountCredit = credit.Norek
		rec.MarkSuccess()
		if err := tx.Save(&rec).Error; err != nil {
			return err
		}
		if err := createTransferEvent(tx, &rec); err != nil {
			return err
		}
		sender, receiver = debit.Balance, credit.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, decimal.Zero, translate(err, model.ErrWalletNotFound)
	}
	r.log.Debugw("transfer committed", "reference", rec.Reference, "sender_balance", sender.String(), "receiver_balance", receiver.String())
	*t = rec
	return sender, receiver, nil
}

// explainMiss runs after a guarded UPDATE matched no row and tells the
// caller which guard failed.
func explainMiss(tx *gorm.DB, userID int64, requested decimal.Decimal) error {
	var w model.Wallet
	err := tx.Where("user_id = ?", userID).Take(&w).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.ErrWalletNotFound
	case err != nil:
		return err
	case !w.IsActive():
		return model.ErrWalletInactive
	case w.Balance.GreaterThanOrEqual(requested):
		// a concurrent credit landed after the guard ran
		return fmt.Errorf("%w: attempted to debit %s", model.ErrInsufficientBalance, requested.String())
	}
	return model.NewInsufficientBalance(requested, w.Balance)
}

func (r *Repository) SetStatus(ctx context.Context, userID int64, status model.WalletStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Wallet{}).Where("user_id = ?", userID).
		Updates(map[string]interface{}{"status": status, "updated_date": time.Now().UTC()})
	if res.Error != nil {
		return translate(res.Error, model.ErrWalletNotFound)
	}
	if res.RowsAffected == 0 {
		return model.ErrWalletNotFound
	}
	return nil
}

func (r *Repository) SaveTransfer(ctx context.Context, t *model.Transfer) error {
	return translate(r.db.WithContext(ctx).Save(t).Error, model.ErrTransferNotFound)
}

func (r *Repository) FindTransfer(ctx context.Context, reference string) (*model.Transfer, error) {
	var t model.Transfer
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).Take(&t).Error; err != nil {
		return nil, translate(err, model.ErrTransferNotFound)
	}
	return &t, nil
}

// ListTransfers returns transfers touching userID, newest first.
func (r *Repository) ListTransfers(ctx context.Context, userID int64, limit int, since time.Time) ([]model.Transfer, error) {
	var out []model.Transfer
	err := r.db.WithContext(ctx).
		Where("(debit_user_id = ? OR credit_user_id = ?) AND created_date >= ?", userID, userID, since).
		Order("created_date desc").Order("id desc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, translate(err, model.ErrTransferNotFound)
	}
	return out, nil
}

func createTransferEvent(tx *gorm.DB, t *model.Transfer) error {
	payload, err := json.Marshal(model.NewReceipt(t))
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	return tx.Create(&model.OutboxEvent{
		Aggregate:   model.AggregateTransfer,
		AggregateID: t.Reference,
		EventType:   model.EventTransferCompleted,
		Payload:     string(payload),
	}).Error
}
