package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/shopspring/decimal"
)

// MemoryStore is a process-local Store. One mutex serialises every
// mutation, which gives the same guarantees as the conditional UPDATEs of
// Repository. Used for tests and the "memory" ledger driver.
type MemoryStore struct {
	mu        sync.Mutex
	prefix    string
	walletSeq uint64
	wallets   map[int64]*model.Wallet
	xferSeq   uint64
	transfers map[string]*model.Transfer
	events    []model.OutboxEvent
}

func NewMemoryStore(accountPrefix string) *MemoryStore {
	return &MemoryStore{
		prefix:    accountPrefix,
		wallets:   make(map[int64]*model.Wallet),
		transfers: make(map[string]*model.Transfer),
	}
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return nil
}

func (m *MemoryStore) FindByUser(ctx context.Context, userID int64) (*model.Wallet, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return nil, model.ErrWalletNotFound
	}
	return w.Snapshot(), nil
}

func (m *MemoryStore) Create(ctx context.Context, userID int64, initial decimal.Decimal) (*model.Wallet, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if initial.IsNegative() {
		return nil, model.NewInsufficientBalance(initial.Neg(), decimal.Zero)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[userID]; ok {
		return nil, fmt.Errorf("%w: wallet for user %d", model.ErrStorageConflict, userID)
	}
	m.walletSeq++
	w := model.NewWallet(model.AccountNumber(m.prefix, userID), userID, initial)
	w.ID = m.walletSeq
	m.wallets[userID] = w
	return w.Snapshot(), nil
}

// active returns the live wallet for userID. Caller holds mu.
func (m *MemoryStore) active(userID int64) (*model.Wallet, error) {
	w, ok := m.wallets[userID]
	if !ok {
		return nil, model.ErrWalletNotFound
	}
	if !w.IsActive() {
		return nil, model.ErrWalletInactive
	}
	return w, nil
}

func (m *MemoryStore) AdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, err := m.active(userID)
	if err != nil {
		return err
	}
	switch {
	case delta.IsPositive():
		return w.Credit(delta)
	case delta.IsNegative():
		return w.Debit(delta.Neg())
	}
	return nil
}

func (m *MemoryStore) Transfer(ctx context.Context, t *model.Transfer) (sender, receiver decimal.Decimal, err error) {
	if err := ctxErr(ctx); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	from, err := m.active(t.DebitUserID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	to, err := m.active(t.CreditUserID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if from.Balance.LessThan(t.Amount) {
		return decimal.Zero, decimal.Zero, model.NewInsufficientBalance(t.Amount, from.Balance)
	}

	rec := *t
	rec.AccountDebit = from.Norek
	rec.AccountCredit = to.Norek
	rec.MarkSuccess()
	payload, err := json.Marshal(model.NewReceipt(&rec))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("marshal receipt: %w", err)
	}

	if err := from.Debit(t.Amount); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if err := to.Credit(t.Amount); err != nil {
		// restore the sender
		from.Balance = from.Balance.Add(t.Amount)
		return decimal.Zero, decimal.Zero, err
	}
	*t = rec
	m.saveLocked(t)

	m.events = append(m.events, model.OutboxEvent{
		ID:          uint64(len(m.events) + 1),
		Aggregate:   model.AggregateTransfer,
		AggregateID: t.Reference,
		EventType:   model.EventTransferCompleted,
		Payload:     string(payload),
		CreatedAt:   time.Now().UTC(),
	})
	return from.Balance, to.Balance, nil
}

func (m *MemoryStore) SetStatus(ctx context.Context, userID int64, status model.WalletStatus) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return model.ErrWalletNotFound
	}
	w.Status = status
	w.Touch()
	return nil
}

func (m *MemoryStore) SaveTransfer(ctx context.Context, t *model.Transfer) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveLocked(t)
	return nil
}

func (m *MemoryStore) saveLocked(t *model.Transfer) {
	if t.ID == 0 {
		m.xferSeq++
		t.ID = m.xferSeq
	}
	c := *t
	m.transfers[t.Reference] = &c
}

func (m *MemoryStore) FindTransfer(ctx context.Context, reference string) (*model.Transfer, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[reference]
	if !ok {
		return nil, model.ErrTransferNotFound
	}
	c := *t
	return &c, nil
}

func (m *MemoryStore) ListTransfers(ctx context.Context, userID int64, limit int, since time.Time) ([]model.Transfer, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Transfer, 0)
	for _, t := range m.transfers {
		if t.DebitUserID != userID && t.CreditUserID != userID {
			continue
		}
		if t.CreatedAt.Before(since) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns a copy of the recorded outbox.
func (m *MemoryStore) Events() []model.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.OutboxEvent(nil), m.events...)
}
