package repo

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_TransferAndAudit(t *testing.T) {
	m := NewMemoryStore("888")
	ctx := context.Background()
	_, err := m.Create(ctx, 1, dec("100"))
	require.NoError(t, err)
	_, err = m.Create(ctx, 2, dec("50"))
	require.NoError(t, err)

	_, err = m.Create(ctx, 1, decimal.Zero)
	assert.ErrorIs(t, err, model.ErrStorageConflict)

	xfer := model.NewTransfer(1, 2, dec("40"))
	s, r, err := m.Transfer(ctx, xfer)
	require.NoError(t, err)
	assert.True(t, dec("60").Equal(s))
	assert.True(t, dec("90").Equal(r))
	assert.Equal(t, "8880000000002", xfer.AccountCredit)

	stored, err := m.FindTransfer(ctx, xfer.Reference)
	require.NoError(t, err)
	assert.Equal(t, model.TransferSuccess, stored.Status)
	require.Len(t, m.Events(), 1)
	assert.Equal(t, xfer.Reference, m.Events()[0].AggregateID)

	_, _, err = m.Transfer(ctx, model.NewTransfer(1, 2, dec("61")))
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)
	_, _, err = m.Transfer(ctx, model.NewTransfer(1, 3, dec("1")))
	assert.ErrorIs(t, err, model.ErrWalletNotFound)

	w, err := m.FindByUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, dec("60").Equal(w.Balance))
}

func TestMemoryStore_TransferEventCarriesReceipt(t *testing.T) {
	m := NewMemoryStore("888")
	ctx := context.Background()
	_, err := m.Create(ctx, 1, dec("10"))
	require.NoError(t, err)
	_, err = m.Create(ctx, 2, dec("0"))
	require.NoError(t, err)

	refused := model.NewTransfer(1, 2, dec("11"))
	_, _, err = m.Transfer(ctx, refused)
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)
	assert.Equal(t, model.TransferPending, refused.Status)
	assert.Empty(t, refused.AccountDebit)
	assert.Empty(t, m.Events())

	xfer := model.NewTransfer(1, 2, dec("4"))
	_, _, err = m.Transfer(ctx, xfer)
	require.NoError(t, err)
	require.Len(t, m.Events(), 1)

	var got model.Receipt
	require.NoError(t, json.Unmarshal([]byte(m.Events()[0].Payload), &got))
	assert.Equal(t, xfer.Reference, got.TransactionID)
	assert.Equal(t, "8880000000001", got.AccountDebit)
	assert.Equal(t, "8880000000002", got.AccountCredit)
	assert.Equal(t, model.TransferSuccess, got.Status)
	assert.True(t, dec("4").Equal(got.Amount))
}

func TestMemoryStore_SnapshotsAreDetached(t *testing.T) {
	m := NewMemoryStore("888")
	ctx := context.Background()
	w, err := m.Create(ctx, 1, dec("10"))
	require.NoError(t, err)
	w.Balance = dec("1000")

	got, err := m.FindByUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(got.Balance))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	m := NewMemoryStore("888")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.FindByUser(ctx, 1)
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
	_, _, err = m.Transfer(ctx, model.NewTransfer(1, 2, dec("1")))
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
}

func TestMemoryStore_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	m := NewMemoryStore("888")
	ctx := context.Background()
	_, err := m.Create(ctx, 1, dec("100"))
	require.NoError(t, err)
	_, err = m.Create(ctx, 2, decimal.Zero)
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := m.Transfer(ctx, model.NewTransfer(1, 2, dec("10"))); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	from, _ := m.FindByUser(ctx, 1)
	to, _ := m.FindByUser(ctx, 2)
	assert.True(t, from.Balance.IsZero())
	assert.True(t, dec("100").Equal(to.Balance))
}

func TestMemoryStore_ListTransfers(t *testing.T) {
	m := NewMemoryStore("888")
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		xfer := model.NewTransfer(1, 2, dec("1"))
		xfer.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		xfer.MarkFailed("insufficient")
		require.NoError(t, m.SaveTransfer(ctx, xfer))
	}

	got, err := m.ListTransfers(ctx, 2, 2, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))

	got, err = m.ListTransfers(ctx, 1, 10, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
